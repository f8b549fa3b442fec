// Gobcpsim drives a small in-process network of BCP connections over a
// simulated medium and prints recv/sent/dropped activity as it happens. It
// exists to exercise the protocol end to end without real radios, the way
// the original Contiki demo drove a single node's queue over its test rig —
// scaled up to a multi-node network, since that is the interesting case.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dantte-lp/gobcp/internal/bcp"
	"github.com/dantte-lp/gobcp/internal/radio"
)

func main() {
	scenario := "all"
	if len(os.Args) > 1 {
		scenario = os.Args[1]
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	scenarios := map[string]func(context.Context, *slog.Logger){
		"single-hop":    scenarioSingleHop,
		"two-hop":       scenarioTwoHop,
		"queue-full":    scenarioQueueFull,
		"retransmit":    scenarioRetransmission,
		"weight-select": scenarioWeightSelection,
		"beacon-idle":   scenarioBeaconIdle,
	}

	run, ok := scenarios[scenario]
	if scenario != "all" && !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q; want one of: all, single-hop, two-hop, queue-full, retransmit, weight-select, beacon-idle\n", scenario)
		os.Exit(2)
	}

	ctx := context.Background()

	if scenario == "all" {
		for _, name := range []string{"single-hop", "two-hop", "queue-full", "retransmit", "weight-select", "beacon-idle"} {
			logger.Info("running scenario", slog.String("scenario", name))
			scenarios[name](ctx, logger.With(slog.String("scenario", name)))
		}
		return
	}

	logger.Info("running scenario", slog.String("scenario", scenario))
	run(ctx, logger)
}

// node bundles a running Connection with the cancel function and done
// channel of the goroutine running its event loop, used to tear it down.
type node struct {
	conn   *bcp.Connection
	cancel context.CancelFunc
	done   chan struct{}
}

// openNode joins addr to medium and starts its Connection's event loop in a
// background goroutine, returning a handle the caller must close.
func openNode(ctx context.Context, medium *radio.SimMedium, addr bcp.Addr, isSink bool, logger *slog.Logger, callbacks bcp.Callbacks) *node {
	inbound, nodeRadio := medium.Join(addr, 32)

	conn, err := bcp.Open(bcp.Config{
		Addr:   addr,
		Radio:  nodeRadio,
		Logger: logger.With(slog.String("addr", addr.String())),
		IsSink: isSink,
	}, callbacks)
	if err != nil {
		panic(fmt.Sprintf("open connection %s: %v", addr, err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := conn.Run(runCtx, inbound); err != nil && runCtx.Err() == nil {
			logger.Error("connection run exited early", slog.Any("error", err))
		}
	}()

	return &node{conn: conn, cancel: cancel, done: done}
}

func (n *node) close(medium *radio.SimMedium, addr bcp.Addr) {
	n.conn.Close()
	n.cancel()
	<-n.done
	medium.Leave(addr)
}

func addr(hi, lo byte) bcp.Addr { return bcp.Addr{hi, lo} }

// scenarioSingleHop: A sends "HI" directly to sink B. Expect one recv at B
// and one sent at A.
func scenarioSingleHop(ctx context.Context, logger *slog.Logger) {
	medium := radio.NewSimMedium()
	a, b := addr(2, 0), addr(1, 0)

	var sentCount, recvCount atomic.Int32

	nodeB := openNode(ctx, medium, b, true, logger, bcp.Callbacks{
		Recv: func(origin bcp.Addr, payload []byte) {
			recvCount.Add(1)
			logger.Info("recv", slog.String("origin", origin.String()), slog.String("payload", string(payload)))
		},
	})
	nodeA := openNode(ctx, medium, a, false, logger, bcp.Callbacks{
		Sent: func(payload []byte) {
			sentCount.Add(1)
			logger.Info("sent", slog.String("payload", string(payload)))
		},
	})
	defer nodeA.close(medium, a)
	defer nodeB.close(medium, b)

	awaitBeaconExchange()

	if err := nodeA.conn.Send(ctx, []byte("HI")); err != nil {
		logger.Error("send failed", slog.Any("error", err))
		return
	}

	waitFor(func() bool { return sentCount.Load() == 1 && recvCount.Load() == 1 }, 2*time.Second)
	logger.Info("result", slog.Int("sent", int(sentCount.Load())), slog.Int("recv", int(recvCount.Load())))
}

// scenarioTwoHop: A -> R -> B, B is sink. Only the sink acks a data frame,
// so R's Sent callback fires once (acked by B) and A's never fires (R
// never acks its own sender); one recv fires at B.
func scenarioTwoHop(ctx context.Context, logger *slog.Logger) {
	medium := radio.NewSimMedium()
	a, r, b := addr(3, 0), addr(2, 0), addr(1, 0)

	var sentCount, recvCount atomic.Int32
	var mu sync.Mutex
	var sentFrom []string

	nodeB := openNode(ctx, medium, b, true, logger, bcp.Callbacks{
		Recv: func(origin bcp.Addr, payload []byte) {
			recvCount.Add(1)
			logger.Info("recv", slog.String("origin", origin.String()), slog.String("payload", string(payload)))
		},
	})
	nodeR := openNode(ctx, medium, r, false, logger, bcp.Callbacks{
		Sent: func(payload []byte) {
			sentCount.Add(1)
			mu.Lock()
			sentFrom = append(sentFrom, "R")
			mu.Unlock()
		},
	})
	nodeA := openNode(ctx, medium, a, false, logger, bcp.Callbacks{
		Sent: func(payload []byte) {
			sentCount.Add(1)
			mu.Lock()
			sentFrom = append(sentFrom, "A")
			mu.Unlock()
		},
	})
	defer nodeA.close(medium, a)
	defer nodeR.close(medium, r)
	defer nodeB.close(medium, b)

	awaitBeaconExchange()

	if err := nodeA.conn.Send(ctx, []byte("HI")); err != nil {
		logger.Error("send failed", slog.Any("error", err))
		return
	}

	waitFor(func() bool { return sentCount.Load() == 1 && recvCount.Load() == 1 }, 3*time.Second)
	mu.Lock()
	logger.Info("result", slog.Int("sent", int(sentCount.Load())), slog.Int("recv", int(recvCount.Load())), slog.Any("sent_from", sentFrom))
	mu.Unlock()
}

// scenarioQueueFull: fill a sourceless node's queue to capacity; the next
// send is dropped and the queue length stays at capacity.
func scenarioQueueFull(ctx context.Context, logger *slog.Logger) {
	medium := radio.NewSimMedium()
	a := addr(4, 0)

	var dropped atomic.Int32

	nodeA := openNode(ctx, medium, a, false, logger, bcp.Callbacks{
		Dropped: func() { dropped.Add(1) },
	})
	defer nodeA.close(medium, a)

	// No neighbor ever acks, so every send queues up without draining.
	for i := 0; i < bcp.MaxPacketQueueSize; i++ {
		if err := nodeA.conn.Send(ctx, []byte("HI")); err != nil {
			logger.Warn("unexpected send error while filling queue", slog.Int("i", i), slog.Any("error", err))
		}
	}

	if err := nodeA.conn.Send(ctx, []byte("HI")); err != nil {
		logger.Info("101st send rejected synchronously", slog.Any("error", err))
	}

	waitFor(func() bool { return true }, 200*time.Millisecond)
	stats := nodeA.conn.Stats(ctx)
	logger.Info("result", slog.Int("queue_length", stats.QueueLength), slog.Int("dropped", int(dropped.Load())))
}

// scenarioRetransmission: A's only neighbor goes silent after the initial
// beacon exchange. After the retransmission timer fires enough times, A
// clears its routing table and emits a beacon-request.
func scenarioRetransmission(ctx context.Context, logger *slog.Logger) {
	medium := radio.NewSimMedium()
	a, silent := addr(6, 0), addr(5, 0)

	nodeSilent := openNode(ctx, medium, silent, false, logger, bcp.Callbacks{})
	nodeA := openNode(ctx, medium, a, false, logger, bcp.Callbacks{})
	defer nodeA.close(medium, a)

	awaitBeaconExchange()

	// silent leaves the medium but never tells A — A's routing table
	// still believes it has a neighbor until the retransmission timer
	// decides otherwise.
	nodeSilent.close(medium, silent)

	if err := nodeA.conn.Send(ctx, []byte("HI")); err != nil {
		logger.Error("send failed", slog.Any("error", err))
		return
	}

	logger.Info("waiting for retransmission timer and beacon-request cycle")
	time.Sleep(bcp.RetransmissionInterval*3 + time.Second)

	stats := nodeA.conn.Stats(ctx)
	logger.Info("result", slog.Int("routing_table_size", stats.RoutingTableSize))
}

// scenarioWeightSelection: a node with two neighbors at queue depths 5 and 3
// (local depth 7) should favor the shallower one under the default
// estimator.
func scenarioWeightSelection(ctx context.Context, logger *slog.Logger) {
	medium := radio.NewSimMedium()
	local, shallow, deep := addr(9, 0), addr(8, 0), addr(7, 0)

	nodeShallow := openNode(ctx, medium, shallow, false, logger, bcp.Callbacks{})
	nodeDeep := openNode(ctx, medium, deep, false, logger, bcp.Callbacks{})
	nodeLocal := openNode(ctx, medium, local, false, logger, bcp.Callbacks{})
	defer nodeLocal.close(medium, local)
	defer nodeShallow.close(medium, shallow)
	defer nodeDeep.close(medium, deep)

	// Park payloads in each neighbor's queue so their advertised
	// backpressure differs, then let beacons propagate.
	for i := 0; i < 3; i++ {
		_ = nodeShallow.conn.Send(ctx, []byte("HI"))
	}
	for i := 0; i < 5; i++ {
		_ = nodeDeep.conn.Send(ctx, []byte("HI"))
	}
	for i := 0; i < 7; i++ {
		_ = nodeLocal.conn.Send(ctx, []byte("HI"))
	}

	awaitBeaconExchange()

	logger.Info("result: default estimator favors the shallower neighbor",
		slog.String("shallow_addr", shallow.String()),
		slog.String("deep_addr", deep.String()))
}

// scenarioBeaconIdle: a node that never sends keeps beaconing on its own:
// each beacon rearms the beacon timer, so beacons keep arriving at one per
// beacon interval while its queue stays empty.
func scenarioBeaconIdle(ctx context.Context, logger *slog.Logger) {
	medium := radio.NewSimMedium()
	a := addr(10, 0)

	var beaconsObserved atomic.Int32
	other := addr(11, 0)

	nodeA := openNode(ctx, medium, a, false, logger, bcp.Callbacks{})
	defer nodeA.close(medium, a)
	defer medium.Leave(other)

	// Passively watch the medium: every frame delivered to "other" while
	// A's queue sits empty is a beacon (data/ack only flow on demand).
	inbound, _ := medium.Join(other, 32)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-inbound:
				beaconsObserved.Add(1)
			case <-stop:
				return
			}
		}
	}()
	defer close(stop)

	logger.Info("waiting for at least one beacon interval on an idle queue")
	time.Sleep(bcp.BeaconInterval + 500*time.Millisecond)

	logger.Info("result", slog.Int("beacons_observed", int(beaconsObserved.Load())))
}

// awaitBeaconExchange gives freshly opened nodes time to trade their
// opening beacons before the driver starts sending, so routing tables are
// populated.
func awaitBeaconExchange() {
	time.Sleep(150 * time.Millisecond)
}

// waitFor polls cond until it returns true or timeout elapses.
func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
