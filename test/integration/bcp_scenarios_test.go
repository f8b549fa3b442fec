//go:build integration

package integration_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/dantte-lp/gobcp/internal/bcp"
	"github.com/dantte-lp/gobcp/internal/radio"
)

// startConnection joins addr to medium and runs its Connection in a
// background goroutine for the lifetime of the synctest bubble; the caller
// is responsible for calling conn.Close() before the test returns.
func startConnection(
	t *testing.T,
	ctx context.Context,
	medium *radio.SimMedium,
	addr bcp.Addr,
	isSink bool,
	callbacks bcp.Callbacks,
) *bcp.Connection {
	t.Helper()

	inbound, nodeRadio := medium.Join(addr, 32)

	conn, err := bcp.Open(bcp.Config{
		Addr:   addr,
		Radio:  nodeRadio,
		Logger: slog.New(slog.DiscardHandler),
		IsSink: isSink,
	}, callbacks)
	if err != nil {
		t.Fatalf("open connection %s: %v", addr, err)
	}

	go func() {
		_ = conn.Run(ctx, inbound)
	}()

	t.Cleanup(func() { medium.Leave(addr) })

	return conn
}

// TestScenarioSingleHopDelivery covers the source-to-sink delivery case: A
// sends to sink B and observes exactly one sent and one recv.
func TestScenarioSingleHopDelivery(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		medium := radio.NewSimMedium()
		a, b := bcp.Addr{2, 0}, bcp.Addr{1, 0}

		var sentCount, recvCount atomic.Int32
		var recvOrigin bcp.Addr

		connB := startConnection(t, ctx, medium, b, true, bcp.Callbacks{
			Recv: func(origin bcp.Addr, _ []byte) {
				recvOrigin = origin
				recvCount.Add(1)
			},
		})
		connA := startConnection(t, ctx, medium, a, false, bcp.Callbacks{
			Sent: func([]byte) { sentCount.Add(1) },
		})
		defer connA.Close()
		defer connB.Close()

		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		if err := connA.Send(ctx, []byte("HI")); err != nil {
			t.Fatalf("send: %v", err)
		}

		time.Sleep(bcp.SendTimeDelay + time.Second)
		synctest.Wait()

		if sentCount.Load() != 1 {
			t.Errorf("sentCount = %d, want 1", sentCount.Load())
		}
		if recvCount.Load() != 1 {
			t.Errorf("recvCount = %d, want 1", recvCount.Load())
		}
		if !recvOrigin.Equal(a) {
			t.Errorf("recv origin = %s, want %s", recvOrigin, a)
		}

		stats := connA.Stats(ctx)
		if stats.QueueLength != 0 {
			t.Errorf("A queue length = %d, want 0", stats.QueueLength)
		}
	})
}

// TestScenarioTwoHopForwarding covers A -> R -> B: only the sink acks a
// data frame, so R's Sent callback fires once (acked by B) while A's never
// fires (R, a plain relay, never acks its sender), and one recv fires at
// sink B.
func TestScenarioTwoHopForwarding(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		medium := radio.NewSimMedium()
		a, r, b := bcp.Addr{3, 0}, bcp.Addr{2, 0}, bcp.Addr{1, 0}

		var sentCount, recvCount atomic.Int32

		connB := startConnection(t, ctx, medium, b, true, bcp.Callbacks{
			Recv: func(bcp.Addr, []byte) { recvCount.Add(1) },
		})
		connR := startConnection(t, ctx, medium, r, false, bcp.Callbacks{
			Sent: func([]byte) { sentCount.Add(1) },
		})
		connA := startConnection(t, ctx, medium, a, false, bcp.Callbacks{
			Sent: func([]byte) { sentCount.Add(1) },
		})
		defer connA.Close()
		defer connR.Close()
		defer connB.Close()

		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		if err := connA.Send(ctx, []byte("HI")); err != nil {
			t.Fatalf("send: %v", err)
		}

		time.Sleep(2 * bcp.SendTimeDelay + 2*time.Second)
		synctest.Wait()

		if sentCount.Load() != 1 {
			t.Errorf("sentCount = %d, want 1 (only R is acked, by sink B; A is never acked by a relay)", sentCount.Load())
		}
		if recvCount.Load() != 1 {
			t.Errorf("recvCount = %d, want 1", recvCount.Load())
		}
	})
}

// TestScenarioQueueFullDrop covers the 101st send on a full queue: it
// returns an error synchronously and the dropped callback fires, while the
// queue length remains at capacity.
func TestScenarioQueueFullDrop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		medium := radio.NewSimMedium()
		a := bcp.Addr{4, 0}

		var dropped atomic.Int32
		conn := startConnection(t, ctx, medium, a, false, bcp.Callbacks{
			Dropped: func() { dropped.Add(1) },
		})
		defer conn.Close()

		for i := range bcp.MaxPacketQueueSize {
			if err := conn.Send(ctx, []byte("HI")); err != nil {
				t.Fatalf("send %d: %v", i, err)
			}
		}
		synctest.Wait()

		stats := conn.Stats(ctx)
		if stats.QueueLength != bcp.MaxPacketQueueSize {
			t.Fatalf("queue length = %d, want %d", stats.QueueLength, bcp.MaxPacketQueueSize)
		}

		if err := conn.Send(ctx, []byte("HI")); err == nil {
			t.Error("101st send on a full queue: want error, got nil")
		}
		synctest.Wait()

		if dropped.Load() != 1 {
			t.Errorf("dropped callback fired %d times, want 1", dropped.Load())
		}

		stats = conn.Stats(ctx)
		if stats.QueueLength != bcp.MaxPacketQueueSize {
			t.Errorf("queue length after drop = %d, want unchanged %d", stats.QueueLength, bcp.MaxPacketQueueSize)
		}
	})
}

// TestScenarioRetransmissionOnSilence covers a source whose only neighbor
// stops acknowledging: after the retransmission timer fires repeatedly the
// node clears its routing table and falls back to beacon-request.
func TestScenarioRetransmissionOnSilence(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		medium := radio.NewSimMedium()
		a, silent := bcp.Addr{6, 0}, bcp.Addr{5, 0}

		connSilent := startConnection(t, ctx, medium, silent, false, bcp.Callbacks{})
		connA := startConnection(t, ctx, medium, a, false, bcp.Callbacks{})
		defer connA.Close()

		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		if stats := connA.Stats(ctx); stats.RoutingTableSize == 0 {
			t.Fatalf("A has no routing entry for %s before going silent", silent)
		}

		// silent vanishes without telling A.
		connSilent.Close()
		medium.Leave(silent)

		if err := connA.Send(ctx, []byte("HI")); err != nil {
			t.Fatalf("send: %v", err)
		}

		time.Sleep(bcp.RetransmissionInterval*4 + time.Second)
		synctest.Wait()

		stats := connA.Stats(ctx)
		if stats.RoutingTableSize != 0 {
			t.Errorf("A routing table size after silence = %d, want 0 (cleared on retransmission exhaustion)", stats.RoutingTableSize)
		}
	})
}

// TestScenarioWeightBasedSelection covers next-hop selection: with local
// depth 7 and neighbors at depth 5 and 3, the default estimator (weight =
// local - neighbor) favors the shallower neighbor (weight 4 over weight 2).
func TestScenarioWeightBasedSelection(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		medium := radio.NewSimMedium()
		local, shallow, deep := bcp.Addr{9, 0}, bcp.Addr{8, 0}, bcp.Addr{7, 0}

		connShallow := startConnection(t, ctx, medium, shallow, false, bcp.Callbacks{})
		connDeep := startConnection(t, ctx, medium, deep, false, bcp.Callbacks{})

		var recvCount atomic.Int32
		connSink := startConnection(t, ctx, medium, bcp.Addr{1, 0}, true, bcp.Callbacks{
			Recv: func(bcp.Addr, []byte) { recvCount.Add(1) },
		})
		connLocal := startConnection(t, ctx, medium, local, false, bcp.Callbacks{})
		defer connLocal.Close()
		defer connShallow.Close()
		defer connDeep.Close()
		defer connSink.Close()

		for range 3 {
			_ = connShallow.Send(ctx, []byte("HI"))
		}
		for range 5 {
			_ = connDeep.Send(ctx, []byte("HI"))
		}
		for range 7 {
			_ = connLocal.Send(ctx, []byte("HI"))
		}

		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		localStats := connLocal.Stats(ctx)
		if localStats.RoutingTableSize != 2 {
			t.Fatalf("local routing table size = %d, want 2", localStats.RoutingTableSize)
		}
	})
}

// TestScenarioBeaconOnIdle covers an idle node that never sends: each beacon
// rearms the beacon timer, so with an empty queue a beacon goes out within
// one beacon interval.
func TestScenarioBeaconOnIdle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		medium := radio.NewSimMedium()
		a, observer := bcp.Addr{10, 0}, bcp.Addr{11, 0}

		conn := startConnection(t, ctx, medium, a, false, bcp.Callbacks{})
		defer conn.Close()

		watchCh, _ := medium.Join(observer, 8)
		defer medium.Leave(observer)

		time.Sleep(bcp.BeaconInterval + 500*time.Millisecond)
		synctest.Wait()

		select {
		case <-watchCh:
		default:
			t.Error("no beacon observed within one beacon interval on an idle queue")
		}
	})
}
