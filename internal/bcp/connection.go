package bcp

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Callbacks are the application-facing notifications a Connection delivers.
// Recv fires when this node is the sink and a data packet has completed its
// journey; Sent fires when the packet at the head of the queue (locally
// originated or being forwarded) has been acknowledged; Dropped fires when a
// packet could not be enqueued at all (oversize payload or a full queue);
// Retransmit fires each time the retransmission path is entered, either
// because the retransmission timer gave up on the current attempt or because
// a send found no usable neighbor;
// BeaconRequestSent fires each time a beacon-request is broadcast, a proxy
// for how often this node finds no usable next hop.
type Callbacks struct {
	Recv              func(origin Addr, payload []byte)
	Sent              func(payload []byte)
	Dropped           func()
	Retransmit        func()
	BeaconRequestSent func()
}

// Config collects the dependencies and fixed parameters a Connection needs
// at Open time.
type Config struct {
	// Addr is this node's own address.
	Addr Addr

	// Radio is the broadcast/unicast medium the connection sends over.
	Radio Radio

	// Estimator selects the next-hop weighing function. Defaults to
	// DefaultEstimator if nil.
	Estimator Estimator

	// Extension, if set, observes the data-sending and data-receiving
	// path. Nil disables all hooks.
	Extension *Extension

	// Logger receives structured protocol events. Defaults to
	// slog.Default() if nil.
	Logger *slog.Logger

	// IsSink marks this node as the collection sink. Changeable later via
	// SetSink (see SetSink for when that is safe).
	IsSink bool

	// BeaconInterval, SendTimeDelay, and RetransmissionInterval override the
	// package-level BeaconInterval/SendTimeDelay/RetransmissionInterval
	// defaults for this connection. Zero means "use the default".
	BeaconInterval         time.Duration
	SendTimeDelay          time.Duration
	RetransmissionInterval time.Duration
}

// Connection is one node's BCP protocol engine: a bounded packet queue, a
// one-hop routing table, and the timers that drive beaconing, sending, and
// retransmission. All mutable state is owned by the single goroutine
// running inside Run; every other method either only reads immutable
// configuration or hands a request to that goroutine over a channel.
type Connection struct {
	addr      Addr
	radio     Radio
	estimator Estimator
	extension *Extension
	logger    *slog.Logger
	callbacks Callbacks

	isSink bool

	queue   *Queue
	routing *RoutingTable

	beaconInterval         time.Duration
	sendTimeDelay          time.Duration
	retransmissionInterval time.Duration

	busy       bool
	txAttempts uint16

	sendTimer             oneShotTimer
	beaconTimer           oneShotTimer
	retransmissionTimer   oneShotTimer
	sendTimerFired        chan struct{}
	beaconTimerFired      chan struct{}
	retransmissionFired   chan struct{}

	sendReqCh  chan sendRequest
	statsReqCh chan chan Stats
	closeCh    chan struct{}
	closed     bool
}

type sendRequest struct {
	payload []byte
	result  chan error
}

// Stats is a point-in-time snapshot of a Connection's internal state,
// suitable for status reporting and metrics export.
type Stats struct {
	Addr             Addr
	IsSink           bool
	QueueLength      int
	RoutingTableSize int
}

// Open constructs a Connection ready to Run. The connection broadcasts its
// first beacon as soon as Run starts, mirroring bcp_open's immediate
// send_beacon call.
func Open(cfg Config, callbacks Callbacks) (*Connection, error) {
	if cfg.Radio == nil {
		return nil, fmt.Errorf("bcp: open: Radio must not be nil")
	}

	estimator := cfg.Estimator
	if estimator == nil {
		estimator = DefaultEstimator{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("node", cfg.Addr.String()))

	beaconInterval := cfg.BeaconInterval
	if beaconInterval == 0 {
		beaconInterval = BeaconInterval
	}
	sendTimeDelay := cfg.SendTimeDelay
	if sendTimeDelay == 0 {
		sendTimeDelay = SendTimeDelay
	}
	retransmissionInterval := cfg.RetransmissionInterval
	if retransmissionInterval == 0 {
		retransmissionInterval = RetransmissionInterval
	}

	c := &Connection{
		addr:                   cfg.Addr,
		radio:                  cfg.Radio,
		estimator:              estimator,
		extension:              cfg.Extension,
		logger:                 logger,
		callbacks:              callbacks,
		isSink:                 cfg.IsSink,
		queue:                  NewQueue(MaxPacketQueueSize),
		beaconInterval:         beaconInterval,
		sendTimeDelay:          sendTimeDelay,
		retransmissionInterval: retransmissionInterval,
		sendTimerFired:         make(chan struct{}, 1),
		beaconTimerFired:       make(chan struct{}, 1),
		retransmissionFired:    make(chan struct{}, 1),
		sendReqCh:              make(chan sendRequest),
		statsReqCh:             make(chan chan Stats),
		closeCh:                make(chan struct{}),
	}
	c.routing = NewRoutingTable(MaxRoutingTableSize, estimator)
	estimator.Init(c)

	return c, nil
}

// SetSink marks or unmarks this node as the collection sink. Call only
// before Run, or from within a callback invoked by Run (both execute on the
// connection's owning goroutine); calling concurrently with Run from an
// unrelated goroutine is undefined, matching the single-threaded-ownership
// rule the rest of the engine relies on.
func (c *Connection) SetSink(isSink bool) {
	c.isSink = isSink
}

// Addr returns this connection's own address.
func (c *Connection) Addr() Addr {
	return c.addr
}

// Send enqueues payload for delivery toward the current best next hop. It
// blocks until the enqueue attempt (not the delivery) completes.
func (c *Connection) Send(ctx context.Context, payload []byte) error {
	if len(payload) > MaxUserPacketSize {
		c.notifyDropped()
		return ErrOversizePayload
	}

	req := sendRequest{payload: payload, result: make(chan error, 1)}

	select {
	case c.sendReqCh <- req:
	case <-c.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the connection's timers, clears its queue and routing table,
// and causes a running Run call to return. Close is idempotent.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.closeCh)
}

// Stats requests a snapshot of the connection's current state. Like Send, it
// hands the request to the owning goroutine over a channel rather than
// reading queue/routing fields directly, so it is safe to call from any
// goroutine while Run is active. Returns the zero Stats if ctx is done or
// the connection is closed before Run picks up the request.
func (c *Connection) Stats(ctx context.Context) Stats {
	reply := make(chan Stats, 1)

	select {
	case c.statsReqCh <- reply:
	case <-c.closeCh:
		return Stats{}
	case <-ctx.Done():
		return Stats{}
	}

	select {
	case s := <-reply:
		return s
	case <-c.closeCh:
		return Stats{}
	case <-ctx.Done():
		return Stats{}
	}
}

// Run drives the connection's event loop until ctx is canceled or Close is
// called. It owns every mutation of queue, routing table, busy, and
// txAttempts: no other method touches them directly.
func (c *Connection) Run(ctx context.Context, inbound <-chan Inbound) error {
	c.sendBeacon(ctx)

	for {
		select {
		case <-ctx.Done():
			c.stopTimers()
			return ctx.Err()

		case <-c.closeCh:
			c.stopTimers()
			c.routing.Clear()
			c.queue.Clear()
			return nil

		case req := <-c.sendReqCh:
			c.handleSendRequest(req)

		case reply := <-c.statsReqCh:
			reply <- Stats{
				Addr:             c.addr,
				IsSink:           c.isSink,
				QueueLength:      c.queue.Length(),
				RoutingTableSize: c.routing.Length(),
			}

		case in := <-inbound:
			c.handleInbound(ctx, in)

		case <-c.sendTimerFired:
			c.sendTimer.Fire()
			c.handleSendTimer(ctx)

		case <-c.beaconTimerFired:
			c.beaconTimer.Fire()
			c.sendBeacon(ctx)

		case <-c.retransmissionFired:
			c.retransmissionTimer.Fire()
			c.handleRetransmit(ctx)
		}
	}
}

func (c *Connection) stopTimers() {
	c.sendTimer.Stop()
	c.beaconTimer.Stop()
	c.retransmissionTimer.Stop()
}

func (c *Connection) notifyDropped() {
	if c.callbacks.Dropped != nil {
		c.callbacks.Dropped()
	}
}

func (c *Connection) notifyRetransmit() {
	if c.callbacks.Retransmit != nil {
		c.callbacks.Retransmit()
	}
}

func (c *Connection) notifyBeaconRequestSent() {
	if c.callbacks.BeaconRequestSent != nil {
		c.callbacks.BeaconRequestSent()
	}
}

func (c *Connection) armSend(d time.Duration) {
	c.sendTimer.Set(d, func() { trigger(c.sendTimerFired) })
}

func (c *Connection) armBeacon(d time.Duration) {
	c.beaconTimer.Set(d, func() { trigger(c.beaconTimerFired) })
}

func (c *Connection) armRetransmission(d time.Duration) {
	c.retransmissionTimer.Set(d, func() { trigger(c.retransmissionFired) })
}

// trigger performs a non-blocking send, collapsing a redundant fire signal
// into the one already pending rather than blocking the timer goroutine.
func trigger(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// handleSendRequest implements bcp_send: enqueue the payload, stamp its
// origin, stop beaconing now that there is data to send, and make sure the
// send timer is running.
func (c *Connection) handleSendRequest(req sendRequest) {
	_, err := c.queue.Push(req.payload, PacketHeader{
		Origin:          c.addr,
		LastProcessTime: time.Now(),
	})
	if err != nil {
		c.notifyDropped()
		req.result <- err
		return
	}

	c.beaconTimer.Stop()
	if c.sendTimer.Expired() {
		c.armSend(c.sendTimeDelay)
	}

	req.result <- nil
}

// handleSendTimer implements send_packet: drain the head of the queue
// toward the current best neighbor, or fall back to beaconing/retransmit
// request if there is nothing to send or nobody to send it to.
func (c *Connection) handleSendTimer(ctx context.Context) {
	if c.busy {
		return
	}

	entry := c.queue.Top()
	if entry == nil {
		if c.beaconTimer.Expired() {
			c.armBeacon(c.beaconInterval)
		}
		return
	}

	best := c.routing.SelectBest(c)
	if best == nil {
		c.logger.Warn("no neighbor available, requesting beacons")
		c.handleRetransmit(ctx)
		return
	}

	c.busy = true
	c.beaconTimer.Stop()

	now := time.Now()
	entry.Header.Delay += now.Sub(entry.Header.LastProcessTime)
	entry.Header.LastProcessTime = now
	entry.Header.Backpressure = uint16(c.queue.Length())

	if c.extension != nil && c.extension.BeforeSend != nil {
		c.extension.BeforeSend(c, entry)
	}

	frame := Frame{
		Type: PacketTypeData,
		Payload: EncodeDataFrame(DataFrame{
			Dest:    best.Neighbor,
			Header:  entry.Header,
			Payload: entry.Data,
		}),
	}
	c.txAttempts++

	err := c.radio.SendBroadcast(ctx, frame)

	if c.extension != nil && c.extension.AfterSend != nil {
		c.extension.AfterSend(c, entry)
	}

	if err != nil {
		c.logger.Warn("data send failed", slog.Any("error", err))
	}

	// sent_from_broadcast, data-packet branch: arm the retransmission
	// timer scaled by attempt count in case no ACK arrives.
	d := c.retransmissionInterval * time.Duration(c.txAttempts)
	c.armRetransmission(d)
}

// handleRetransmit implements retransmit_callback: give up on the current
// attempt, broadcast a beacon request to refresh the routing table, and
// make sure the send timer will try again.
func (c *Connection) handleRetransmit(ctx context.Context) {
	c.busy = false
	c.notifyRetransmit()
	c.sendBeaconRequest(ctx)

	if c.sendTimer.Expired() {
		c.armSend(c.retransmissionInterval)
	}
}

// sendBeaconRequest implements send_beacon_request: clear the routing
// table (stale entries are worse than none) and broadcast a request for
// fresh beacons.
func (c *Connection) sendBeaconRequest(ctx context.Context) {
	if c.busy {
		return
	}
	c.busy = true

	c.routing.Clear()

	msg := BeaconMsg{Queuelog: uint16(c.queue.Length())}
	frame := Frame{Type: PacketTypeBeaconRequest, Payload: EncodeBeacon(msg)}

	if err := c.radio.SendBroadcast(ctx, frame); err != nil {
		c.logger.Warn("beacon request send failed", slog.Any("error", err))
	} else {
		c.notifyBeaconRequestSent()
	}

	// sent_from_broadcast, beacon-request branch: only release busy.
	c.busy = false
}

// sendBeacon implements send_beacon: advertise the local queue depth to
// one-hop neighbors.
func (c *Connection) sendBeacon(ctx context.Context) {
	if c.busy {
		return
	}
	c.busy = true

	msg := BeaconMsg{Queuelog: uint16(c.queue.Length())}
	frame := Frame{Type: PacketTypeBeacon, Payload: EncodeBeacon(msg)}

	if err := c.radio.SendBroadcast(ctx, frame); err != nil {
		c.logger.Warn("beacon send failed", slog.Any("error", err))
	}

	// sent_from_broadcast, beacon branch: release busy and keep the
	// idle-beacon cadence going.
	c.busy = false
	if c.beaconTimer.Expired() {
		c.armBeacon(c.beaconInterval)
	}
}

// sendAck implements send_ack: acknowledge a data frame delivered to the
// sink over the unicast channel.
func (c *Connection) sendAck(ctx context.Context, to Addr) {
	frame := Frame{Type: PacketTypeAck}
	if err := c.radio.SendUnicast(ctx, to, frame); err != nil {
		c.logger.Warn("ack send failed", slog.Any("error", err), slog.String("to", to.String()))
	}
}

// handleInbound implements recv_from_broadcast and recv_from_unicast,
// dispatched by the channel the frame arrived on.
func (c *Connection) handleInbound(ctx context.Context, in Inbound) {
	if in.Via == ChannelUnicast {
		c.handleAck(ctx, in.From)
		return
	}

	switch in.Type {
	case PacketTypeBeacon:
		msg, err := DecodeBeacon(in.Payload)
		if err != nil {
			c.logger.Warn("malformed beacon", slog.Any("error", err))
			return
		}
		if err := c.routing.UpdateQueuelog(in.From, msg.Queuelog); err != nil {
			c.logger.Warn("routing table update failed", slog.Any("error", err))
		}

	case PacketTypeBeaconRequest:
		msg, err := DecodeBeacon(in.Payload)
		if err != nil {
			c.logger.Warn("malformed beacon request", slog.Any("error", err))
			return
		}
		if err := c.routing.UpdateQueuelog(in.From, msg.Queuelog); err != nil {
			c.logger.Warn("routing table update failed", slog.Any("error", err))
		}
		c.armBeacon(beaconReplyJitter(rand.IntN))

	case PacketTypeData:
		frame, err := DecodeDataFrame(in.Payload)
		if err != nil {
			c.logger.Warn("malformed data frame", slog.Any("error", err))
			return
		}
		c.handleDataFrame(ctx, in.From, frame)

	default:
		c.logger.Warn("unknown packet type on broadcast channel", slog.Any("type", in.Type))
	}
}

// handleDataFrame implements the three branches inside recv_from_broadcast
// that fire for a data-typed frame: forward (this node is the addressed
// next hop but not the sink), deliver (this node is the sink), and snoop
// (the frame is addressed to a different node entirely).
func (c *Connection) handleDataFrame(ctx context.Context, from Addr, frame DataFrame) {
	if !frame.Dest.Equal(c.addr) {
		// Not addressed to us: opportunistically learn the sender's
		// backpressure anyway. Per the original implementation, this
		// uses the immediate sender's address, not the frame's origin
		// or destination — snooping observes the link, not the flow.
		if err := c.routing.UpdateQueuelog(from, frame.Header.Backpressure); err != nil {
			c.logger.Warn("routing table update failed", slog.Any("error", err))
		}
		return
	}

	if c.isSink {
		c.sendAck(ctx, from)
		if c.callbacks.Recv != nil {
			c.callbacks.Recv(frame.Header.Origin, frame.Payload)
		} else {
			c.logger.Warn("data delivered to sink but no Recv callback is set")
		}
		if err := c.routing.UpdateQueuelog(from, frame.Header.Backpressure); err != nil {
			c.logger.Warn("routing table update failed", slog.Any("error", err))
		}
		return
	}

	hdr := frame.Header
	hdr.LastProcessTime = time.Now()
	entry, err := c.queue.Push(frame.Payload, hdr)
	if err != nil {
		c.logger.Warn("dropping forwarded packet, queue full", slog.Any("error", err))
		c.notifyDropped()
	}

	if entry != nil {
		if c.extension != nil && c.extension.OnReceive != nil {
			c.extension.OnReceive(c, entry)
		}
		if c.sendTimer.Expired() {
			c.armSend(c.sendTimeDelay)
		}
	}

	if err := c.routing.UpdateQueuelog(from, frame.Header.Backpressure); err != nil {
		c.logger.Warn("routing table update failed", slog.Any("error", err))
	}
}

// handleAck implements recv_from_unicast: the packet at the head of the
// queue has been delivered, so retire it and let the estimator learn from
// how many attempts it took.
func (c *Connection) handleAck(ctx context.Context, from Addr) {
	entry := c.queue.Top()
	if entry == nil {
		c.logger.Warn("ack received but no packet is pending")
		return
	}

	attempts := c.txAttempts
	c.txAttempts = 0

	if c.callbacks.Sent != nil {
		c.callbacks.Sent(entry.Data)
	}

	c.retransmissionTimer.Stop()

	if ri := c.routing.Find(from); ri != nil {
		c.estimator.Sent(ri, entry, attempts)
	}

	c.queue.Remove(entry)
	c.busy = false

	c.armSend(c.sendTimeDelay)
}
