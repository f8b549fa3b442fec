package bcp

import "errors"

// Sentinel errors surfaced through Callbacks.Dropped or as structured log
// lines. None of these are fatal to a Connection: the single-threaded
// runtime keeps running after any of them, per the protocol's error model.
var (
	// ErrQueueFull is returned when the packet queue has reached
	// MaxPacketQueueSize and a new packet cannot be enqueued.
	ErrQueueFull = errors.New("bcp: packet queue is full")

	// ErrRoutingTableFull is returned when the routing table has reached
	// MaxRoutingTableSize and a new neighbor cannot be recorded.
	ErrRoutingTableFull = errors.New("bcp: routing table is full")

	// ErrOversizePayload is returned when a caller-supplied payload exceeds
	// MaxUserPacketSize.
	ErrOversizePayload = errors.New("bcp: payload exceeds maximum packet size")

	// ErrClosed is returned by Send when called on a closed Connection.
	ErrClosed = errors.New("bcp: connection is closed")
)
