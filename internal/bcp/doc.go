// Package bcp implements the Backpressure Collection Protocol: a link-layer
// collection protocol for multi-hop, low-power wireless networks.
//
// A Connection owns a bounded packet queue, a one-hop routing table keyed by
// neighbor backpressure, a pluggable weight estimator, and the timers that
// drive beaconing, sending, and retransmission. All protocol state is owned
// by a single goroutine (Connection.Run); there is no internal locking.
package bcp
