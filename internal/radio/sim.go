package radio

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/dantte-lp/gobcp/internal/bcp"
)

// SimMedium is an in-process, shared broadcast/unicast medium for tests and
// the bcpsim demonstration driver. Every node registered on a SimMedium can
// hear every other node's broadcasts; unicast frames are delivered only to
// their addressed recipient. Delivery is otherwise synchronous: SendX
// returns once every currently-registered peer's inbound channel has been
// fed (or dropped it, per DropRate).
type SimMedium struct {
	mu    sync.RWMutex
	peers map[bcp.Addr]chan bcp.Inbound

	// DropRate, in [0,1], is the independent probability each delivery is
	// silently dropped — used by tests exercising retransmission behavior.
	DropRate float64
}

// NewSimMedium returns an empty medium with no registered peers.
func NewSimMedium() *SimMedium {
	return &SimMedium{peers: make(map[bcp.Addr]chan bcp.Inbound)}
}

// Join registers addr on the medium and returns the channel its Connection
// should read inbound frames from, plus a NodeRadio bound to addr for
// sending. bufSize sizes the inbound channel.
func (m *SimMedium) Join(addr bcp.Addr, bufSize int) (<-chan bcp.Inbound, *NodeRadio) {
	ch := make(chan bcp.Inbound, bufSize)

	m.mu.Lock()
	m.peers[addr] = ch
	m.mu.Unlock()

	return ch, &NodeRadio{medium: m, self: addr}
}

// Leave removes addr from the medium; it will no longer receive broadcasts
// or unicasts. Sends made afterwards through its NodeRadio are not blocked:
// they are still delivered to the remaining peers.
func (m *SimMedium) Leave(addr bcp.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, addr)
}

func (m *SimMedium) deliver(ch chan bcp.Inbound, in bcp.Inbound) {
	if m.DropRate > 0 && rand.Float64() < m.DropRate {
		return
	}
	select {
	case ch <- in:
	default:
		// Peer's inbound channel is full; drop rather than block the
		// sender, matching a real radio's no-backpressure-on-air model.
	}
}

func (m *SimMedium) broadcast(from bcp.Addr, frame bcp.Frame) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for addr, ch := range m.peers {
		if addr.Equal(from) {
			continue
		}
		m.deliver(ch, bcp.Inbound{Via: bcp.ChannelBroadcast, From: from, Frame: frame})
	}
}

func (m *SimMedium) unicast(from, to bcp.Addr, frame bcp.Frame) {
	m.mu.RLock()
	ch, ok := m.peers[to]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.deliver(ch, bcp.Inbound{Via: bcp.ChannelUnicast, From: from, Frame: frame})
}

// NodeRadio is one node's view of a SimMedium: a bcp.Radio bound to a fixed
// source address.
type NodeRadio struct {
	medium *SimMedium
	self   bcp.Addr
}

func (r *NodeRadio) SendBroadcast(_ context.Context, frame bcp.Frame) error {
	r.medium.broadcast(r.self, frame)
	return nil
}

func (r *NodeRadio) SendUnicast(_ context.Context, to bcp.Addr, frame bcp.Frame) error {
	r.medium.unicast(r.self, to, frame)
	return nil
}
