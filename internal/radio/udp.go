//go:build linux

// UDP realization of bcp.Radio for deploying BCP nodes as separate OS
// processes on a real network, one per sensor-network node.
//
// BCP addresses (bcp.Addr, a 2-byte hi.lo pair) are link-layer concepts with
// no relation to IP. A UDPRadio therefore needs two pieces of static
// configuration a real radio wouldn't: the multicast group standing in for
// the broadcast medium, and a PeerBook mapping each known neighbor's BCP
// address to the UDP endpoint it's reachable at. Broadcasts are never
// addressed by the kernel to a single peer's bcp.Addr, so the sender's own
// address is carried inside the envelope below, the way a real radio chip
// would stamp its hardware address on every transmitted frame.
package radio

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/dantte-lp/gobcp/internal/bcp"
)

// PeerBook maps a neighbor's BCP address to the UDP endpoint its unicast
// socket listens on. Built once from static configuration (see
// internal/config.NodeConfig.Peers) and handed to NewUDPRadio; UDPRadio
// never mutates it.
type PeerBook map[bcp.Addr]netip.AddrPort

// UDPConfig configures a UDPRadio.
type UDPConfig struct {
	// Self is this node's BCP address, stamped into every envelope this
	// radio transmits.
	Self bcp.Addr

	// McastGroup is the multicast group address broadcasts are sent to and
	// received from. All nodes on the same BCP channel must share this
	// group (see internal/config.NodeConfig.Channel, which maps to the
	// final octet of a 239.x.x.x admin-scoped group by convention).
	McastGroup netip.AddrPort

	// UnicastAddr is the local address this node's unicast (ack) socket
	// binds to.
	UnicastAddr netip.AddrPort

	// Iface optionally pins both sockets to a specific network interface
	// via SO_BINDTODEVICE and selects the multicast egress interface.
	Iface string

	// Peers resolves neighbor BCP addresses to unicast UDP endpoints.
	Peers PeerBook

	// InboundBufSize sizes the channel Inbound returns. Zero defaults to 64.
	InboundBufSize int

	// Logger receives structured diagnostics; a nil Logger uses slog.Default().
	Logger *slog.Logger
}

// UDPRadio implements bcp.Radio over two UDP sockets: a multicast socket
// standing in for the shared broadcast medium, and a unicast socket for
// acknowledgments addressed to a specific neighbor's UDP endpoint.
type UDPRadio struct {
	self   bcp.Addr
	peers  PeerBook
	logger *slog.Logger

	mcastGroup *net.UDPAddr
	mcastConn  *net.UDPConn
	ucastConn  *net.UDPConn

	inbound chan bcp.Inbound

	closeOnce sync.Once
	closed    chan struct{}
}

// NewUDPRadio opens the multicast and unicast sockets described by cfg and
// starts the background receive loops that feed Inbound. Call Close to
// release both sockets and stop the receive loops.
func NewUDPRadio(ctx context.Context, cfg UDPConfig) (*UDPRadio, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("component", "radio.udp"),
		slog.String("self", cfg.Self.String()),
	)

	bufSize := cfg.InboundBufSize
	if bufSize == 0 {
		bufSize = 64
	}

	mcastConn, mcastGroup, err := dialMulticast(cfg.McastGroup, cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("radio: open multicast socket: %w", err)
	}

	ucastConn, err := dialUnicast(cfg.UnicastAddr, cfg.Iface)
	if err != nil {
		mcastConn.Close()
		return nil, fmt.Errorf("radio: open unicast socket: %w", err)
	}

	r := &UDPRadio{
		self:       cfg.Self,
		peers:      cfg.Peers,
		logger:     logger,
		mcastGroup: mcastGroup,
		mcastConn:  mcastConn,
		ucastConn:  ucastConn,
		inbound:    make(chan bcp.Inbound, bufSize),
		closed:     make(chan struct{}),
	}

	go r.recvLoop(r.mcastConn, bcp.ChannelBroadcast)
	go r.recvLoop(r.ucastConn, bcp.ChannelUnicast)
	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-r.closed:
		}
	}()

	return r, nil
}

// Inbound returns the channel frames received on either socket are
// delivered to. The channel is never closed; after Close the receive loops
// stop and no further frames arrive on it.
func (r *UDPRadio) Inbound() <-chan bcp.Inbound {
	return r.inbound
}

// SendBroadcast writes frame, envelope-wrapped with this node's address, to
// the multicast group.
func (r *UDPRadio) SendBroadcast(_ context.Context, frame bcp.Frame) error {
	buf := encodeEnvelope(r.self, frame)
	if _, err := r.mcastConn.WriteToUDP(buf, r.mcastGroup); err != nil {
		return fmt.Errorf("radio: send broadcast: %w", err)
	}
	return nil
}

// SendUnicast writes frame, envelope-wrapped, to the UDP endpoint to
// resolves to in the radio's PeerBook. Matching the simulated medium, an
// unknown peer is logged and otherwise swallowed rather than surfaced as a
// send failure — a real radio has no delivery acknowledgment at this layer
// either.
func (r *UDPRadio) SendUnicast(_ context.Context, to bcp.Addr, frame bcp.Frame) error {
	dst, ok := r.peers[to]
	if !ok {
		r.logger.Warn("unicast to unknown peer", slog.String("dest", to.String()))
		return nil
	}

	buf := encodeEnvelope(r.self, frame)
	if _, err := r.ucastConn.WriteToUDP(buf, net.UDPAddrFromAddrPort(dst)); err != nil {
		return fmt.Errorf("radio: send unicast to %s: %w", to, err)
	}
	return nil
}

// Close releases both sockets. Safe to call more than once.
func (r *UDPRadio) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		if cerr := r.mcastConn.Close(); cerr != nil {
			err = fmt.Errorf("radio: close multicast socket: %w", cerr)
		}
		if cerr := r.ucastConn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("radio: close unicast socket: %w", cerr)
		}
	})
	return err
}

// maxEnvelopeSize bounds the receive buffer: 1 byte type + 2 bytes source
// address + the largest frame payload the protocol ever constructs (a data
// frame's 2-byte dest, 8-byte header, and MaxUserPacketSize payload bytes).
// Generously rounded up since oversized reads are simply truncated, never
// a correctness issue for a UDP datagram.
const maxEnvelopeSize = 64

// encodeEnvelope prefixes frame with a 1-byte packet type and the 2-byte
// source address, the minimum a shared multicast group needs to tell
// frames from different senders apart — a real radio's MAC layer would
// stamp the same information in hardware.
func encodeEnvelope(from bcp.Addr, frame bcp.Frame) []byte {
	buf := make([]byte, 3+len(frame.Payload))
	buf[0] = byte(frame.Type)
	buf[1] = from[0]
	buf[2] = from[1]
	copy(buf[3:], frame.Payload)
	return buf
}

// decodeEnvelope reverses encodeEnvelope.
func decodeEnvelope(buf []byte) (bcp.Addr, bcp.Frame, error) {
	if len(buf) < 3 {
		return bcp.Addr{}, bcp.Frame{}, fmt.Errorf("radio: short envelope: %d bytes", len(buf))
	}
	from := bcp.Addr{buf[1], buf[2]}
	frame := bcp.Frame{
		Type:    bcp.PacketType(buf[0]),
		Payload: append([]byte(nil), buf[3:]...),
	}
	return from, frame, nil
}

func (r *UDPRadio) recvLoop(conn *net.UDPConn, via bcp.Channel) {
	buf := make([]byte, maxEnvelopeSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.closed:
				return
			default:
				r.logger.Error("udp read failed", slog.String("via", via.String()), slog.Any("error", err))
				return
			}
		}

		from, frame, err := decodeEnvelope(buf[:n])
		if err != nil {
			r.logger.Warn("dropped malformed envelope", slog.String("via", via.String()), slog.Any("error", err))
			continue
		}
		if from.Equal(r.self) {
			continue
		}

		select {
		case r.inbound <- bcp.Inbound{Via: via, From: from, Frame: frame}:
		case <-r.closed:
			return
		default:
			r.logger.Warn("inbound channel full, dropping frame", slog.String("via", via.String()))
		}
	}
}
