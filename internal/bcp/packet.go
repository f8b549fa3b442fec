package bcp

import (
	"encoding/binary"
	"fmt"
	"time"
)

// PacketType discriminates the four message kinds that travel over the
// broadcast and unicast channels. Values are arbitrary (the wire format is
// internal to this package) but kept distinct from zero so a decode of an
// empty buffer never looks like a valid Data frame.
type PacketType uint8

const (
	PacketTypeData PacketType = iota + 1
	PacketTypeBeacon
	PacketTypeBeaconRequest
	PacketTypeAck
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeData:
		return "data"
	case PacketTypeBeacon:
		return "beacon"
	case PacketTypeBeaconRequest:
		return "beacon-request"
	case PacketTypeAck:
		return "ack"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// dataHeaderWireSize is the encoded size of PacketHeader on the wire:
// 2 bytes backpressure + 2 bytes origin + 4 bytes delay in milliseconds.
const dataHeaderWireSize = 2 + 2 + 4

// BeaconMsg is the payload of a beacon or beacon-request frame: the
// sender's current queue depth, advertised so neighbors can compute a
// backpressure-aware weight toward it.
type BeaconMsg struct {
	Queuelog uint16
}

// EncodeBeacon serializes a BeaconMsg to its 2-byte wire form.
func EncodeBeacon(m BeaconMsg) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, m.Queuelog)
	return buf
}

// DecodeBeacon parses a beacon or beacon-request payload.
func DecodeBeacon(buf []byte) (BeaconMsg, error) {
	if len(buf) < 2 {
		return BeaconMsg{}, fmt.Errorf("bcp: short beacon payload: %d bytes", len(buf))
	}
	return BeaconMsg{Queuelog: binary.BigEndian.Uint16(buf)}, nil
}

// DataFrame is a user data packet as it travels over the broadcast channel:
// a destination address (the next hop, or the final recipient once it
// reaches the sink), the queueing header, and the user payload.
type DataFrame struct {
	Dest    Addr
	Header  PacketHeader
	Payload []byte
}

// EncodeDataFrame serializes a DataFrame to its wire form: 2-byte dest
// address, then the header, then the raw payload.
func EncodeDataFrame(f DataFrame) []byte {
	buf := make([]byte, 2+dataHeaderWireSize+len(f.Payload))
	buf[0], buf[1] = f.Dest[0], f.Dest[1]
	encodeHeader(buf[2:2+dataHeaderWireSize], f.Header)
	copy(buf[2+dataHeaderWireSize:], f.Payload)
	return buf
}

// DecodeDataFrame parses a data-frame payload produced by EncodeDataFrame.
func DecodeDataFrame(buf []byte) (DataFrame, error) {
	if len(buf) < 2+dataHeaderWireSize {
		return DataFrame{}, fmt.Errorf("bcp: short data frame: %d bytes", len(buf))
	}
	f := DataFrame{Dest: Addr{buf[0], buf[1]}}
	f.Header = decodeHeader(buf[2 : 2+dataHeaderWireSize])
	f.Payload = append([]byte(nil), buf[2+dataHeaderWireSize:]...)
	return f, nil
}

func encodeHeader(buf []byte, h PacketHeader) {
	binary.BigEndian.PutUint16(buf[0:2], h.Backpressure)
	buf[2], buf[3] = h.Origin[0], h.Origin[1]
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Delay.Milliseconds()))
}

func decodeHeader(buf []byte) PacketHeader {
	return PacketHeader{
		Backpressure: binary.BigEndian.Uint16(buf[0:2]),
		Origin:       Addr{buf[2], buf[3]},
		Delay:        time.Duration(binary.BigEndian.Uint32(buf[4:8])) * time.Millisecond,
	}
}
