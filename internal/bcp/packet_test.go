package bcp_test

import (
	"testing"
	"time"

	"github.com/dantte-lp/gobcp/internal/bcp"
)

func TestPacketTypeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  bcp.PacketType
		want string
	}{
		{bcp.PacketTypeData, "data"},
		{bcp.PacketTypeBeacon, "beacon"},
		{bcp.PacketTypeBeaconRequest, "beacon-request"},
		{bcp.PacketTypeAck, "ack"},
		{bcp.PacketType(99), "PacketType(99)"},
	}

	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("PacketType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestBeaconRoundTrip(t *testing.T) {
	t.Parallel()

	msg := bcp.BeaconMsg{Queuelog: 42}
	buf := bcp.EncodeBeacon(msg)

	got, err := bcp.DecodeBeacon(buf)
	if err != nil {
		t.Fatalf("DecodeBeacon() error: %v", err)
	}
	if got != msg {
		t.Fatalf("DecodeBeacon() = %+v, want %+v", got, msg)
	}
}

func TestDecodeBeaconShortBuffer(t *testing.T) {
	t.Parallel()

	if _, err := bcp.DecodeBeacon([]byte{1}); err == nil {
		t.Fatal("DecodeBeacon() with short buffer returned nil error")
	}
	if _, err := bcp.DecodeBeacon(nil); err == nil {
		t.Fatal("DecodeBeacon(nil) returned nil error")
	}
}

func TestDataFrameRoundTrip(t *testing.T) {
	t.Parallel()

	frame := bcp.DataFrame{
		Dest: bcp.Addr{4, 2},
		Header: bcp.PacketHeader{
			Backpressure: 7,
			Origin:       bcp.Addr{1, 0},
			Delay:        1500 * time.Millisecond,
		},
		Payload: []byte("abcd"),
	}

	buf := bcp.EncodeDataFrame(frame)

	got, err := bcp.DecodeDataFrame(buf)
	if err != nil {
		t.Fatalf("DecodeDataFrame() error: %v", err)
	}

	if !got.Dest.Equal(frame.Dest) {
		t.Errorf("Dest = %v, want %v", got.Dest, frame.Dest)
	}
	if got.Header.Backpressure != frame.Header.Backpressure {
		t.Errorf("Header.Backpressure = %d, want %d", got.Header.Backpressure, frame.Header.Backpressure)
	}
	if !got.Header.Origin.Equal(frame.Header.Origin) {
		t.Errorf("Header.Origin = %v, want %v", got.Header.Origin, frame.Header.Origin)
	}
	if got.Header.Delay != frame.Header.Delay {
		t.Errorf("Header.Delay = %v, want %v", got.Header.Delay, frame.Header.Delay)
	}
	if string(got.Payload) != string(frame.Payload) {
		t.Errorf("Payload = %q, want %q", got.Payload, frame.Payload)
	}
}

func TestDataFrameRoundTripEmptyPayload(t *testing.T) {
	t.Parallel()

	frame := bcp.DataFrame{Dest: bcp.Addr{1, 1}}
	buf := bcp.EncodeDataFrame(frame)

	got, err := bcp.DecodeDataFrame(buf)
	if err != nil {
		t.Fatalf("DecodeDataFrame() error: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Errorf("Payload = %v, want empty", got.Payload)
	}
}

func TestDecodeDataFrameShortBuffer(t *testing.T) {
	t.Parallel()

	if _, err := bcp.DecodeDataFrame([]byte{1, 2, 3}); err == nil {
		t.Fatal("DecodeDataFrame() with short buffer returned nil error")
	}
}

func TestDataFrameDelayTruncatesToMilliseconds(t *testing.T) {
	t.Parallel()

	frame := bcp.DataFrame{
		Dest:   bcp.Addr{1, 0},
		Header: bcp.PacketHeader{Delay: 1234567 * time.Microsecond},
	}
	buf := bcp.EncodeDataFrame(frame)

	got, err := bcp.DecodeDataFrame(buf)
	if err != nil {
		t.Fatalf("DecodeDataFrame() error: %v", err)
	}
	if got.Header.Delay != 1234*time.Millisecond {
		t.Fatalf("Header.Delay = %v, want %v", got.Header.Delay, 1234*time.Millisecond)
	}
}
