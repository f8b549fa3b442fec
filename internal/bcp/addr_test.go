package bcp_test

import (
	"testing"

	"github.com/dantte-lp/gobcp/internal/bcp"
)

func TestAddrIsBroadcast(t *testing.T) {
	t.Parallel()

	if !bcp.BroadcastAddr.IsBroadcast() {
		t.Fatal("BroadcastAddr.IsBroadcast() = false, want true")
	}
	if (bcp.Addr{1, 0}).IsBroadcast() {
		t.Fatal("{1,0}.IsBroadcast() = true, want false")
	}
}

func TestAddrEqual(t *testing.T) {
	t.Parallel()

	a := bcp.Addr{1, 2}
	b := bcp.Addr{1, 2}
	c := bcp.Addr{1, 3}

	if !a.Equal(b) {
		t.Fatal("Equal() on identical addresses = false, want true")
	}
	if a.Equal(c) {
		t.Fatal("Equal() on differing addresses = true, want false")
	}
}

func TestAddrString(t *testing.T) {
	t.Parallel()

	if got, want := (bcp.Addr{1, 0}).String(), "1.0"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got, want := bcp.BroadcastAddr.String(), "0.0"; got != want {
		t.Fatalf("BroadcastAddr.String() = %q, want %q", got, want)
	}
}
