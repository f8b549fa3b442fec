package bcp

import "fmt"

// Addr is a two-byte node address, the same width as the Rime address the
// original implementation addresses neighbors with. The all-zero value is
// reserved as the broadcast address (spec.md section 3).
type Addr [2]byte

// BroadcastAddr is the sentinel destination address for beacons and beacon
// requests, never a valid unicast node address.
var BroadcastAddr = Addr{0, 0}

// IsBroadcast reports whether a is the reserved broadcast address.
func (a Addr) IsBroadcast() bool {
	return a == BroadcastAddr
}

// Equal reports whether a and other name the same node.
func (a Addr) Equal(other Addr) bool {
	return a == other
}

func (a Addr) String() string {
	return fmt.Sprintf("%d.%d", a[0], a[1])
}
