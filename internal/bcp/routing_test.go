package bcp

import (
	"errors"
	"testing"
)

func TestRoutingTableFindUpdate(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(4, DefaultEstimator{})
	addr := Addr{1, 0}

	if rt.Find(addr) != nil {
		t.Fatal("Find() on empty table returned non-nil")
	}

	if err := rt.UpdateQueuelog(addr, 3); err != nil {
		t.Fatalf("UpdateQueuelog() error: %v", err)
	}

	e := rt.Find(addr)
	if e == nil {
		t.Fatal("Find() after UpdateQueuelog returned nil")
	}
	if e.Backpressure != 3 {
		t.Fatalf("Backpressure = %d, want 3", e.Backpressure)
	}
	if rt.Length() != 1 {
		t.Fatalf("Length() = %d, want 1", rt.Length())
	}

	// Updating an existing neighbor overwrites in place, no growth.
	if err := rt.UpdateQueuelog(addr, 7); err != nil {
		t.Fatalf("UpdateQueuelog() (update) error: %v", err)
	}
	if rt.Length() != 1 {
		t.Fatalf("Length() after re-update = %d, want 1", rt.Length())
	}
	if rt.Find(addr).Backpressure != 7 {
		t.Fatalf("Backpressure after re-update = %d, want 7", rt.Find(addr).Backpressure)
	}
}

func TestRoutingTableFullReturnsErr(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(2, DefaultEstimator{})

	if err := rt.UpdateQueuelog(Addr{1, 0}, 1); err != nil {
		t.Fatalf("UpdateQueuelog(1) error: %v", err)
	}
	if err := rt.UpdateQueuelog(Addr{2, 0}, 1); err != nil {
		t.Fatalf("UpdateQueuelog(2) error: %v", err)
	}

	err := rt.UpdateQueuelog(Addr{3, 0}, 1)
	if !errors.Is(err, ErrRoutingTableFull) {
		t.Fatalf("UpdateQueuelog(3) error = %v, want %v", err, ErrRoutingTableFull)
	}

	// Updating an already-known neighbor still succeeds even when full.
	if err := rt.UpdateQueuelog(Addr{1, 0}, 9); err != nil {
		t.Fatalf("UpdateQueuelog(known, full table) error: %v", err)
	}
}

func TestRoutingTableClear(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(4, DefaultEstimator{})
	rt.UpdateQueuelog(Addr{1, 0}, 1)
	rt.UpdateQueuelog(Addr{2, 0}, 2)

	rt.Clear()

	if rt.Length() != 0 {
		t.Fatalf("Length() after Clear = %d, want 0", rt.Length())
	}
	if rt.Find(Addr{1, 0}) != nil {
		t.Fatal("Find() after Clear returned non-nil")
	}
}

func TestRoutingTableSelectBestPrefersLowerBackpressure(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(4, DefaultEstimator{})
	rt.UpdateQueuelog(Addr{1, 0}, 5)
	rt.UpdateQueuelog(Addr{2, 0}, 1)

	conn := &Connection{queue: NewQueue(MaxPacketQueueSize)}
	conn.estimator = DefaultEstimator{}
	conn.routing = rt

	best := rt.SelectBest(conn)
	if best == nil {
		t.Fatal("SelectBest() returned nil")
	}
	if !best.Neighbor.Equal(Addr{2, 0}) {
		t.Fatalf("SelectBest() = %v, want neighbor {2,0} (lowest backpressure)", best.Neighbor)
	}
}

func TestRoutingTableSelectBestTieBreaksToLatest(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(4, DefaultEstimator{})
	rt.UpdateQueuelog(Addr{1, 0}, 3)
	rt.UpdateQueuelog(Addr{2, 0}, 3)

	conn := &Connection{queue: NewQueue(MaxPacketQueueSize)}
	conn.estimator = DefaultEstimator{}
	conn.routing = rt

	best := rt.SelectBest(conn)
	if best == nil {
		t.Fatal("SelectBest() returned nil")
	}
	// Equal weights: the later-iterated (most recently added) neighbor wins,
	// matching the original's "largestWeight <= neighborWeight" comparison.
	if !best.Neighbor.Equal(Addr{2, 0}) {
		t.Fatalf("SelectBest() tie-break = %v, want neighbor {2,0}", best.Neighbor)
	}
}

func TestRoutingTableSelectBestEmpty(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(4, DefaultEstimator{})
	conn := &Connection{queue: NewQueue(MaxPacketQueueSize)}
	conn.estimator = DefaultEstimator{}
	conn.routing = rt

	if best := rt.SelectBest(conn); best != nil {
		t.Fatalf("SelectBest() on empty table = %v, want nil", best)
	}
}
