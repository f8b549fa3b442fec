package bcp

// MaxRoutingTableSize bounds the number of one-hop neighbor records a
// Connection will track.
const MaxRoutingTableSize = 40

// RoutingEntry records what is known about one one-hop neighbor: its
// advertised backpressure (queue depth) and whatever bookkeeping the active
// Estimator attaches via Estimator.RecordInit.
type RoutingEntry struct {
	Neighbor     Addr
	Backpressure uint16
	EstimatorData any
}

// RoutingTable is the one-hop neighbor table every Connection owns. Entries
// are keyed by neighbor address and capped at MaxRoutingTableSize; once
// full, UpdateQueuelog for a new neighbor fails rather than evicting an
// existing entry.
type RoutingTable struct {
	capacity int
	entries  []*RoutingEntry
	estimator Estimator
}

// NewRoutingTable allocates a routing table with the given capacity, using
// est to initialize and weigh entries.
func NewRoutingTable(capacity int, est Estimator) *RoutingTable {
	return &RoutingTable{
		capacity:  capacity,
		entries:   make([]*RoutingEntry, 0, capacity),
		estimator: est,
	}
}

// Find returns the entry for addr, or nil if addr has no recorded entry.
func (t *RoutingTable) Find(addr Addr) *RoutingEntry {
	for _, e := range t.entries {
		if e.Neighbor.Equal(addr) {
			return e
		}
	}
	return nil
}

// UpdateQueuelog records the given backpressure value for addr, creating a
// new entry if none exists yet. It returns ErrRoutingTableFull if the table
// is full and addr is not already present.
func (t *RoutingTable) UpdateQueuelog(addr Addr, queuelog uint16) error {
	if e := t.Find(addr); e != nil {
		e.Backpressure = queuelog
		return nil
	}

	if len(t.entries) >= t.capacity {
		return ErrRoutingTableFull
	}

	e := &RoutingEntry{Neighbor: addr, Backpressure: queuelog}
	if t.estimator != nil {
		t.estimator.RecordInit(e)
	}
	t.entries = append(t.entries, e)
	return nil
}

// Length returns the number of neighbors currently recorded.
func (t *RoutingTable) Length() int {
	return len(t.entries)
}

// Clear deletes every entry from the table. Called when a beacon request is
// sent, so the next beacon round starts from a clean slate.
func (t *RoutingTable) Clear() {
	t.entries = t.entries[:0]
}

// SelectBest returns the neighbor with the highest weight as computed by
// the active Estimator, or nil if the table is empty. Ties are broken in
// favor of the later (most-recently-iterated) candidate, matching the
// original's "largestWeight <= neighborWeight" comparison.
func (t *RoutingTable) SelectBest(conn *Connection) *RoutingEntry {
	var best *RoutingEntry
	bestWeight := int32(-32768)

	for _, e := range t.entries {
		w := t.estimator.Weight(conn, e)
		if best == nil || bestWeight <= w {
			bestWeight = w
			best = e
		}
	}
	return best
}
