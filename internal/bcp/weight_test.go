package bcp

import "testing"

func TestDefaultEstimatorWeight(t *testing.T) {
	t.Parallel()

	conn := &Connection{queue: NewQueue(MaxPacketQueueSize)}
	pushN(t, conn.queue, 3)

	entry := &RoutingEntry{Neighbor: Addr{1, 0}, Backpressure: 1}

	var est DefaultEstimator
	got := est.Weight(conn, entry)
	want := int32(3 - 1)
	if got != want {
		t.Fatalf("Weight() = %d, want %d", got, want)
	}
}

// pushN pushes n packets directly onto q, bypassing the request channel
// Send uses (there is no running Run loop in these unit tests).
func pushN(t *testing.T, q *Queue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := q.Push([]byte{byte(i)}, PacketHeader{}); err != nil {
			t.Fatalf("queue.Push(%d) error: %v", i, err)
		}
	}
}

func TestDefaultEstimatorNoOpHooks(t *testing.T) {
	t.Parallel()

	var est DefaultEstimator
	est.Init(nil)
	est.RecordInit(nil)
	est.Sent(nil, nil, 0)
}

func TestLinkAwareEstimatorRecordInitAttachesState(t *testing.T) {
	t.Parallel()

	var est LinkAwareEstimator
	entry := &RoutingEntry{}
	est.RecordInit(entry)

	if _, ok := entry.EstimatorData.(*linkAwareState); !ok {
		t.Fatalf("EstimatorData = %T, want *linkAwareState", entry.EstimatorData)
	}
}

func TestLinkAwareEstimatorWeightFallsBackWithoutState(t *testing.T) {
	t.Parallel()

	conn := &Connection{queue: NewQueue(MaxPacketQueueSize)}
	conn.queue.Push([]byte{1}, PacketHeader{})

	entry := &RoutingEntry{Backpressure: 0}

	var est LinkAwareEstimator
	got := est.Weight(conn, entry)
	if got != 1 {
		t.Fatalf("Weight() without EstimatorData = %d, want 1 (base only)", got)
	}
}

func TestLinkAwareEstimatorSentUpdatesEWMAs(t *testing.T) {
	t.Parallel()

	entry := &RoutingEntry{}
	var est LinkAwareEstimator
	est.RecordInit(entry)

	packet := &QueueEntry{Header: PacketHeader{Delay: 1e9}} // 1s, as time.Duration nanoseconds

	est.Sent(entry, packet, 1) // no retransmission: lost = 0

	st := entry.EstimatorData.(*linkAwareState)
	if st.lossRateEWMA == 0 && st.txTimeEWMA == 0 {
		t.Fatal("Sent() left both EWMAs at zero, want txTimeEWMA to move toward 1s")
	}
	if st.lossRateEWMA != ewma(0, 0, linkLossAlpha) {
		t.Fatalf("lossRateEWMA = %v, want %v", st.lossRateEWMA, ewma(0, 0, linkLossAlpha))
	}

	est.Sent(entry, packet, 2) // retransmitted: lost = 1
	if st.lossRateEWMA <= 0 {
		t.Fatalf("lossRateEWMA after a lossy Sent = %v, want > 0", st.lossRateEWMA)
	}
}

func TestLinkAwareEstimatorPenaltyLowersWeight(t *testing.T) {
	t.Parallel()

	conn := &Connection{queue: NewQueue(MaxPacketQueueSize)}
	conn.queue.Push([]byte{1}, PacketHeader{})

	entry := &RoutingEntry{Backpressure: 0}
	var est LinkAwareEstimator
	est.RecordInit(entry)

	baseline := est.Weight(conn, entry)

	st := entry.EstimatorData.(*linkAwareState)
	st.lossRateEWMA = 1.0
	st.txTimeEWMA = 5.0

	penalized := est.Weight(conn, entry)
	if penalized >= baseline {
		t.Fatalf("Weight() with high loss/time = %d, want < baseline %d", penalized, baseline)
	}
}
