// Package bcpmetrics exposes gobcp's Prometheus metrics.
package bcpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gobcp"
	subsystem = "bcp"
)

// Label names for BCP metrics.
const (
	labelNode     = "node"
	labelNeighbor = "neighbor"
	labelType     = "type"
)

// -------------------------------------------------------------------------
// Collector — Prometheus BCP Metrics
// -------------------------------------------------------------------------

// Collector holds all BCP Prometheus metrics.
//
//   - QueueLength and RoutingTableSize are gauges sampled from the running
//     Connection.
//   - PacketsSent/Received are counters broken down by frame type;
//     PacketsDropped is a per-node counter.
//   - Retransmissions and BeaconRequests flag deteriorating link quality.
type Collector struct {
	// QueueLength tracks the current packet queue depth.
	QueueLength *prometheus.GaugeVec

	// RoutingTableSize tracks the current number of known one-hop neighbors.
	RoutingTableSize *prometheus.GaugeVec

	// PacketsSent counts frames transmitted per type (data, beacon,
	// beacon-request, ack).
	PacketsSent *prometheus.CounterVec

	// PacketsReceived counts frames received per type.
	PacketsReceived *prometheus.CounterVec

	// PacketsDropped counts packets that could not be enqueued (oversize
	// payload or full queue).
	PacketsDropped *prometheus.CounterVec

	// Retransmissions counts entries into the retransmission path: the
	// retransmission timer firing with no ACK received, or a send attempt
	// finding no usable neighbor.
	Retransmissions *prometheus.CounterVec

	// BeaconRequestsSent counts beacon-request broadcasts, a proxy for how
	// often a node finds no usable next hop.
	BeaconRequestsSent *prometheus.CounterVec
}

// NewCollector creates a Collector with all BCP metrics registered against
// the provided prometheus.Registerer; each metric carries a node label whose
// value callers pass to the Set/Inc methods. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.QueueLength,
		c.RoutingTableSize,
		c.PacketsSent,
		c.PacketsReceived,
		c.PacketsDropped,
		c.Retransmissions,
		c.BeaconRequestsSent,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	nodeLabels := []string{labelNode}
	typeLabels := []string{labelNode, labelType}

	return &Collector{
		QueueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_length",
			Help:      "Current packet queue depth.",
		}, nodeLabels),

		RoutingTableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "routing_table_size",
			Help:      "Current number of known one-hop neighbors.",
		}, nodeLabels),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total frames transmitted, by type.",
		}, typeLabels),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total frames received, by type.",
		}, typeLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped before enqueue (oversize or full).",
		}, nodeLabels),

		Retransmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retransmissions_total",
			Help:      "Total entries into the retransmission path (timer firing or no usable neighbor).",
		}, nodeLabels),

		BeaconRequestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "beacon_requests_sent_total",
			Help:      "Total beacon-request broadcasts sent.",
		}, nodeLabels),
	}
}

// -------------------------------------------------------------------------
// Gauges
// -------------------------------------------------------------------------

// SetQueueLength records the current packet queue depth for node.
func (c *Collector) SetQueueLength(node string, n int) {
	c.QueueLength.WithLabelValues(node).Set(float64(n))
}

// SetRoutingTableSize records the current routing table size for node.
func (c *Collector) SetRoutingTableSize(node string, n int) {
	c.RoutingTableSize.WithLabelValues(node).Set(float64(n))
}

// -------------------------------------------------------------------------
// Counters
// -------------------------------------------------------------------------

// IncPacketsSent increments the transmitted counter for node and frameType.
func (c *Collector) IncPacketsSent(node, frameType string) {
	c.PacketsSent.WithLabelValues(node, frameType).Inc()
}

// IncPacketsReceived increments the received counter for node and frameType.
func (c *Collector) IncPacketsReceived(node, frameType string) {
	c.PacketsReceived.WithLabelValues(node, frameType).Inc()
}

// IncPacketsDropped increments the dropped counter for node.
func (c *Collector) IncPacketsDropped(node string) {
	c.PacketsDropped.WithLabelValues(node).Inc()
}

// IncRetransmissions increments the retransmission counter for node.
func (c *Collector) IncRetransmissions(node string) {
	c.Retransmissions.WithLabelValues(node).Inc()
}

// IncBeaconRequestsSent increments the beacon-request counter for node.
func (c *Collector) IncBeaconRequestsSent(node string) {
	c.BeaconRequestsSent.WithLabelValues(node).Inc()
}
