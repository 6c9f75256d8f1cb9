// Package meshmetrics exposes Prometheus instrumentation for the mesh
// discovery/clusterhead-election engine running inside the simulation
// harness (internal/sim, cmd/meshnode).
package meshmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "meshcore"
	subsystem = "engine"
)

// Label names for mesh engine metrics.
const (
	labelNodeID    = "node_id"
	labelFromState = "from_state"
	labelToState   = "to_state"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Mesh Engine Metrics
// -------------------------------------------------------------------------

// Collector holds all mesh engine Prometheus metrics.
//
// Metrics are designed for observing a simulated or deployed node fleet:
//   - Cycle counters track each node's completed broadcast cycles.
//   - Packet counters track send/receive/drop/forward volumes per node.
//   - State transition counters record FSM changes for alerting.
//   - Crowding/score gauges expose the candidacy inputs driving elections.
type Collector struct {
	// Cycles counts completed broadcast cycles per node.
	Cycles *prometheus.CounterVec

	// PacketsSent counts packets handed to the host SendFunc per node.
	PacketsSent *prometheus.CounterVec

	// PacketsReceived counts packets accepted by Engine.Receive per node.
	PacketsReceived *prometheus.CounterVec

	// PacketsDropped counts packets dropped by the picky-forwarding
	// filter, PDSF cap, or path overflow, per node.
	PacketsDropped *prometheus.CounterVec

	// MessagesForwarded counts packets relayed (not originated) per node.
	MessagesForwarded *prometheus.CounterVec

	// StateTransitions counts FSM state transitions. Each counter is
	// labeled with the old state and new state for precise alerting
	// (e.g., Candidate->Edge on a lost conflict).
	StateTransitions *prometheus.CounterVec

	// CandidacyScore reports the last computed composite candidacy
	// score in [0,1] per node.
	CandidacyScore *prometheus.GaugeVec

	// Crowding reports the last RSSI-derived crowding factor in [0,1]
	// per node.
	Crowding *prometheus.GaugeVec

	// DirectNeighbors reports the current direct-neighbor count per node.
	DirectNeighbors *prometheus.GaugeVec
}

// NewCollector creates a Collector with all mesh engine metrics
// registered against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "meshcore_engine_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Cycles,
		c.PacketsSent,
		c.PacketsReceived,
		c.PacketsDropped,
		c.MessagesForwarded,
		c.StateTransitions,
		c.CandidacyScore,
		c.Crowding,
		c.DirectNeighbors,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	nodeLabels := []string{labelNodeID}
	transitionLabels := []string{labelNodeID, labelFromState, labelToState}

	return &Collector{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Total broadcast-schedule cycles completed.",
		}, nodeLabels),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total packets handed to the host send capability.",
		}, nodeLabels),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total packets accepted into the receive queue.",
		}, nodeLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped by the forwarding filter, PDSF cap, or path overflow.",
		}, nodeLabels),

		MessagesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_forwarded_total",
			Help:      "Total packets relayed on behalf of another sender.",
		}, nodeLabels),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total node FSM state transitions.",
		}, transitionLabels),

		CandidacyScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "candidacy_score",
			Help:      "Last computed composite candidacy score in [0,1].",
		}, nodeLabels),

		Crowding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "crowding",
			Help:      "Last RSSI-derived channel crowding factor in [0,1].",
		}, nodeLabels),

		DirectNeighbors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "direct_neighbors",
			Help:      "Current direct-neighbor count.",
		}, nodeLabels),
	}
}

// -------------------------------------------------------------------------
// Cycle / Packet Counters
// -------------------------------------------------------------------------

// IncCycles increments the completed-cycles counter for nodeID.
func (c *Collector) IncCycles(nodeID uint32) {
	c.Cycles.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// IncPacketsSent increments the sent packets counter for nodeID.
func (c *Collector) IncPacketsSent(nodeID uint32) {
	c.PacketsSent.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// IncPacketsReceived increments the received packets counter for nodeID.
func (c *Collector) IncPacketsReceived(nodeID uint32) {
	c.PacketsReceived.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// IncPacketsDropped increments the dropped packets counter for nodeID.
func (c *Collector) IncPacketsDropped(nodeID uint32) {
	c.PacketsDropped.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// IncMessagesForwarded increments the forwarded messages counter for nodeID.
func (c *Collector) IncMessagesForwarded(nodeID uint32) {
	c.MessagesForwarded.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// -------------------------------------------------------------------------
// State Transitions
// -------------------------------------------------------------------------

// RecordStateTransition increments the state transition counter with the
// old and new state labels. Used for alerting on role flaps (e.g., a
// candidate losing a conflict and reverting to Edge).
func (c *Collector) RecordStateTransition(nodeID uint32, from, to string) {
	c.StateTransitions.WithLabelValues(nodeLabel(nodeID), from, to).Inc()
}

// -------------------------------------------------------------------------
// Candidacy Gauges
// -------------------------------------------------------------------------

// SetCandidacyScore records the last computed composite candidacy score
// for nodeID.
func (c *Collector) SetCandidacyScore(nodeID uint32, score float64) {
	c.CandidacyScore.WithLabelValues(nodeLabel(nodeID)).Set(score)
}

// SetCrowding records the last RSSI-derived crowding factor for nodeID.
func (c *Collector) SetCrowding(nodeID uint32, crowding float64) {
	c.Crowding.WithLabelValues(nodeLabel(nodeID)).Set(crowding)
}

// SetDirectNeighbors records the current direct-neighbor count for nodeID.
func (c *Collector) SetDirectNeighbors(nodeID uint32, count float64) {
	c.DirectNeighbors.WithLabelValues(nodeLabel(nodeID)).Set(count)
}

// nodeLabel formats a node identifier as a Prometheus label value.
func nodeLabel(nodeID uint32) string {
	return strconv.FormatUint(uint64(nodeID), 10)
}
