// Package sim hosts a lossy, in-process broadcast medium for driving
// several mesh.Engine instances end to end. It exists only to exercise
// the portable core through its public Tick/Receive surface — the core
// itself never owns a clock, a socket, or a position.
package sim

import (
	"math"

	"github.com/brightswarm/meshcore/internal/mesh"
)

// referenceLossDB is the free-space path loss, in dB, at the reference
// distance of 1 meter for a 2.4GHz BLE link. Derived from the standard
// log-distance path loss model: FSPL(1m) = 20*log10(f_MHz) +
// 20*log10(0.001 km) + 32.44, evaluated at 2450MHz (67.8 - 60 + 32.44).
const referenceLossDB = 40.2

// pathLossExponent models a moderately obstructed indoor environment
// (free space is 2.0; indoor-with-walls settles closer to 3.0-3.5).
const pathLossExponent = 2.8

// txPowerDBm is the assumed BLE transmit power at 0 meters.
const txPowerDBm = 0.0

// minDistanceM floors the path-loss computation so that a zero or
// negative separation never produces a -Inf/NaN RSSI.
const minDistanceM = 0.1

// NodePosition is a simulated node's static or slowly-moving location.
type NodePosition struct {
	X, Y, Z float64
}

// Distance returns the Euclidean separation between two positions.
func (p NodePosition) Distance(other NodePosition) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// EstimateRSSI returns the simulated received signal strength, in dBm,
// for a transmitter and receiver at the given positions, using a
// log-distance path loss model. The result is clamped to the int8 range
// BLE RSSI readings occupy in practice.
func EstimateRSSI(tx, rx NodePosition) int8 {
	d := tx.Distance(rx)
	if d < minDistanceM {
		d = minDistanceM
	}

	lossDB := referenceLossDB + 10*pathLossExponent*math.Log10(d)
	rssi := txPowerDBm - lossDB

	switch {
	case rssi > 0:
		return 0
	case rssi < -128:
		return -128
	default:
		return int8(rssi)
	}
}

// Medium models a shared lossy broadcast channel connecting a fixed set
// of nodes by position. Every Deliver call computes a per-receiver
// RSSI from node positions and hands the packet to every other node's
// Engine.Receive, mirroring how a real radio's neighbors overhear a
// transmission at varying signal strength.
//
// Medium performs no queuing or scheduling of its own — callers drive
// delivery order and timing (see Simulation).
type Medium struct {
	positions map[uint32]NodePosition
}

// NewMedium creates an empty Medium.
func NewMedium() *Medium {
	return &Medium{positions: make(map[uint32]NodePosition)}
}

// SetPosition records or updates a node's position in the medium.
func (m *Medium) SetPosition(nodeID uint32, pos NodePosition) {
	m.positions[nodeID] = pos
}

// Position returns the last recorded position for nodeID.
func (m *Medium) Position(nodeID uint32) (NodePosition, bool) {
	pos, ok := m.positions[nodeID]
	return pos, ok
}

// Deliver computes the RSSI from senderID to every other known node and
// calls receive for each one. receive is typically a closure over that
// node's mesh.Engine.Receive, letting Simulation control the nowMs value
// without this package depending on a clock.
func (m *Medium) Deliver(senderID uint32, pkt mesh.Packet, nowMs uint64, receive func(receiverID uint32, pkt mesh.Packet, rssi int8, nowMs uint64)) {
	txPos, ok := m.positions[senderID]
	if !ok {
		return
	}

	for id, rxPos := range m.positions {
		if id == senderID {
			continue
		}
		rssi := EstimateRSSI(txPos, rxPos)
		receive(id, pkt, rssi, nowMs)
	}
}
