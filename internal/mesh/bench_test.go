package mesh_test

import (
	"testing"

	"github.com/brightswarm/meshcore/internal/mesh"
)

// -------------------------------------------------------------------------
// BenchmarkPacketSerialize — hot path: serialize a discovery packet
// -------------------------------------------------------------------------

// BenchmarkPacketSerialize measures marshaling a plain discovery packet
// with a short path: the encoding step a host runs before putting a
// packet handed to its SendFunc on the air.
//
// Target: zero allocations per operation.
func BenchmarkPacketSerialize(b *testing.B) {
	pkt := mesh.Packet{
		Type:     mesh.Discovery,
		SenderID: 0xDEADBEEF,
		TTL:      5,
		Path:     []uint32{1, 2, 3},
	}
	buf := make([]byte, 256)

	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		_, _ = pkt.Serialize(buf)
	}
}

// -------------------------------------------------------------------------
// BenchmarkPacketSerializeElection — serialize with the election extension
// -------------------------------------------------------------------------

// BenchmarkPacketSerializeElection measures marshaling an election packet
// with a populated Last-Π history, the worst-case serialize path.
func BenchmarkPacketSerializeElection(b *testing.B) {
	pkt := mesh.Packet{
		Type:     mesh.Election,
		SenderID: 0xDEADBEEF,
		TTL:      5,
		Path:     []uint32{1, 2, 3, 4, 5},
		Election: &mesh.ElectionExt{
			ClassID: 1,
			PDSF:    40,
			LastPi:  []uint32{8, 9, 7, 6, 10},
			Score:   0.73,
			Hash:    mesh.GenerateHash(0xDEADBEEF),
		},
	}
	buf := make([]byte, 256)

	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		_, _ = pkt.Serialize(buf)
	}
}

// -------------------------------------------------------------------------
// BenchmarkPacketDeserialize — hot path: parse a discovery packet
// -------------------------------------------------------------------------

// BenchmarkPacketDeserialize measures unmarshaling a discovery packet from
// a wire-format buffer: the decoding step a host runs on a received
// beacon before passing it to Engine.Receive.
func BenchmarkPacketDeserialize(b *testing.B) {
	pkt := mesh.Packet{
		Type:     mesh.Discovery,
		SenderID: 0xDEADBEEF,
		TTL:      5,
		Path:     []uint32{1, 2, 3},
	}
	buf := make([]byte, 256)
	n, err := pkt.Serialize(buf)
	if err != nil {
		b.Fatalf("setup serialize: %v", err)
	}
	wire := buf[:n]

	var dst mesh.Packet

	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		_ = dst.Deserialize(wire)
	}
}

// -------------------------------------------------------------------------
// BenchmarkPacketDeserializeElection — unmarshal with election extension
// -------------------------------------------------------------------------

// BenchmarkPacketDeserializeElection measures unmarshaling an election
// packet, exercising the election-extension and Last-Π decode path.
func BenchmarkPacketDeserializeElection(b *testing.B) {
	pkt := mesh.Packet{
		Type:     mesh.Election,
		SenderID: 0xDEADBEEF,
		TTL:      5,
		Path:     []uint32{1, 2, 3, 4, 5},
		Election: &mesh.ElectionExt{
			ClassID: 1,
			PDSF:    40,
			LastPi:  []uint32{8, 9, 7, 6, 10},
			Score:   0.73,
			Hash:    mesh.GenerateHash(0xDEADBEEF),
		},
	}
	buf := make([]byte, 256)
	n, err := pkt.Serialize(buf)
	if err != nil {
		b.Fatalf("setup serialize: %v", err)
	}
	wire := buf[:n]

	var dst mesh.Packet

	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		_ = dst.Deserialize(wire)
	}
}

// -------------------------------------------------------------------------
// BenchmarkPacketRoundTrip — serialize + deserialize combined
// -------------------------------------------------------------------------

// BenchmarkPacketRoundTrip measures the combined serialize-deserialize
// round trip for a plain discovery packet.
func BenchmarkPacketRoundTrip(b *testing.B) {
	pkt := mesh.Packet{
		Type:     mesh.Discovery,
		SenderID: 0xDEADBEEF,
		TTL:      5,
		Path:     []uint32{1, 2, 3},
	}
	buf := make([]byte, 256)
	var dst mesh.Packet

	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		n, _ := pkt.Serialize(buf)
		_ = dst.Deserialize(buf[:n])
	}
}

// -------------------------------------------------------------------------
// BenchmarkCalculatePDSFUpdate — PDSF/Last-Π additive update hot path
// -------------------------------------------------------------------------

// BenchmarkCalculatePDSFUpdate measures the PDSF update computed at every
// forwarding hop.
func BenchmarkCalculatePDSFUpdate(b *testing.B) {
	history := []uint32{8, 9, 7, 6, 10}

	b.ReportAllocs()
	for b.Loop() {
		_, _ = mesh.CalculatePDSFUpdate(40, history, 5)
	}
}

// -------------------------------------------------------------------------
// BenchmarkCalculateScore — candidacy score computation hot path
// -------------------------------------------------------------------------

// BenchmarkCalculateScore measures the weighted candidacy score
// computation, evaluated whenever a node reassesses its candidacy.
func BenchmarkCalculateScore(b *testing.B) {
	weights := mesh.DefaultScoreWeights()

	b.ReportAllocs()
	for b.Loop() {
		_ = mesh.CalculateScore(12, 4.5, 0.6, 0.9, weights)
	}
}

// -------------------------------------------------------------------------
// BenchmarkGenerateHash — FNV-1a hash computation hot path
// -------------------------------------------------------------------------

// BenchmarkGenerateHash measures the FNV-1a hash computed for every
// election and renouncement packet a node originates.
func BenchmarkGenerateHash(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_ = mesh.GenerateHash(0xDEADBEEF)
	}
}

// -------------------------------------------------------------------------
// BenchmarkBroadcastTimingAdvanceSlot — per-slot scheduling decision
// -------------------------------------------------------------------------

// BenchmarkBroadcastTimingAdvanceSlot measures the neighbor-profile TX/
// listen decision made on every tick.
func BenchmarkBroadcastTimingAdvanceSlot(b *testing.B) {
	var bt mesh.BroadcastTiming
	bt.Init(mesh.NeighborProfile, 0, 0, 0)
	bt.SetSeed(1)
	bt.SetCrowding(0.5)

	b.ReportAllocs()
	for b.Loop() {
		bt.AdvanceSlot()
	}
}

// -------------------------------------------------------------------------
// BenchmarkNodeFSMApplyEvent — state transition table lookup
// -------------------------------------------------------------------------

// BenchmarkNodeFSMApplyEvent measures the transition-table lookup
// evaluated on every state-changing housekeeping pass.
func BenchmarkNodeFSMApplyEvent(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_ = mesh.ApplyNodeEvent(mesh.NodeDiscovery, mesh.EventBecomeCandidate)
	}
}

// -------------------------------------------------------------------------
// BenchmarkEngineTick — one full slot-advance per call, steady state
// -------------------------------------------------------------------------

// BenchmarkEngineTick measures the per-tick orchestration cost of a
// started node that has received a handful of packets. The node enters
// the loop in discovery; the loop's own ticks drain its queue and, once
// those neighbors go stale, settle it as an edge node.
func BenchmarkEngineTick(b *testing.B) {
	cfg := mesh.DefaultConfig(1)
	cfg.SendCB.Send = func(mesh.Packet, any) {}
	var e mesh.Engine
	if err := e.Init(cfg); err != nil {
		b.Fatalf("Init: %v", err)
	}
	e.SeedRandom(42)
	e.SetCrowding(0.2)
	if err := e.Start(); err != nil {
		b.Fatalf("Start: %v", err)
	}

	var nowMs uint64
	for i := 0; i < 5; i++ {
		nowMs++
		pkt := mesh.Packet{Type: mesh.Discovery, SenderID: uint32(10 + i), TTL: 5, Path: []uint32{uint32(10 + i)}}
		_, _ = e.Receive(pkt, -70, nowMs)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		nowMs++
		_ = e.Tick(nowMs)
	}
}

// -------------------------------------------------------------------------
// BenchmarkEngineReceive — enqueue path for an incoming packet
// -------------------------------------------------------------------------

// BenchmarkEngineReceive measures Receive's neighbor-update, RSSI-
// sample, and enqueue cost for a steady stream of distinct packets.
func BenchmarkEngineReceive(b *testing.B) {
	cfg := mesh.DefaultConfig(1)
	var e mesh.Engine
	if err := e.Init(cfg); err != nil {
		b.Fatalf("Init: %v", err)
	}
	if err := e.Start(); err != nil {
		b.Fatalf("Start: %v", err)
	}

	b.ReportAllocs()
	var nowMs uint64
	for i := 0; b.Loop(); i++ {
		nowMs++
		pkt := mesh.Packet{Type: mesh.Discovery, SenderID: uint32(1000 + i), TTL: 5, Path: []uint32{uint32(1000 + i)}}
		_, _ = e.Receive(pkt, -70, nowMs)
	}
}
