package mesh_test

import (
	"testing"

	"github.com/brightswarm/meshcore/internal/mesh"
)

func TestRSSIRingIgnoresSamplesOutsideWindow(t *testing.T) {
	t.Parallel()

	var r mesh.RSSIRing
	r.AddSample(-60)
	if got := r.Samples(); len(got) != 0 {
		t.Fatalf("Samples() before Begin() = %v, want empty", got)
	}

	r.Begin()
	r.AddSample(-60)
	r.AddSample(-50)
	r.End()
	r.AddSample(-40) // ignored, window closed

	got := r.Samples()
	want := []int8{-60, -50}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Samples() = %v, want %v", got, want)
	}
}

func TestRSSIRingEvictsOldestOnOverflow(t *testing.T) {
	t.Parallel()

	var r mesh.RSSIRing
	r.Begin()
	for i := 0; i < mesh.MaxRSSISamples+5; i++ {
		r.AddSample(int8(i % 100))
	}

	got := r.Samples()
	if len(got) != mesh.MaxRSSISamples {
		t.Fatalf("Samples() len = %d, want %d", len(got), mesh.MaxRSSISamples)
	}
	// The first 5 samples (values 0..4) should have been evicted; the
	// oldest retained sample is value 5.
	if got[0] != 5 {
		t.Errorf("Samples()[0] = %d, want 5 (oldest retained)", got[0])
	}
}

func TestRSSIRingReset(t *testing.T) {
	t.Parallel()

	var r mesh.RSSIRing
	r.Begin()
	r.AddSample(-60)
	r.Reset()

	if r.Measuring() {
		t.Error("Measuring() after Reset() = true, want false")
	}
	if got := r.Samples(); len(got) != 0 {
		t.Errorf("Samples() after Reset() = %v, want empty", got)
	}
}

func TestUpdateMetricsGeographicDistributionRequiresTwoLocations(t *testing.T) {
	t.Parallel()

	var nt mesh.NeighborTable
	nt.Init()
	loc := &mesh.Location{X: 0, Y: 0, Z: 0}
	nt.UpdateNeighbor(1, loc, -60, 0, true)

	var ring mesh.RSSIRing
	m := mesh.UpdateMetrics(&nt, &ring, 1.0)
	if m.GeographicDistribution != 0 {
		t.Errorf("GeographicDistribution with 1 located neighbor = %v, want 0", m.GeographicDistribution)
	}
}

func TestUpdateMetricsGeographicDistributionSpread(t *testing.T) {
	t.Parallel()

	var nt mesh.NeighborTable
	nt.Init()
	nt.UpdateNeighbor(1, &mesh.Location{X: -10, Y: 0, Z: 0}, -60, 0, true)
	nt.UpdateNeighbor(2, &mesh.Location{X: 10, Y: 0, Z: 0}, -60, 0, true)

	var ring mesh.RSSIRing
	m := mesh.UpdateMetrics(&nt, &ring, 1.0)
	if m.GeographicDistribution <= 0 {
		t.Errorf("GeographicDistribution with spread neighbors = %v, want > 0", m.GeographicDistribution)
	}
}

func TestUpdateMetricsDirectCountAndConnectionNoise(t *testing.T) {
	t.Parallel()

	var nt mesh.NeighborTable
	nt.Init()
	nt.UpdateNeighbor(1, nil, -60, 0, true)
	nt.UpdateNeighbor(2, nil, -60, 0, true)

	var ring mesh.RSSIRing
	m := mesh.UpdateMetrics(&nt, &ring, 0.5)
	if m.DirectCount != 2 {
		t.Errorf("DirectCount = %d, want 2", m.DirectCount)
	}
	if m.ForwardingSuccessRate != 0.5 {
		t.Errorf("ForwardingSuccessRate = %v, want 0.5", m.ForwardingSuccessRate)
	}
	// No RSSI samples -> crowding 0 -> ConnectionNoise = directCount.
	if m.ConnectionNoise != 2 {
		t.Errorf("ConnectionNoise = %v, want 2", m.ConnectionNoise)
	}
}

func TestCandidacyGateStageProgression(t *testing.T) {
	t.Parallel()

	var g mesh.CandidacyGate
	g.Init(mesh.CandidacyCycles{Initial: 2, Relaxed: 2, Final: 1})

	if g.Stage() != mesh.CandidacyInitial {
		t.Fatalf("initial Stage() = %v, want CandidacyInitial", g.Stage())
	}

	g.AdvanceCycle()
	if g.Stage() != mesh.CandidacyInitial {
		t.Fatalf("Stage() after 1 cycle = %v, want still CandidacyInitial", g.Stage())
	}
	g.AdvanceCycle()
	if g.Stage() != mesh.CandidacyRelaxed {
		t.Fatalf("Stage() after 2 cycles = %v, want CandidacyRelaxed", g.Stage())
	}

	g.AdvanceCycle()
	g.AdvanceCycle()
	if g.Stage() != mesh.CandidacyFinal {
		t.Fatalf("Stage() after 4 cycles = %v, want CandidacyFinal", g.Stage())
	}

	// Final stage does not relax further.
	g.AdvanceCycle()
	if g.Stage() != mesh.CandidacyFinal {
		t.Errorf("Stage() stayed past CandidacyFinal = %v, want CandidacyFinal", g.Stage())
	}
}

func TestCandidacyGateMarkCandidateHeardResets(t *testing.T) {
	t.Parallel()

	var g mesh.CandidacyGate
	g.Init(mesh.CandidacyCycles{Initial: 1, Relaxed: 1, Final: 1})
	g.AdvanceCycle()
	g.AdvanceCycle()
	if g.Stage() == mesh.CandidacyInitial {
		t.Fatal("setup: gate should have relaxed past initial stage")
	}

	g.MarkCandidateHeard()
	if g.Stage() != mesh.CandidacyInitial {
		t.Errorf("Stage() after MarkCandidateHeard() = %v, want CandidacyInitial", g.Stage())
	}
}

func TestCandidacyGateShouldBecomeCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		metrics mesh.ConnectivityMetrics
		forwarded uint64
		want    bool
	}{
		{
			"all thresholds met",
			mesh.ConnectivityMetrics{DirectCount: 10, ConnectionNoise: 5.0, GeographicDistribution: 0.3},
			1,
			true,
		},
		{
			"direct count below minimum",
			mesh.ConnectivityMetrics{DirectCount: 9, ConnectionNoise: 5.0, GeographicDistribution: 0.3},
			1,
			false,
		},
		{
			"connection noise below minimum",
			mesh.ConnectivityMetrics{DirectCount: 10, ConnectionNoise: 4.9, GeographicDistribution: 0.3},
			1,
			false,
		},
		{
			"geographic distribution below minimum",
			mesh.ConnectivityMetrics{DirectCount: 10, ConnectionNoise: 5.0, GeographicDistribution: 0.29},
			1,
			false,
		},
		{
			"no messages forwarded",
			mesh.ConnectivityMetrics{DirectCount: 10, ConnectionNoise: 5.0, GeographicDistribution: 0.3},
			0,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var g mesh.CandidacyGate
			g.Init(mesh.DefaultCandidacyCycles())
			got := g.ShouldBecomeCandidate(tt.metrics, tt.forwarded)
			if got != tt.want {
				t.Errorf("ShouldBecomeCandidate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCandidacyGateRelaxedStageLowerMinimum(t *testing.T) {
	t.Parallel()

	var g mesh.CandidacyGate
	g.Init(mesh.CandidacyCycles{Initial: 1, Relaxed: 10, Final: 1})
	g.AdvanceCycle() // now at CandidacyRelaxed, minimum direct count 3

	m := mesh.ConnectivityMetrics{DirectCount: 3, ConnectionNoise: 5.0, GeographicDistribution: 0.3}
	if !g.ShouldBecomeCandidate(m, 1) {
		t.Error("ShouldBecomeCandidate() at relaxed stage with DirectCount=3 = false, want true")
	}
}

func TestResolveConflict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                                     string
		localDirect, remoteDirect                uint32
		localSenderID, remoteSenderID             uint32
		wantLocalWins                             bool
	}{
		{"local has strictly more neighbors", 10, 5, 100, 1, true},
		{"remote has strictly more neighbors", 5, 10, 1, 100, false},
		{"tie broken by lower sender ID, local lower", 5, 5, 1, 100, true},
		{"tie broken by lower sender ID, remote lower", 5, 5, 100, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mesh.ResolveConflict(tt.localDirect, tt.localSenderID, tt.remoteDirect, tt.remoteSenderID)
			if got != tt.wantLocalWins {
				t.Errorf("ResolveConflict() = %v, want %v", got, tt.wantLocalWins)
			}
		})
	}
}
