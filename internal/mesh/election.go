package mesh

// -------------------------------------------------------------------------
// RSSI ring buffer
// -------------------------------------------------------------------------

// MaxRSSISamples bounds the crowding-measurement ring buffer.
const MaxRSSISamples = 100

// RSSIRing is a fixed-capacity ring buffer of RSSI samples taken
// during a gated crowding-measurement window. Samples recorded outside
// the window (measuring == false) are ignored.
type RSSIRing struct {
	samples   [MaxRSSISamples]int8
	count     int
	head      int
	measuring bool
}

// Begin opens the measurement window; AddSample is a no-op until this
// is called.
func (r *RSSIRing) Begin() {
	r.measuring = true
}

// End closes the measurement window.
func (r *RSSIRing) End() {
	r.measuring = false
}

// Measuring reports whether the window is currently open.
func (r *RSSIRing) Measuring() bool {
	return r.measuring
}

// AddSample records rssi if the measurement window is open, evicting
// the oldest sample once the ring is full.
func (r *RSSIRing) AddSample(rssi int8) {
	if !r.measuring {
		return
	}
	r.samples[r.head] = rssi
	r.head = (r.head + 1) % MaxRSSISamples
	if r.count < MaxRSSISamples {
		r.count++
	}
}

// Samples returns the currently retained samples, oldest first.
func (r *RSSIRing) Samples() []int8 {
	out := make([]int8, r.count)
	start := r.head - r.count
	if start < 0 {
		start += MaxRSSISamples
	}
	for i := 0; i < r.count; i++ {
		out[i] = r.samples[(start+i)%MaxRSSISamples]
	}
	return out
}

// Reset clears all recorded samples and closes the window.
func (r *RSSIRing) Reset() {
	r.count = 0
	r.head = 0
	r.measuring = false
}

// -------------------------------------------------------------------------
// Connectivity metrics
// -------------------------------------------------------------------------

// geoDistributionScale normalizes raw positional variance (m²) to the
// [0,1] geographic-distribution score; neighbors spread on the order of
// this scale or more are considered well distributed.
const geoDistributionScale = 100.0

// ConnectivityMetrics summarizes a node's current view of its
// neighborhood, recomputed once per cycle.
type ConnectivityMetrics struct {
	DirectCount            uint32
	Crowding               float64
	ConnectionNoise        float64
	GeographicDistribution float64
	ForwardingSuccessRate  float64
}

// UpdateMetrics recomputes connectivity metrics from the current
// neighbor table, RSSI samples, and the scheduler's recorded success
// rate. Geographic distribution is a two-pass centroid-and-variance
// computation over neighbors with a known location, reporting 0 when
// fewer than two such neighbors exist (variance is undefined below
// that).
func UpdateMetrics(nt *NeighborTable, ring *RSSIRing, forwardingSuccessRate float64) ConnectivityMetrics {
	entries := nt.Entries()
	directCount := uint32(nt.DirectCount())
	crowding := CrowdingFromRSSI(ring.Samples())

	// ConnectionNoise approximates usable connectivity once crowding-
	// induced collisions are discounted: more direct neighbors raise it,
	// heavier crowding suppresses it.
	connectionNoise := (1 - crowding) * float64(directCount)

	geo := geographicDistribution(entries)

	return ConnectivityMetrics{
		DirectCount:            directCount,
		Crowding:               crowding,
		ConnectionNoise:        connectionNoise,
		GeographicDistribution: geo,
		ForwardingSuccessRate:  forwardingSuccessRate,
	}
}

func geographicDistribution(entries []NeighborEntry) float64 {
	var withLoc []Location
	for _, e := range entries {
		if e.HasLocation {
			withLoc = append(withLoc, e.Location)
		}
	}
	if len(withLoc) < 2 {
		return 0
	}

	var cx, cy, cz float64
	for _, l := range withLoc {
		cx += l.X
		cy += l.Y
		cz += l.Z
	}
	n := float64(len(withLoc))
	cx /= n
	cy /= n
	cz /= n

	var variance float64
	for _, l := range withLoc {
		dx, dy, dz := l.X-cx, l.Y-cy, l.Z-cz
		variance += dx*dx + dy*dy + dz*dz
	}
	variance /= n

	return clampFloat(variance/geoDistributionScale, 0, 1)
}

// -------------------------------------------------------------------------
// Candidacy gate
// -------------------------------------------------------------------------

// CandidacyStage is the current relaxation stage of the dynamic
// candidacy-minimum schedule.
type CandidacyStage uint8

const (
	CandidacyInitial CandidacyStage = iota
	CandidacyRelaxed
	CandidacyFinal
)

// Direct-neighbor minimums required at each relaxation stage.
const (
	candidacyMinInitial = 10
	candidacyMinRelaxed = 3
	candidacyMinFinal   = 1
)

const (
	candidacyMinConnectionNoise = 5.0
	candidacyMinGeoDistribution = 0.3
)

// CandidacyCycles configures how many cycles a node spends at each
// relaxation stage before the direct-neighbor minimum relaxes further.
type CandidacyCycles struct {
	Initial uint32
	Relaxed uint32
	Final   uint32
}

// DefaultCandidacyCycles returns the spec-documented cadence (6 cycles
// at the initial minimum, 3 at the relaxed minimum, 1 at the final
// minimum before it stops relaxing).
func DefaultCandidacyCycles() CandidacyCycles {
	return CandidacyCycles{Initial: 6, Relaxed: 3, Final: 1}
}

// CandidacyGate tracks a node's progress through the relaxation
// schedule and evaluates whether it currently qualifies to become a
// clusterhead candidate.
type CandidacyGate struct {
	cycles       CandidacyCycles
	stage        CandidacyStage
	cyclesAtStage uint32
}

// Init configures the gate with the given cadence and resets it to the
// initial (strictest) stage.
func (g *CandidacyGate) Init(cycles CandidacyCycles) {
	g.cycles = cycles
	g.stage = CandidacyInitial
	g.cyclesAtStage = 0
}

// AdvanceCycle records that one more cycle has elapsed without the
// node becoming a candidate, relaxing the stage once the configured
// cycle count for the current stage has been spent.
func (g *CandidacyGate) AdvanceCycle() {
	g.cyclesAtStage++

	var limit uint32
	switch g.stage {
	case CandidacyInitial:
		limit = g.cycles.Initial
	case CandidacyRelaxed:
		limit = g.cycles.Relaxed
	default:
		return
	}

	if g.cyclesAtStage >= limit {
		g.cyclesAtStage = 0
		if g.stage < CandidacyFinal {
			g.stage++
		}
	}
}

// MarkCandidateHeard resets the relaxation schedule back to its
// strictest stage, called when this node hears an announcement from an
// existing candidate or clusterhead so it does not also relax its own
// threshold while one is already present.
func (g *CandidacyGate) MarkCandidateHeard() {
	g.stage = CandidacyInitial
	g.cyclesAtStage = 0
}

// Stage returns the gate's current relaxation stage.
func (g *CandidacyGate) Stage() CandidacyStage {
	return g.stage
}

// minDirectForStage returns the direct-neighbor minimum for the gate's
// current stage.
func (g *CandidacyGate) minDirectForStage() uint32 {
	switch g.stage {
	case CandidacyInitial:
		return candidacyMinInitial
	case CandidacyRelaxed:
		return candidacyMinRelaxed
	default:
		return candidacyMinFinal
	}
}

// ShouldBecomeCandidate evaluates the full candidacy gate: the direct-
// neighbor count must meet the current stage's minimum, connection:
// noise must be at least 5.0, geographic distribution must be at least
// 0.3, and the node must have forwarded at least one message.
func (g *CandidacyGate) ShouldBecomeCandidate(m ConnectivityMetrics, messagesForwarded uint64) bool {
	if m.DirectCount < g.minDirectForStage() {
		return false
	}
	if m.ConnectionNoise < candidacyMinConnectionNoise {
		return false
	}
	if m.GeographicDistribution < candidacyMinGeoDistribution {
		return false
	}
	return messagesForwarded > 0
}

// -------------------------------------------------------------------------
// Conflict resolution
// -------------------------------------------------------------------------

// ResolveConflict decides which of two simultaneous clusterhead
// candidacies wins, comparing direct-neighbor counts (the first
// element of each side's Last-Π history) with strictly more neighbors
// winning; ties are broken by the strictly lower sender ID. It reports
// true if the local side wins.
func ResolveConflict(localDirectCount uint32, localSenderID uint32, remoteDirectCount uint32, remoteSenderID uint32) bool {
	if localDirectCount != remoteDirectCount {
		return localDirectCount > remoteDirectCount
	}
	return localSenderID < remoteSenderID
}
