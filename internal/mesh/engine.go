package mesh

import "fmt"

// -------------------------------------------------------------------------
// Configuration
// -------------------------------------------------------------------------

// Config parameterizes a single Engine instance. Every duration-shaped
// field is in milliseconds and measured against the caller-supplied
// "now" passed to Tick/Receive, never wall-clock time read internally.
type Config struct {
	NodeID uint32

	// SlotDurationMs is advisory for the host's own scheduling loop;
	// the engine itself only reacts to Tick calls and never sleeps.
	SlotDurationMs uint32

	InitialTTL           uint8
	ProximityThresholdM  float64
	ClusterCapacity      uint32
	NoisyWindowDurationMs uint32
	DynamicCandidacyCycles CandidacyCycles

	SendCB LogSendPair
}

// LogSendPair groups the two host capabilities an Engine calls into,
// plus the opaque context passed through to both. Kept as one struct so
// Config stays a single flat value the host builds once at startup.
type LogSendPair struct {
	Send        SendFunc
	Log         LogFunc
	UserContext any
}

// DefaultConfig returns a Config with every zero-value field replaced
// by its documented default. NodeID is never defaulted — the caller
// must always supply it.
func DefaultConfig(nodeID uint32) Config {
	return Config{
		NodeID:                 nodeID,
		SlotDurationMs:         DefaultSlotMs,
		InitialTTL:             10,
		ProximityThresholdM:    10.0,
		ClusterCapacity:        MaxNeighbors,
		NoisyWindowDurationMs:  uint32(DefaultNoisySlots) * DefaultSlotMs,
		DynamicCandidacyCycles: DefaultCandidacyCycles(),
	}
}

// ReceiveResult reports the outcome of Engine.Receive.
type ReceiveResult uint8

const (
	ReceiveAccepted ReceiveResult = iota
	ReceiveDropped
)

func (r ReceiveResult) String() string {
	if r == ReceiveAccepted {
		return "Accepted"
	}
	return "Dropped"
}

// NodeSnapshot is a point-in-time, side-effect-free view of a node's
// role and connectivity, returned by Engine.Node.
type NodeSnapshot struct {
	NodeID  uint32
	State   NodeState
	Metrics ConnectivityMetrics
	Score   float64
	PDSF    uint32
}

// StatsSnapshot is a point-in-time view of an Engine's lifetime
// counters, returned by Engine.Stats.
type StatsSnapshot struct {
	Queue             QueueStats
	Cycles            uint64
	RoleChanges       uint64
	PacketsSent       uint64
	PacketsReceived   uint64
	PacketsDropped    uint64
	MessagesForwarded uint64
}

// Engine is the synchronous, single-instance protocol core for one
// node. Every public method runs to completion before returning; the
// engine never spawns goroutines, timers, or asynchronous work, and no
// call may suspend — the host drives all timing via Tick.
type Engine struct {
	cfg         Config
	initialized bool

	state NodeState

	timing    BroadcastTiming
	rng       lcg
	queue     MessageQueue
	neighbors NeighborTable
	rssiRing  RSSIRing
	gate      CandidacyGate
	weights   ScoreWeights

	hasLocation bool
	location    Location
	crowding    float64
	noiseLevel  float64

	metrics ConnectivityMetrics
	pdsf    uint32
	lastPi  []uint32

	noisyWindowArmed bool
	noisyWindowEndMs uint64

	announcementRounds  uint32
	renouncementRounds  uint32
	boundClusterheadID  uint32
	hasBoundClusterhead bool

	stats StatsSnapshot
}

// Init configures the engine and resets it to NodeInit, ready for
// Start. It may be called again later (equivalent to Reset with a new
// configuration).
func (e *Engine) Init(cfg Config) error {
	if cfg.NodeID == 0 {
		return fmt.Errorf("mesh: Config.NodeID must be nonzero")
	}

	defaults := DefaultConfig(cfg.NodeID)
	if cfg.SlotDurationMs == 0 {
		cfg.SlotDurationMs = defaults.SlotDurationMs
	}
	if cfg.InitialTTL == 0 {
		cfg.InitialTTL = defaults.InitialTTL
	}
	if cfg.ProximityThresholdM == 0 {
		cfg.ProximityThresholdM = defaults.ProximityThresholdM
	}
	if cfg.ClusterCapacity == 0 {
		cfg.ClusterCapacity = defaults.ClusterCapacity
	}
	if cfg.NoisyWindowDurationMs == 0 {
		cfg.NoisyWindowDurationMs = defaults.NoisyWindowDurationMs
	}
	if cfg.DynamicCandidacyCycles == (CandidacyCycles{}) {
		cfg.DynamicCandidacyCycles = defaults.DynamicCandidacyCycles
	}

	e.cfg = cfg
	e.state = NodeInit
	e.timing.Init(NoisyProfile, 0, cfg.SlotDurationMs, 0)
	e.queue.Init()
	e.neighbors.Init()
	e.rssiRing.Reset()
	e.gate.Init(cfg.DynamicCandidacyCycles)
	e.weights = DefaultScoreWeights()
	e.hasLocation = false
	e.crowding = 0
	e.noiseLevel = 0
	e.metrics = ConnectivityMetrics{}
	e.pdsf = 0
	e.lastPi = nil
	e.noisyWindowArmed = false
	e.noisyWindowEndMs = 0
	e.announcementRounds = 0
	e.renouncementRounds = 0
	e.hasBoundClusterhead = false
	e.stats = StatsSnapshot{}
	e.initialized = true

	return nil
}

// Start transitions the node from Init to Discovery and opens the
// RSSI-sampling window.
func (e *Engine) Start() error {
	if !e.initialized {
		return ErrNotInitialized
	}
	e.applyEvent(EventStart)
	return nil
}

// Stop halts the node, returning it to Init. Neighbor, queue, and stats
// state is preserved so a subsequent Start resumes with history intact.
func (e *Engine) Stop() error {
	if !e.initialized {
		return ErrNotInitialized
	}
	e.applyEvent(EventStop)
	e.noisyWindowArmed = false
	return nil
}

// Reset fully reinitializes the engine with its current configuration,
// clearing all neighbor, queue, and stats state.
func (e *Engine) Reset() error {
	if !e.initialized {
		return ErrNotInitialized
	}
	return e.Init(e.cfg)
}

// SetGPS records the node's current location, used for the proximity
// forwarding filter and geographic-distribution metric.
func (e *Engine) SetGPS(x, y, z float64) {
	e.hasLocation = true
	e.location = Location{X: x, Y: y, Z: z}
}

// ClearGPS discards the node's location.
func (e *Engine) ClearGPS() {
	e.hasLocation = false
}

// SetCrowding overrides the crowding factor used by the forwarding
// filter and the neighbor-profile TX budget, bypassing the RSSI-derived
// estimate computed during housekeeping.
func (e *Engine) SetCrowding(factor float64) {
	e.crowding = clampFloat(factor, 0, 1)
	e.timing.SetCrowding(e.crowding)
}

// SetNoiseLevel records the node's current ambient noise estimate. It
// does not feed any formula directly defined in this package; hosts
// that compute their own connection:noise input may fold it in before
// calling SetScoreWeights-driven consumers.
func (e *Engine) SetNoiseLevel(level float64) {
	e.noiseLevel = level
}

// SeedRandom seeds both of the engine's deterministic generators, the
// broadcast scheduler's and the one behind the forwarding filter's
// picky-forwarding draw, with the same value, so an entire run is
// reproducible from one seed.
func (e *Engine) SeedRandom(seed uint32) {
	e.timing.SetSeed(seed)
	e.rng.seed(seed)
}

// SetScoreWeights overrides the candidacy score weighting.
func (e *Engine) SetScoreWeights(wDirect, wConnectionNoise, wGeo, wForwardingRate float64) {
	e.weights = ScoreWeights{
		Direct:          wDirect,
		ConnectionNoise: wConnectionNoise,
		Geographic:      wGeo,
		ForwardingRate:  wForwardingRate,
	}
}

// Node returns a snapshot of the node's current role and connectivity.
func (e *Engine) Node() NodeSnapshot {
	score := CalculateScore(e.metrics.DirectCount, e.metrics.ConnectionNoise, e.metrics.GeographicDistribution, e.metrics.ForwardingSuccessRate, e.weights)
	return NodeSnapshot{
		NodeID:  e.cfg.NodeID,
		State:   e.state,
		Metrics: e.metrics,
		Score:   score,
		PDSF:    e.pdsf,
	}
}

// Stats returns a snapshot of the engine's lifetime counters.
func (e *Engine) Stats() StatsSnapshot {
	s := e.stats
	s.Queue = e.queue.Stats()
	return s
}

// Tick advances the node by exactly one broadcast slot. The host is
// responsible for calling Tick once per SlotDurationMs of wall-clock
// time; the engine performs no timing of its own.
func (e *Engine) Tick(nowMs uint64) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.state == NodeInit {
		return nil
	}

	if e.state == NodeDiscovery && !e.noisyWindowArmed {
		e.rssiRing.Begin()
		e.noisyWindowEndMs = nowMs + uint64(e.cfg.NoisyWindowDurationMs)
		e.noisyWindowArmed = true
	}

	isTXSlot := e.timing.AdvanceSlot()
	slot := e.timing.CurrentSlot()

	e.executeSlot(slot, isTXSlot, nowMs)

	if slot == 0 {
		e.stats.Cycles++
		e.housekeeping(nowMs)
	}

	return nil
}

// executeSlot performs the work scheduled for one slot: slot 0 builds
// and, if this is a TX slot, sends the node's own packet for its
// current state; slots 1-3 consider forwarding the head of the queue.
// Forwarding is governed entirely by the picky-forwarding filter's own
// crowding-weighted RNG gate, not by the broadcast scheduler's TX/
// listen decision — that decision only arbitrates origination of the
// node's own packet in slot 0.
func (e *Engine) executeSlot(slot uint32, isTXSlot bool, nowMs uint64) {
	switch {
	case slot == 0:
		if isTXSlot {
			e.transmitOwnPacket(nowMs)
		}
	case slot <= 3:
		e.considerForwarding(nowMs)
	}
}

func (e *Engine) transmitOwnPacket(nowMs uint64) {
	var pkt Packet
	pkt.Init(e.cfg.NodeID, e.cfg.InitialTTL)
	pkt.AppendToPath(e.cfg.NodeID)
	if e.hasLocation {
		pkt.SetGPS(e.location.X, e.location.Y, e.location.Z)
	}

	if e.renouncementRounds > 0 {
		renouncing := e.state == NodeEdge
		e.renouncementRounds--

		if !renouncing {
			// The demotion already happened when the countdown was
			// scheduled; a renouncement broadcast here would be stale.
			return
		}

		pkt.Type = Renouncement
		pkt.Election = &ElectionExt{LastPi: []uint32{0}, Hash: GenerateHash(e.cfg.NodeID)}
		e.send(pkt)
		return
	}

	switch e.state {
	case NodeCandidate, NodeClusterhead:
		pkt.Type = Election
		// A clusterhead-elect advertises the flag throughout its
		// candidacy, not only once AnnouncementRoundsComplete lands it
		// in NodeClusterhead; see DESIGN.md Open Question decisions.
		pkt.IsClusterhead = true
		score := CalculateScore(e.metrics.DirectCount, e.metrics.ConnectionNoise, e.metrics.GeographicDistribution, e.metrics.ForwardingSuccessRate, e.weights)
		pkt.Election = &ElectionExt{
			ClassID: 0,
			PDSF:    e.pdsf,
			LastPi:  []uint32{e.metrics.DirectCount},
			Score:   score,
			Hash:    GenerateHash(e.cfg.NodeID),
		}
	default:
		pkt.Type = Discovery
	}

	e.send(pkt)

	if e.state == NodeCandidate {
		e.announcementRounds++
		if e.announcementRounds >= 3 {
			e.applyEvent(EventAnnouncementRoundsComplete)
		}
	}
}

func (e *Engine) considerForwarding(nowMs uint64) {
	entry, ok := e.queue.Peek()
	if !ok {
		return
	}

	var loc *Location
	if e.hasLocation {
		loc = &e.location
	}

	if !ShouldForward(entry.Packet, loc, e.crowding, e.cfg.ProximityThresholdM, e.rng.float64()) {
		e.queue.Dequeue()
		e.stats.PacketsDropped++
		return
	}

	pkt := entry.Packet
	pkt.Path = append([]uint32(nil), pkt.Path...)
	if pkt.Election != nil {
		ext := *pkt.Election
		pkt.Election = &ext
	}
	directHere := uint32(e.neighbors.DirectCount())

	if pkt.Type.HasElectionExtension() && pkt.Election != nil {
		newPDSF, newHistory := CalculatePDSFUpdate(pkt.Election.PDSF, pkt.Election.LastPi, directHere)
		if newPDSF >= e.cfg.ClusterCapacity {
			e.queue.Dequeue()
			e.stats.PacketsDropped++
			return
		}
		pkt.Election.PDSF = newPDSF
		pkt.Election.LastPi = newHistory
	}

	if !pkt.DecrementTTL() || !pkt.AppendToPath(e.cfg.NodeID) {
		e.queue.Dequeue()
		e.stats.PacketsDropped++
		return
	}

	e.queue.Dequeue()
	e.send(pkt)
	e.stats.MessagesForwarded++
	e.timing.RecordSuccess()
}

func (e *Engine) send(pkt Packet) {
	if e.cfg.SendCB.Send != nil {
		e.cfg.SendCB.Send(pkt, e.cfg.SendCB.UserContext)
	}
	e.stats.PacketsSent++
}

func (e *Engine) log(level LogLevel, msg string) {
	if e.cfg.SendCB.Log != nil {
		e.cfg.SendCB.Log(level, msg, e.cfg.SendCB.UserContext)
	}
}

// housekeeping runs once per completed cycle (slot wraps to 0): closes
// the noisy window if its deadline has passed, recomputes connectivity
// metrics, prunes stale neighbors, advances the candidacy relaxation
// schedule, and evaluates the state-transition gates.
func (e *Engine) housekeeping(nowMs uint64) {
	if e.state == NodeDiscovery && e.noisyWindowArmed && nowMs >= e.noisyWindowEndMs {
		e.rssiRing.End()
		e.evaluateDiscoveryExit()
	}

	e.neighbors.CleanOld(nowMs, 2*uint64(e.cfg.NoisyWindowDurationMs))
	e.metrics = UpdateMetrics(&e.neighbors, &e.rssiRing, e.timing.SuccessRate())

	if e.state == NodeEdge {
		e.gate.AdvanceCycle()
		if e.gate.ShouldBecomeCandidate(e.metrics, e.stats.MessagesForwarded) {
			e.applyEvent(EventBecomeCandidate)
		}
	}
}

// shouldBecomeEdge reports whether a node exiting discovery lacks
// enough direct connectivity to contest an election: fewer than 3
// direct neighbors, or a mean RSSI below -70dBm.
func (e *Engine) shouldBecomeEdge() bool {
	if e.metrics.DirectCount < 3 {
		return true
	}
	samples := e.rssiRing.Samples()
	if len(samples) == 0 {
		return true
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := sum / float64(len(samples))
	return mean < -70
}

func (e *Engine) evaluateDiscoveryExit() {
	e.metrics = UpdateMetrics(&e.neighbors, &e.rssiRing, e.timing.SuccessRate())
	e.timing.Init(NeighborProfile, 0, e.cfg.SlotDurationMs, 0)
	e.timing.SetCrowding(e.crowding)

	if e.gate.ShouldBecomeCandidate(e.metrics, e.stats.MessagesForwarded) {
		e.applyEvent(EventBecomeCandidate)
		return
	}
	if e.shouldBecomeEdge() {
		e.applyEvent(EventBecomeEdge)
	}
}

// Receive processes one packet arriving at the node, observed at rssi
// and nowMs. It updates the neighbor table and RSSI samples, resolves
// any election conflict or renouncement, and attempts to enqueue the
// packet for forwarding.
func (e *Engine) Receive(pkt Packet, rssi int8, nowMs uint64) (ReceiveResult, error) {
	if !e.initialized {
		return ReceiveDropped, ErrNotInitialized
	}

	var loc *Location
	if pkt.HasGPS {
		loc = &Location{X: pkt.GPSX, Y: pkt.GPSY, Z: pkt.GPSZ}
	}
	e.neighbors.UpdateNeighbor(pkt.SenderID, loc, rssi, nowMs, e.state == NodeDiscovery)
	e.rssiRing.AddSample(rssi)

	e.handleElectionSignaling(pkt)

	result := e.queue.Enqueue(pkt, e.cfg.NodeID, nowMs)
	if result != Accepted {
		return ReceiveDropped, nil
	}
	e.stats.PacketsReceived++
	return ReceiveAccepted, nil
}

// handleElectionSignaling reacts to election and renouncement packets
// before they are queued for forwarding: resolving candidate conflicts,
// recognizing clusterhead announcements, and clearing local clusterhead
// bindings on renouncement.
func (e *Engine) handleElectionSignaling(pkt Packet) {
	if !pkt.Type.HasElectionExtension() || pkt.Election == nil {
		return
	}

	if pkt.Type == Renouncement {
		if e.hasBoundClusterhead && e.boundClusterheadID == pkt.SenderID {
			e.hasBoundClusterhead = false
		}
		return
	}

	var remoteDirect uint32
	if len(pkt.Election.LastPi) > 0 {
		remoteDirect = pkt.Election.LastPi[0]
	}

	switch e.state {
	case NodeCandidate:
		localDirect := e.metrics.DirectCount
		if !ResolveConflict(localDirect, e.cfg.NodeID, remoteDirect, pkt.SenderID) {
			e.renouncementRounds = 3
			e.applyEvent(EventConflictLost)
		}
	case NodeEdge, NodeClusterMember:
		if pkt.IsClusterhead {
			e.gate.MarkCandidateHeard()
			e.boundClusterheadID = pkt.SenderID
			e.hasBoundClusterhead = true
			e.applyEvent(EventClusterheadHeard)
		}
	}
}

// applyEvent drives the node FSM and executes the resulting actions.
func (e *Engine) applyEvent(event NodeEvent) {
	result := ApplyNodeEvent(e.state, event)
	if result.Changed {
		e.state = result.NewState
		e.stats.RoleChanges++
		e.log(LogInfo, fmt.Sprintf("node role changed: %s -> %s", result.OldState, result.NewState))
	}
	for _, action := range result.Actions {
		e.executeAction(action)
	}
}

func (e *Engine) executeAction(action NodeAction) {
	switch action {
	case ActionBeginNoisyWindow:
		e.rssiRing.Begin()
		e.noisyWindowArmed = false
	case ActionEmitAnnouncement:
		e.announcementRounds = 0
	case ActionEmitRenouncement:
		// The renouncement countdown was already armed by the caller
		// that detected the lost conflict; nothing further to do here.
	case ActionNotifyRoleChanged:
		// Role-change logging already happened in applyEvent.
	}
}
