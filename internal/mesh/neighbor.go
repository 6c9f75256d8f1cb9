package mesh

// MaxNeighbors bounds the neighbor table. Entries beyond this capacity
// are silently dropped rather than evicting an existing neighbor.
const MaxNeighbors = 150

// NeighborEntry records what a node currently knows about one nearby
// peer.
type NeighborEntry struct {
	ID          uint32
	HasLocation bool
	Location    Location
	RSSI        int8
	LastSeenMs  uint64
	FirstSeenMs uint64
	IsDirect    bool
}

// NeighborTable is the bounded, find-or-insert table of nearby peers a
// node has heard from.
type NeighborTable struct {
	entries map[uint32]*NeighborEntry
}

// Init resets the table to empty.
func (nt *NeighborTable) Init() {
	nt.entries = make(map[uint32]*NeighborEntry, MaxNeighbors)
}

// UpdateNeighbor records an observation of id at nowMs with the given
// RSSI and optional location. If id is not yet known, a new entry is
// inserted — unless the table is already at MaxNeighbors capacity, in
// which case the observation is silently dropped. directPhase marks
// whether this observation occurs during the node's direct-discovery
// (noisy) window; IsDirect is set true only for a brand-new entry
// observed during that window, and is never changed afterward.
//
// It reports whether the observation was recorded (false only when an
// unknown id arrives at capacity).
func (nt *NeighborTable) UpdateNeighbor(id uint32, loc *Location, rssi int8, nowMs uint64, directPhase bool) bool {
	if nt.entries == nil {
		nt.Init()
	}

	if existing, ok := nt.entries[id]; ok {
		existing.RSSI = rssi
		existing.LastSeenMs = nowMs
		if loc != nil {
			existing.HasLocation = true
			existing.Location = *loc
		}
		return true
	}

	if len(nt.entries) >= MaxNeighbors {
		return false
	}

	entry := &NeighborEntry{
		ID:          id,
		RSSI:        rssi,
		LastSeenMs:  nowMs,
		FirstSeenMs: nowMs,
		IsDirect:    directPhase,
	}
	if loc != nil {
		entry.HasLocation = true
		entry.Location = *loc
	}
	nt.entries[id] = entry
	return true
}

// Get returns the entry for id, if known.
func (nt *NeighborTable) Get(id uint32) (NeighborEntry, bool) {
	e, ok := nt.entries[id]
	if !ok {
		return NeighborEntry{}, false
	}
	return *e, true
}

// Len returns the number of tracked neighbors.
func (nt *NeighborTable) Len() int {
	return len(nt.entries)
}

// CleanOld evicts entries not heard from within timeoutMs of nowMs.
func (nt *NeighborTable) CleanOld(nowMs uint64, timeoutMs uint64) {
	for id, e := range nt.entries {
		if nowMs-e.LastSeenMs > timeoutMs {
			delete(nt.entries, id)
		}
	}
}

// DirectCount returns the number of neighbors marked as directly
// observed during the discovery window.
func (nt *NeighborTable) DirectCount() int {
	count := 0
	for _, e := range nt.entries {
		if e.IsDirect {
			count++
		}
	}
	return count
}

// Entries returns a snapshot of all tracked neighbors. Iteration order
// is unspecified.
func (nt *NeighborTable) Entries() []NeighborEntry {
	out := make([]NeighborEntry, 0, len(nt.entries))
	for _, e := range nt.entries {
		out = append(out, *e)
	}
	return out
}
