// Package mesh implements the portable protocol core of a BLE mesh
// discovery and clusterhead-election engine.
//
// A single Engine value runs a deterministic, event-driven state machine
// for one device: it schedules a four-slot discovery cycle, builds and
// forwards discovery/election/renouncement packets, measures radio
// crowding from RSSI samples, decides when to become a clusterhead
// candidate or renounce, enforces cluster capacity via a predicted-
// devices-so-far computation, and resolves conflicts between competing
// candidates.
//
// The package is organized as six tightly composed components driven by
// one orchestrator (Engine):
//
//	packet.go    — wire format, TTL/path operations, PDSF math (component A)
//	timing.go    — stochastic slot scheduler, deterministic RNG (component B)
//	queue.go     — bounded priority queue with dedup cache (component C)
//	forward.go   — TTL gate, picky-forwarding, proximity filter (component D)
//	neighbor.go  — neighbor table (component E)
//	election.go  — RSSI sample ring, connectivity metrics, candidacy score, conflicts (component E)
//	fsm.go       — 6-state node state machine (component F)
//	engine.go    — per-tick orchestration and platform abstraction (component F)
//
// The engine is single-threaded and cooperative: all mutation happens
// inside Tick, Receive, or an explicit setter, and no call ever blocks or
// spawns a goroutine. The host integrator owns wall-clock time and I/O;
// the engine calls out to it only through the narrow SendFunc and
// LogFunc capabilities supplied at Init. There is no metrics callback;
// hosts read counters and node state through Stats and Node.
package mesh
