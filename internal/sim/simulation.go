package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/brightswarm/meshcore/internal/mesh"
)

// simNode pairs one Engine with its pending outbound packets. Packets
// are buffered in Tick's SendFunc callback and flushed through the
// Medium after every node has finished ticking, so concurrent Tick
// calls never race on another node's Receive.
type simNode struct {
	id     uint32
	engine *mesh.Engine
	mu     sync.Mutex
	outbox []mesh.Packet
}

func (n *simNode) send(pkt mesh.Packet, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outbox = append(n.outbox, pkt)
}

func (n *simNode) drain() []mesh.Packet {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.outbox
	n.outbox = nil
	return out
}

// Simulation drives a fixed set of mesh.Engine instances sharing one
// Medium. Each Step advances every node's clock by one slot concurrently
// (an errgroup.Group per step, bounded by the node count) and then
// serially fans out whatever each node sent during that step.
type Simulation struct {
	medium *Medium
	nodes  []*simNode
	byID   map[uint32]*simNode
	logFn  mesh.LogFunc
}

// NewSimulation creates an empty Simulation backed by medium. logFn may
// be nil; if set, it receives every node's log callback invocations,
// letting the caller route engine diagnostics through its own logger.
func NewSimulation(medium *Medium, logFn mesh.LogFunc) *Simulation {
	return &Simulation{
		medium: medium,
		byID:   make(map[uint32]*simNode),
		logFn:  logFn,
	}
}

// AddNode creates and initializes a new Engine for cfg.NodeID, places it
// at pos in the shared Medium, and wires its SendCB to this Simulation's
// per-step outbox and log function, keeping the caller's UserContext.
// Returns the initialized Engine so the caller can seed its RNG or attach
// GPS before Start.
func (s *Simulation) AddNode(pos NodePosition, cfg mesh.Config) (*mesh.Engine, error) {
	if _, exists := s.byID[cfg.NodeID]; exists {
		return nil, fmt.Errorf("sim: node %d already added", cfg.NodeID)
	}

	n := &simNode{id: cfg.NodeID}
	cfg.SendCB = mesh.LogSendPair{
		Send:        n.send,
		Log:         s.logFn,
		UserContext: cfg.SendCB.UserContext,
	}

	var e mesh.Engine
	if err := e.Init(cfg); err != nil {
		return nil, fmt.Errorf("sim: init node %d: %w", cfg.NodeID, err)
	}
	n.engine = &e

	s.medium.SetPosition(cfg.NodeID, pos)
	s.nodes = append(s.nodes, n)
	s.byID[cfg.NodeID] = n

	sort.Slice(s.nodes, func(i, j int) bool { return s.nodes[i].id < s.nodes[j].id })

	return &e, nil
}

// Start calls Engine.Start on every node.
func (s *Simulation) Start() error {
	for _, n := range s.nodes {
		if err := n.engine.Start(); err != nil {
			return fmt.Errorf("sim: start node %d: %w", n.id, err)
		}
	}
	return nil
}

// Step advances every node's clock by one tick at nowMs, then delivers
// every packet any node sent during that tick to its neighbors through
// the Medium. Tick execution is fanned out across an errgroup.Group so a
// large node count is not bottlenecked on a single goroutine; delivery
// is serialized afterward since Receive mutates receiver state.
func (s *Simulation) Step(ctx context.Context, nowMs uint64) error {
	g, _ := errgroup.WithContext(ctx)

	for _, n := range s.nodes {
		n := n
		g.Go(func() error {
			if err := n.engine.Tick(nowMs); err != nil {
				return fmt.Errorf("sim: tick node %d: %w", n.id, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, n := range s.nodes {
		outgoing := n.drain()
		for _, pkt := range outgoing {
			s.medium.Deliver(n.id, pkt, nowMs, func(receiverID uint32, pkt mesh.Packet, rssi int8, nowMs uint64) {
				recv, ok := s.byID[receiverID]
				if !ok {
					return
				}
				_, _ = recv.engine.Receive(pkt, rssi, nowMs)
			})
		}
	}

	return nil
}

// Snapshots returns every node's current NodeSnapshot, ordered by
// node ID, for reporting.
func (s *Simulation) Snapshots() []mesh.NodeSnapshot {
	out := make([]mesh.NodeSnapshot, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.engine.Node())
	}
	return out
}

// Stats returns every node's StatsSnapshot keyed by node ID.
func (s *Simulation) Stats() map[uint32]mesh.StatsSnapshot {
	out := make(map[uint32]mesh.StatsSnapshot, len(s.nodes))
	for _, n := range s.nodes {
		out[n.id] = n.engine.Stats()
	}
	return out
}
