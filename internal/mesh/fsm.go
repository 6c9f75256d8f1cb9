package mesh

// This file implements the node state machine as a pure function over a
// transition table -- no side effects, no Engine dependency. This keeps
// it trivially testable and auditable against the state diagram
// independently of the scheduling and metrics code that decides which
// event to fire.
//
// State diagram:
//
//                    start
//           INIT ------------> DISCOVERY
//                                 |    \
//                 becomeEdge      |     \ becomeCandidate
//                                 v      v
//                               EDGE -> CANDIDATE
//                                 |  ^      |   \
//                   clusterhead   |  |      |    \ roundsComplete
//                   heard         |  +------+     v
//                                 v conflictLost  CLUSTERHEAD
//                          CLUSTER_MEMBER
//
// A clusterhead does not re-enter the election process; no transition
// leaves CLUSTERHEAD except Stop.

// NodeState is one of the six states a node can occupy.
type NodeState uint8

const (
	// NodeInit is the state before the engine has been started.
	NodeInit NodeState = iota

	// NodeDiscovery runs the noisy broadcast window, sampling RSSI and
	// neighbors before the node commits to a role.
	NodeDiscovery

	// NodeEdge is a node that did not qualify for candidacy after
	// discovery; it still forwards traffic but never contests an
	// election.
	NodeEdge

	// NodeCandidate is actively contesting to become a clusterhead.
	NodeCandidate

	// NodeClusterhead has won its local election and announces itself
	// as the cluster's coordinator.
	NodeClusterhead

	// NodeClusterMember has accepted another node's clusterhead
	// announcement.
	NodeClusterMember
)

// String returns the human-readable name of the state.
func (s NodeState) String() string {
	switch s {
	case NodeInit:
		return "Init"
	case NodeDiscovery:
		return "Discovery"
	case NodeEdge:
		return "Edge"
	case NodeCandidate:
		return "Candidate"
	case NodeClusterhead:
		return "Clusterhead"
	case NodeClusterMember:
		return "ClusterMember"
	default:
		return "Unknown"
	}
}

// NodeEvent represents an input to the node state machine. Gate
// evaluation (should_become_edge, should_become_candidate, conflict
// resolution, round counting) happens in the engine and election code;
// the FSM only reacts to the resulting discrete event.
type NodeEvent uint8

const (
	// EventStart begins discovery after the engine is started.
	EventStart NodeEvent = iota

	// EventBecomeEdge fires once the noisy window closes and
	// should_become_edge evaluates true.
	EventBecomeEdge

	// EventBecomeCandidate fires once the candidacy gate evaluates
	// true, from either Discovery or Edge.
	EventBecomeCandidate

	// EventClusterheadHeard fires when a valid clusterhead announcement
	// is received.
	EventClusterheadHeard

	// EventAnnouncementRoundsComplete fires after a candidate completes
	// three announcement rounds without losing a conflict.
	EventAnnouncementRoundsComplete

	// EventConflictLost fires when a candidate loses an election
	// conflict to another candidate.
	EventConflictLost

	// EventStop returns the node to Init on engine Stop.
	EventStop
)

// String returns the human-readable name of the event.
func (e NodeEvent) String() string {
	switch e {
	case EventStart:
		return "Start"
	case EventBecomeEdge:
		return "BecomeEdge"
	case EventBecomeCandidate:
		return "BecomeCandidate"
	case EventClusterheadHeard:
		return "ClusterheadHeard"
	case EventAnnouncementRoundsComplete:
		return "AnnouncementRoundsComplete"
	case EventConflictLost:
		return "ConflictLost"
	case EventStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// NodeAction represents a side-effect the engine must execute after a
// transition. Actions are returned as part of NodeFSMResult and carried
// out by the caller; the FSM itself has none.
type NodeAction uint8

const (
	// ActionBeginNoisyWindow starts the noisy-broadcast RSSI sampling
	// window.
	ActionBeginNoisyWindow NodeAction = iota + 1

	// ActionEmitAnnouncement triggers an election announcement
	// broadcast.
	ActionEmitAnnouncement

	// ActionEmitRenouncement schedules a renouncement broadcast.
	ActionEmitRenouncement

	// ActionNotifyRoleChanged signals engine consumers that the node's
	// role changed.
	ActionNotifyRoleChanged
)

// String returns the human-readable name of the action.
func (a NodeAction) String() string {
	switch a {
	case ActionBeginNoisyWindow:
		return "BeginNoisyWindow"
	case ActionEmitAnnouncement:
		return "EmitAnnouncement"
	case ActionEmitRenouncement:
		return "EmitRenouncement"
	case ActionNotifyRoleChanged:
		return "NotifyRoleChanged"
	default:
		return "Unknown"
	}
}

// nodeStateEvent is the FSM transition table key: current state +
// incoming event.
type nodeStateEvent struct {
	state NodeState
	event NodeEvent
}

// nodeTransition describes the target state and side-effects for a
// single FSM transition.
type nodeTransition struct {
	newState NodeState
	actions  []NodeAction
}

// NodeFSMResult holds the outcome of applying an event to the node
// state machine.
type NodeFSMResult struct {
	// OldState is the state before the event was applied.
	OldState NodeState

	// NewState is the state after the event was applied. Equal to
	// OldState when the event is ignored in this state.
	NewState NodeState

	// Actions lists the side-effects the caller must execute. Empty
	// when the event is ignored.
	Actions []NodeAction

	// Changed is true when NewState differs from OldState.
	Changed bool
}

// nodeFSMTable is the complete node state transition table. Every
// (state, event) pair listed here is a valid transition; unlisted
// pairs are silently ignored.
//
//nolint:gochecknoglobals // FSM transition table is intentionally package-level.
var nodeFSMTable = map[nodeStateEvent]nodeTransition{
	// Init + Start -> Discovery: the engine opens the noisy-broadcast
	// RSSI sampling window.
	{NodeInit, EventStart}: {
		newState: NodeDiscovery,
		actions:  []NodeAction{ActionBeginNoisyWindow, ActionNotifyRoleChanged},
	},

	// Discovery + BecomeEdge -> Edge: the noisy window closed and the
	// node did not qualify for candidacy (too few direct neighbors, or
	// too weak a mean RSSI).
	{NodeDiscovery, EventBecomeEdge}: {
		newState: NodeEdge,
		actions:  []NodeAction{ActionNotifyRoleChanged},
	},

	// Discovery + BecomeCandidate -> Candidate: the candidacy gate
	// passed immediately after discovery.
	{NodeDiscovery, EventBecomeCandidate}: {
		newState: NodeCandidate,
		actions:  []NodeAction{ActionEmitAnnouncement, ActionNotifyRoleChanged},
	},

	// Edge + BecomeCandidate -> Candidate: the candidacy gate passed
	// under relaxed thresholds after spending time as an edge node.
	{NodeEdge, EventBecomeCandidate}: {
		newState: NodeCandidate,
		actions:  []NodeAction{ActionEmitAnnouncement, ActionNotifyRoleChanged},
	},

	// Edge + ClusterheadHeard -> ClusterMember: a valid clusterhead
	// announcement was heard while idle at the edge.
	{NodeEdge, EventClusterheadHeard}: {
		newState: NodeClusterMember,
		actions:  []NodeAction{ActionNotifyRoleChanged},
	},

	// Candidate + AnnouncementRoundsComplete -> Clusterhead: the
	// candidate completed three announcement rounds without losing a
	// conflict.
	{NodeCandidate, EventAnnouncementRoundsComplete}: {
		newState: NodeClusterhead,
		actions:  []NodeAction{ActionNotifyRoleChanged},
	},

	// Candidate + ConflictLost -> Edge: another candidate won the
	// conflict; this node demotes and the engine schedules a
	// renouncement broadcast.
	{NodeCandidate, EventConflictLost}: {
		newState: NodeEdge,
		actions:  []NodeAction{ActionEmitRenouncement, ActionNotifyRoleChanged},
	},

	// ClusterMember + ClusterheadHeard -> ClusterMember: refreshes the
	// binding to (possibly a different) clusterhead; self-loop.
	{NodeClusterMember, EventClusterheadHeard}: {
		newState: NodeClusterMember,
		actions:  nil,
	},

	// Any operational state + Stop -> Init.
	{NodeDiscovery, EventStop}:     {newState: NodeInit, actions: []NodeAction{ActionNotifyRoleChanged}},
	{NodeEdge, EventStop}:          {newState: NodeInit, actions: []NodeAction{ActionNotifyRoleChanged}},
	{NodeCandidate, EventStop}:     {newState: NodeInit, actions: []NodeAction{ActionNotifyRoleChanged}},
	{NodeClusterhead, EventStop}:   {newState: NodeInit, actions: []NodeAction{ActionNotifyRoleChanged}},
	{NodeClusterMember, EventStop}: {newState: NodeInit, actions: []NodeAction{ActionNotifyRoleChanged}},
}

// ApplyNodeEvent applies event to currentState using the transition
// table, returning the resulting state and any actions the caller must
// execute. An event with no table entry for the current state is
// ignored: the returned state is unchanged and Changed is false.
func ApplyNodeEvent(currentState NodeState, event NodeEvent) NodeFSMResult {
	key := nodeStateEvent{state: currentState, event: event}

	tr, ok := nodeFSMTable[key]
	if !ok {
		return NodeFSMResult{
			OldState: currentState,
			NewState: currentState,
			Actions:  nil,
			Changed:  false,
		}
	}

	return NodeFSMResult{
		OldState: currentState,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  currentState != tr.newState,
	}
}
