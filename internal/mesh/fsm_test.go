package mesh_test

import (
	"slices"
	"testing"

	"github.com/brightswarm/meshcore/internal/mesh"
)

// TestNodeFSMTransitionTable verifies every transition in the node
// state machine against the state diagram documented in fsm.go.
func TestNodeFSMTransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		state       mesh.NodeState
		event       mesh.NodeEvent
		wantState   mesh.NodeState
		wantChanged bool
		wantActions []mesh.NodeAction
	}{
		{
			name:        "Init + Start -> Discovery",
			state:       mesh.NodeInit,
			event:       mesh.EventStart,
			wantState:   mesh.NodeDiscovery,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionBeginNoisyWindow, mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Discovery + BecomeEdge -> Edge",
			state:       mesh.NodeDiscovery,
			event:       mesh.EventBecomeEdge,
			wantState:   mesh.NodeEdge,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Discovery + BecomeCandidate -> Candidate",
			state:       mesh.NodeDiscovery,
			event:       mesh.EventBecomeCandidate,
			wantState:   mesh.NodeCandidate,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionEmitAnnouncement, mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Edge + BecomeCandidate -> Candidate (relaxed thresholds)",
			state:       mesh.NodeEdge,
			event:       mesh.EventBecomeCandidate,
			wantState:   mesh.NodeCandidate,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionEmitAnnouncement, mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Edge + ClusterheadHeard -> ClusterMember",
			state:       mesh.NodeEdge,
			event:       mesh.EventClusterheadHeard,
			wantState:   mesh.NodeClusterMember,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Candidate + AnnouncementRoundsComplete -> Clusterhead",
			state:       mesh.NodeCandidate,
			event:       mesh.EventAnnouncementRoundsComplete,
			wantState:   mesh.NodeClusterhead,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Candidate + ConflictLost -> Edge",
			state:       mesh.NodeCandidate,
			event:       mesh.EventConflictLost,
			wantState:   mesh.NodeEdge,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionEmitRenouncement, mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "ClusterMember + ClusterheadHeard self-loop",
			state:       mesh.NodeClusterMember,
			event:       mesh.EventClusterheadHeard,
			wantState:   mesh.NodeClusterMember,
			wantChanged: false,
			wantActions: nil,
		},
		{
			name:        "Discovery + Stop -> Init",
			state:       mesh.NodeDiscovery,
			event:       mesh.EventStop,
			wantState:   mesh.NodeInit,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Edge + Stop -> Init",
			state:       mesh.NodeEdge,
			event:       mesh.EventStop,
			wantState:   mesh.NodeInit,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Candidate + Stop -> Init",
			state:       mesh.NodeCandidate,
			event:       mesh.EventStop,
			wantState:   mesh.NodeInit,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "Clusterhead + Stop -> Init",
			state:       mesh.NodeClusterhead,
			event:       mesh.EventStop,
			wantState:   mesh.NodeInit,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionNotifyRoleChanged},
		},
		{
			name:        "ClusterMember + Stop -> Init",
			state:       mesh.NodeClusterMember,
			event:       mesh.EventStop,
			wantState:   mesh.NodeInit,
			wantChanged: true,
			wantActions: []mesh.NodeAction{mesh.ActionNotifyRoleChanged},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := mesh.ApplyNodeEvent(tt.state, tt.event)
			if result.OldState != tt.state {
				t.Errorf("OldState = %v, want %v", result.OldState, tt.state)
			}
			if result.NewState != tt.wantState {
				t.Errorf("NewState = %v, want %v", result.NewState, tt.wantState)
			}
			if result.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", result.Changed, tt.wantChanged)
			}
			if !slices.Equal(result.Actions, tt.wantActions) {
				t.Errorf("Actions = %v, want %v", result.Actions, tt.wantActions)
			}
		})
	}
}

// TestNodeFSMUnknownTransitionsIgnored verifies that event/state
// combinations absent from the table leave the state unchanged and
// report no actions, rather than panicking or guessing a transition.
func TestNodeFSMUnknownTransitionsIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state mesh.NodeState
		event mesh.NodeEvent
	}{
		{"Init ignores BecomeCandidate", mesh.NodeInit, mesh.EventBecomeCandidate},
		{"Init ignores Stop (not yet started)", mesh.NodeInit, mesh.EventStop},
		{"Discovery ignores AnnouncementRoundsComplete", mesh.NodeDiscovery, mesh.EventAnnouncementRoundsComplete},
		{"Clusterhead ignores ConflictLost (re-election out of scope)", mesh.NodeClusterhead, mesh.EventConflictLost},
		{"Candidate ignores ClusterheadHeard", mesh.NodeCandidate, mesh.EventClusterheadHeard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := mesh.ApplyNodeEvent(tt.state, tt.event)
			if result.Changed {
				t.Errorf("Changed = true, want false for unlisted (%v, %v)", tt.state, tt.event)
			}
			if result.NewState != tt.state {
				t.Errorf("NewState = %v, want unchanged %v", result.NewState, tt.state)
			}
			if result.Actions != nil {
				t.Errorf("Actions = %v, want nil", result.Actions)
			}
		})
	}
}

func TestNodeStateString(t *testing.T) {
	t.Parallel()

	tests := map[mesh.NodeState]string{
		mesh.NodeInit:          "Init",
		mesh.NodeDiscovery:     "Discovery",
		mesh.NodeEdge:          "Edge",
		mesh.NodeCandidate:     "Candidate",
		mesh.NodeClusterhead:   "Clusterhead",
		mesh.NodeClusterMember: "ClusterMember",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}

func TestNodeEventString(t *testing.T) {
	t.Parallel()

	tests := map[mesh.NodeEvent]string{
		mesh.EventStart:                     "Start",
		mesh.EventBecomeEdge:                "BecomeEdge",
		mesh.EventBecomeCandidate:           "BecomeCandidate",
		mesh.EventClusterheadHeard:          "ClusterheadHeard",
		mesh.EventAnnouncementRoundsComplete: "AnnouncementRoundsComplete",
		mesh.EventConflictLost:              "ConflictLost",
		mesh.EventStop:                      "Stop",
	}
	for event, want := range tests {
		if got := event.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", event, got, want)
		}
	}
}
