// Package partition implements the Partition Orchestrator (spec.md §4.8):
// the per-partition state machine that drives one Session from Initialize
// through Shutdown, serializing every request behind a per-partition
// mutex and fusing the Submit Planner, Agent Fabric Adapter, Topology
// Model, and Topology Engine into the request/reply surface described by
// spec.md §6.
package partition

import (
	"github.com/odcproject/odc/internal/devicechannel"
	"github.com/odcproject/odc/internal/engine"
	"github.com/odcproject/odc/internal/fabric"
	"github.com/odcproject/odc/internal/submit"
	"github.com/odcproject/odc/internal/topology"
)

// State is the Session's position in spec.md §4.8's state machine.
type State string

const (
	StateNone        State = "none"
	StateInitialized State = "Initialized"
	StateSubmitted   State = "Submitted"
	StateActive      State = "Active"
)

// AgentGroupInfo is the Session's per-agent-group expectation, built from
// the cross-joined submit.Param set (spec.md §3's `agentGroupInfo`).
type AgentGroupInfo struct {
	Zone        string
	MinAgents   int
	NumSlots    int
	NumCores    int
	NumAgents   int // total agents requested for this group across all submits
}

// Session is the long-lived per-partition state object. Every field is
// accessed only by the Orchestrator holding its mutex, per spec.md §5's
// shared-resource policy, except where noted.
type Session struct {
	PartitionID string
	SessionID   string
	LastRunNr   int64
	State       State

	TopoFilePath  string
	TopologyIndex *topology.Index

	Zones    map[string]submit.Zone
	NMinInfo map[string]submit.NMinInfo

	AgentGroupInfo map[string]AgentGroupInfo

	// ExpendableTasks and IgnoredTasks are keyed by task ID once a topology
	// is active. PendingIgnoredCollections holds collection *template*
	// names flagged by a failed submit-with-recovery before any topology
	// exists yet. Activate marks a task ignored (and expendable) when its
	// collection ID equals one of these names exactly, which holds only for
	// collections in a single-instance group; replicas of an n > 1 group
	// carry IDs of the form <Name>_<i> and are not matched.
	ExpendableTasks           map[string]bool
	IgnoredTasks              map[string]bool
	PendingIgnoredCollections map[string]bool

	SubmittedParams []submit.Param

	Engine  *engine.Engine
	Channel devicechannel.Channel
	DDSSub  fabric.Subscription

	RunAttempted bool
}

// newSession returns a freshly Initialized Session.
func newSession(partitionID, sessionID string) *Session {
	return &Session{
		PartitionID:               partitionID,
		SessionID:                 sessionID,
		State:                     StateInitialized,
		Zones:                     map[string]submit.Zone{},
		NMinInfo:                  map[string]submit.NMinInfo{},
		AgentGroupInfo:            map[string]AgentGroupInfo{},
		ExpendableTasks:           map[string]bool{},
		IgnoredTasks:              map[string]bool{},
		PendingIgnoredCollections: map[string]bool{},
	}
}
