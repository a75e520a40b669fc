package partition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odcproject/odc/internal/devicechannel"
	"github.com/odcproject/odc/internal/engine"
	"github.com/odcproject/odc/internal/fabric"
	"github.com/odcproject/odc/internal/odcerr"
	"github.com/odcproject/odc/internal/plugin"
	"github.com/odcproject/odc/internal/requestapi"
	"github.com/odcproject/odc/internal/submit"
	"github.com/odcproject/odc/internal/topology"
)

// Orchestrator is one instance per live Session (spec.md §4.8). It holds
// mu across the entire duration of each exec* call, so concurrent requests
// for the same partition queue in arrival order and every suspension point
// inside an exec* call (agent-fabric RPCs, bulk Topology Engine waits)
// runs under this single lock, exactly as spec.md §5 describes.
type Orchestrator struct {
	mu sync.Mutex

	// taskDoneMu serializes handleTaskDone against itself (concurrent
	// task-done events writing the same Session's IgnoredTasks bookkeeping)
	// without serializing it against mu, so a collection-ignore can reach
	// Engine.Ignore — and so release a suspended bulk operation — while an
	// exec* call is still holding mu across that very operation's wait.
	taskDoneMu sync.Mutex

	partitionID string
	session     *Session

	adapter    fabric.Adapter
	newChannel func() devicechannel.Channel
	planner    *submit.Planner
	plugins    *plugin.Registry

	zones    map[string]submit.Zone
	nMinInfo map[string]submit.NMinInfo

	defaultTimeout   time.Duration
	agentWaitTimeout time.Duration

	logger *slog.Logger
}

// NewOrchestrator builds an Orchestrator for one partition. No Session
// exists yet; one is created lazily by Initialize or Run.
func NewOrchestrator(
	partitionID string,
	adapter fabric.Adapter,
	newChannel func() devicechannel.Channel,
	plugins *plugin.Registry,
	zones map[string]submit.Zone,
	nMinInfo map[string]submit.NMinInfo,
	defaultTimeout, agentWaitTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		partitionID:      partitionID,
		adapter:          adapter,
		newChannel:       newChannel,
		planner:          submit.NewPlanner(),
		plugins:          plugins,
		zones:            zones,
		nMinInfo:         nMinInfo,
		defaultTimeout:   defaultTimeout,
		agentWaitTimeout: agentWaitTimeout,
		logger:           logger,
	}
}

// State reports the live Session's state, or StateNone if none exists.
// Safe to call without holding mu's caller-visible guarantees since it
// takes the lock itself.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return StateNone
	}
	return o.session.State
}

// SessionID returns the live Session's ID, or "" if none exists.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return ""
	}
	return o.session.SessionID
}

func (o *Orchestrator) budget(p requestapi.CommonParams) time.Duration {
	return requestapi.Budget(p.Timeout, o.defaultTimeout)
}

func (o *Orchestrator) invalidTransition(p requestapi.CommonParams, timer requestapi.Timer, from State, op string) requestapi.Reply {
	sessionID := ""
	if o.session != nil {
		sessionID = o.session.SessionID
	}
	r := requestapi.NewReply(p, sessionID, timer)
	return requestapi.Fail(r, odcerr.Newf(odcerr.RequestNotSupported, "%s not valid from state %q", op, from))
}

// ExecInitialize creates a Session, optionally adopting an external
// sessionID. Valid only from StateNone.
func (o *Orchestrator) ExecInitialize(ctx context.Context, p requestapi.CommonParams, adoptSessionID string) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initializeLocked(ctx, p, adoptSessionID)
}

func (o *Orchestrator) initializeLocked(ctx context.Context, p requestapi.CommonParams, adoptSessionID string) requestapi.Reply {
	timer := requestapi.NewTimer()

	if o.session != nil {
		return o.invalidTransition(p, timer, o.session.State, "Initialize")
	}

	sessionID := adoptSessionID
	if sessionID == "" {
		budget, err := requestapi.Remaining(timer, o.budget(p))
		if err != nil {
			return requestapi.Fail(requestapi.NewReply(p, "", timer), err)
		}
		createCtx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()
		sid, err := o.adapter.CreateSession(createCtx)
		if err != nil {
			return requestapi.Fail(requestapi.NewReply(p, "", timer), err)
		}
		sessionID = sid
	} else {
		budget, err := requestapi.Remaining(timer, o.budget(p))
		if err != nil {
			return requestapi.Fail(requestapi.NewReply(p, "", timer), err)
		}
		attachCtx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()
		if err := o.adapter.AttachSession(attachCtx, sessionID); err != nil {
			return requestapi.Fail(requestapi.NewReply(p, "", timer), err)
		}
	}

	o.session = newSession(o.partitionID, sessionID)
	o.session.Zones = cloneZones(o.zones)
	o.session.NMinInfo = cloneNMinInfo(o.nMinInfo)

	r := requestapi.NewReply(p, sessionID, timer)
	r.AggregatedState = engine.Undefined
	return requestapi.Ok(r, "session initialized")
}

// ExecSubmit runs the resource plugin, cross-joins its output with the
// Session's zones/nMinInfo, submits the resulting Params to the agent
// fabric, and runs submit-with-recovery. Restartable: may be called
// multiple times while Submitted, accumulating Params.
func (o *Orchestrator) ExecSubmit(ctx context.Context, p requestapi.CommonParams, pluginName string, resources any) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submitLocked(ctx, p, pluginName, resources)
}

func (o *Orchestrator) submitLocked(ctx context.Context, p requestapi.CommonParams, pluginName string, resources any) requestapi.Reply {
	timer := requestapi.NewTimer()

	if o.session == nil || (o.session.State != StateInitialized && o.session.State != StateSubmitted) {
		from := StateNone
		if o.session != nil {
			from = o.session.State
		}
		return o.invalidTransition(p, timer, from, "Submit")
	}
	s := o.session
	reply := requestapi.NewReply(p, s.SessionID, timer)

	budget, err := requestapi.Remaining(timer, o.budget(p))
	if err != nil {
		return requestapi.Fail(reply, err)
	}
	execCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	result, err := o.plugins.Exec(execCtx, pluginName, resources, p.PartitionID, p.RunNr)
	if err != nil {
		return requestapi.Fail(reply, err)
	}

	raw, err := o.planner.Parse(result.Stdout)
	if err != nil {
		return requestapi.Fail(reply, err)
	}
	params := o.planner.CrossJoin(raw, s.Zones, s.NMinInfo)
	if len(params) == 0 {
		return requestapi.Fail(reply, odcerr.New(odcerr.ResourcePluginFailed, "plugin produced no submission parameters"))
	}
	s.SubmittedParams = append(s.SubmittedParams, params...)
	mergeAgentGroupInfo(s.AgentGroupInfo, params)
	// Submissions are in flight on the agent fabric from this point on,
	// whether or not submit-with-recovery below ultimately succeeds — the
	// Session is Submitted either way, ready for another Submit call.
	s.State = StateSubmitted

	var hosts []string
	totalRequired := 0
	for _, param := range params {
		if err := o.adapter.Submit(execCtx, s.SessionID, fabric.SubmitRequest{
			RMS:           param.RMS,
			Zone:          param.Zone,
			AgentGroup:    param.AgentGroup,
			ConfigFile:    param.ConfigFile,
			EnvFile:       param.EnvFile,
			NCores:        param.NCores,
			NumAgents:     param.NumAgents,
			NumSlots:      param.NumSlots,
			RequiredSlots: param.RequiredSlots,
		}); err != nil {
			return requestapi.Fail(reply, err)
		}
		totalRequired += param.NumAgents * param.NumSlots
	}

	remaining, err := requestapi.Remaining(timer, o.budget(p))
	if err != nil {
		return requestapi.Fail(reply, err)
	}
	waitTimeout := o.agentWaitTimeout
	if remaining < waitTimeout {
		waitTimeout = remaining
	}
	deadline := time.Now().Add(waitTimeout)
	if _, err := o.adapter.WaitForActiveSlots(execCtx, s.SessionID, totalRequired, deadline); err != nil {
		o.logger.Warn("submit wait for active slots fell short", "partition", p.PartitionID, "err", err)
	}

	report, recErr := o.submitWithRecovery(execCtx, s.AgentGroupInfo, buildNMinViews(s))
	if recErr != nil {
		return requestapi.Fail(reply, recErr)
	}
	if len(report.DegradedGroups) > 0 {
		o.logger.Info("submit degraded but acceptable", "partition", p.PartitionID, "groups", report.DegradedGroups)
	}

	info, err := o.adapter.AgentInfo(execCtx, s.SessionID)
	if err == nil {
		seen := map[string]bool{}
		for _, a := range info {
			if a.Active && !seen[a.Host] {
				seen[a.Host] = true
				hosts = append(hosts, a.Host)
			}
		}
	}

	reply.Hosts = hosts
	reply.AggregatedState = engine.Undefined
	return requestapi.Ok(reply, "submit accepted")
}

// ExecActivate parses topoContent into a Topology Model, builds the
// Topology Engine over its devices, activates the topology on the agent
// fabric, and subscribes to task-done events. Valid only once per
// activation (Submitted -> Active); a later topology change goes through
// ExecUpdate.
func (o *Orchestrator) ExecActivate(ctx context.Context, p requestapi.CommonParams, topoContent string, detailed bool) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activateLocked(ctx, p, topoContent, detailed)
}

func (o *Orchestrator) activateLocked(ctx context.Context, p requestapi.CommonParams, topoContent string, detailed bool) requestapi.Reply {
	timer := requestapi.NewTimer()
	if o.session == nil || o.session.State != StateSubmitted {
		from := StateNone
		if o.session != nil {
			from = o.session.State
		}
		return o.invalidTransition(p, timer, from, "Activate")
	}
	s := o.session
	reply := requestapi.NewReply(p, s.SessionID, timer)

	idx, err := topology.Build(topoContent)
	if err != nil {
		return requestapi.Fail(reply, err)
	}

	devices := make([]engine.DeviceStatus, 0, len(idx.Tasks()))
	for _, t := range idx.Tasks() {
		expendable := t.Expendable
		if t.CollectionID != "" && s.PendingIgnoredCollections[t.CollectionID] {
			expendable = true
		}
		devices = append(devices, engine.DeviceStatus{
			TaskID:       t.ID,
			CollectionID: t.CollectionID,
			LastState:    engine.Idle,
			State:        engine.Idle,
			Expendable:   expendable,
			Ignored:      t.CollectionID != "" && s.PendingIgnoredCollections[t.CollectionID],
		})
		if expendable {
			s.ExpendableTasks[t.ID] = true
		}
	}

	budget, err := requestapi.Remaining(timer, o.budget(p))
	if err != nil {
		return requestapi.Fail(reply, err)
	}
	activateCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	if err := o.adapter.ActivateTopology(activateCtx, s.SessionID, topoContent, fabric.Activate); err != nil {
		return requestapi.Fail(reply, err)
	}

	s.TopoFilePath = topoContent
	s.TopologyIndex = idx
	s.Channel = o.newChannel()
	s.Engine = engine.New(s.Channel, devices, o.logger)

	sub, err := o.adapter.SubscribeTaskDone(activateCtx, s.SessionID, func(ev fabric.TaskDoneEvent) {
		o.handleTaskDone(ev)
	})
	if err != nil {
		o.logger.Warn("subscribe task-done failed", "partition", p.PartitionID, "err", err)
	} else {
		s.DDSSub = sub
	}

	s.State = StateActive
	state, detail := s.aggregateStateForPath("*")
	reply.AggregatedState = state
	if detailed {
		reply.Detailed = detail
	}
	return requestapi.Ok(reply, "topology activated")
}

// ExecRun fuses Initialize+Submit+Activate into one request, holding the
// per-partition mutex for the whole fused sequence so no other request for
// this partition can interleave between the three steps.
func (o *Orchestrator) ExecRun(ctx context.Context, p requestapi.CommonParams, adoptSessionID, pluginName string, resources any, topoContent string, detailed bool) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()

	init := o.initializeLocked(ctx, p, adoptSessionID)
	if init.Status != requestapi.StatusOK {
		return init
	}
	sub := o.submitLocked(ctx, p, pluginName, resources)
	if sub.Status != requestapi.StatusOK {
		return sub
	}
	act := o.activateLocked(ctx, p, topoContent, detailed)
	if act.Status == requestapi.StatusOK {
		o.session.RunAttempted = true
		o.session.LastRunNr = p.RunNr
	}
	return act
}

// ExecUpdate replaces the activation atomically (spec.md invariant 4).
func (o *Orchestrator) ExecUpdate(ctx context.Context, p requestapi.CommonParams, topoContent string, detailed bool) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	timer := requestapi.NewTimer()
	if o.session == nil || o.session.State != StateActive {
		from := StateNone
		if o.session != nil {
			from = o.session.State
		}
		return o.invalidTransition(p, timer, from, "Update")
	}
	s := o.session
	reply := requestapi.NewReply(p, s.SessionID, timer)

	idx, err := topology.Build(topoContent)
	if err != nil {
		return requestapi.Fail(reply, err)
	}
	devices := make([]engine.DeviceStatus, 0, len(idx.Tasks()))
	for _, t := range idx.Tasks() {
		devices = append(devices, engine.DeviceStatus{
			TaskID:       t.ID,
			CollectionID: t.CollectionID,
			LastState:    engine.Idle,
			State:        engine.Idle,
			Expendable:   t.Expendable,
		})
	}

	budget, err := requestapi.Remaining(timer, o.budget(p))
	if err != nil {
		return requestapi.Fail(reply, err)
	}
	updCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	if err := o.adapter.ActivateTopology(updCtx, s.SessionID, topoContent, fabric.Update); err != nil {
		return requestapi.Fail(reply, err)
	}

	s.TopoFilePath = topoContent
	s.TopologyIndex = idx
	s.Engine.ReplaceDevices(devices)

	state, detail := s.aggregateStateForPath("*")
	reply.AggregatedState = state
	if detailed {
		reply.Detailed = detail
	}
	return requestapi.Ok(reply, "topology updated")
}

// transitionOp runs a named bulk change-state operation (or composite
// sequence) against pathSelector, only valid in StateActive.
func (o *Orchestrator) transitionOp(ctx context.Context, p requestapi.CommonParams, opName string, transitions []string, pathSelector string, detailed bool) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	timer := requestapi.NewTimer()
	if o.session == nil || o.session.State != StateActive {
		from := StateNone
		if o.session != nil {
			from = o.session.State
		}
		return o.invalidTransition(p, timer, from, opName)
	}
	s := o.session
	reply := requestapi.NewReply(p, s.SessionID, timer)

	T := s.TopologyIndex.Match(pathSelector)
	for _, transition := range transitions {
		budget, err := requestapi.Remaining(timer, o.budget(p))
		if err != nil {
			return requestapi.Fail(reply, err)
		}
		opCtx, cancel := context.WithTimeout(ctx, budget)
		outcome, err := s.Engine.ChangeState(opCtx, transition, T, budget)
		cancel()
		if err != nil {
			reply.FailedTasks = outcome.FailedTasks
			return requestapi.Fail(reply, err)
		}
	}

	state, detail := s.aggregateStateForPath(pathSelector)
	reply.AggregatedState = state
	if detailed {
		reply.Detailed = detail
	}
	return requestapi.Ok(reply, fmt.Sprintf("%s complete", opName))
}

// ExecConfigure runs the InitDevice->CompleteInit->Bind->Connect->InitTask
// composite.
func (o *Orchestrator) ExecConfigure(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	return o.transitionOp(ctx, p, "Configure", engine.Configure(), pathSelector, detailed)
}

// ExecStart runs the Run transition.
func (o *Orchestrator) ExecStart(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	return o.transitionOp(ctx, p, "Start", []string{engine.TransRun}, pathSelector, detailed)
}

// ExecStop runs the Stop transition.
func (o *Orchestrator) ExecStop(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	return o.transitionOp(ctx, p, "Stop", []string{engine.TransStop}, pathSelector, detailed)
}

// ExecReset runs the ResetTask->ResetDevice composite.
func (o *Orchestrator) ExecReset(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	return o.transitionOp(ctx, p, "Reset", engine.Reset(), pathSelector, detailed)
}

// ExecTerminate runs the End transition.
func (o *Orchestrator) ExecTerminate(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	return o.transitionOp(ctx, p, "Terminate", []string{engine.TransEnd}, pathSelector, detailed)
}

// ExecGetState is a pure read: no bulk operation is issued.
func (o *Orchestrator) ExecGetState(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	timer := requestapi.NewTimer()
	if o.session == nil || o.session.State != StateActive {
		from := StateNone
		if o.session != nil {
			from = o.session.State
		}
		return o.invalidTransition(p, timer, from, "GetState")
	}
	s := o.session
	reply := requestapi.NewReply(p, s.SessionID, timer)
	state, detail := s.aggregateStateForPath(pathSelector)
	reply.AggregatedState = state
	if detailed {
		reply.Detailed = detail
	}
	return requestapi.Ok(reply, "state read")
}

// ExecSetProperties issues a bulk setProperties operation.
func (o *Orchestrator) ExecSetProperties(ctx context.Context, p requestapi.CommonParams, pathSelector string, props map[string]string) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	timer := requestapi.NewTimer()
	if o.session == nil || o.session.State != StateActive {
		from := StateNone
		if o.session != nil {
			from = o.session.State
		}
		return o.invalidTransition(p, timer, from, "SetProperties")
	}
	s := o.session
	reply := requestapi.NewReply(p, s.SessionID, timer)

	T := s.TopologyIndex.Match(pathSelector)
	budget, err := requestapi.Remaining(timer, o.budget(p))
	if err != nil {
		return requestapi.Fail(reply, err)
	}
	opCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	outcome, err := s.Engine.SetProperties(opCtx, T, props, budget)
	reply.FailedTasks = outcome.FailedTasks
	if err != nil {
		return requestapi.Fail(reply, err)
	}
	state, _ := s.aggregateStateForPath(pathSelector)
	reply.AggregatedState = state
	return requestapi.Ok(reply, "properties set")
}

// ExecShutdown tears down the agent-fabric session and evicts the Session
// regardless of whether the fabric call succeeds (spec.md §4.4/§5:
// Shutdown always runs to completion).
func (o *Orchestrator) ExecShutdown(ctx context.Context, p requestapi.CommonParams) requestapi.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	timer := requestapi.NewTimer()
	if o.session == nil {
		return o.invalidTransition(p, timer, StateNone, "Shutdown")
	}
	s := o.session
	reply := requestapi.NewReply(p, s.SessionID, timer)

	if s.DDSSub != nil {
		s.DDSSub.Unsubscribe()
	}
	if s.Engine != nil {
		s.Engine.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.adapter.ShutdownSession(shutdownCtx, s.SessionID); err != nil {
		o.logger.Warn("shutdown session failed", "partition", p.PartitionID, "err", err)
	}

	o.session = nil
	reply.AggregatedState = engine.Undefined
	return requestapi.Ok(reply, "session shut down")
}

// handleTaskDone is the Agent Fabric Adapter's task-done callback
// (spec.md §4.8's Activation rules): expendable tasks are ignored
// individually; a non-expendable loss ignores its whole collection; in
// both cases the loss propagates into any in-flight Topology Engine
// operation via Ignore.
//
// This must not hold mu for its duration: mu stays locked across an
// exec* call's entire in-flight bulk wait (transitionOp, ExecSetProperties),
// and Ignore is exactly what lets such a wait return early on a collection
// loss. s.Engine.Ignore takes the Engine's own mutex, so once s is
// snapshotted nothing here needs mu at all.
func (o *Orchestrator) handleTaskDone(ev fabric.TaskDoneEvent) {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()
	if s == nil || s.TopologyIndex == nil || s.Engine == nil {
		return
	}

	o.taskDoneMu.Lock()
	defer o.taskDoneMu.Unlock()

	if d, ok := s.Engine.Device(ev.TaskID); ok && d.Expendable {
		s.Engine.Ignore(ev.TaskID)
		s.IgnoredTasks[ev.TaskID] = true
		return
	}

	collID := s.TopologyIndex.CollectionOf(ev.TaskID)
	if collID == "" {
		s.Engine.Ignore(ev.TaskID)
		s.IgnoredTasks[ev.TaskID] = true
		return
	}
	coll, ok := s.TopologyIndex.Collection(collID)
	if !ok {
		s.Engine.Ignore(ev.TaskID)
		s.IgnoredTasks[ev.TaskID] = true
		return
	}
	for _, id := range coll.TaskIDs {
		s.Engine.Ignore(id)
		s.IgnoredTasks[id] = true
	}
}

func cloneZones(in map[string]submit.Zone) map[string]submit.Zone {
	out := make(map[string]submit.Zone, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneNMinInfo(in map[string]submit.NMinInfo) map[string]submit.NMinInfo {
	out := make(map[string]submit.NMinInfo, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// mergeAgentGroupInfo folds a fresh CrossJoin result into the Session's
// running per-agent-group expectation; NumAgents accumulates across
// repeated Submit calls (spec.md §4.8's restartability guarantee).
func mergeAgentGroupInfo(info map[string]AgentGroupInfo, params []submit.Param) {
	for _, param := range params {
		if param.AgentGroup == "" {
			continue
		}
		entry := info[param.AgentGroup]
		entry.Zone = param.Zone
		entry.NumSlots = param.NumSlots
		entry.NumCores = param.NCores
		if param.MinAgents > entry.MinAgents {
			entry.MinAgents = param.MinAgents
		}
		entry.NumAgents += param.NumAgents
		info[param.AgentGroup] = entry
	}
}

// findAgentGroupForZoneNCores resolves the agent group a given
// (zone, nCores) pair would submit into, from the Session's declared
// zones, falling back to the zone's first group, or to the zone name
// itself when the zone is undeclared or has no groups (the same default
// the Submit Planner applies).
func findAgentGroupForZoneNCores(zones map[string]submit.Zone, zoneName string, ncores int) string {
	z, ok := zones[zoneName]
	if !ok {
		return zoneName
	}
	for _, g := range z.Groups {
		if g.NCores == ncores {
			return g.AgentGroupName
		}
	}
	if len(z.Groups) > 0 {
		return z.Groups[0].AgentGroupName
	}
	return zoneName
}

// buildNMinViews projects the Session's collection-keyed NMinInfo into the
// agent-group-keyed view submitWithRecovery needs.
func buildNMinViews(s *Session) map[string]submitNMinView {
	out := make(map[string]submitNMinView, len(s.NMinInfo))
	for name, info := range s.NMinInfo {
		out[name] = submitNMinView{
			CollectionName: name,
			N:              info.N,
			NMin:           info.NMin,
			Zone:           info.Zone,
			AgentGroup:     findAgentGroupForZoneNCores(s.Zones, info.Zone, info.NCores),
		}
	}
	return out
}
