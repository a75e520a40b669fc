package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/odcproject/odc/internal/devicechannel"
	"github.com/odcproject/odc/internal/odcerr"
)

// Engine owns the mutable device table and the currently in-flight bulk
// operation for one activation. A single mutex protects both, matching
// spec.md §9's design note: notification handlers do
// "lock → update → maybe-complete-op → unlock".
type Engine struct {
	mu        sync.Mutex
	channel   devicechannel.Channel
	sub       devicechannel.Subscription
	devices   map[string]*DeviceStatus
	currentOp *operation
	opMeta    opMeta
	logger    *slog.Logger
}

// opMeta carries the per-operation-kind matching criteria the notification
// handler needs; it lives alongside currentOp since operation itself is
// kind-agnostic bookkeeping.
type opMeta struct {
	successState   string
	matchLastState string // "" means don't care
	notifyDriven   bool
}

// New builds an Engine over the given device rows and subscribes to the
// channel's notification stream.
func New(channel devicechannel.Channel, devices []DeviceStatus, logger *slog.Logger) *Engine {
	e := &Engine{
		channel: channel,
		devices: make(map[string]*DeviceStatus, len(devices)),
		logger:  logger,
	}
	for i := range devices {
		d := devices[i]
		e.devices[d.TaskID] = &d
	}
	e.sub = channel.Subscribe(e.handleNotification)
	return e
}

// Close unsubscribes from the channel.
func (e *Engine) Close() {
	if e.sub != nil {
		e.sub.Unsubscribe()
	}
}

// ReplaceDevices atomically swaps the device table, used by Update
// (spec.md invariant 4: the device set post-operation equals exactly the
// new topology's device set).
func (e *Engine) ReplaceDevices(devices []DeviceStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices = make(map[string]*DeviceStatus, len(devices))
	for i := range devices {
		d := devices[i]
		e.devices[d.TaskID] = &d
	}
}

// Snapshot returns a copy of every device row, for aggregation and
// detailed-state replies.
func (e *Engine) Snapshot() []DeviceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]DeviceStatus, 0, len(e.devices))
	for _, d := range e.devices {
		out = append(out, *d)
	}
	return out
}

// Device returns a copy of one device row.
func (e *Engine) Device(taskID string) (DeviceStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.devices[taskID]
	if !ok {
		return DeviceStatus{}, false
	}
	return *d, true
}

// Ignore marks taskID ignored and, if an operation is in flight, drops it
// from that operation's remaining set without affecting the errored flag
// (spec.md §4.7/§4.8). Ignored is monotonic (invariant 5): re-ignoring is
// a no-op.
func (e *Engine) Ignore(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.devices[taskID]; ok {
		d.Ignored = true
	}
	if e.currentOp != nil {
		if _, in := e.currentOp.remaining[taskID]; in {
			e.currentOp.ignore(taskID)
			e.maybeComplete()
		}
	}
}

// MarkExpendable marks taskID expendable. Expendable is monotonic
// (invariant 5): it only ever expands within one activation.
func (e *Engine) MarkExpendable(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.devices[taskID]; ok {
		d.Expendable = true
	}
}

func (e *Engine) handleNotification(n devicechannel.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.devices[n.TaskID]
	if !ok {
		return
	}
	d.LastState = n.LastState
	d.State = n.State

	if e.currentOp == nil || !e.opMeta.notifyDriven {
		return
	}
	if _, in := e.currentOp.remaining[n.TaskID]; !in {
		return
	}

	switch {
	case n.State == e.opMeta.successState && (e.opMeta.matchLastState == "" || n.LastState == e.opMeta.matchLastState):
		e.currentOp.removeSuccess(n.TaskID)
	case IsTerminalFailure(n.State):
		e.currentOp.removeError(n.TaskID, d.Expendable)
	default:
		// all other updates are ignored for the purposes of this operation
	}
	e.maybeComplete()
}

// maybeComplete finishes currentOp if its remaining set has emptied. Must
// be called with e.mu held.
func (e *Engine) maybeComplete() {
	if e.currentOp != nil && e.currentOp.empty() {
		e.currentOp.finish()
	}
}

// Outcome is the result of one bulk operation.
type Outcome struct {
	FailedTasks []string
	TimedOut    bool
}

// ChangeState issues transition to every task in T not already at its
// target state, honoring pre-filtering, expendable absorption, and
// timeout per spec.md §4.7.
func (e *Engine) ChangeState(ctx context.Context, transition string, T []string, timeout time.Duration) (Outcome, error) {
	target, ok := TransitionTargets()[transition]
	if !ok {
		return Outcome{}, odcerr.Newf(odcerr.DeviceChangeStateInvalidTransition, "unknown transition %q", transition)
	}

	active, errored, failed := e.prefilter(T, target)
	if len(active) == 0 {
		return e.immediateOutcome(errored, failed)
	}

	op := e.startOp("changeState", active, target, "", true, errored, failed, timeout)
	for _, taskID := range active {
		if err := e.channel.ChangeState(ctx, taskID, transition); err != nil {
			e.mu.Lock()
			if d, ok := e.devices[taskID]; ok {
				op.removeError(taskID, d.Expendable)
			} else {
				op.removeError(taskID, false)
			}
			e.maybeComplete()
			e.mu.Unlock()
		}
	}

	return e.await(ctx, op, odcerr.DeviceChangeStateFailed)
}

// WaitForState waits for every task in T to report targetCurrentState
// (optionally gated on targetLastState), issuing no commands itself.
func (e *Engine) WaitForState(ctx context.Context, targetLastState, targetCurrentState string, T []string, timeout time.Duration) (Outcome, error) {
	active, errored, failed := e.prefilterWait(T, targetCurrentState, targetLastState)
	if len(active) == 0 {
		return e.immediateOutcome(errored, failed)
	}
	op := e.startOp("waitForState", active, targetCurrentState, targetLastState, true, errored, failed, timeout)
	return e.await(ctx, op, odcerr.DeviceWaitForStateFailed)
}

// SetProperties sets props on every task in T concurrently.
func (e *Engine) SetProperties(ctx context.Context, T []string, props map[string]string, timeout time.Duration) (Outcome, error) {
	active, errored, failed := e.prefilterPlain(T)
	if len(active) == 0 {
		return e.immediateOutcome(errored, failed)
	}
	op := e.startOp("setProperties", active, "", "", false, errored, failed, timeout)
	for _, taskID := range active {
		go func(taskID string) {
			err := e.channel.SetProperties(ctx, taskID, props)
			e.reportDone(op, taskID, err)
		}(taskID)
	}
	return e.await(ctx, op, odcerr.DeviceSetPropertiesFailed)
}

// GetProperties reads keys from every task in T concurrently.
func (e *Engine) GetProperties(ctx context.Context, T []string, keys []string, timeout time.Duration) (map[string]map[string]string, Outcome, error) {
	active, errored, failed := e.prefilterPlain(T)
	results := make(map[string]map[string]string)
	var resultsMu sync.Mutex
	if len(active) == 0 {
		outcome, err := e.immediateOutcome(errored, failed)
		return results, outcome, err
	}
	op := e.startOp("getProperties", active, "", "", false, errored, failed, timeout)
	for _, taskID := range active {
		go func(taskID string) {
			props, err := e.channel.GetProperties(ctx, taskID, keys)
			if err == nil {
				resultsMu.Lock()
				results[taskID] = props
				resultsMu.Unlock()
			}
			e.reportDone(op, taskID, err)
		}(taskID)
	}
	outcome, err := e.await(ctx, op, odcerr.DeviceGetPropertiesFailed)
	return results, outcome, err
}

// reportDone is the completion path for the non-notification-driven
// operations (setProperties/getProperties): each per-device goroutine
// reports its own outcome directly instead of waiting on a notification.
func (e *Engine) reportDone(op *operation, taskID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, in := op.remaining[taskID]; !in {
		return // already ignored or otherwise removed
	}
	if err != nil {
		d := e.devices[taskID]
		expendable := d != nil && d.Expendable
		op.removeError(taskID, expendable)
	} else {
		op.removeSuccess(taskID)
	}
	if e.currentOp == op {
		e.maybeComplete()
	}
}

func (e *Engine) startOp(kind string, active []string, successState, matchLastState string, notifyDriven bool, errored bool, failed []string, timeout time.Duration) *operation {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := newOperation(kind, active, timeout, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.currentOp == nil {
			return
		}
		e.currentOp.timeoutFailRemaining()
	})
	op.errored = errored
	op.failedTasks = append(op.failedTasks, failed...)

	e.currentOp = op
	e.opMeta = opMeta{successState: successState, matchLastState: matchLastState, notifyDriven: notifyDriven}
	return op
}

// await blocks for op to complete (via notification, reportDone, or its
// own timer) or for ctx to be canceled, then clears currentOp and maps the
// outcome to the operation-kind-specific error.
func (e *Engine) await(ctx context.Context, op *operation, failCode odcerr.Code) (Outcome, error) {
	select {
	case <-op.done:
	case <-ctx.Done():
		e.mu.Lock()
		op.timeoutFailRemaining()
		e.mu.Unlock()
	}

	e.mu.Lock()
	errored := op.errored
	failed := append([]string{}, op.failedTasks...)
	if e.currentOp == op {
		e.currentOp = nil
	}
	e.mu.Unlock()

	if errored {
		if ctx.Err() != nil {
			return Outcome{FailedTasks: failed, TimedOut: true}, odcerr.New(odcerr.OperationTimeout, "bulk operation timed out").WithDetails(joinTasks(failed))
		}
		return Outcome{FailedTasks: failed}, odcerr.New(failCode, "bulk operation failed for one or more tasks").WithDetails(joinTasks(failed))
	}
	return Outcome{FailedTasks: failed}, nil
}

func (e *Engine) immediateOutcome(errored bool, failed []string) (Outcome, error) {
	if errored {
		return Outcome{FailedTasks: failed}, odcerr.New(odcerr.DeviceChangeStateFailed, "operation failed during pre-filtering").WithDetails(joinTasks(failed))
	}
	return Outcome{FailedTasks: failed}, nil
}

// prefilter removes tasks already at target (success) or terminally
// failed (error, unless expendable) before dispatch.
func (e *Engine) prefilter(T []string, target string) (active []string, errored bool, failed []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range T {
		d, ok := e.devices[id]
		if !ok || d.Ignored {
			continue
		}
		switch {
		case d.State == target:
			// already done
		case IsTerminalFailure(d.State):
			if d.Expendable {
				continue
			}
			errored = true
			failed = append(failed, id)
		default:
			active = append(active, id)
		}
	}
	return active, errored, failed
}

func (e *Engine) prefilterWait(T []string, target, matchLastState string) (active []string, errored bool, failed []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range T {
		d, ok := e.devices[id]
		if !ok || d.Ignored {
			continue
		}
		switch {
		case d.State == target && (matchLastState == "" || d.LastState == matchLastState):
			// already satisfied
		case IsTerminalFailure(d.State):
			if d.Expendable {
				continue
			}
			errored = true
			failed = append(failed, id)
		default:
			active = append(active, id)
		}
	}
	return active, errored, failed
}

// prefilterPlain is used by setProperties/getProperties, which have no
// "success state" to already be at — only the terminal-failure /
// expendable / ignored rules apply.
func (e *Engine) prefilterPlain(T []string) (active []string, errored bool, failed []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range T {
		d, ok := e.devices[id]
		if !ok || d.Ignored {
			continue
		}
		if IsTerminalFailure(d.State) {
			if d.Expendable {
				continue
			}
			errored = true
			failed = append(failed, id)
			continue
		}
		active = append(active, id)
	}
	return active, errored, failed
}

func joinTasks(tasks []string) string {
	out := ""
	for i, t := range tasks {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
