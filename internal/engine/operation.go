package engine

import (
	"sync"
	"time"
)

// operation is the async object backing every bulk Topology Engine call:
// a remaining-task set, a deadline, an errored flag, and a completion
// handler (spec.md §9's design note). All mutation happens under the
// owning Engine's mutex; done is closed exactly once, by whichever path —
// notification-driven completion, explicit completion report, or
// timeout — empties remaining first.
type operation struct {
	kind        string
	remaining   map[string]struct{}
	errored     bool
	failedTasks []string
	timer       *time.Timer
	done        chan struct{}
	closeOnce   sync.Once
}

func newOperation(kind string, taskIDs []string, timeout time.Duration, onTimeout func()) *operation {
	remaining := make(map[string]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		remaining[id] = struct{}{}
	}
	op := &operation{
		kind:      kind,
		remaining: remaining,
		done:      make(chan struct{}),
	}
	op.timer = time.AfterFunc(timeout, onTimeout)
	return op
}

// empty reports whether every task has left the remaining set.
func (op *operation) empty() bool {
	return len(op.remaining) == 0
}

// removeSuccess drops taskID from remaining because it reached the
// operation's success state.
func (op *operation) removeSuccess(taskID string) {
	delete(op.remaining, taskID)
}

// removeError drops taskID from remaining and, unless expendable, marks
// the operation errored and records the failure.
func (op *operation) removeError(taskID string, expendable bool) {
	delete(op.remaining, taskID)
	if !expendable {
		op.errored = true
		op.failedTasks = append(op.failedTasks, taskID)
	}
}

// ignore drops taskID from remaining without affecting the errored flag
// (spec.md §4.7's "Ignore" step).
func (op *operation) ignore(taskID string) {
	delete(op.remaining, taskID)
}

// finish stops the timer and closes done exactly once. Safe to call from
// any of the three completion paths.
func (op *operation) finish() {
	op.closeOnce.Do(func() {
		op.timer.Stop()
		close(op.done)
	})
}

// timeoutFailRemaining marks every still-remaining task as failed (it is
// reported, not silently dropped, even if some of those tasks are
// expendable — a timeout is a budget failure of the operation itself, not
// a per-device loss) and finishes the operation.
func (op *operation) timeoutFailRemaining() {
	for id := range op.remaining {
		op.failedTasks = append(op.failedTasks, id)
	}
	op.remaining = map[string]struct{}{}
	op.errored = true
	op.finish()
}
