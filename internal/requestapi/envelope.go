// Package requestapi implements the request/reply envelope shared by every
// front-end-facing method on the Controller and Partition Orchestrator: the
// CommonParams every request carries, the Reply every method returns, and
// the Timer-based remaining-budget accounting described in spec.md §5/§9.
//
// The gRPC server and interactive CLI batch runner that would marshal these
// over the wire are deliberately out of scope (spec.md §1); this package is
// the Go method surface they would call.
package requestapi

import (
	"time"

	"github.com/odcproject/odc/internal/odcerr"
)

// CommonParams is the unified request shape spec.md §9 calls for — the
// later CommonParams{partitionID, runNr, timeout} form. The legacy
// partitionID_t / two-CliControlService-shapes variants from
// original_source/ are not replicated.
type CommonParams struct {
	PartitionID string
	RunNr       int64
	Timeout     time.Duration // 0 means "use the controller default"
}

// StatusCode mirrors the reply's top-level outcome.
type StatusCode string

const (
	StatusOK    StatusCode = "ok"
	StatusError StatusCode = "error"
)

// SessionStatus classifies a Session for the Status request.
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionStopped SessionStatus = "stopped"
)

// Reply is the uniform envelope every request method returns.
type Reply struct {
	Status          StatusCode
	Msg             string
	ExecutionTimeMs int64
	Error           *odcerr.Error
	PartitionID     string
	RunNr           int64
	SessionID       string
	AggregatedState string
	Hosts           []string
	Detailed        []DetailedTask
	FailedTasks     []string
}

// DetailedTask is one row of a detailed-state snapshot.
type DetailedTask struct {
	TaskID       string
	Path         string
	CollectionID string
	State        string
	Ignored      bool
	Expendable   bool
}

// NewReply builds the common envelope fields for a given CommonParams and
// elapsed Timer, before the caller fills in the outcome-specific fields.
func NewReply(p CommonParams, sessionID string, timer Timer) Reply {
	return Reply{
		PartitionID:     p.PartitionID,
		RunNr:           p.RunNr,
		SessionID:       sessionID,
		ExecutionTimeMs: timer.Elapsed().Milliseconds(),
	}
}

// Ok finalizes r as a successful reply.
func Ok(r Reply, msg string) Reply {
	r.Status = StatusOK
	r.Msg = msg
	return r
}

// Fail finalizes r as a failed reply, stamping the error's code/details.
func Fail(r Reply, err error) Reply {
	r.Status = StatusError
	e := err
	oe, ok := odcerr.As(e)
	if !ok {
		oe = odcerr.New(odcerr.RuntimeError, e.Error())
	}
	r.Error = oe
	r.Msg = oe.Error()
	return r
}

// Budget resolves the effective request timeout: the request's own value if
// set, otherwise the supplied default.
func Budget(requested, dflt time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return dflt
}

// Remaining computes the budget left for a sub-operation, returning an
// error if it would be <= 0 — sub-operations never contact the network on
// an exhausted budget (spec.md §5).
func Remaining(timer Timer, total time.Duration) (time.Duration, error) {
	r := timer.Remaining(total)
	if r <= 0 {
		return 0, odcerr.New(odcerr.RequestTimeout, "request budget exhausted")
	}
	return r, nil
}
