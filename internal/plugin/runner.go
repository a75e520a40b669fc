// Package plugin executes the external resource-plugin binary (spec.md
// §4.1/§4.2): a shell subprocess with an environment overlay and a hard
// wall-clock timeout, whose stdout the Submit Planner later parses.
package plugin

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/odcproject/odc/internal/odcerr"
)

// Result is the outcome of one Runner.Run call.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner spawns a command through a shell with a timeout. It never leaks
// pipes or leaves zombies: Wait is always called exactly once per Start,
// and the child is killed the moment ctx's deadline fires.
type Runner struct{}

// NewRunner returns a Runner. It holds no state; the type exists for
// symmetry with Registry and to leave room for future shared settings
// (concurrency limiter, PATH overlay) without changing call sites.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes command through "sh -c", applying envOverlay on top of the
// current process environment, and enforces timeout as a hard wall clock.
// Any non-zero exit or timeout returns ResourcePluginFailed; the message
// names the exit code or the timeout, and Details carries stderr.
func (r *Runner) Run(ctx context.Context, command string, envOverlay []string, timeout time.Duration) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Env = append(cmd.Environ(), envOverlay...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return res, odcerr.Newf(odcerr.ResourcePluginFailed, "plugin timed out after %s", timeout).
			WithDetails(res.Stderr)
	}
	if err != nil {
		return res, odcerr.Newf(odcerr.ResourcePluginFailed, "plugin exited with code %d", res.ExitCode).
			WithDetails(res.Stderr)
	}
	return res, nil
}
