package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/odcproject/odc/internal/odcerr"
)

// execTimeout is the fixed per-exec budget spec.md §4.2 specifies.
const execTimeout = 30 * time.Second

// Registry maps a plugin name to its command line. It is a small
// read-mostly dictionary built at startup: runtime lookups take a read
// lock, per spec.md §9's design note.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]string
	runner   *Runner
}

// NewRegistry returns an empty Registry.
func NewRegistry(runner *Runner) *Registry {
	return &Registry{
		commands: make(map[string]string),
		runner:   runner,
	}
}

// Register validates that command's first whitespace-separated token is an
// existing, non-directory file, rewrites it to its canonicalized absolute
// form, and stores it under name. Registering an existing name fails fast.
func (r *Registry) Register(name, command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return odcerr.Newf(odcerr.RuntimeError, "plugin %q already registered", name)
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return odcerr.Newf(odcerr.RuntimeError, "empty command for plugin %q", name)
	}

	bin := fields[0]
	info, err := os.Stat(bin)
	if err != nil {
		return odcerr.Newf(odcerr.RuntimeError, "plugin %q binary %q not found: %v", name, bin, err)
	}
	if info.IsDir() {
		return odcerr.Newf(odcerr.RuntimeError, "plugin %q binary %q is a directory", name, bin)
	}

	abs, err := filepath.Abs(bin)
	if err != nil {
		return odcerr.Newf(odcerr.RuntimeError, "plugin %q: resolving %q: %v", name, bin, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		resolved = abs
	}

	rewritten := append([]string{resolved}, fields[1:]...)
	r.commands[name] = strings.Join(rewritten, " ")
	return nil
}

// Exec appends "--res <json> --id <partitionID>" to the stored command and
// runs it through the Runner with the fixed 30s plugin-exec timeout.
func (r *Registry) Exec(ctx context.Context, name string, resources any, partitionID string, runNr int64) (Result, error) {
	r.mu.RLock()
	command, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, odcerr.Newf(odcerr.ResourcePluginFailed, "unknown plugin %q", name)
	}

	resJSON, err := json.Marshal(resources)
	if err != nil {
		return Result{}, odcerr.Newf(odcerr.ResourcePluginFailed, "marshaling resources for plugin %q: %v", name, err)
	}

	full := fmt.Sprintf("%s --res %s --id %s", command, shellQuote(string(resJSON)), partitionID)
	envOverlay := []string{fmt.Sprintf("ODC_RUN_NR=%d", runNr)}
	return r.runner.Run(ctx, full, envOverlay, execTimeout)
}

// shellQuote wraps s in single quotes suitable for "sh -c", escaping any
// embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
