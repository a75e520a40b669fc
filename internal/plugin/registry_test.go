package plugin

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on this platform")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestRunnerCapturesStdoutAndExitCode(t *testing.T) {
	r := NewRunner()
	res, err := r.Run(context.Background(), "echo hello; exit 0", nil, time.Second)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "hello")
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunnerNonZeroExitFails(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), "echo oops 1>&2; exit 3", nil, time.Second)
	assert.Error(t, err)
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), "sleep 5", nil, 50*time.Millisecond)
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicateAndUnknown(t *testing.T) {
	script := writeScript(t, "echo '<submit/>'\n")
	reg := NewRegistry(NewRunner())
	require.NoError(t, reg.Register("same", script))
	assert.Error(t, reg.Register("same", script))

	_, err := reg.Exec(context.Background(), "missing", map[string]any{}, "p1", 1)
	assert.Error(t, err)
}

func TestRegistryExecAppendsResAndID(t *testing.T) {
	script := writeScript(t, `echo "$@"`+"\n")
	reg := NewRegistry(NewRunner())
	require.NoError(t, reg.Register("echoer", script))

	res, err := reg.Exec(context.Background(), "echoer", map[string]any{"zone": "online"}, "p1", 7)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "--res")
	assert.Contains(t, res.Stdout, "--id p1")
}
