package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, "localhost", cfg.RMS)
	assert.NotNil(t, cfg.Zones)
	assert.NotNil(t, cfg.NMin)
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odc.yaml")
	doc := `
rms: slurm
zones:
  online:
    name: online
    groups:
      - count: 4
        ncores: 2
        agent_group: online
nmin:
  Processors:
    n: 4
    nmin: 2
    zone: online
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "slurm", cfg.RMS)
	assert.Equal(t, "online", cfg.Zones["online"].Groups[0].AgentGroupName)
	assert.Equal(t, 2, cfg.NMin["Processors"].NMin)
}

func TestLoadFileMissingIsNotError(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.RMS)
}
