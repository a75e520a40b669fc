package controller

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odcproject/odc/internal/config"
	"github.com/odcproject/odc/internal/fabric"
	"github.com/odcproject/odc/internal/partition"
	"github.com/odcproject/odc/internal/persistence"
	"github.com/odcproject/odc/internal/plugin"
	"github.com/odcproject/odc/internal/requestapi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestInitializeCreatesOrchestratorLazily(t *testing.T) {
	cfg := config.DefaultConfig()
	c := New(cfg, fabric.NewInMemoryAdapter(), plugin.NewRegistry(plugin.NewRunner()), nil, nil, testLogger())

	p := requestapi.CommonParams{PartitionID: "p1", RunNr: 1, Timeout: 5 * time.Second}
	reply := c.Initialize(context.Background(), p, "")
	require.Equal(t, requestapi.StatusOK, reply.Status)

	status := c.Status(context.Background())
	assert.Equal(t, string(partition.StateInitialized), status["p1"])
	assert.Equal(t, int64(1), c.Stats().Snapshot().Requests)
}

func TestShutdownUnknownPartitionFails(t *testing.T) {
	cfg := config.DefaultConfig()
	c := New(cfg, fabric.NewInMemoryAdapter(), plugin.NewRegistry(plugin.NewRunner()), nil, nil, testLogger())

	reply := c.Shutdown(context.Background(), requestapi.CommonParams{PartitionID: "missing"})
	assert.Equal(t, requestapi.StatusError, reply.Status)
}

func TestRestoreOnStartupReattachesSession(t *testing.T) {
	cfg := config.DefaultConfig()
	adapter := fabric.NewInMemoryAdapter()
	sessionID, err := adapter.CreateSession(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := persistence.NewFileRestoreStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save([]persistence.RestoreEntry{{PartitionID: "p1", SessionID: sessionID}}))

	c := New(cfg, adapter, plugin.NewRegistry(plugin.NewRunner()), store, nil, testLogger())
	c.RestoreOnStartup(context.Background())

	status := c.Status(context.Background())
	assert.Equal(t, string(partition.StateInitialized), status["p1"])
	assert.Equal(t, int64(1), c.Stats().Snapshot().Recoveries)
}

func TestRunThroughControllerPersistsRestoreEntry(t *testing.T) {
	script := writeScript(t, "echo '<submit><rms>localhost</rms><agents>1</agents><slots>12</slots></submit>'\n")
	registry := plugin.NewRegistry(plugin.NewRunner())
	require.NoError(t, registry.Register("same", script))

	cfg := config.DefaultConfig()
	dir := t.TempDir()
	store, err := persistence.NewFileRestoreStore(dir)
	require.NoError(t, err)

	c := New(cfg, fabric.NewInMemoryAdapter(), registry, store, nil, testLogger())

	topo := `<topology><group name="G" n="1"><collection name="Coll">
		<requirement zone="" ncores="0" agentGroup=""/>
		<task name="d0"/><task name="d1"/><task name="d2"/>
	</collection></group></topology>`

	p := requestapi.CommonParams{PartitionID: "p1", RunNr: 1, Timeout: 5 * time.Second}
	reply := c.Run(context.Background(), p, "", "same", map[string]any{}, topo, false)
	require.Equal(t, requestapi.StatusOK, reply.Status, reply.Msg)

	entries, err := store.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "p1", entries[0].PartitionID)
}
