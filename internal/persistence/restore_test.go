package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRestoreStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileRestoreStore(dir)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	entries := []RestoreEntry{{PartitionID: "p1", SessionID: "s1"}, {PartitionID: "p2", SessionID: "s2"}}
	require.NoError(t, store.Save(entries))

	loaded, err = store.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, entries, loaded)
}

func TestFileRestoreStoreOverwritesPreviousSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileRestoreStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save([]RestoreEntry{{PartitionID: "p1", SessionID: "s1"}}))
	require.NoError(t, store.Save([]RestoreEntry{{PartitionID: "p2", SessionID: "s2"}}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []RestoreEntry{{PartitionID: "p2", SessionID: "s2"}}, loaded)
}
