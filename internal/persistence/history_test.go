package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHistoryLogAppendsLine(t *testing.T) {
	dir := t.TempDir()
	log, err := NewFileHistoryLog(dir)
	require.NoError(t, err)

	require.NoError(t, log.Append("p1", "s1", "Initialize"))
	require.NoError(t, log.Append("p1", "s1", "Shutdown"))

	path := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "p1 s1 Initialize")
	assert.Contains(t, string(data), "p1 s1 Shutdown")
}
