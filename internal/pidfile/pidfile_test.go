package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.pid")

	require.NoError(t, Write(path, 4242))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.pid")

	_, err := Read(path)
	assert.Error(t, err)
}

func TestRemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.pid")
	require.NoError(t, Write(path, 1))

	require.NoError(t, Remove(path))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	assert.NoError(t, Remove(path))
}

func TestMarkerLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SHUTDOWN")

	assert.False(t, MarkerExists(path))

	require.NoError(t, WriteMarker(path, "total drawdown breached permanent-shutdown threshold"))
	assert.True(t, MarkerExists(path))

	reason, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "total drawdown breached permanent-shutdown threshold", string(reason))

	require.NoError(t, RemoveMarker(path))
	assert.False(t, MarkerExists(path))
}
