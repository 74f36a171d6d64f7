package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SecondCallFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskmaster.lock")

	l1, err := Acquire(path)
	require.NoError(t, err)
	defer l1.Release()

	_, err = Acquire(path)
	assert.Error(t, err)
}

func TestRelease_RemovesFileAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskmaster.lock")

	l, err := Acquire(path)
	require.NoError(t, err)

	require.NoError(t, l.Release())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	assert.NoError(t, l.Release())
}

func TestRelease_NilLockIsNoop(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}

func TestAcquire_AgainAfterReleaseSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskmaster.lock")

	l1, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	l2, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
