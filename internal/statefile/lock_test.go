package statefile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockThenReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.lock")

	l, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release())

	l2, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquireLockSecondProcessIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.lock")

	l1, err := AcquireLock(path)
	require.NoError(t, err)
	defer l1.Release()

	_, err = AcquireLock(path)
	assert.ErrorIs(t, err, ErrLocked)
}
