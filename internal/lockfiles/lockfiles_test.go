package lockfiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_RemovesWellKnownLockRegardlessOfAge(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "gc.pid")
	require.NoError(t, os.WriteFile(lockPath, []byte("12345"), 0o644))

	r := NewRecoverer(logtest.Scoped(t))
	removed := r.Recover(dir)

	assert.True(t, removed)
	_, err := os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRecover_NoLockFilesIsNoop(t *testing.T) {
	dir := t.TempDir()

	r := NewRecoverer(logtest.Scoped(t))
	removed := r.Recover(dir)

	assert.False(t, removed)
}

func TestRecover_WalksForIndexLock(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "svn", "refs", "heads", "feature")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	lockPath := filepath.Join(nested, "index.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte(""), 0o644))

	r := NewRecoverer(logtest.Scoped(t))
	removed := r.Recover(dir)

	assert.True(t, removed)
	_, err := os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRecover_MissingRepoPathIsNotAnError(t *testing.T) {
	r := NewRecoverer(logtest.Scoped(t))
	assert.False(t, r.Recover(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestRecover_EmptyPathIsNoOp(t *testing.T) {
	r := NewRecoverer(logtest.Scoped(t))
	assert.False(t, r.Recover(""))
}
