// Package lockfiles recovers a repository left in a locked state by a
// process that died mid-operation, per spec.md section 4.4 and
// original_source's src/utils/lockfiles.py clear_lock_files. Recover is
// only ever invoked after a command has already failed under C6's
// per-repo mutual exclusion, so by the time it runs no live worker can
// still legitimately hold the lock — unlike the teacher's
// cmd/gitserver/server/cleanup.go removeStaleLocks/removeFileOlderThan,
// which age-gates removal because it runs as a periodic GC alongside
// possibly-still-running git processes. That age gate doesn't apply here:
// a lock discovered in this path is always stale, so it's removed
// immediately.
package lockfiles

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/log"
)

// wellKnownPaths are the fixed, relative-to-repo lock files a dead git-svn
// or svn invocation can leave behind.
var wellKnownPaths = []string{
	"gc.pid",
	filepath.Join("svn", "refs", "remotes", "git-svn", "index.lock"),
	filepath.Join("svn", "refs", "remotes", "origin", "trunk", "index.lock"),
	filepath.Join("svn", ".metadata.lock"),
}

// contentPrefixBytes bounds how much of a lock file's content is read for
// logging before it's removed.
const contentPrefixBytes = 256

// Recoverer removes lock files from a repository's local path after a
// command has already failed under per-repo mutual exclusion — at that
// point the lock is always stale, never one a concurrently running
// process could still legitimately hold.
type Recoverer struct {
	logger log.Logger
}

// NewRecoverer constructs a Recoverer.
func NewRecoverer(logger log.Logger) *Recoverer {
	return &Recoverer{logger: logger.Scoped("lockfiles", "stale lock file recovery")}
}

// Recover inspects repoPath's well-known lock paths plus any index.lock
// file found anywhere under it, removing every one found. It returns true
// if at least one lock file was removed, so callers can classify a
// command failure as "failed due to a lock file".
func (r *Recoverer) Recover(repoPath string) bool {
	if repoPath == "" {
		return false
	}

	removedAny := false

	for _, rel := range wellKnownPaths {
		if r.remove(filepath.Join(repoPath, rel)) {
			removedAny = true
		}
	}

	_ = filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort sweep, keep walking
		}
		if d.IsDir() || !strings.HasSuffix(path, "index.lock") {
			return nil
		}
		if r.remove(path) {
			removedAny = true
		}
		return nil
	})

	return removedAny
}

// remove deletes path if it exists, logging a bounded content prefix and
// its age first (for diagnostics only — age no longer gates removal).
func (r *Recoverer) remove(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}

	prefix := readContentPrefix(path)
	r.logger.Warn("removing lock file",
		log.String("path", path),
		log.Duration("age", time.Since(fi.ModTime())),
		log.String("content_prefix", prefix))

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("failed to remove lock file", log.String("path", path), log.Error(err))
		return false
	}
	return true
}

func readContentPrefix(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, contentPrefixBytes)
	n, _ := f.Read(buf)
	return string(buf[:n])
}
