// Package gitsvn implements the central git-svn conversion state machine
// from spec.md section 4.5, driving `git svn` and `svn` through C2, ported
// from original_source's src/source_repo/svn.py clone_svn_repo and
// src/utils/git.py, in the teacher's VCSSyncer shape
// (cmd/gitserver/server/vcs_syncer_git.go's gitRepoSyncer).
package gitsvn

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/log"

	"github.com/sourcegraph/repo-converter-sub000/internal/inventory"
	"github.com/sourcegraph/repo-converter-sub000/internal/job"
	"github.com/sourcegraph/repo-converter-sub000/internal/runner"
)

// gitConfigNamespace is the git-config key prefix the daemon uses to
// persist its own per-repo progress, matching original_source's
// git_config_namespace = "repo-converter".
const gitConfigNamespace = "repo-converter"

const batchEndRevisionKey = gitConfigNamespace + ".batch-end-revision"

// repoState is the classification computed at the top of Convert.
type repoState string

const (
	stateCreate repoState = "create"
	stateUpdate repoState = "update"
)

// Driver implements convert.Driver for `type: svn` inventory entries.
type Driver struct {
	logger  log.Logger
	runner  *runner.Runner
	precheck *precheck
}

// New constructs a Driver.
func New(logger log.Logger, r *runner.Runner) *Driver {
	return &Driver{
		logger:   logger.Scoped("gitsvn", "git-svn conversion state machine"),
		runner:   r,
		precheck: newPrecheck(r),
	}
}

// Convert runs one cycle's worth of the state machine in spec.md 4.5 for
// the repository named by j.Config.Entry, never returning an error for an
// ordinary conversion failure (those are recorded on j.Result).
func (d *Driver) Convert(ctx context.Context, j *job.Job) error {
	now := time.Now()
	j.MarkStarted(now)

	e := j.Config.Entry
	log_ := d.logger.With(log.String("repo_key", e.RepoKey), log.String("trace", j.Trace))

	if collision, reason := d.precheck.scan(ctx, e); collision {
		log_.Info("skipping due to descendant process collision", log.String("reason", reason))
		j.MarkFinished(time.Now(), false, "skipped", reason)
		return nil
	}

	state, err := d.classifyState(ctx, e)
	if err != nil {
		log_.Warn("failed to classify repo state, assuming create", log.Error(err))
		state = stateCreate
	}

	svnInfo, err := d.validateRemoteWithRetry(ctx, e)
	if err != nil {
		j.MarkFinished(time.Now(), false, "error", err.Error())
		return nil
	}

	lastChangedRev, err := parseLastChangedRev(svnInfo)
	if err != nil {
		j.MarkFinished(time.Now(), false, "error", "could not parse Last Changed Rev from svn info: "+err.Error())
		return nil
	}

	if state == stateUpdate {
		previousEnd, ok := d.getBatchEndRevision(ctx, e)
		if ok && previousEnd == lastChangedRev {
			d.runGC(ctx, e)
			d.cleanupBranchesAndTags(ctx, e)
			j.MarkFinished(time.Now(), true, "up-to-date", "")
			return nil
		}
	}

	if state == stateCreate {
		if err := d.createRepo(ctx, e); err != nil {
			j.MarkFinished(time.Now(), false, "error", "create failed: "+err.Error())
			return nil
		}
	}

	d.applyRepoConfig(ctx, e)

	batchStart, batchEnd, err := d.computeBatchRange(ctx, e, state)
	if err != nil {
		log_.Warn("failed to compute batch range, skipping this cycle", log.Error(err))
		j.MarkFinished(time.Now(), false, "skipped", "batch range computation failed: "+err.Error())
		return nil
	}
	j.Stats.ThisBatchStartRev = batchStart
	j.Stats.ThisBatchEndRev = batchEnd

	if state == stateUpdate {
		dedupeGitConfig(d.logger, gitConfigPath(e))
	}

	fetchResult := d.runFetch(ctx, e, batchStart, batchEnd)

	action, reason, success := "update", "", fetchResult.Success
	if success {
		if batchEnd > 0 {
			d.setBatchEndRevision(ctx, e, batchEnd)
		}
		action, reason = "update", ""
	} else {
		if substr, ok := classifyFetchError(fetchResult.Output); ok {
			reason = substr
		} else {
			reason = "git svn fetch failed"
		}
		action = "error"
	}

	d.validateRepo(ctx, e, log_)
	d.runGC(ctx, e)
	d.cleanupBranchesAndTags(ctx, e)

	j.MarkFinished(time.Now(), success, action, reason)
	return nil
}

func (d *Driver) classifyState(ctx context.Context, e inventory.Entry) (repoState, error) {
	res, err := d.runner.Run(ctx, gitArgs(e, "config", "--get", "svn-remote.svn.url"), runner.Options{Dir: e.LocalRepoPath, Quiet: true, Name: "classify-state"})
	if err != nil {
		return stateCreate, err
	}
	if !res.Success || len(res.Output) == 0 {
		return stateCreate, nil
	}
	remoteURL := strings.TrimSpace(res.Output[0])
	if remoteURL != "" && strings.Contains(e.RemoteCodeRootURL, remoteURL) {
		return stateUpdate, nil
	}
	return stateCreate, nil
}

// validateRemoteWithRetry runs `svn info` against the remote, retrying up
// to three times with randomized exponential backoff on failure, matching
// spec.md 4.5/8's boundary behavior and grounded on
// cenkalti/backoff/v4.NewExponentialBackOff capped via WithMaxRetries —
// the same shape the teacher's cmd/repos/syncer.go uses for its own
// network retries.
func (d *Driver) validateRemoteWithRetry(ctx context.Context, e inventory.Entry) (*runner.Result, error) {
	var last *runner.Result

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	operation := func() error {
		res, err := d.runner.Run(ctx, svnInfoArgs(e), runner.Options{Name: "svn-info"})
		last = res
		if err != nil {
			return backoff.Permanent(err)
		}
		if res.Success {
			return nil
		}
		return errTransient
	}

	if err := backoff.Retry(operation, bo); err != nil && err != errTransient {
		if last == nil {
			return nil, err
		}
	}

	if last == nil || !last.Success {
		return nil, errRemoteUnreachable
	}
	return last, nil
}

func (d *Driver) createRepo(ctx context.Context, e inventory.Entry) error {
	if err := os.MkdirAll(e.LocalRepoPath, 0o755); err != nil {
		return err
	}

	args := gitSvnArgs(e, "init", e.RemoteCodeRootURL)
	if len(e.Trunk) > 0 {
		args = append(args, "--trunk", e.Trunk[0])
	}
	for _, b := range e.Branches {
		args = append(args, "--branches", b)
	}
	for _, t := range e.Tags {
		args = append(args, "--tags", t)
	}
	args = appendCredentialArgs(args, e)

	res, err := d.runner.Run(ctx, args, runner.Options{Dir: e.LocalRepoPath, Password: e.Password, Name: "git-svn-init"})
	if err != nil {
		return err
	}
	if !res.Success {
		return errInitFailed
	}

	if e.BareClone {
		d.runner.Run(ctx, gitArgs(e, "config", "core.bare", "true"), runner.Options{Dir: e.LocalRepoPath, Name: "set-bare"}) //nolint:errcheck
	}

	d.setBatchEndRevision(ctx, e, 0)
	return nil
}

func (d *Driver) applyRepoConfig(ctx context.Context, e inventory.Entry) {
	d.runner.Run(ctx, gitArgs(e, "symbolic-ref", "HEAD", "refs/heads/"+e.GitDefaultBranch), runner.Options{Dir: e.LocalRepoPath, Name: "set-default-branch"}) //nolint:errcheck

	if e.AuthorsFilePath != "" {
		if _, err := os.Stat(e.AuthorsFilePath); err == nil {
			d.runner.Run(ctx, gitArgs(e, "config", "svn.authorsfile", e.AuthorsFilePath), runner.Options{Dir: e.LocalRepoPath, Name: "set-authors-file"}) //nolint:errcheck
		}
	}
	if e.AuthorsProgPath != "" {
		if _, err := os.Stat(e.AuthorsProgPath); err == nil {
			d.runner.Run(ctx, gitArgs(e, "config", "svn.authorsProg", e.AuthorsProgPath), runner.Options{Dir: e.LocalRepoPath, Name: "set-authors-prog"}) //nolint:errcheck
		}
	}
	if e.GitIgnoreFilePath != "" {
		if data, err := os.ReadFile(e.GitIgnoreFilePath); err == nil {
			_ = os.WriteFile(e.LocalRepoPath+"/.gitignore", data, 0o644)
		}
	}
}

func (d *Driver) runFetch(ctx context.Context, e inventory.Entry, start, end int) *runner.Result {
	args := gitSvnArgs(e, "fetch")
	if start > 0 && end > 0 {
		args = append(args, "--revision", strconv.Itoa(start)+":"+strconv.Itoa(end))
	}
	args = appendCredentialArgs(args, e)
	res, _ := d.runner.Run(ctx, args, runner.Options{Dir: e.LocalRepoPath, Password: e.Password, Name: "git-svn-fetch"})
	return res
}

func (d *Driver) validateRepo(ctx context.Context, e inventory.Entry, log_ log.Logger) {
	checks := [][]string{
		gitArgs(e, "status", "--porcelain"),
		gitArgs(e, "rev-parse", "HEAD"),
		gitSvnArgs(e, "info"),
	}
	for _, args := range checks {
		res, err := d.runner.Run(ctx, args, runner.Options{Dir: e.LocalRepoPath, Quiet: true, Name: "validate-repo"})
		if err != nil || !res.Success {
			log_.Warn("post-fetch repo validation check failed", log.String("args", strings.Join(args, " ")))
		}
	}
}

func (d *Driver) runGC(ctx context.Context, e inventory.Entry) {
	d.runner.Run(ctx, gitArgs(e, "gc"), runner.Options{Dir: e.LocalRepoPath, Name: "git-gc"}) //nolint:errcheck
}

func (d *Driver) getBatchEndRevision(ctx context.Context, e inventory.Entry) (int, bool) {
	res, err := d.runner.Run(ctx, gitArgs(e, "config", "--get", batchEndRevisionKey), runner.Options{Dir: e.LocalRepoPath, Quiet: true, Name: "get-batch-end-revision"})
	if err != nil || !res.Success || len(res.Output) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(res.Output[0]))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (d *Driver) setBatchEndRevision(ctx context.Context, e inventory.Entry, rev int) {
	d.runner.Run(ctx, gitArgs(e, "config", "--replace-all", batchEndRevisionKey, strconv.Itoa(rev)), runner.Options{Dir: e.LocalRepoPath, Name: "set-batch-end-revision"}) //nolint:errcheck
}

func gitConfigPath(e inventory.Entry) string {
	return e.LocalRepoPath + "/.git/config"
}

func gitArgs(e inventory.Entry, args ...string) []string {
	return append([]string{"git", "-C", e.LocalRepoPath}, args...)
}

func gitSvnArgs(e inventory.Entry, args ...string) []string {
	return append(gitArgs(e, "svn"), args...)
}

func svnInfoArgs(e inventory.Entry) []string {
	args := []string{"svn", "info", "--non-interactive", e.RemoteCodeRootURL}
	return appendCredentialArgs(args, e)
}

func appendCredentialArgs(args []string, e inventory.Entry) []string {
	if e.Username != "" {
		args = append(args, "--username", e.Username)
	}
	return args
}
