package gitsvn

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/sourcegraph/repo-converter-sub000/internal/inventory"
	"github.com/sourcegraph/repo-converter-sub000/internal/runner"
)

var revisionAttr = regexp.MustCompile(`revision="(\d+)"`)

const defaultFetchBatchSize = 100

// computeBatchRange determines the [start, end] SVN revision range the next
// `git svn fetch` should cover, by asking the remote (via `svn log --xml`)
// for up to FetchBatchSize revisions starting just after whatever batch-end
// revision was last persisted, ported from original_source's
// clone_svn_repo batch-range computation in src/source_repo/svn.py. A
// freshly created repo (or one with no persisted batch-end revision) starts
// the query at revision 1. A failed `svn log` or an empty revision list
// returns an error so the caller skips the fetch for this cycle rather than
// guessing a range.
func (d *Driver) computeBatchRange(ctx context.Context, e inventory.Entry, state repoState) (int, int, error) {
	start := 1
	if state == stateUpdate {
		if persisted, ok := d.getBatchEndRevision(ctx, e); ok && persisted > 0 {
			start = persisted + 1
		}
	}

	limit := e.FetchBatchSize
	if limit <= 0 {
		limit = defaultFetchBatchSize
	}

	args := []string{"svn", "log", "--xml", "--with-no-revprops", "--non-interactive",
		"--limit", strconv.Itoa(limit), "--revision", strconv.Itoa(start) + ":HEAD", e.RemoteCodeRootURL}
	args = appendCredentialArgs(args, e)

	res, err := d.runner.Run(ctx, args, runner.Options{Name: "svn-log"})
	if err != nil {
		return 0, 0, err
	}
	if !res.Success {
		return 0, 0, errors.New("svn log failed")
	}

	revisions := parseRevisions(res.Output)
	if len(revisions) == 0 {
		return 0, 0, errors.New("no new revisions reported by svn log")
	}

	first, last := revisions[0], revisions[0]
	for _, r := range revisions {
		if r < first {
			first = r
		}
		if r > last {
			last = r
		}
	}
	return first, last, nil
}

func parseRevisions(lines []string) []int {
	var out []int
	for _, line := range lines {
		for _, m := range revisionAttr.FindAllStringSubmatch(line, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			out = append(out, n)
		}
	}
	return out
}
