package gitsvn

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sourcegraph/repo-converter-sub000/internal/inventory"
	"github.com/sourcegraph/repo-converter-sub000/internal/runner"
)

const (
	precheckAttempts = 3
	precheckDelay    = 50 * time.Millisecond
)

// precheck re-scans the process table for a still-running git/svn
// subprocess operating on the same local repo path before a Driver starts
// its own. This overlaps with what concurrency.Manager's per-repo mutual
// exclusion already guarantees for jobs admitted through the normal path,
// but original_source independently re-checked the process table at the
// top of every clone/fetch as a second line of defense against an orphaned
// subprocess from a previous, since-forgotten job outliving its own
// bookkeeping; kept here for the same reason.
type precheck struct {
	runner *runner.Runner
}

func newPrecheck(r *runner.Runner) *precheck {
	return &precheck{runner: r}
}

// scan reports whether another process appears to already be operating on
// e.LocalRepoPath, retrying the process-table read a bounded number of
// times since a single gopsutil snapshot can race a process that's mid-exit.
func (p *precheck) scan(ctx context.Context, e inventory.Entry) (bool, string) {
	if e.LocalRepoPath == "" {
		return false, ""
	}
	selfPID := int32(os.Getpid())

	var lastMatch string
	for attempt := 0; attempt < precheckAttempts; attempt++ {
		lastMatch = ""
		procs, err := process.ProcessesWithContext(ctx)
		if err != nil {
			return false, ""
		}
		for _, proc := range procs {
			if proc.Pid == selfPID {
				continue
			}
			cmdline, err := proc.CmdlineWithContext(ctx)
			if err != nil || cmdline == "" {
				continue
			}
			if !strings.Contains(cmdline, e.LocalRepoPath) {
				continue
			}
			if !strings.Contains(cmdline, "git") && !strings.Contains(cmdline, "svn") {
				continue
			}
			lastMatch = cmdline
			break
		}
		if lastMatch == "" {
			return false, ""
		}
		time.Sleep(precheckDelay)
	}

	return true, "repo path already has a running git/svn process: " + lastMatch
}
