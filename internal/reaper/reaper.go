// Package reaper finds and waits on zombie descendants of this process,
// the container PID-1 responsibility spec.md section 4.3 describes.
// Grounded on original_source's status_update_and_cleanup_zombie_processes:
// gopsutil enumerates and describes processes (it never wraps waitpid), so
// reaping itself drops to a raw, bounded, non-blocking syscall.Wait4 loop.
package reaper

import (
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sourcegraph/log"
)

// waitDeadline bounds how long Reap spends trying to collect one pid's
// exit status via the non-blocking WNOHANG loop before giving up for this
// cycle; the next cycle will try again.
const waitDeadline = 100 * time.Millisecond

// pollInterval is how often the WNOHANG loop re-checks a still-running pid.
const pollInterval = 10 * time.Millisecond

// Snapshot describes one descendant process sampled during a Reap call.
type Snapshot struct {
	PID         int32
	PPID        int32
	Cmdline     string
	Status      string
	CPUPercent  float64
	RSSBytes    uint64
	NumThreads  int32
	NumFDs      int32
	Connections int
	Reaped      bool
}

// Reaper walks the process table for descendants of the daemon's own PID
// and collects their exit status before they accumulate as zombies.
type Reaper struct {
	logger    log.Logger
	selfPID   int32
	ownCmdline []string
}

// New constructs a Reaper. ownCmdline is the daemon's own command line
// (e.g. os.Args), excluded from "still running" telemetry the same way
// original_source skips logging its own main.py invocation.
func New(logger log.Logger, selfPID int32, ownCmdline []string) *Reaper {
	return &Reaper{
		logger:    logger.Scoped("reaper", "zombie process cleanup"),
		selfPID:   selfPID,
		ownCmdline: ownCmdline,
	}
}

// Reap enumerates every process on the system, keeps the ones descended
// from selfPID, and attempts to collect each one's exit status.
// It returns a Snapshot per descendant found, for the status monitor (C8)
// to fold into its periodic log line, except that a still-running process
// whose command line matches ownCmdline is left out.
func (r *Reaper) Reap() []Snapshot {
	procs, err := process.Processes()
	if err != nil {
		r.logger.Warn("failed to enumerate processes", log.Error(err))
		return nil
	}

	descendants := r.descendantPIDs(procs)
	if len(descendants) == 0 {
		return nil
	}

	byPID := make(map[int32]*process.Process, len(procs))
	for _, p := range procs {
		byPID[p.Pid] = p
	}

	snapshots := make([]Snapshot, 0, len(descendants))
	for pid := range descendants {
		p := byPID[pid]
		snap := Snapshot{PID: pid}
		if p != nil {
			r.fillMetadata(&snap, p)
		}
		snap.Reaped = r.waitNonBlocking(pid)
		if snap.Reaped {
			snap.Status = "reaped"
		} else if r.isOwnCmdline(snap.Cmdline) {
			continue
		} else {
			snap.Status = "still running"
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots
}

// descendantPIDs returns the set of PIDs that are transitive children of
// r.selfPID, walking each process's parent chain upward, exactly the
// approach original_source uses (process.parents() membership test)
// since gopsutil has no direct "list my descendants" call.
func (r *Reaper) descendantPIDs(procs []*process.Process) map[int32]struct{} {
	byPID := make(map[int32]*process.Process, len(procs))
	for _, p := range procs {
		byPID[p.Pid] = p
	}

	out := map[int32]struct{}{}
	for _, p := range procs {
		if p.Pid == r.selfPID {
			continue
		}
		if r.isDescendant(p, byPID) {
			out[p.Pid] = struct{}{}
		}
	}
	return out
}

func (r *Reaper) isDescendant(p *process.Process, byPID map[int32]*process.Process) bool {
	seen := map[int32]struct{}{}
	cur := p
	for i := 0; i < len(byPID); i++ { // bound the walk in case of a parent cycle
		ppid, err := cur.Ppid()
		if err != nil || ppid == 0 {
			return false
		}
		if ppid == r.selfPID {
			return true
		}
		if _, loop := seen[ppid]; loop {
			return false
		}
		seen[ppid] = struct{}{}
		next, ok := byPID[ppid]
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

func (r *Reaper) fillMetadata(snap *Snapshot, p *process.Process) {
	if ppid, err := p.Ppid(); err == nil {
		snap.PPID = ppid
	}
	if cmdline, err := p.Cmdline(); err == nil {
		snap.Cmdline = cmdline
	}
	if status, err := p.Status(); err == nil && len(status) > 0 {
		snap.Status = status[0]
	}
	if pct, err := p.CPUPercent(); err == nil {
		snap.CPUPercent = pct
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		snap.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		snap.NumThreads = n
	}
	if fds, err := p.OpenFiles(); err == nil {
		snap.NumFDs = int32(len(fds))
	}
	if conns, err := p.Connections(); err == nil {
		snap.Connections = len(conns)
	}
}

func (r *Reaper) isOwnCmdline(cmdline string) bool {
	if len(r.ownCmdline) == 0 {
		return false
	}
	// gopsutil's Cmdline() space-joins argv, so compare against the same
	// shape rather than a Go slice's bracketed Sprint form.
	return cmdline == strings.Join(r.ownCmdline, " ")
}

// waitNonBlocking repeatedly polls pid with WNOHANG until it reaps the
// child or waitDeadline elapses, returning whether the child was reaped
// this call. A child still executing past the deadline is left for the
// next Reap cycle, matching the spec's "non-blocking, bounded" requirement.
func (r *Reaper) waitNonBlocking(pid int32) bool {
	deadline := time.Now().Add(waitDeadline)
	var status syscall.WaitStatus
	for time.Now().Before(deadline) {
		wpid, err := syscall.Wait4(int(pid), &status, syscall.WNOHANG, nil)
		if err != nil {
			// ECHILD means it's not our direct child (a grandchild,
			// reparented, or already reaped elsewhere) — nothing more we
			// can do for it from this process.
			return false
		}
		if wpid == int(pid) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}
