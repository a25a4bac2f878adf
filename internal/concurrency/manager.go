// Package concurrency admits and tracks conversion jobs against a global
// cap and a per-origin-server cap, plus per-repo mutual exclusion, per
// spec.md section 4.6. Weighting is uniform (1 per job), so a counting
// semaphore suffices — golang.org/x/sync/semaphore.Weighted is the
// teacher's own dependency for exactly this shape of admission control.
package concurrency

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/log"
	"golang.org/x/sync/semaphore"
)

// activeEntry is one (trace, repo_key, started_at) triple tracked per
// server while a job holds both semaphores.
type activeEntry struct {
	Trace     string
	RepoKey   string
	StartedAt time.Time
}

// queuedEntry is one (trace, repo_key, queued_at) triple tracked per
// server while a job is waiting to be admitted.
type queuedEntry struct {
	Trace    string
	RepoKey  string
	QueuedAt time.Time
}

// Manager is the process-wide admission controller described in spec.md
// section 4.6: a global semaphore, one semaphore per origin server, and
// active/queued registries used to detect per-repo collisions and render
// Status snapshots.
type Manager struct {
	logger log.Logger

	globalLimit int64
	global      *semaphore.Weighted

	perServerLimit int64

	semMu    sync.Mutex
	perServer map[string]*semaphore.Weighted

	activeMu sync.Mutex
	active   map[string][]activeEntry

	queuedMu sync.Mutex
	queued   map[string][]queuedEntry
}

// New constructs a Manager with the given MAX_CONCURRENT_CONVERSIONS_GLOBAL
// and MAX_CONCURRENT_CONVERSIONS_PER_SERVER caps.
func New(logger log.Logger, globalLimit, perServerLimit int) *Manager {
	return &Manager{
		logger:         logger.Scoped("concurrency", "job admission control"),
		globalLimit:    int64(globalLimit),
		global:         semaphore.NewWeighted(int64(globalLimit)),
		perServerLimit: int64(perServerLimit),
		perServer:      map[string]*semaphore.Weighted{},
		active:         map[string][]activeEntry{},
		queued:         map[string][]queuedEntry{},
	}
}

// Admission is the outcome of an Acquire call, the subset of job.Result
// the caller (C7) needs to finish populating the job descriptor.
type Admission struct {
	Admitted  bool
	Reason    string
	StartedAt time.Time
}

// Acquire runs the admission algorithm from spec.md section 4.6: reject on
// a same-repo collision, else block on the server semaphore then the
// global semaphore, recording queued/active state around the wait.
func (m *Manager) Acquire(ctx context.Context, serverName, repoKey, trace string) Admission {
	now := time.Now()

	m.activeMu.Lock()
	for _, e := range m.active[serverName] {
		if e.RepoKey == repoKey {
			m.activeMu.Unlock()
			m.logger.Info("repo job already in progress, skipping",
				log.String("server_name", serverName), log.String("repo_key", repoKey))
			return Admission{Admitted: false, Reason: "Repo job already in progress"}
		}
	}
	m.activeMu.Unlock()

	m.queuedMu.Lock()
	m.queued[serverName] = append(m.queued[serverName], queuedEntry{Trace: trace, RepoKey: repoKey, QueuedAt: now})
	m.queuedMu.Unlock()

	serverSem := m.serverSemaphore(serverName)

	if serverSem.TryAcquire(1) {
		// fast path: didn't actually contend, nothing to log.
	} else {
		m.logger.Info("hit per-server limit, waiting", log.String("server_name", serverName))
		if err := serverSem.Acquire(ctx, 1); err != nil {
			m.dequeue(serverName, trace)
			return Admission{Admitted: false, Reason: err.Error()}
		}
	}

	if !m.global.TryAcquire(1) {
		m.logger.Info("hit global limit, waiting", log.String("server_name", serverName))
		if err := m.global.Acquire(ctx, 1); err != nil {
			serverSem.Release(1)
			m.dequeue(serverName, trace)
			return Admission{Admitted: false, Reason: err.Error()}
		}
	}

	startedAt := time.Now()
	m.activeMu.Lock()
	m.active[serverName] = append(m.active[serverName], activeEntry{Trace: trace, RepoKey: repoKey, StartedAt: startedAt})
	m.activeMu.Unlock()
	m.dequeue(serverName, trace)

	return Admission{Admitted: true, StartedAt: startedAt}
}

// Release removes the (trace, repo_key) entry from the active registry and
// releases both semaphores. Safe to call even if Acquire did not fully
// complete: removal is gated on presence in the active list.
func (m *Manager) Release(serverName, repoKey, trace string) {
	removed := false
	m.activeMu.Lock()
	entries := m.active[serverName]
	for i, e := range entries {
		if e.Trace == trace && e.RepoKey == repoKey {
			m.active[serverName] = append(entries[:i], entries[i+1:]...)
			removed = true
			break
		}
	}
	m.activeMu.Unlock()

	if !removed {
		return
	}

	m.serverSemaphore(serverName).Release(1)
	m.global.Release(1)
}

func (m *Manager) dequeue(serverName, trace string) {
	m.queuedMu.Lock()
	defer m.queuedMu.Unlock()
	entries := m.queued[serverName]
	for i, e := range entries {
		if e.Trace == trace {
			m.queued[serverName] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (m *Manager) serverSemaphore(serverName string) *semaphore.Weighted {
	m.semMu.Lock()
	defer m.semMu.Unlock()
	sem, ok := m.perServer[serverName]
	if !ok {
		sem = semaphore.NewWeighted(m.perServerLimit)
		m.perServer[serverName] = sem
	}
	return sem
}

// LimitSnapshot is the {limit, active, available} shape spec.md 4.6 calls
// for, for both the global and each per-server semaphore.
type LimitSnapshot struct {
	Limit     int
	Active    int
	Available int
}

// ActiveJobSnapshot is one row of status().active_jobs[server_name].
type ActiveJobSnapshot struct {
	RepoKey            string
	Trace              string
	StartedAt          time.Time
	RunningTimeSeconds float64
}

// QueuedJobSnapshot is one row of status().queued_jobs[server_name].
type QueuedJobSnapshot struct {
	RepoKey         string
	Trace           string
	QueuedAt        time.Time
	QueueWaitSeconds float64
}

// Status is the full {global, servers, active_jobs, queued_jobs} snapshot
// spec.md 4.6 describes.
type Status struct {
	Global           LimitSnapshot
	Servers          map[string]LimitSnapshot
	ActiveJobsCount  int
	ActiveJobs       map[string][]ActiveJobSnapshot
	QueuedJobsCount  int
	QueuedJobs       map[string][]QueuedJobSnapshot
	Partial          bool // true if any lock timed out and this snapshot is best-effort
}

// statusLockTimeout bounds how long Status waits on any one mutex before
// giving up on that section and returning a partial snapshot — this keeps
// the status monitor from ever deadlocking behind a busy worker.
const statusLockTimeout = 1 * time.Second

// Status renders the admission snapshot, taking every mutex with a
// 1-second timeout so the monitor can never deadlock behind workers, per
// spec.md section 4.6. Go's sync.Mutex has no deadline-based TryLock, so
// each section runs its own critical section in a goroutine and the caller
// selects on a timer — the one part of this package not drawn from a
// library.
func (m *Manager) Status(now time.Time) Status {
	status := Status{
		Servers:    map[string]LimitSnapshot{},
		ActiveJobs: map[string][]ActiveJobSnapshot{},
		QueuedJobs: map[string][]QueuedJobSnapshot{},
	}

	serverNames := map[string]struct{}{}

	if ok := withTimeout(statusLockTimeout, &m.semMu, func() {
		for name := range m.perServer {
			serverNames[name] = struct{}{}
		}
	}); !ok {
		status.Partial = true
		m.logger.Warn("status: timed out acquiring semaphore registry lock")
	}

	if ok := withTimeout(statusLockTimeout, &m.activeMu, func() {
		for name := range m.active {
			serverNames[name] = struct{}{}
		}
		activeTotal := 0
		for name, entries := range m.active {
			rows := make([]ActiveJobSnapshot, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, ActiveJobSnapshot{
					RepoKey:            e.RepoKey,
					Trace:              e.Trace,
					StartedAt:          e.StartedAt,
					RunningTimeSeconds: now.Sub(e.StartedAt).Seconds(),
				})
			}
			status.ActiveJobs[name] = rows
			activeTotal += len(rows)
		}
		status.ActiveJobsCount = activeTotal
	}); !ok {
		status.Partial = true
		m.logger.Warn("status: timed out acquiring active-jobs lock")
	}

	if ok := withTimeout(statusLockTimeout, &m.queuedMu, func() {
		for name := range m.queued {
			serverNames[name] = struct{}{}
		}
		queuedTotal := 0
		for name, entries := range m.queued {
			rows := make([]QueuedJobSnapshot, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, QueuedJobSnapshot{
					RepoKey:          e.RepoKey,
					Trace:            e.Trace,
					QueuedAt:         e.QueuedAt,
					QueueWaitSeconds: now.Sub(e.QueuedAt).Seconds(),
				})
			}
			status.QueuedJobs[name] = rows
			queuedTotal += len(rows)
		}
		status.QueuedJobsCount = queuedTotal
	}); !ok {
		status.Partial = true
		m.logger.Warn("status: timed out acquiring queued-jobs lock")
	}

	status.Global = LimitSnapshot{
		Limit:  int(m.globalLimit),
		Active: status.ActiveJobsCount,
	}
	if status.Global.Limit > status.Global.Active {
		status.Global.Available = status.Global.Limit - status.Global.Active
	}

	for name := range serverNames {
		active := len(status.ActiveJobs[name])
		snap := LimitSnapshot{Limit: int(m.perServerLimit), Active: active}
		if snap.Limit > active {
			snap.Available = snap.Limit - active
		}
		status.Servers[name] = snap
	}

	return status
}

// withTimeout runs fn while holding mu, returning false if mu could not be
// acquired within d. If fn completes after the timeout elapsed, the lock
// is still released correctly (the goroutine always unlocks); the caller
// has simply already moved on and reported a partial snapshot.
func withTimeout(d time.Duration, mu *sync.Mutex, fn func()) bool {
	done := make(chan struct{})
	go func() {
		mu.Lock()
		defer mu.Unlock()
		fn()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
