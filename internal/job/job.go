// Package job defines the per-attempt job descriptor described in spec.md
// section 3: created per conversion attempt, owned by the worker that
// created it for its lifetime, and discarded on completion.
package job

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sourcegraph/repo-converter-sub000/internal/inventory"
)

// NewTrace mints the short random correlation id minted per job, per
// spec.md's glossary entry for "Trace". ULIDs are lexically sortable by
// creation time and collision-resistant without a central counter, which is
// why the teacher's wider codebase (go.mod: github.com/oklog/ulid/v2) reaches
// for them over a plain random hex string.
func NewTrace(entropy *ulid.MonotonicEntropy, now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// Config is the portion of a Job describing what repository it targets,
// snapshotted from the inventory entry at admission time.
type Config struct {
	RepoKey       string
	RepoType      string
	ServerName    string
	LocalRepoPath string
	Entry         inventory.Entry
}

// Result accumulates the outcome of a conversion attempt.
type Result struct {
	Action            string // "create", "update", "up-to-date", "skipped", "error"
	Reason            string
	Success           bool
	StartTimestamp    time.Time
	EndTimestamp      time.Time
	ExecutionTime     time.Duration
	RunningTimeSeconds float64
}

// Stats holds the numeric batch-progress fields spec.md section 3 lists.
type Stats struct {
	ThisBatchStartRev int
	ThisBatchEndRev   int
	FetchingBatchCount int
	GitCommitsAdded   int
}

// Job is one attempt to synchronize one repository in one cycle.
type Job struct {
	Trace  string
	Config Config
	Result Result
	Stats  Stats
}

// New creates a job descriptor for one admission attempt.
func New(trace string, cfg Config) *Job {
	return &Job{Trace: trace, Config: cfg}
}

// MarkStarted records the job's start time; drivers call it when Convert
// begins, after admission has already succeeded.
func (j *Job) MarkStarted(now time.Time) {
	j.Result.StartTimestamp = now
}

// MarkFinished records completion and computes ExecutionTime/RunningTimeSeconds.
func (j *Job) MarkFinished(now time.Time, success bool, action, reason string) {
	j.Result.EndTimestamp = now
	j.Result.Success = success
	j.Result.Action = action
	j.Result.Reason = reason
	if !j.Result.StartTimestamp.IsZero() {
		j.Result.ExecutionTime = now.Sub(j.Result.StartTimestamp)
		j.Result.RunningTimeSeconds = j.Result.ExecutionTime.Seconds()
	}
}

// LogFields renders the job as the "job" grouped field spec.md section 6
// describes for structured log records.
func (j *Job) LogFields() map[string]any {
	return map[string]any{
		"trace":       j.Trace,
		"repo_key":    j.Config.RepoKey,
		"repo_type":   j.Config.RepoType,
		"server_name": j.Config.ServerName,
		"action":      j.Result.Action,
		"reason":      j.Result.Reason,
		"success":     j.Result.Success,
	}
}
