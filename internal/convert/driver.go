// Package convert defines the pluggable conversion interface that C7 job
// fan-out dispatches a job.Job to, based on the inventory entry's repo
// type, grounded on original_source/repo-converter/repositories/{git,svn,tfs}.py
// and modeled in shape on the teacher's VCSSyncer interface
// (cmd/gitserver/server/vcs_syncer_git.go).
package convert

import (
	"context"

	"github.com/sourcegraph/repo-converter-sub000/internal/job"
)

// Driver converts (or mirrors) one repository for one cycle. Convert never
// returns a Go error for an ordinary conversion failure — that's recorded
// on job.Job.Result — only for truly unexpected conditions a caller should
// treat as a bug (e.g. a nil job).
type Driver interface {
	// Convert runs one cycle's worth of work for j, populating j.Result and
	// j.Stats as it goes.
	Convert(ctx context.Context, j *job.Job) error
}

// Registry maps an inventory entry's lowercased `type` field to the Driver
// that handles it, the dispatch table spec.md section 4.7 describes.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry builds an empty Registry; call Register for each supported
// repo_type.
func NewRegistry() *Registry {
	return &Registry{drivers: map[string]Driver{}}
}

// Register associates repoType (matched case-insensitively by the caller)
// with d.
func (r *Registry) Register(repoType string, d Driver) {
	r.drivers[repoType] = d
}

// Lookup returns the Driver for repoType, or false if none is registered —
// the spec.md section 8 boundary case "fan-out to skip it with an error
// log" for an unsupported type.
func (r *Registry) Lookup(repoType string) (Driver, bool) {
	d, ok := r.drivers[repoType]
	return d, ok
}
