// Package fanout dispatches one job.Job per inventory entry each daemon
// cycle, admitting it through concurrency.Manager and handing it to the
// convert.Driver registered for its repo type, grounded on the teacher's
// repos.Syncer fan-out loop (cmd/gitserver/server/server.go's
// syncRepoGroup) and on original_source's run_repo_conversion_loop.
package fanout

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/log"
	"golang.org/x/sync/errgroup"

	"github.com/sourcegraph/repo-converter-sub000/internal/concurrency"
	"github.com/sourcegraph/repo-converter-sub000/internal/convert"
	"github.com/sourcegraph/repo-converter-sub000/internal/inventory"
	"github.com/sourcegraph/repo-converter-sub000/internal/job"
)

// Runner fans a cycle's inventory out across workers.
type Runner struct {
	logger   log.Logger
	manager  *concurrency.Manager
	registry *convert.Registry

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy

	// group tracks every worker started by the most recent Run call.
	// fan-out itself is fire-and-forget (spec.md 4.7 admits a job and moves
	// on to the next inventory entry without waiting), but shutdown needs a
	// handle to wait on with a deadline, so the group is retained rather
	// than discarded.
	groupMu sync.Mutex
	group   *errgroup.Group
}

// New constructs a Runner.
func New(logger log.Logger, manager *concurrency.Manager, registry *convert.Registry) *Runner {
	return &Runner{
		logger:   logger.Scoped("fanout", "per-cycle job fan-out"),
		manager:  manager,
		registry: registry,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Run admits and dispatches one job per entry, returning immediately once
// every entry has been considered — it does not wait for jobs to finish.
// Call Wait (typically during shutdown) to block on outstanding workers.
func (r *Runner) Run(ctx context.Context, entries []inventory.Entry) {
	group, groupCtx := errgroup.WithContext(context.Background())
	r.groupMu.Lock()
	r.group = group
	r.groupMu.Unlock()

	for _, e := range entries {
		e := e
		trace := r.newTrace()
		log_ := r.logger.With(log.String("trace", trace), log.String("repo_key", e.RepoKey))

		adm := r.manager.Acquire(ctx, e.ServerName, e.RepoKey, trace)
		if !adm.Admitted {
			log_.Info("job not admitted this cycle", log.String("reason", adm.Reason))
			continue
		}

		driver, ok := r.registry.Lookup(e.Type)
		if !ok {
			log_.Error("no driver registered for repo type, releasing without converting", log.String("repo_type", e.Type))
			r.manager.Release(e.ServerName, e.RepoKey, trace)
			continue
		}

		cfg := job.Config{
			RepoKey:       e.RepoKey,
			RepoType:      e.Type,
			ServerName:    e.ServerName,
			LocalRepoPath: e.LocalRepoPath,
			Entry:         e,
		}
		j := job.New(trace, cfg)

		group.Go(func() error {
			defer r.manager.Release(e.ServerName, e.RepoKey, trace)
			if err := driver.Convert(groupCtx, j); err != nil {
				log_.Error("driver returned an unexpected error", log.Error(err))
				return nil
			}
			fields := j.LogFields()
			if j.Result.Success {
				log_.Info("job finished", logFieldsToFields(fields)...)
			} else {
				log_.Warn("job finished", logFieldsToFields(fields)...)
			}
			return nil
		})
	}
}

// Wait blocks until every worker started by the most recent Run call
// completes, or until ctx is done. It's used only during shutdown; the
// steady-state fan-out loop never waits on its own workers.
func (r *Runner) Wait(ctx context.Context) error {
	r.groupMu.Lock()
	group := r.group
	r.groupMu.Unlock()
	if group == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) newTrace() string {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	return job.NewTrace(r.entropy, time.Now())
}

func logFieldsToFields(m map[string]any) []log.Field {
	fields := make([]log.Field, 0, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case string:
			fields = append(fields, log.String(k, vv))
		case bool:
			fields = append(fields, log.Bool(k, vv))
		default:
			fields = append(fields, log.String(k, "unsupported"))
		}
	}
	return fields
}
