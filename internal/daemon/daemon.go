// Package daemon wires together the main loop described in spec.md section
// 4.1: load inventory, fan jobs out, sleep, repeat, grounded on the
// teacher's cmd/gitserver/shared/shared.go Main function shape (load
// config, construct components, register signal handling, block).
package daemon

import (
	"context"
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/log"

	"github.com/sourcegraph/repo-converter-sub000/internal/concurrency"
	"github.com/sourcegraph/repo-converter-sub000/internal/convert"
	"github.com/sourcegraph/repo-converter-sub000/internal/envconfig"
	"github.com/sourcegraph/repo-converter-sub000/internal/fanout"
	"github.com/sourcegraph/repo-converter-sub000/internal/gitsvn"
	"github.com/sourcegraph/repo-converter-sub000/internal/inventory"
	"github.com/sourcegraph/repo-converter-sub000/internal/lockfiles"
	"github.com/sourcegraph/repo-converter-sub000/internal/monitor"
	"github.com/sourcegraph/repo-converter-sub000/internal/reaper"
	"github.com/sourcegraph/repo-converter-sub000/internal/runner"
	"github.com/sourcegraph/repo-converter-sub000/internal/secret"
	"github.com/sourcegraph/repo-converter-sub000/internal/shutdown"
)

// Daemon owns every long-lived component the main loop needs across
// cycles.
type Daemon struct {
	logger  log.Logger
	cfg     envconfig.Config
	secrets *secret.Registry
	manager *concurrency.Manager
	fanout  *fanout.Runner
	monitor *monitor.Monitor
	reaper  *reaper.Reaper
}

// New wires every component from cfg, registering the known convert.Driver
// implementations (git, svn, tfs/tfvc).
func New(logger log.Logger, cfg envconfig.Config, selfPID int32) *Daemon {
	secrets := secret.NewRegistry()
	locks := lockfiles.NewRecoverer(logger)
	r := runner.New(logger, locks, cfg.TruncatedOutputMaxLines, cfg.TruncatedOutputMaxLineLength)

	registry := convert.NewRegistry()
	registry.Register("git", convert.NewGitDriver())
	registry.Register("svn", gitsvn.New(logger, r))
	registry.Register("tfs", convert.NewTFVCDriver())
	registry.Register("tfvc", convert.NewTFVCDriver())

	manager := concurrency.New(logger, cfg.MaxConcurrentConversionsGlobal, cfg.MaxConcurrentConversionsPerServer)
	fanoutRunner := fanout.New(logger, manager, registry)
	reap := reaper.New(logger, selfPID, []string{"repo-converter"})
	mon := monitor.New(logger, manager, reap, cfg.ConcurrencyMonitorInterval, prometheus.DefaultRegisterer)

	return &Daemon{
		logger:  logger.Scoped("daemon", "main conversion loop"),
		cfg:     cfg,
		secrets: secrets,
		manager: manager,
		fanout:  fanoutRunner,
		monitor: mon,
		reaper:  reap,
	}
}

// Run executes cycles until ctx is canceled or cfg.MaxCycles is reached
// (0 means unbounded), sleeping RepoConverterIntervalSeconds after each
// cycle, including the last one before returning.
func (d *Daemon) Run(ctx context.Context) {
	go d.monitor.Run(ctx)

	// One-time, global opt-out of git's "dubious ownership" protection:
	// converted repos are frequently owned by a different uid than the
	// daemon's own process inside a container, which git otherwise refuses
	// to operate on at all.
	exec.CommandContext(ctx, "git", "config", "--global", "--add", "safe.directory", "*").Run() //nolint:errcheck

	for cycle := 1; d.cfg.MaxCycles == 0 || cycle <= d.cfg.MaxCycles; cycle++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cycleLogger := d.logger.With(log.Int("cycle", cycle))
		d.runCycle(ctx, cycleLogger)

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.RepoConverterIntervalSeconds):
		}
	}
}

func (d *Daemon) runCycle(ctx context.Context, cycleLogger log.Logger) {
	entries, err := inventory.Load(d.cfg.ReposToConvert, d.cfg.SrcServeRoot, d.secrets)
	if err != nil {
		cycleLogger.Error("failed to load inventory, skipping this cycle", log.Error(err))
		return
	}
	cycleLogger.Info("starting cycle", log.Int("repo_count", len(entries)))
	d.fanout.Run(ctx, entries)
}

// Waiter exposes the fan-out runner's Wait for shutdown.Handler.
func (d *Daemon) Waiter() shutdown.Waiter { return d.fanout }

// Reaper exposes the daemon's reaper for shutdown.Handler.
func (d *Daemon) Reaper() *reaper.Reaper { return d.reaper }
