// Package shutdown wires the signal-driven orderly-exit sequence from
// spec.md section 4.9, grounded on the teacher's goroutine.Go/signal
// handling pattern in cmd/gitserver/shared/shared.go (a buffered
// os/signal.Notify channel read by a dedicated goroutine, with a second
// signal forcing immediate exit) and on original_source's
// register_signal_handlers for the SIGCHLD fast-path reaper trigger.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/log"

	"github.com/sourcegraph/repo-converter-sub000/internal/reaper"
)

// Budget bounds the total time an orderly shutdown is allowed to take
// before the process force-exits anyway.
const Budget = 15 * time.Second

// Waiter is anything that can be asked to finish its outstanding work
// within a deadline. fanout.Runner satisfies this.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Handler listens for SIGINT/SIGTERM (orderly shutdown, forcing exit on a
// second signal) and SIGCHLD (an immediate best-effort reap) for the
// lifetime of the process.
type Handler struct {
	logger log.Logger
	waiter Waiter
	reaper *reaper.Reaper
	cancel context.CancelFunc
}

// New constructs a Handler. cancel is called once an orderly shutdown
// begins, so the caller's main loop can stop starting new cycles.
func New(logger log.Logger, waiter Waiter, r *reaper.Reaper, cancel context.CancelFunc) *Handler {
	return &Handler{
		logger: logger.Scoped("shutdown", "signal-driven shutdown sequence"),
		waiter: waiter,
		reaper: r,
		cancel: cancel,
	}
}

// Run blocks, handling signals, until the process should exit. It returns
// normally after an orderly shutdown completes (or times out); a second
// SIGINT/SIGTERM calls os.Exit directly and never returns.
func (h *Handler) Run() {
	terminate := make(chan os.Signal, 2)
	signal.Notify(terminate, syscall.SIGINT, syscall.SIGTERM)

	sigchld := make(chan os.Signal, 8)
	signal.Notify(sigchld, syscall.SIGCHLD)

	for {
		select {
		case sig := <-terminate:
			h.logger.Info("received signal, beginning orderly shutdown", log.String("signal", sig.String()))
			h.orderlyShutdown(terminate)
			return
		case <-sigchld:
			if h.reaper != nil {
				h.reaper.Reap()
			}
		}
	}
}

// orderlyShutdown stops admitting new work (via cancel), waits on
// outstanding jobs up to Budget, reaps any exited children, and logs
// completion. It sends no signal to worker goroutines' subprocesses or to
// the process group: jobs still running when Budget runs out are left
// running, not terminated or killed. A second terminate signal while
// waiting forces an immediate exit instead.
func (h *Handler) orderlyShutdown(terminate <-chan os.Signal) {
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), Budget)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.waiter.Wait(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			h.logger.Warn("outstanding jobs did not finish cleanly before shutdown", log.Error(err))
		} else {
			h.logger.Info("all outstanding jobs finished")
		}
	case <-terminate:
		h.logger.Warn("second signal received, forcing immediate exit")
		os.Exit(1)
	case <-ctx.Done():
		h.logger.Warn("shutdown budget exceeded, exiting with jobs still outstanding")
	}

	if h.reaper != nil {
		h.reaper.Reap()
	}
	h.logger.Info("shutdown complete")
}
