// Package monitor periodically reports concurrency and process-health
// snapshots, grounded on the teacher's servermetrics.go
// (cmd/gitserver/server/servermetrics.go's RegisterMetrics) for the
// Prometheus gauge shape and on original_source's status_monitor_loop for
// the logged-snapshot cadence.
package monitor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/log"

	"github.com/sourcegraph/repo-converter-sub000/internal/concurrency"
	"github.com/sourcegraph/repo-converter-sub000/internal/reaper"
)

// Monitor emits a periodic concurrency/process snapshot until its context
// is canceled.
type Monitor struct {
	logger   log.Logger
	manager  *concurrency.Manager
	reaper   *reaper.Reaper
	interval time.Duration

	activeGauge *prometheus.GaugeVec
	queuedGauge *prometheus.GaugeVec
}

// New constructs a Monitor and registers its gauges with reg, reusing the
// gauges already registered there if an earlier Monitor registered them.
// reg may be nil, in which case Prometheus export is skipped (useful for
// tests).
func New(logger log.Logger, manager *concurrency.Manager, r *reaper.Reaper, interval time.Duration, reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		logger:   logger.Scoped("monitor", "concurrency and process-health snapshots"),
		manager:  manager,
		reaper:   r,
		interval: interval,
		activeGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "repo_converter_active_jobs",
			Help: "Number of conversion jobs currently holding a concurrency slot, by origin server.",
		}, []string{"server_name"}),
		queuedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "repo_converter_queued_jobs",
			Help: "Number of conversion jobs waiting for a concurrency slot, by origin server.",
		}, []string{"server_name"}),
	}
	if reg != nil {
		for _, g := range []**prometheus.GaugeVec{&m.activeGauge, &m.queuedGauge} {
			if err := reg.Register(*g); err != nil {
				are, ok := err.(prometheus.AlreadyRegisteredError)
				if !ok {
					panic(err)
				}
				*g = are.ExistingCollector.(*prometheus.GaugeVec)
			}
		}
	}
	return m
}

// Run blocks, emitting one snapshot every interval, until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.snapshot(ctx)
		}
	}
}

func (m *Monitor) snapshot(ctx context.Context) {
	status := m.manager.Status(time.Now())

	m.logger.Debug("concurrency snapshot",
		log.Int("active_jobs", status.ActiveJobsCount),
		log.Int("queued_jobs", status.QueuedJobsCount),
		log.Bool("partial", status.Partial),
	)

	m.activeGauge.Reset()
	m.queuedGauge.Reset()
	for server, snap := range status.Servers {
		m.activeGauge.WithLabelValues(server).Set(float64(snap.Active))
	}
	for server, jobs := range status.QueuedJobs {
		m.queuedGauge.WithLabelValues(server).Set(float64(len(jobs)))
	}

	if m.reaper == nil {
		return
	}
	reaped := m.reaper.Reap()
	if len(reaped) > 0 {
		m.logger.Info("reaped descendant processes", log.Int("count", len(reaped)))
	}
}
