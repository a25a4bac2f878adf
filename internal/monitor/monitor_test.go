package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/assert"

	"github.com/sourcegraph/repo-converter-sub000/internal/concurrency"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	m := New(logtest.Scoped(t), concurrency.New(logtest.Scoped(t), 10, 10), nil, time.Millisecond, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestSnapshot_ReflectsActiveJobs(t *testing.T) {
	mgr := concurrency.New(logtest.Scoped(t), 10, 10)
	m := New(logtest.Scoped(t), mgr, nil, time.Hour, prometheus.NewRegistry())

	adm := mgr.Acquire(context.Background(), "server-a", "server-a/repo1", "trace1")
	assert.True(t, adm.Admitted)

	m.snapshot(context.Background())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeGauge.WithLabelValues("server-a")))
}
