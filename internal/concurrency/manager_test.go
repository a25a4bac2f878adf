package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease_Roundtrip(t *testing.T) {
	m := New(logtest.Scoped(t), 10, 10)
	ctx := context.Background()

	adm := m.Acquire(ctx, "server-a", "server-a/repo1", "trace1")
	require.True(t, adm.Admitted)

	status := m.Status(time.Now())
	assert.Equal(t, 1, status.ActiveJobsCount)
	assert.Equal(t, 1, status.Servers["server-a"].Active)

	m.Release("server-a", "server-a/repo1", "trace1")

	status = m.Status(time.Now())
	assert.Equal(t, 0, status.ActiveJobsCount)
}

func TestAcquire_RejectsSameRepoCollision(t *testing.T) {
	m := New(logtest.Scoped(t), 10, 10)
	ctx := context.Background()

	adm1 := m.Acquire(ctx, "server-a", "server-a/repo1", "trace1")
	require.True(t, adm1.Admitted)

	adm2 := m.Acquire(ctx, "server-a", "server-a/repo1", "trace2")
	assert.False(t, adm2.Admitted)
	assert.Equal(t, "Repo job already in progress", adm2.Reason)
}

func TestAcquire_RespectsPerServerLimit(t *testing.T) {
	m := New(logtest.Scoped(t), 10, 1)
	ctx := context.Background()

	adm1 := m.Acquire(ctx, "server-a", "server-a/repo1", "trace1")
	require.True(t, adm1.Admitted)

	var wg sync.WaitGroup
	admitted := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		adm2 := m.Acquire(ctx, "server-a", "server-a/repo2", "trace2")
		if adm2.Admitted {
			close(admitted)
		}
	}()

	select {
	case <-admitted:
		t.Fatal("second acquire on a saturated per-server semaphore should block")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release("server-a", "server-a/repo1", "trace1")
	wg.Wait()
}

func TestAcquire_RespectsGlobalLimit(t *testing.T) {
	m := New(logtest.Scoped(t), 1, 10)
	ctx := context.Background()

	adm1 := m.Acquire(ctx, "server-a", "server-a/repo1", "trace1")
	require.True(t, adm1.Admitted)

	var wg sync.WaitGroup
	admitted := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		adm2 := m.Acquire(ctx, "server-b", "server-b/repo1", "trace2")
		if adm2.Admitted {
			close(admitted)
		}
	}()

	select {
	case <-admitted:
		t.Fatal("second acquire on a saturated global semaphore should block")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release("server-a", "server-a/repo1", "trace1")
	wg.Wait()
}

func TestRelease_NoopIfNeverActive(t *testing.T) {
	m := New(logtest.Scoped(t), 10, 10)
	assert.NotPanics(t, func() {
		m.Release("server-a", "server-a/repo1", "unknown-trace")
	})
}

func TestStatus_ReflectsQueuedAndActiveCounts(t *testing.T) {
	m := New(logtest.Scoped(t), 10, 10)
	ctx := context.Background()

	m.Acquire(ctx, "server-a", "server-a/repo1", "trace1")
	status := m.Status(time.Now())
	assert.Equal(t, 0, status.QueuedJobsCount)
	assert.Equal(t, 1, status.ActiveJobsCount)
}
