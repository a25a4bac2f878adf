package shutdown

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/assert"
)

type fakeWaiter struct {
	delay time.Duration
	err   error
}

func (f *fakeWaiter) Wait(ctx context.Context) error {
	select {
	case <-time.After(f.delay):
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRun_OrderlyShutdownOnSignal(t *testing.T) {
	var canceled int32
	h := New(logtest.Scoped(t), &fakeWaiter{}, nil, func() { atomic.StoreInt32(&canceled, 1) })

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&canceled))
}

func TestOrderlyShutdown_LogsWaiterError(t *testing.T) {
	h := New(logtest.Scoped(t), &fakeWaiter{err: errors.New("boom")}, nil, func() {})
	assert.NotPanics(t, func() {
		h.orderlyShutdown(make(chan os.Signal))
	})
}
