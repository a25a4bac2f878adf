package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/repo-converter-sub000/internal/envconfig"
)

func TestRun_RespectsMaxCycles(t *testing.T) {
	dir := t.TempDir()
	inventoryPath := filepath.Join(dir, "repos.yaml")
	require.NoError(t, os.WriteFile(inventoryPath, []byte("globals:\n  type: git\n"), 0o644))

	cfg := envconfig.Config{
		MaxConcurrentConversionsGlobal:    2,
		MaxConcurrentConversionsPerServer: 2,
		MaxCycles:                         1,
		RepoConverterIntervalSeconds:      time.Millisecond,
		ConcurrencyMonitorInterval:        time.Hour,
		ReposToConvert:                    inventoryPath,
		SrcServeRoot:                      dir,
		TruncatedOutputMaxLines:           11,
		TruncatedOutputMaxLineLength:      200,
	}

	d := New(logtest.Scoped(t), cfg, 1)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run with MaxCycles=1 did not return")
	}
}

func TestRunCycle_LogsErrorOnMissingInventory(t *testing.T) {
	cfg := envconfig.Config{ReposToConvert: "/nonexistent/path.yaml", SrcServeRoot: t.TempDir()}
	d := New(logtest.Scoped(t), cfg, 1)

	assert.NotPanics(t, func() {
		d.runCycle(context.Background(), d.logger)
	})
}
