package runner

import (
	"context"
	"testing"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MergesStdoutAndStderrByDefault(t *testing.T) {
	r := New(logtest.Scoped(t), nil, 0, 0)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, Options{Name: "merge"})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "out")
	assert.Contains(t, res.Output, "err")
	assert.Nil(t, res.Stderr)
}

func TestRun_IgnoreModeDropsStderr(t *testing.T) {
	r := New(logtest.Scoped(t), nil, 0, 0)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, Options{Name: "ignore", StderrMode: StderrModeIgnore})
	require.NoError(t, err)
	assert.Equal(t, []string{"out"}, res.Output)
	assert.Nil(t, res.Stderr)
}

func TestRun_SplitModeCapturesStderrSeparately(t *testing.T) {
	r := New(logtest.Scoped(t), nil, 0, 0)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, Options{Name: "split", StderrMode: StderrModeSplit})
	require.NoError(t, err)
	assert.Equal(t, []string{"out"}, res.Output)
	assert.Equal(t, []string{"err"}, res.Stderr)
}
