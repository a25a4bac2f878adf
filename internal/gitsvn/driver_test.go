package gitsvn

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/repo-converter-sub000/internal/runner"
)

func TestParseRevisions(t *testing.T) {
	lines := []string{
		`<logentry revision="105">`,
		`<logentry revision="103">`,
		`<logentry revision="104">`,
	}
	assert.Equal(t, []int{105, 103, 104}, parseRevisions(lines))
}

func TestParseRevisions_NoMatches(t *testing.T) {
	assert.Nil(t, parseRevisions([]string{"<log>", "</log>"}))
}

func TestParseLastChangedRev(t *testing.T) {
	res := &runner.Result{Output: []string{
		"Path: .",
		"URL: https://svn.example.com/repo/trunk",
		"Revision: 120",
		"Last Changed Rev: 117",
		"Last Changed Date: 2024-01-01",
	}}
	rev, err := parseLastChangedRev(res)
	require.NoError(t, err)
	assert.Equal(t, 117, rev)
}

func TestParseLastChangedRev_Missing(t *testing.T) {
	_, err := parseLastChangedRev(&runner.Result{Output: []string{"Path: ."}})
	assert.Error(t, err)
}

func TestClassifyFetchError_FirstMatchWins(t *testing.T) {
	output := []string{"some noise", "svn: E170013: Unable to connect to a repository at URL 'x'", "Connection refused"}
	substr, ok := classifyFetchError(output)
	require.True(t, ok)
	assert.Equal(t, "Unable to connect to a repository at URL", substr)
}

func TestClassifyFetchError_NoneFound(t *testing.T) {
	_, ok := classifyFetchError([]string{"all good"})
	assert.False(t, ok)
}

func TestRewritePackedRefs_KeepsRemoteTrackingAndAddsLocal(t *testing.T) {
	lines := []string{
		"aaa refs/remotes/git-svn",
		"bbb refs/remotes/origin/tags/v1.0",
		"ccc refs/remotes/origin/feature-x",
		"ddd refs/heads/main",
		"eee refs/tags/stale",
	}
	out := rewritePackedRefs(lines, "main")

	assert.Contains(t, out, "aaa refs/remotes/git-svn")
	assert.Contains(t, out, "aaa refs/heads/main")
	assert.Contains(t, out, "bbb refs/remotes/origin/tags/v1.0")
	assert.Contains(t, out, "bbb refs/tags/v1.0")
	assert.Contains(t, out, "ccc refs/remotes/origin/feature-x")
	assert.Contains(t, out, "ccc refs/heads/feature-x")
	assert.NotContains(t, out, "ddd refs/heads/main")
	assert.NotContains(t, out, "eee refs/tags/stale")
}

func TestRewritePackedRefs_ExcludesPegRevisions(t *testing.T) {
	lines := []string{"fff refs/remotes/origin/tags/v1@123"}
	out := rewritePackedRefs(lines, "main")

	assert.Contains(t, out, "fff refs/remotes/origin/tags/v1@123")
	assert.NotContains(t, out, "fff refs/tags/v1@123")
}

func TestRewritePackedRefs_SortsByPath(t *testing.T) {
	lines := []string{
		"bbb refs/remotes/origin/zzz",
		"aaa refs/remotes/origin/aaa",
	}
	out := rewritePackedRefs(lines, "main")

	var paths []string
	for _, line := range out {
		parts := strings.SplitN(line, " ", 2)
		paths = append(paths, parts[1])
	}
	assert.True(t, sort.StringsAreSorted(paths))
}

func TestRewritePackedRefs_ReinsertsUnparseableLinesAtOriginalIndex(t *testing.T) {
	lines := []string{
		"# pack-refs with: peeled fully-peeled sorted",
		"bbb refs/remotes/origin/feature",
	}
	out := rewritePackedRefs(lines, "main")

	require.Equal(t, "# pack-refs with: peeled fully-peeled sorted", out[0])
}

func TestDedupeGitConfig_RemovesDuplicateLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	content := "[svn-remote \"svn\"]\n" +
		"\tfetch = trunk:refs/remotes/origin/trunk\n" +
		"\tfetch = trunk:refs/remotes/origin/trunk\n" +
		"\turl = https://svn.example.com/repo\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	dedupeGitConfig(logtest.Scoped(t), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[svn-remote \"svn\"]\n"+
		"\tfetch = trunk:refs/remotes/origin/trunk\n"+
		"\turl = https://svn.example.com/repo\n", string(data))
}

func TestDedupeGitConfig_NoChangeIfNoDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	content := "[core]\n\tbare = true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	dedupeGitConfig(logtest.Scoped(t), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestDedupeGitConfig_MissingFileIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		dedupeGitConfig(logtest.Scoped(t), filepath.Join(t.TempDir(), "missing"))
	})
}
