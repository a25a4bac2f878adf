package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretSink struct {
	added []string
}

func (f *fakeSecretSink) Add(s string) {
	f.added = append(f.added, s)
}

func TestParse_GlobalServerRepoLayering(t *testing.T) {
	data := []byte(`
global:
  type: svn
  fetch-batch-size: 50

svn-host:
  type: svn
  url: https://svn.example.com/repos
  repos:
    - widget
    - gadget:
        fetch-batch-size: 25
        trunk: [trunk, mainline]
`)
	entries, err := Parse(data, "/data/repos", nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.SourceRepoName] = e
	}

	widget := byName["widget"]
	assert.Equal(t, 50, widget.FetchBatchSize, "inherits global fetch-batch-size")
	assert.Equal(t, "svn", widget.Type)
	assert.Equal(t, "svn.example.com", widget.ServerName)

	gadget := byName["gadget"]
	assert.Equal(t, 25, gadget.FetchBatchSize, "repo override wins over global")
	assert.Equal(t, StringOrList{"trunk", "mainline"}, gadget.Trunk)
}

func TestParse_BareRepoStringForm(t *testing.T) {
	data := []byte(`
host:
  type: git
  url: https://git.example.com/org
  repos: onlyrepo
`)
	entries, err := Parse(data, "/data/repos", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "onlyrepo", entries[0].SourceRepoName)
}

func TestParse_BareCloneStringForm(t *testing.T) {
	data := []byte(`
host:
  type: git
  url: https://git.example.com/org
  repos:
    - repo1:
        bare-clone: "false"
`)
	entries, err := Parse(data, "/data/repos", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].BareClone)
}

func TestParse_BareCloneDefaultsTrue(t *testing.T) {
	data := []byte(`
host:
  type: git
  url: https://git.example.com/org
  repos: repo1
`)
	entries, err := Parse(data, "/data/repos", nil)
	require.NoError(t, err)
	require.True(t, entries[0].BareClone)
}

func TestParse_ScalarTrunkNormalizedToList(t *testing.T) {
	data := []byte(`
host:
  type: svn
  url: https://svn.example.com/repos
  repos:
    - repo1:
        trunk: trunk
`)
	entries, err := Parse(data, "/data/repos", nil)
	require.NoError(t, err)
	assert.Equal(t, StringOrList{"trunk"}, entries[0].Trunk)
}

func TestParse_SecretsRegistered(t *testing.T) {
	data := []byte(`
host:
  type: svn
  url: https://svn.example.com/repos
  password: hunter2
  repos: repo1
`)
	sink := &fakeSecretSink{}
	_, err := Parse(data, "/data/repos", sink)
	require.NoError(t, err)
	assert.Contains(t, sink.added, "hunter2")
}

func TestParse_ServerNameDerivedFromURL(t *testing.T) {
	data := []byte(`
anything:
  type: svn
  url: https://svn.example.com/repos/proj
  repos: repo1
`)
	entries, err := Parse(data, "/data/repos", nil)
	require.NoError(t, err)
	assert.Equal(t, "svn.example.com", entries[0].ServerName)
}

func TestParse_MissingTypeErrors(t *testing.T) {
	data := []byte(`
host:
  url: https://svn.example.com/repos
  repos: repo1
`)
	_, err := Parse(data, "/data/repos", nil)
	require.Error(t, err)
}

func TestParse_LocalRepoPathComposition(t *testing.T) {
	data := []byte(`
host:
  type: git
  url: https://git.example.com/org
  code-host-name: git.example.com
  git-org-name: myorg
  repos:
    - repo1:
        destination-git-repo-name: myrepo
`)
	entries, err := Parse(data, "/data/repos", nil)
	require.NoError(t, err)
	assert.Equal(t, "/data/repos/git.example.com/myorg/myrepo", entries[0].LocalRepoPath)
}
