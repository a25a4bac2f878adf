package reaper

import (
	"os"
	"testing"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/assert"
)

func TestReap_NoDescendantsReturnsEmpty(t *testing.T) {
	r := New(logtest.Scoped(t), int32(os.Getpid()), os.Args)
	snaps := r.Reap()
	assert.Empty(t, snaps)
}

func TestIsOwnCmdline(t *testing.T) {
	r := New(logtest.Scoped(t), int32(os.Getpid()), []string{"/usr/bin/repo-converter", "--foo"})
	assert.True(t, r.isOwnCmdline("/usr/bin/repo-converter --foo"))
	assert.False(t, r.isOwnCmdline("git svn fetch"))
}

func TestIsOwnCmdline_EmptyOwnCmdlineNeverMatches(t *testing.T) {
	r := New(logtest.Scoped(t), int32(os.Getpid()), nil)
	assert.False(t, r.isOwnCmdline(""))
}
