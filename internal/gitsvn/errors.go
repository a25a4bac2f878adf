package gitsvn

import (
	"errors"
	"strconv"
	"strings"

	"github.com/sourcegraph/repo-converter-sub000/internal/runner"
)

var (
	errTransient         = errors.New("svn info did not succeed, retrying")
	errRemoteUnreachable = errors.New("svn remote unreachable after retries")
	errInitFailed        = errors.New("git svn init failed")
)

// knownFetchErrorSubstrings is the fixed, ordered list of substrings that
// classify a failed `git svn fetch`/`svn info` invocation into a stable
// reason string, ported verbatim from original_source/src/source_repo/svn.py's
// error-matching list so the daemon's reported reasons don't drift cycle to
// cycle when the underlying subprocess's wording shifts.
var knownFetchErrorSubstrings = []string{
	"Can't create session",
	"Unable to connect to a repository at URL",
	"Connection refused",
	"Connection timed out",
	"SSL handshake failed",
	"Authentication failed",
	"Authorization failed",
	"Invalid credentials",
	"Repository not found",
	"Path not found",
	"Invalid repository URL",
	"fatal:",
	"error:",
	"abort:",
	"Permission denied",
	"No space left on device",
	"svn: E",
	"Working copy locked",
	"Repository is locked",
}

// classifyFetchError returns the first known substring found in output, in
// knownFetchErrorSubstrings priority order, so the same failure is always
// reported the same way regardless of which line it appears on.
func classifyFetchError(output []string) (string, bool) {
	joined := strings.Join(output, "\n")
	for _, substr := range knownFetchErrorSubstrings {
		if strings.Contains(joined, substr) {
			return substr, true
		}
	}
	return "", false
}

// parseLastChangedRev extracts the "Last Changed Rev: N" line `svn info`
// prints, the value the state machine compares against the previously
// persisted batch-end revision to decide whether a repo is already
// up-to-date.
func parseLastChangedRev(res *runner.Result) (int, error) {
	const prefix = "Last Changed Rev:"
	for _, line := range res.Output {
		if strings.HasPrefix(line, prefix) {
			return strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
		}
	}
	return 0, errors.New("svn info output did not contain a Last Changed Rev line")
}
