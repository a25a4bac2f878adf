package gitsvn

import (
	"os"
	"strings"

	"github.com/sourcegraph/log"
)

// dedupeGitConfig removes exact-duplicate lines from a repo's .git/config,
// preserving the order of first occurrence. `git svn fetch` across many
// cycles tends to re-append identical `[svn-remote "svn"]` fetch-refspec
// lines to the same section; left unchecked the file grows without bound
// and git itself starts warning about duplicate keys. Ported from
// original_source's src/utils/git.py deduplicate_git_config_file.
func dedupeGitConfig(logger log.Logger, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	lines := strings.Split(string(data), "\n")
	seen := make(map[string]struct{}, len(lines))
	deduped := make([]string, 0, len(lines))
	removed := 0

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		// Section headers and blank lines are never deduplicated: only
		// repeated key=value (or fetch refspec) lines are the problem.
		if trimmed == "" || strings.HasPrefix(trimmed, "[") {
			deduped = append(deduped, line)
			continue
		}
		if _, dup := seen[trimmed]; dup {
			removed++
			continue
		}
		seen[trimmed] = struct{}{}
		deduped = append(deduped, line)
	}

	if removed == 0 {
		return
	}

	if err := os.WriteFile(path, []byte(strings.Join(deduped, "\n")), 0o644); err != nil {
		logger.Warn("failed to write deduplicated git config", log.String("path", path), log.Error(err))
		return
	}
	logger.Debug("deduplicated git config", log.String("path", path), log.Int("lines_removed", removed))
}
