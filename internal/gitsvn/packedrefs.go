package gitsvn

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/sourcegraph/repo-converter-sub000/internal/inventory"
	"github.com/sourcegraph/repo-converter-sub000/internal/runner"
)

const (
	localBranchPrefix  = "refs/heads/"
	localTagPrefix     = "refs/tags/"
	remoteBranchPrefix = "refs/remotes/origin/"
	remoteTagPrefix    = "refs/remotes/origin/tags/"
	gitSvnDefaultRef   = "refs/remotes/git-svn"
)

// remoteExclusions are substrings that mark a remote ref as junk (SVN peg
// revisions like "tags/v1@123") that should never be promoted to a local
// branch or tag, ported verbatim from original_source's
// remote_branch_exclusions/remote_tag_exclusions.
var remoteExclusions = []string{"@"}

// packedRefLine is one parsed "<hash> <path>" entry from packed-refs.
type packedRefLine struct {
	Hash string
	Path string
}

// unparseableLine is an input line that didn't split into exactly one hash
// and one path, kept verbatim and re-inserted at its original position.
type unparseableLine struct {
	Text  string
	Index int
}

// rewritePackedRefs implements original_source's src/utils/git.py
// cleanup_branches_and_tags line-rewrite table: drop existing local
// branches/tags (they're recreated from their remote counterparts below),
// keep every remote-tracking ref `git svn fetch` needs for its own
// incremental bookkeeping, and additionally emit the refs/heads or
// refs/tags equivalent for a non-excluded remote. The git-svn default
// remote ref is special-cased to emit the repo's configured default
// branch rather than a ref literally named "git-svn".
func rewritePackedRefs(lines []string, defaultBranch string) []string {
	var kept []packedRefLine
	var unparseable []unparseableLine

	for i, line := range lines {
		parts := strings.Split(line, " ")
		if len(parts) != 2 {
			unparseable = append(unparseable, unparseableLine{Text: line, Index: i})
			continue
		}
		hash, path := parts[0], parts[1]

		switch {
		case strings.HasPrefix(path, localTagPrefix):
			// dropped: recreated below from its remote-tag counterpart.
		case strings.HasPrefix(path, localBranchPrefix):
			// dropped: recreated below from its remote-branch counterpart.
		case path == gitSvnDefaultRef:
			kept = append(kept, packedRefLine{Hash: hash, Path: path})
			kept = append(kept, packedRefLine{Hash: hash, Path: localBranchPrefix + defaultBranch})
		case strings.HasPrefix(path, remoteTagPrefix):
			kept = append(kept, packedRefLine{Hash: hash, Path: path})
			if !containsAny(path, remoteExclusions) {
				kept = append(kept, packedRefLine{Hash: hash, Path: localTagPrefix + strings.TrimPrefix(path, remoteTagPrefix)})
			}
		case strings.HasPrefix(path, remoteBranchPrefix):
			kept = append(kept, packedRefLine{Hash: hash, Path: path})
			if !containsAny(path, remoteExclusions) {
				kept = append(kept, packedRefLine{Hash: hash, Path: localBranchPrefix + strings.TrimPrefix(path, remoteBranchPrefix)})
			}
		default:
			unparseable = append(unparseable, unparseableLine{Text: line, Index: i})
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Path != kept[j].Path {
			return kept[i].Path < kept[j].Path
		}
		return kept[i].Hash < kept[j].Hash
	})

	out := make([]string, 0, len(kept)+len(unparseable))
	for _, k := range kept {
		out = append(out, k.Hash+" "+k.Path)
	}

	// Re-insert unparseable lines (comments, the packed-refs header, lines
	// that didn't split cleanly) at their original index, in original
	// order, exactly as original_source's repeated list.insert does.
	for _, u := range unparseable {
		idx := u.Index
		if idx > len(out) {
			idx = len(out)
		}
		out = append(out, "")
		copy(out[idx+1:], out[idx:])
		out[idx] = u.Text
	}

	return out
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// cleanupBranchesAndTags runs `git pack-refs --all` to consolidate loose
// refs into packed-refs, rewrites that file per rewritePackedRefs, and
// re-asserts the default symbolic ref afterward since the rewrite drops
// and recreates refs/heads/<default> from the git-svn remote ref.
func (d *Driver) cleanupBranchesAndTags(ctx context.Context, e inventory.Entry) {
	d.runner.Run(ctx, gitArgs(e, "pack-refs", "--all"), runner.Options{Dir: e.LocalRepoPath, Quiet: true, Name: "pack-refs"}) //nolint:errcheck

	path := e.LocalRepoPath + "/.git/packed-refs"
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	rewritten := rewritePackedRefs(lines, e.GitDefaultBranch)

	out := strings.Join(rewritten, "\n")
	if len(rewritten) > 0 {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return
	}

	d.runner.Run(ctx, gitArgs(e, "symbolic-ref", "HEAD", "refs/heads/"+e.GitDefaultBranch), runner.Options{Dir: e.LocalRepoPath, Name: "reassert-default-branch"}) //nolint:errcheck
}
