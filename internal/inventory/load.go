// Package inventory parses and normalizes the declarative repository
// inventory YAML file described in spec.md section 6: a top-level mapping
// where keys are origin servers or the literal global/globals, each server
// mapping containing type, url, and repos, where repos is either a bare
// string or a list of strings/single-key override maps. Globals merge
// first, server config second, per-repo overrides last.
package inventory

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SecretSink is the subset of secret.Registry that inventory loading needs:
// registering any password found in the file so it's redacted from logs.
type SecretSink interface {
	Add(string)
}

// Load reads path, merges global/server/repo layers, and returns one
// normalized Entry per repository. serveRoot is SRC_SERVE_ROOT, used to
// compute each entry's LocalRepoPath.
func Load(path_, serveRoot string, secrets SecretSink) ([]Entry, error) {
	data, err := os.ReadFile(path_)
	if err != nil {
		return nil, errors.Wrap(err, "reading inventory file")
	}
	return Parse(data, serveRoot, secrets)
}

// Parse is Load without the filesystem read, for testability.
func Parse(data []byte, serveRoot string, secrets SecretSink) ([]Entry, error) {
	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, errors.Wrap(err, "parsing inventory YAML")
	}

	globalDefaults := map[string]any{}
	for _, key := range []string{"global", "globals"} {
		if raw, ok := top[key]; ok {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, errors.Errorf("inventory key %q must be a mapping", key)
			}
			mergeInto(globalDefaults, m)
		}
	}

	var entries []Entry
	for serverName, raw := range top {
		if serverName == "global" || serverName == "globals" {
			continue
		}
		serverMap, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Errorf("inventory server %q must be a mapping", serverName)
		}

		reposRaw, hasRepos := serverMap["repos"]
		serverDefaults := map[string]any{}
		mergeInto(serverDefaults, globalDefaults)
		for k, v := range serverMap {
			if k == "repos" {
				continue
			}
			serverDefaults[k] = v
		}

		if !hasRepos {
			continue
		}

		repoItems, err := normalizeRepoList(reposRaw)
		if err != nil {
			return nil, errors.Wrapf(err, "server %q", serverName)
		}

		for _, item := range repoItems {
			merged := map[string]any{}
			mergeInto(merged, serverDefaults)
			mergeInto(merged, item.overrides)

			entry, err := buildEntry(serverName, item.name, merged, serveRoot)
			if err != nil {
				return nil, errors.Wrapf(err, "server %q repo %q", serverName, item.name)
			}
			if entry.Password != "" && secrets != nil {
				secrets.Add(entry.Password)
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

type repoItem struct {
	name      string
	overrides map[string]any
}

// normalizeRepoList accepts repos as a bare string, or a list whose items
// are either strings (repo name only) or single-key mappings
// {repo_name: {...overrides}}.
func normalizeRepoList(raw any) ([]repoItem, error) {
	switch v := raw.(type) {
	case string:
		return []repoItem{{name: v, overrides: map[string]any{}}}, nil
	case []any:
		items := make([]repoItem, 0, len(v))
		for _, elem := range v {
			switch e := elem.(type) {
			case string:
				items = append(items, repoItem{name: e, overrides: map[string]any{}})
			case map[string]any:
				if len(e) != 1 {
					return nil, errors.Errorf("repo override entry must have exactly one key, got %d", len(e))
				}
				for name, overrides := range e {
					overrideMap, ok := overrides.(map[string]any)
					if !ok {
						return nil, errors.Errorf("repo %q override value must be a mapping", name)
					}
					items = append(items, repoItem{name: name, overrides: overrideMap})
				}
			default:
				return nil, errors.Errorf("unsupported repos list element type %T", elem)
			}
		}
		return items, nil
	default:
		return nil, errors.Errorf("repos must be a string or a list, got %T", raw)
	}
}

// mergeInto copies src's keys into dst, src taking priority on conflicts.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

// buildEntry decodes the merged duck-typed map through entryYAML (by
// round-tripping it through YAML) so StringOrList/BoolOrString's
// UnmarshalYAML hooks normalize svn-layout/trunk/branches/tags/bare-clone
// regardless of whether the inventory author wrote a scalar or a list, then
// settles alias fields and the derived invariants from spec.md section 3.
func buildEntry(serverName, repoName string, m map[string]any, serveRoot string) (Entry, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return Entry{}, errors.Wrap(err, "re-encoding merged repo config")
	}
	var raw entryYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Entry{}, errors.Wrap(err, "decoding merged repo config")
	}

	e := Entry{RepoKey: fmt.Sprintf("%s/%s", serverName, repoName)}

	e.Type = strings.ToLower(raw.Type)
	if e.Type == "" {
		return e, errors.New("type is required")
	}

	e.URL = firstNonEmpty(raw.URL, raw.RepoURL, raw.RepoParentURL)
	e.RepoParentURL = raw.RepoParentURL
	e.SourceRepoName = firstNonEmpty(raw.SourceRepoName, repoName)
	e.SVNRepoCodeRoot = raw.SVNRepoCodeRoot
	e.Username = raw.Username
	e.Password = raw.Password
	e.CodeHostName = raw.CodeHostName
	e.GitOrgName = raw.GitOrgName
	e.DestinationRepo = firstNonEmpty(raw.DestinationRepo, repoName)
	e.GitDefaultBranch = raw.GitDefaultBranch
	e.AuthorsFilePath = raw.AuthorsFilePath
	e.AuthorsProgPath = raw.AuthorsProgPath
	e.GitIgnoreFilePath = raw.GitIgnoreFilePath

	e.BareClone = true
	if raw.BareClone.Set {
		e.BareClone = raw.BareClone.Value
	}

	if raw.FetchBatchSize != 0 {
		e.FetchBatchSize = raw.FetchBatchSize
	}

	e.Trunk = firstNonEmptyList(raw.Trunk, raw.SVNLayout)
	e.Branches = raw.Branches
	e.Tags = raw.Tags

	e.defaults()

	e.ServerName = deriveServerName(raw, e)

	org := e.GitOrgName
	repo := e.DestinationRepo
	host := e.CodeHostName
	if host == "" {
		host = e.ServerName
	}
	e.LocalRepoPath = path.Join(serveRoot, host, org, repo)

	e.RemoteCodeRootURL = strings.TrimRight(e.URL, "/")
	if e.SVNRepoCodeRoot != "" {
		e.RemoteCodeRootURL = e.RemoteCodeRootURL + "/" + strings.TrimLeft(e.SVNRepoCodeRoot, "/")
	}

	return e, nil
}

// deriveServerName implements spec.md section 3's invariant: server_name is
// non-empty, derived by parsing any URL field, falling back to
// code-host-name, finally the literal string "unknown".
func deriveServerName(raw entryYAML, e Entry) string {
	if raw.ServerName != "" {
		return raw.ServerName
	}
	for _, candidate := range []string{e.URL, e.RepoParentURL} {
		if host := hostFromURL(candidate); host != "" {
			return host
		}
	}
	if e.CodeHostName != "" {
		return e.CodeHostName
	}
	return "unknown"
}

func hostFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	s := raw
	if idx := strings.Index(s, "://"); idx != -1 {
		s = s[idx+3:]
	}
	if idx := strings.IndexAny(s, "/@"); idx != -1 && strings.Contains(s[:idx], "@") {
		// strip userinfo
		if at := strings.Index(s, "@"); at != -1 {
			s = s[at+1:]
		}
	}
	if idx := strings.IndexByte(s, '/'); idx != -1 {
		s = s[:idx]
	}
	if idx := strings.IndexByte(s, ':'); idx != -1 {
		s = s[:idx]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyList(lists ...StringOrList) StringOrList {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
