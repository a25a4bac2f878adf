package inventory

// Entry is one normalized repository inventory entry: a mapping from a
// stable repo key to a configuration bag, per spec.md section 3.
type Entry struct {
	RepoKey string

	Type string

	URL             string
	RepoParentURL   string
	SourceRepoName  string
	SVNRepoCodeRoot string
	Username        string
	Password        string
	CodeHostName    string
	GitOrgName      string
	DestinationRepo string

	GitDefaultBranch  string
	BareClone         bool
	FetchBatchSize    int
	Trunk             StringOrList
	Branches          StringOrList
	Tags              StringOrList
	AuthorsFilePath   string
	AuthorsProgPath   string
	GitIgnoreFilePath string

	// ServerName is the origin host, derived if absent. Non-empty after
	// normalization.
	ServerName string

	// LocalRepoPath is the deterministic composition
	// <serve-root>/<code-host>/<org>/<repo>.
	LocalRepoPath string

	// RemoteCodeRootURL is the concatenation of the server URL, repo path,
	// and optional sub-path.
	RemoteCodeRootURL string
}

// defaults applies the spec.md section 3 defaults for fields left unset.
func (e *Entry) defaults() {
	if e.GitDefaultBranch == "" {
		e.GitDefaultBranch = "trunk"
	}
	if e.FetchBatchSize == 0 {
		e.FetchBatchSize = 100
	}
}

// entryYAML is the duck-typed wire shape for one merged (global + server +
// repo) entry. StringOrList and BoolOrString own the shape-normalization
// DESIGN NOTES (spec.md section 9) asks for; everything else downstream only
// ever sees the normalized Entry above.
type entryYAML struct {
	Type string `yaml:"type"`

	URL           string `yaml:"url"`
	RepoURL       string `yaml:"repo-url"`
	RepoParentURL string `yaml:"repo-parent-url"`

	SourceRepoName  string `yaml:"source-repo-name"`
	SVNRepoCodeRoot string `yaml:"svn-repo-code-root"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	CodeHostName    string `yaml:"code-host-name"`
	GitOrgName      string `yaml:"git-org-name"`
	DestinationRepo string `yaml:"destination-git-repo-name"`

	GitDefaultBranch  string       `yaml:"git-default-branch"`
	BareClone         BoolOrString `yaml:"bare-clone"`
	FetchBatchSize    int          `yaml:"fetch-batch-size"`
	SVNLayout         StringOrList `yaml:"svn-layout"`
	Trunk             StringOrList `yaml:"trunk"`
	Branches          StringOrList `yaml:"branches"`
	Tags              StringOrList `yaml:"tags"`
	AuthorsFilePath   string       `yaml:"authors-file-path"`
	AuthorsProgPath   string       `yaml:"authors-prog-path"`
	GitIgnoreFilePath string       `yaml:"git-ignore-file-path"`

	ServerName string `yaml:"server_name"`
}
