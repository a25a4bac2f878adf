// Package envconfig loads the daemon's environment-variable configuration.
//
// The shape is the teacher's env.BaseConfig idiom (cmd/gitserver/shared/config.go):
// a struct embeds BaseConfig, a Load method calls Get/GetInt/GetInterval for
// each variable with its default and a human description, and validation
// errors accumulate in one place instead of failing fast on the first bad
// value. BaseConfig itself isn't part of the retrieved example pack (only its
// call sites are), so it's implemented here directly against the standard
// library: the concern is thin enough that no third-party config library
// Source material showed was a better fit.
package envconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// BaseConfig accumulates Get/GetInt/... lookups and any errors encountered
// while parsing them, so Load can report every problem at once instead of
// aborting on the first one.
type BaseConfig struct {
	errs []error
}

// Get returns the environment variable's value, or def if unset. description
// exists purely for the same reason the teacher keeps it: a human-readable
// hint when dumping configuration, not consumed by this struct.
func (c *BaseConfig) Get(name, def, _description string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

// GetOptional is Get with no default: an unset variable yields "".
func (c *BaseConfig) GetOptional(name, description string) string {
	return c.Get(name, "", description)
}

// GetInt parses name as an int, recording a config error on failure.
func (c *BaseConfig) GetInt(name, def, description string) int {
	s := c.Get(name, def, description)
	n, err := strconv.Atoi(s)
	if err != nil {
		c.AddError(errors.Wrapf(err, "parsing %s=%q as int", name, s))
		return 0
	}
	return n
}

// GetInterval parses name as a Go duration, recording a config error on
// failure.
func (c *BaseConfig) GetInterval(name, def, description string) time.Duration {
	s := c.Get(name, def, description)
	d, err := time.ParseDuration(s)
	if err != nil {
		c.AddError(errors.Wrapf(err, "parsing %s=%q as duration", name, s))
		return 0
	}
	return d
}

// AddError records a validation error encountered while loading.
func (c *BaseConfig) AddError(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Validate returns a combined error if any Get* call or AddError recorded a
// problem, nil otherwise.
func (c *BaseConfig) Validate() error {
	if len(c.errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(c.errs))
	for _, e := range c.errs {
		msgs = append(msgs, e.Error())
	}
	return errors.Errorf("invalid configuration: %v", msgs)
}

// Config is the full set of environment variables the daemon reads, per
// spec.md section 6.
type Config struct {
	BaseConfig

	LogLevel string

	MaxConcurrentConversionsGlobal    int
	MaxConcurrentConversionsPerServer int
	MaxCycles                         int
	MaxRetries                        int
	RepoConverterIntervalSeconds      time.Duration
	ConcurrencyMonitorInterval        time.Duration

	ReposToConvert string
	SrcServeRoot   string

	LogRecentCommits             bool
	TruncatedOutputMaxLines      int
	TruncatedOutputMaxLineLength int

	BuildTag    string
	BuildCommit string
	BuildDate   string
}

// Load reads every environment variable recognized by spec.md section 6,
// applying its documented default. Call Validate afterwards.
func (c *Config) Load() {
	c.LogLevel = c.Get("LOG_LEVEL", "INFO", "Minimum log level to emit.")

	c.MaxConcurrentConversionsGlobal = c.GetInt("MAX_CONCURRENT_CONVERSIONS_GLOBAL", "10", "Global concurrent conversion cap.")
	c.MaxConcurrentConversionsPerServer = c.GetInt("MAX_CONCURRENT_CONVERSIONS_PER_SERVER", "10", "Per-origin-server concurrent conversion cap.")
	c.MaxCycles = c.GetInt("MAX_CYCLES", "0", "Number of main-loop cycles to run before exiting; 0 means unbounded.")
	c.MaxRetries = c.GetInt("MAX_RETRIES", "3", "Read but not applied: the svn info retry count in internal/gitsvn is fixed at 3.")

	c.RepoConverterIntervalSeconds = c.getIntervalSeconds("REPO_CONVERTER_INTERVAL_SECONDS", "REPO_CONVERTER_INTERVAL_SECONDS", "3600", "Sleep duration between main-loop cycles, in seconds.")
	c.ConcurrencyMonitorInterval = c.getIntervalSeconds("CONCURRENCY_MONITOR_INTERVAL", "STATUS_MONITOR_INTERVAL", "60", "Interval between status-monitor snapshots, in seconds.")

	c.ReposToConvert = c.Get("REPOS_TO_CONVERT", "/data/repos-to-convert.yaml", "Path to the inventory YAML file.")
	c.SrcServeRoot = c.Get("SRC_SERVE_ROOT", "/data/repos", "Root directory under which converted repositories are stored.")
	if c.SrcServeRoot == "" {
		c.AddError(errors.New("SRC_SERVE_ROOT is required"))
	}

	c.LogRecentCommits = c.getBool("LOG_RECENT_COMMITS", "0")
	c.TruncatedOutputMaxLines = c.GetInt("TRUNCATED_OUTPUT_MAX_LINES", "11", "Max log lines kept per subprocess invocation before truncation.")
	c.TruncatedOutputMaxLineLength = c.GetInt("TRUNCATED_OUTPUT_MAX_LINE_LENGTH", "200", "Max characters kept per log line before truncation.")

	c.BuildTag = c.GetOptional("BUILD_TAG", "Build tag for log enrichment.")
	c.BuildCommit = c.GetOptional("BUILD_COMMIT", "Build commit for log enrichment.")
	c.BuildDate = c.GetOptional("BUILD_DATE", "Build date; read but not attached to log records.")
}

// getIntervalSeconds supports CONCURRENCY_MONITOR_INTERVAL and its alias
// STATUS_MONITOR_INTERVAL (spec.md section 6 documents both with identical
// semantics), preferring whichever is explicitly set, and treats the value
// as whole seconds rather than a Go duration string since that's how the
// source environment documents it.
func (c *BaseConfig) getIntervalSeconds(name, alias, def, description string) time.Duration {
	s := c.GetOptional(name, description)
	if s == "" {
		s = c.GetOptional(alias, description)
	}
	if s == "" {
		s = def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		c.AddError(errors.Wrapf(err, "parsing %s/%s=%q as seconds", name, alias, s))
		return 0
	}
	return time.Duration(n) * time.Second
}

func (c *BaseConfig) getBool(name, def string) bool {
	s := c.Get(name, def, "")
	b, err := strconv.ParseBool(s)
	if err != nil {
		c.AddError(errors.Wrapf(err, "parsing %s=%q as bool", name, s))
		return false
	}
	return b
}
