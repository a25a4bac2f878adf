// Package runner executes external commands (git, git-svn, svn) and gathers
// their result without ever raising on a child process's own failure — only
// a could-not-exec condition is reported as a Go error, matching
// spec.md section 5's "never raises on child failure" invariant.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go/ext"
	"github.com/sourcegraph/log"

	"github.com/sourcegraph/repo-converter-sub000/internal/lockfiles"
	"github.com/sourcegraph/repo-converter-sub000/internal/ot"
)

// unsetExitCode is the sentinel used when the process never produced an
// exit status (it failed to start), mirroring the teacher's
// common.UnsetExitStatus.
const unsetExitCode = -10810

// Options customizes one invocation.
type Options struct {
	// Dir is the working directory the command runs in.
	Dir string
	// Env, if non-nil, replaces the inherited process environment.
	Env []string
	// Password, if non-empty, is written to the child's stdin and the pipe
	// is then closed — the plumbing git-svn/svn credential prompts need,
	// ported from original_source's run_subprocess(password=...).
	Password string
	// Name labels the invocation in logs and traces (e.g. "git-svn-fetch").
	Name string
	// Quiet suppresses the non-error started/finished log line.
	Quiet bool
	// MaxOutputLines/MaxLineLength override the package defaults when
	// non-zero, per TRUNCATED_OUTPUT_MAX_LINES/TRUNCATED_OUTPUT_MAX_LINE_LENGTH.
	MaxOutputLines int
	MaxLineLength  int
	// StderrMode selects how the child's stderr is handled, per C2's
	// {stdout|ignore|stderr} contract. "" and "stdout" merge stderr into
	// Result.Output (the default); "ignore" discards it; "stderr" captures
	// it separately into Result.Stderr, leaving Result.Output as stdout only.
	StderrMode string
}

const (
	StderrModeMerge  = "stdout"
	StderrModeIgnore = "ignore"
	StderrModeSplit  = "stderr"
)

// Result is the normalized outcome of one invocation.
type Result struct {
	Args             []string
	Name             string
	PID              int
	ExitCode         int
	Success          bool
	Output           []string // full, unsplit-truncated output lines (shape set by Options.StderrMode)
	Stderr           []string // populated only when Options.StderrMode is StderrModeSplit
	TruncatedOutput  []string // half-and-half truncated, for logging
	StartTime        time.Time
	EndTime          time.Time
	ExecutionTime    time.Duration
	FailedDueToLock  bool
}

// Runner executes commands and recovers stale lock files on failure.
type Runner struct {
	logger  log.Logger
	locks   *lockfiles.Recoverer
	maxLines int
	maxLineLen int
}

// New constructs a Runner. maxLines/maxLineLen are the daemon-wide defaults
// from envconfig.Config (TRUNCATED_OUTPUT_MAX_LINES/_MAX_LINE_LENGTH);
// Options can override them per call.
func New(logger log.Logger, locks *lockfiles.Recoverer, maxLines, maxLineLen int) *Runner {
	return &Runner{
		logger:     logger.Scoped("runner", "external command execution"),
		locks:      locks,
		maxLines:   maxLines,
		maxLineLen: maxLineLen,
	}
}

// Run executes argv[0] with argv[1:] as arguments. A non-nil error is
// returned only when the process could not be started at all; a non-zero
// exit code is reported via Result.Success/ExitCode, not as an error.
func (r *Runner) Run(ctx context.Context, argv []string, opts Options) (*Result, error) {
	span, ctx := ot.StartSpan(ctx, "runner.Run")
	span.SetTag("name", opts.Name)
	span.SetTag("args", strings.Join(argv, " "))
	span.SetTag("dir", opts.Dir)
	defer span.Finish()

	res := &Result{Args: argv, Name: opts.Name, ExitCode: unsetExitCode, StartTime: time.Now()}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	switch opts.StderrMode {
	case StderrModeIgnore:
		// leave cmd.Stderr nil: exec discards it to /dev/null.
	case StderrModeSplit:
		cmd.Stderr = &errBuf
	default:
		cmd.Stderr = &outBuf
	}

	if opts.Password != "" {
		// Prefilling stdin with the password up front (rather than a pipe
		// written to after Start) is sufficient here: neither svn nor
		// git-svn read any of their own stdout before consuming stdin, so
		// there's no producer/consumer ordering to get wrong. Ported from
		// original_source's run_subprocess(password=...).
		cmd.Stdin = strings.NewReader(opts.Password)
	}

	startErr := cmd.Start()
	if startErr != nil {
		ext.Error.Set(span, true)
		span.SetTag("err", startErr.Error())
		res.EndTime = time.Now()
		res.ExecutionTime = res.EndTime.Sub(res.StartTime)
		return res, startErr
	}
	res.PID = cmd.Process.Pid

	if !opts.Quiet {
		r.logger.Debug("process started",
			log.String("name", opts.Name),
			log.Int("pid", res.PID),
			log.String("args", strings.Join(argv, " ")))
	}

	waitErr := cmd.Wait()
	res.EndTime = time.Now()
	res.ExecutionTime = res.EndTime.Sub(res.StartTime)

	res.ExitCode = unsetExitCode
	if cmd.ProcessState != nil {
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
			res.ExitCode = ws.ExitStatus()
		}
	}
	res.Success = waitErr == nil && res.ExitCode == 0

	res.Output = splitNonEmptyLines(outBuf.String())
	if opts.StderrMode == StderrModeSplit {
		res.Stderr = splitNonEmptyLines(errBuf.String())
	}
	maxLines := r.maxLines
	if opts.MaxOutputLines != 0 {
		maxLines = opts.MaxOutputLines
	}
	maxLineLen := r.maxLineLen
	if opts.MaxLineLength != 0 {
		maxLineLen = opts.MaxLineLength
	}
	res.TruncatedOutput = TruncateOutput(res.Output, maxLines, maxLineLen)

	if !res.Success && looksLikeGitOrSVN(argv) && r.locks != nil {
		if recovered := r.locks.Recover(opts.Dir); recovered {
			res.FailedDueToLock = true
		}
	}

	// "debug" / "error", with a "warn" carve-out for failures that turned
	// out to be a recovered stale lock file, per original_source's
	// log_process_status level precedence.
	switch {
	case res.Success:
		if !opts.Quiet {
			r.logProcessStatus(res, r.logger.Debug)
		}
	case res.FailedDueToLock:
		r.logProcessStatus(res, r.logger.Warn)
	default:
		ext.Error.Set(span, true)
		span.SetTag("exitCode", res.ExitCode)
		r.logProcessStatus(res, r.logger.Error)
	}

	return res, nil
}

func (r *Runner) logProcessStatus(res *Result, logFn func(string, ...log.Field)) {
	logFn("process finished",
		log.String("name", res.Name),
		log.Int("pid", res.PID),
		log.Int("exit_code", res.ExitCode),
		log.Bool("success", res.Success),
		log.Float64("execution_time_seconds", res.ExecutionTime.Seconds()),
		log.Strings("truncated_output", res.TruncatedOutput),
	)
}

func looksLikeGitOrSVN(argv []string) bool {
	joined := strings.Join(argv, " ")
	return strings.Contains(joined, "git") || strings.Contains(joined, "svn")
}

func splitNonEmptyLines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// TruncateOutput implements the exact half-and-half truncation algorithm
// from original_source's truncate_output: if the line count fits within
// maxLines it's returned as-is; otherwise the first and last maxLines/2
// non-empty lines are kept with a marker line in between. Each surviving
// line is then further shortened to maxLineLen characters.
func TruncateOutput(output []string, maxLines, maxLineLen int) []string {
	if maxLines <= 0 {
		maxLines = 11
	}
	if maxLineLen <= 0 {
		maxLineLen = 200
	}

	var truncated []string
	if len(output) <= maxLines {
		truncated = append(truncated, output...)
	} else {
		half := maxLines / 2

		first := make([]string, 0, half)
		for _, line := range output {
			if line == "" {
				continue
			}
			first = append(first, line)
			if len(first) >= half {
				break
			}
		}

		last := make([]string, 0, half)
		for i := len(output) - 1; i >= 0; i-- {
			line := output[i]
			if line == "" {
				continue
			}
			last = append(last, line)
			if len(last) >= half {
				break
			}
		}
		reverse(last)

		truncated = append(truncated, first...)
		truncated = append(truncated, "...TRUNCATED FROM "+strconv.Itoa(len(output))+" LINES TO "+strconv.Itoa(maxLines)+" LINES FOR LOGS...")
		truncated = append(truncated, last...)
	}

	for i, line := range truncated {
		if len(line) > maxLineLen {
			truncated[i] = shorten(line, maxLineLen)
		}
	}
	return truncated
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// shorten mimics textwrap.shorten's placeholder behavior closely enough for
// log readability: keep a prefix of width-len(placeholder) characters and
// append a placeholder describing how much was cut.
func shorten(line string, width int) string {
	placeholder := "...LINE TRUNCATED FROM " + strconv.Itoa(len(line)) + " CHARACTERS TO " + strconv.Itoa(width) + " CHARACTERS FOR LOGS"
	if width <= len(placeholder) {
		return placeholder
	}
	keep := width - len(placeholder)
	return line[:keep] + placeholder
}
