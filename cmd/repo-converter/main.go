// Command repo-converter runs the conversion daemon: it periodically reads
// a declarative inventory of origin-server repositories, converts each one
// (git-svn to git being the primary conversion this daemon performs), and
// serves the results from a local directory tree.
//
// Shaped after the teacher's cmd/gitserver/main.go: environment
// configuration is loaded and validated up front, logging is initialized
// once, and the remainder of the process is handed off to a long-lived
// Main function.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sourcegraph/repo-converter-sub000/internal/daemon"
	"github.com/sourcegraph/repo-converter-sub000/internal/envconfig"
	"github.com/sourcegraph/repo-converter-sub000/internal/logging"
	"github.com/sourcegraph/repo-converter-sub000/internal/shutdown"
)

func main() {
	var cfg envconfig.Config
	cfg.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "repo-converter: invalid configuration:", err)
		os.Exit(1)
	}

	if _, ok := os.LookupEnv("SRC_LOG_LEVEL"); !ok {
		os.Setenv("SRC_LOG_LEVEL", cfg.LogLevel) //nolint:errcheck
	}

	logger, sync := logging.Init(logging.Resource{
		Name:       "repo-converter",
		Version:    cfg.BuildTag,
		InstanceID: cfg.BuildCommit,
	})
	defer sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())

	d := daemon.New(logger, cfg, int32(os.Getpid()))
	handler := shutdown.New(logger, d.Waiter(), d.Reaper(), cancel)

	handlerDone := make(chan struct{})
	go func() {
		handler.Run()
		close(handlerDone)
	}()

	d.Run(ctx)
	if ctx.Err() != nil {
		// Canceled by the shutdown handler: let its orderly shutdown finish.
		<-handlerDone
	}
}
