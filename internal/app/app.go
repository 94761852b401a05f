// Package app wires configuration, the wrapper and the journal into one invocation.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/psantana5/ccwrap/internal/config"
	"github.com/psantana5/ccwrap/internal/logging"
	"github.com/psantana5/ccwrap/internal/report"
	"github.com/psantana5/ccwrap/internal/wrapper"
)

// Streams are where the child's output and the wrapper's banners go.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer
}

// StdStreams returns the process streams.
func StdStreams() Streams {
	return Streams{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Invoke runs one compiler invocation and returns the process exit code.
// Any failure before the wrapper runs is a wrapper failure.
func Invoke(ctx context.Context, cfg *config.Config, args []string, s Streams) int {
	// Logging after the run may also hit a closed stream.
	defer wrapper.IgnoreBrokenPipe()()

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(s.Stderr, "ccwrap: %v\n", err)
		return wrapper.ExitWrapperFailure
	}
	defer logger.Close()

	env, err := wrapper.BuildEnv(os.Environ(), wrapper.EnvPolicy{
		Inherit:     cfg.InheritEnv,
		PathPrepend: cfg.PathPrepend,
		Overrides:   cfg.Env,
	})
	if err != nil {
		fmt.Fprintf(s.Stderr, "ccwrap: %v\n", err)
		logger.Error("invalid environment policy", logging.Fields{"error": err.Error()})
		return wrapper.ExitWrapperFailure
	}

	req, err := wrapper.NewRequest(args)
	if err != nil {
		fmt.Fprintf(s.Stderr, "ccwrap: %v\n", err)
		return wrapper.ExitWrapperFailure
	}

	w := wrapper.New(wrapper.Options{
		Compiler:       cfg.Compiler,
		PolicyFlags:    cfg.PolicyFlags,
		Env:            env,
		Timeout:        cfg.Timeout,
		Banners:        cfg.Banners,
		ForwardSignals: true,
		Stdout:         s.Stdout,
		Stderr:         s.Stderr,
		Logger:         logger,
	})

	logger.Debug("invocation starting", logging.Fields{
		"compiler": cfg.Compiler,
		"args":     len(args),
		"config":   cfg.Source,
	})

	outcome := w.Run(ctx, req)
	Record(cfg, outcome, logger)
	return outcome.Code()
}

// Record logs the outcome and appends it to the journal when one is configured.
// Journal failures are logged and never change the exit code.
func Record(cfg *config.Config, o *wrapper.Outcome, logger *logging.Logger) *report.Result {
	result := report.FromOutcome(o)
	result.LogSummary(logger)

	if cfg.Journal == "" {
		return result
	}
	if err := report.OpenJournal(cfg.Journal).Append(result); err != nil {
		logger.Warn("failed to append journal record", logging.Fields{
			"journal": cfg.Journal,
			"error":   err.Error(),
		})
	}
	return result
}
