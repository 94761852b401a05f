// Command ccwrap stands in for the real compiler in a build. Every argument is
// forwarded verbatim after the configured policy flags; ccwrap has no flags of
// its own. Configuration comes from ccwrap.yaml and CCWRAP_* variables.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/psantana5/ccwrap/internal/app"
	"github.com/psantana5/ccwrap/internal/config"
	"github.com/psantana5/ccwrap/internal/wrapper"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(config.New(), config.Options{Candidates: config.DefaultCandidates()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ccwrap: %v\n", err)
		return wrapper.ExitWrapperFailure
	}
	return app.Invoke(context.Background(), cfg, os.Args[1:], app.StdStreams())
}
