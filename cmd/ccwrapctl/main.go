// Command ccwrapctl inspects and operates the ccwrap compiler wrapper.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/psantana5/ccwrap/cmd/ccwrapctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
