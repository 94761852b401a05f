package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/ccwrap/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <compiler args...>",
	Short: "Run one compiler invocation through the wrapper",
	Long: `Run behaves exactly like invoking ccwrap, but lets flags override the
configuration for this one invocation. Everything after -- is passed to the
compiler verbatim, after the policy flags.

Example:
  ccwrapctl run -- /c main.c
  ccwrapctl run --compiler /opt/llvm/bin/clang-cl --quiet -- -c foo.c
  ccwrapctl run --policy-flag -masm=att --policy-flag -v --timeout 5m -- -c big.c`,
	Args: cobra.ArbitraryArgs,
	RunE: runInvocation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("compiler", "", "path to the real compiler")
	runCmd.Flags().StringArray("policy-flag", nil, "policy flag prepended to the arguments (repeatable, replaces the configured list)")
	runCmd.Flags().StringArray("env", nil, "KEY=VALUE set in the compiler environment (repeatable)")
	runCmd.Flags().StringArray("path-prepend", nil, "directory prepended to PATH (repeatable)")
	runCmd.Flags().Duration("timeout", 0, "kill the compiler after this long (0 waits forever)")
	runCmd.Flags().Bool("quiet", false, "suppress the wrapper's own banner lines")
	runCmd.Flags().String("journal", "", "append the invocation record to this journal")
}

func runInvocation(cmd *cobra.Command, args []string) error {
	if dash := cmd.ArgsLenAtDash(); dash > 0 {
		return fmt.Errorf("unexpected arguments before --: %v", args[:dash])
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	code := app.Invoke(context.Background(), cfg, args, app.StdStreams())
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
