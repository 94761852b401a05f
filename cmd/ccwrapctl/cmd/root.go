package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/ccwrap/internal/config"
)

var cfgFile string

// ExitError carries a process exit code out of a command without printing anything.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ccwrapctl",
	Short: "Operate the ccwrap compiler wrapper",
	Long: `ccwrapctl runs, inspects and reports on ccwrap, the wrapper that build systems
invoke in place of the real compiler.

Configuration is read from --config, $CCWRAP_CONFIG, ccwrap.yaml next to the
executable or $HOME/.ccwrap/config.yaml, then overridden by CCWRAP_* variables
and finally by flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ccwrap.yaml next to ccwrap, then $HOME/.ccwrap/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json, logfmt")
	rootCmd.PersistentFlags().String("log-file", "", "append logs to this file instead of stderr")
}

// loadConfig resolves the effective configuration with cmd's flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.New(), config.Options{
		File:       cfgFile,
		Candidates: config.DefaultCandidates(),
		Flags:      cmd.Flags(),
	})
}
