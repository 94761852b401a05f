package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/ccwrap/internal/doctor"
)

var doctorOutput string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the compiler, journal and host",
	Long: `Checks that the configured compiler exists and answers --version, that the
journal can be written and reports host CPU and memory. Exits 1 when a check fails.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("compiler", "", "check this compiler instead of the configured one")
	doctorCmd.Flags().String("journal", "", "check this journal instead of the configured one")
	doctorCmd.Flags().StringVarP(&doctorOutput, "output", "o", "table", "output format: table, json")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report := doctor.Run(context.Background(), cfg)

	out := cmd.OutOrStdout()
	if doctorOutput == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(out)
		table.Header("Check", "Status", "Detail")
		for _, c := range report.Checks {
			table.Append([]string{c.Name, strings.ToUpper(string(c.Status)), c.Detail})
		}
		table.Render()
		if cfg.Source != "" {
			fmt.Fprintf(out, "config: %s\n", cfg.Source)
		}
	}

	if !report.OK() {
		return &ExitError{Code: 1}
	}
	return nil
}
