package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/ccwrap/internal/report"
)

var (
	statsOutput  string
	showFailures bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the invocation journal",
	Long: `Reads the journal and prints totals, exit code counts and durations.

Example:
  ccwrapctl stats
  ccwrapctl stats --failures
  ccwrapctl stats --output prom > ccwrap.prom`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("journal", "", "journal to read instead of the configured one")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "output format: table, json, prom")
	statsCmd.Flags().BoolVar(&showFailures, "failures", false, "list the most recent failures")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Journal == "" {
		return errors.New("no journal configured (set journal in the config file, CCWRAP_JOURNAL or --journal)")
	}

	journal := report.OpenJournal(cfg.Journal)
	out := cmd.OutOrStdout()

	switch statsOutput {
	case "prom":
		return report.WriteText(out, report.NewRegistry(journal))
	case "json", "table":
	default:
		return fmt.Errorf("unknown output format %q (want table, json or prom)", statsOutput)
	}

	results, skipped, err := journal.ReadAll()
	if err != nil {
		return err
	}
	summary := report.Summarize(results, skipped)

	if statsOutput == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	table := tablewriter.NewWriter(out)
	table.Header("Metric", "Value")
	table.Append([]string{"Journal", journal.Path()})
	table.Append([]string{"Invocations", strconv.Itoa(summary.Total)})
	table.Append([]string{"Succeeded", strconv.Itoa(summary.Succeeded)})
	table.Append([]string{"Compiler failures", strconv.Itoa(summary.ChildFailures)})
	table.Append([]string{"Wrapper failures", strconv.Itoa(summary.WrapperFailures)})
	table.Append([]string{"Mean duration", fmt.Sprintf("%.3fs", summary.MeanDuration)})
	table.Append([]string{"Max duration", fmt.Sprintf("%.3fs", summary.MaxDuration)})
	table.Append([]string{"Lines relayed", fmt.Sprintf("%d stdout / %d stderr", summary.StdoutLines, summary.StderrLines)})
	if summary.SkippedLines > 0 {
		table.Append([]string{"Unreadable records", strconv.Itoa(summary.SkippedLines)})
	}
	table.Render()

	codes := make([]int, 0, len(summary.ByCode))
	for code := range summary.ByCode {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	if len(codes) > 0 {
		fmt.Fprintln(out)
		byCode := tablewriter.NewWriter(out)
		byCode.Header("Exit Code", "Count")
		for _, code := range codes {
			byCode.Append([]string{strconv.Itoa(code), strconv.Itoa(summary.ByCode[code])})
		}
		byCode.Render()
	}

	if showFailures && len(summary.RecentFailures) > 0 {
		fmt.Fprintln(out)
		failures := tablewriter.NewWriter(out)
		failures.Header("ID", "Started", "Outcome", "Code", "Duration", "Error")
		for _, f := range summary.RecentFailures {
			failures.Append([]string{
				shortID(f.ID),
				f.StartTime,
				f.Outcome,
				strconv.Itoa(f.Code),
				fmt.Sprintf("%.3fs", f.Duration),
				f.Error,
			})
		}
		failures.Render()
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
