package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srg/btharness/internal/harness"
)

// reportCmd groups the commands working on saved JSON reports
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect saved run reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <report.json>",
	Short: "Print a saved report as a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

var reportDiffCmd = &cobra.Command{
	Use:   "diff <before.json> <after.json>",
	Short: "Show the tests whose status changed between two reports",
	Long: `Compare the per-test statuses of two reports written with "bth run --output".

Durations and messages are ignored. Tests present in one report only are shown
as added or removed.`,
	Args: cobra.ExactArgs(2),
	RunE: runReportDiff,
}

var reportDiffExitCode bool

func init() {
	reportDiffCmd.Flags().BoolVar(&reportDiffExitCode, "exit-code", false, "Return an error when statuses differ")
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportDiffCmd)
}

func readReportFile(path string) (*harness.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := harness.ReadReport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func colorOutput(cmd *cobra.Command) bool {
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		return harness.UseColor(f)
	}
	return false
}

func runReportShow(cmd *cobra.Command, args []string) error {
	r, err := readReportFile(args[0])
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	return r.WriteTable(cmd.OutOrStdout(), colorOutput(cmd))
}

func runReportDiff(cmd *cobra.Command, args []string) error {
	before, err := readReportFile(args[0])
	if err != nil {
		return err
	}
	after, err := readReportFile(args[1])
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	diff, err := harness.DiffReports(before, after, colorOutput(cmd))
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No status changes")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), diff)
	if reportDiffExitCode {
		return fmt.Errorf("statuses differ between %s and %s", args[0], args[1])
	}
	return nil
}
