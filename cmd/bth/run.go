package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/btharness/internal/harness"
	"github.com/srg/btharness/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run test classes against the testbed",
	Long: `Run the registered test classes against the devices of the testbed file.

The first device of the testbed is the DUT, the others are reference devices.
Tests are selected with a regular expression matched against "Class.test".
Classes excluded from the default run only run with --include-disabled.

The command exits with an error when a test fails or errors.`,
	Example: `  bth run -c testbed.yaml
  bth run -f '^A2dpTest\.' --format json -o a2dp.json
  bth run -f 'SSPDisplayYesNo' --include-disabled`,
	RunE: runRun,
}

var (
	runFilter          string
	runIncludeDisabled bool
	runFormat          string
	runOutput          string
	runTimeout         time.Duration
)

func init() {
	runCmd.Flags().StringVarP(&runFilter, "filter", "f", "", "Regular expression selecting tests by Class.test name")
	runCmd.Flags().BoolVar(&runIncludeDisabled, "include-disabled", false, "Also run classes excluded from the default run")
	runCmd.Flags().StringVar(&runFormat, "format", "", "Output format (table, json); defaults to the testbed file")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Also write the JSON report to this file")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-test timeout; defaults to the testbed file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	format := cfg.OutputFormat
	if runFormat != "" {
		format = runFormat
	}
	if format != config.FormatTable && format != config.FormatJSON {
		return fmt.Errorf("invalid format '%s': must be one of [%s %s]", format, config.FormatTable, config.FormatJSON)
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	classes, filter, err := harness.Select(runFilter)
	if err != nil {
		return err
	}
	if len(classes) == 0 {
		return fmt.Errorf("no test matches %q", runFilter)
	}

	// Usage is only useful for argument errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("Interrupted, stopping the run")
			cancel()
		case <-ctx.Done():
		}
	}()

	tb, err := openDevices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer tb.Close(context.WithoutCancel(ctx))

	runner := harness.NewRunner(&harness.Testbed{Devices: tb.Devices, Logger: logger})
	runner.Filter = filter
	runner.IncludeDisabled = runIncludeDisabled
	runner.TestTimeout = cfg.TestTimeout
	if runTimeout > 0 {
		runner.TestTimeout = runTimeout
	}

	var progress *ProgressPrinter
	if format == config.FormatTable {
		progress = NewProgressPrinter(cmd.ErrOrStderr())
		progress.Start()
		runner.Progress = progress.Callback()
		defer progress.Stop()
	}

	report := runner.Run(ctx, classes)
	if progress != nil {
		progress.Stop()
	}

	if err := writeReport(cmd, report, format); err != nil {
		return err
	}
	if runOutput != "" {
		if err := saveReport(runOutput, report); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return context.Canceled
	}
	if !report.Passed() {
		return ErrTestsFailed
	}
	return nil
}

func writeReport(cmd *cobra.Command, report *harness.Report, format string) error {
	out := cmd.OutOrStdout()
	if format == config.FormatJSON {
		return report.WriteJSON(out)
	}
	return report.WriteTable(out, colorOutput(cmd))
}

func saveReport(path string, report *harness.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
