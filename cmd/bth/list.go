package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/btharness/internal/harness"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered test classes and tests",
	Long: `List the tests of every registered class, or of the tests a filter selects.

Classes excluded from the default run are listed with the reason.`,
	Example: `  bth list
  bth list -f '^HapTest\.'`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var (
	listFilter string
	listFormat string
)

// listedTest is the JSON form of one listed test.
type listedTest struct {
	Class    string `json:"class"`
	Test     string `json:"test"`
	Disabled string `json:"disabled,omitempty"`
}

func init() {
	listCmd.Flags().StringVarP(&listFilter, "filter", "f", "", "Regular expression selecting tests by Class.test name")
	listCmd.Flags().StringVar(&listFormat, "format", "table", "Output format (table, json)")
}

func runList(cmd *cobra.Command, args []string) error {
	if listFormat != "table" && listFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", listFormat)
	}
	classes, filter, err := harness.Select(listFilter)
	if err != nil {
		return err
	}

	var tests []listedTest
	for _, c := range classes {
		disabled := ""
		if d, ok := c.(harness.Disabler); ok {
			disabled = d.DisabledReason()
		}
		for _, test := range c.Tests() {
			if filter != nil && !filter.MatchString(c.Name()+"."+test.Name) {
				continue
			}
			tests = append(tests, listedTest{Class: c.Name(), Test: test.Name, Disabled: disabled})
		}
	}

	out := cmd.OutOrStdout()
	if listFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tests)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEST\tDISABLED")
	for _, t := range tests {
		fmt.Fprintf(w, "%s.%s\t%s\n", t.Class, t.Test, t.Disabled)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "\n%d tests\n", len(tests))
	return err
}
