package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Status is the outcome of a test.
type Status string

const (
	StatusRunning Status = "running"
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkip    Status = "skip"
	StatusError   Status = "error"
)

// Result is the outcome of one test.
type Result struct {
	Class    string        `json:"class"`
	Test     string        `json:"test"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Messages []string      `json:"messages,omitempty"`
}

// Name is "Class.test".
func (r Result) Name() string { return r.Class + "." + r.Test }

// Report holds the results of a run.
type Report struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Results  []Result  `json:"results"`
}

// Summary counts results per status.
func (r *Report) Summary() map[Status]int {
	counts := map[Status]int{}
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Passed reports whether no test failed or errored.
func (r *Report) Passed() bool {
	s := r.Summary()
	return s[StatusFail] == 0 && s[StatusError] == 0
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ReadReport decodes a report written by WriteJSON.
func ReadReport(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("invalid report: %w", err)
	}
	return &r, nil
}

// UseColor reports whether f is a terminal that should get colored output.
func UseColor(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
}

func statusColor(st Status) *color.Color {
	switch st {
	case StatusPass:
		return color.New(color.FgGreen)
	case StatusFail, StatusError:
		return color.New(color.FgRed, color.Bold)
	case StatusSkip:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

// WriteTable writes one line per test followed by a summary.
func (r *Report) WriteTable(w io.Writer, colored bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tTEST\tDURATION\tDETAILS")
	for _, res := range r.Results {
		status := strings.ToUpper(string(res.Status))
		if colored {
			c := statusColor(res.Status)
			c.EnableColor()
			status = c.Sprint(status)
		}
		details := ""
		if len(res.Messages) > 0 {
			details = firstLine(res.Messages[0])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", status, res.Name(), res.Duration.Round(time.Millisecond), details)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := r.Summary()
	_, err := fmt.Fprintf(w, "\n%d tests: %d passed, %d failed, %d errors, %d skipped\n",
		len(r.Results), s[StatusPass], s[StatusFail], s[StatusError], s[StatusSkip])
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
