package harness

import (
	"encoding/json"
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// statusIndex maps "Class.test" to status. Comparing indexes instead of result
// lists keeps the diff independent of run order and durations.
func statusIndex(r *Report) map[string]interface{} {
	idx := make(map[string]interface{}, len(r.Results))
	for _, res := range r.Results {
		idx[res.Name()] = string(res.Status)
	}
	return idx
}

// DiffReports compares the statuses of two reports. It returns an empty string
// when every test has the same status in both.
func DiffReports(before, after *Report, colored bool) (string, error) {
	left := statusIndex(before)
	leftJSON, err := json.Marshal(left)
	if err != nil {
		return "", err
	}
	rightJSON, err := json.Marshal(statusIndex(after))
	if err != nil {
		return "", err
	}

	d, err := gojsondiff.New().Compare(leftJSON, rightJSON)
	if err != nil {
		return "", fmt.Errorf("compare reports: %w", err)
	}
	if !d.Modified() {
		return "", nil
	}

	f := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{Coloring: colored})
	return f.Format(d)
}
