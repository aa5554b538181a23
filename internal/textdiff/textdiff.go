// Package textdiff renders unified diffs between two texts after optional
// whitespace normalization.
package textdiff

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

type Options struct {
	IgnoreLeadingWhitespace  bool `default:"false"`
	IgnoreTrailingWhitespace bool `default:"false"`
	IgnoreEmptyLines         bool `default:"false"`
	TrimSpace                bool `default:"false"`
	EnableColors             bool `default:"false"`

	ExpectedLabel string `default:"expected"`
	ActualLabel   string `default:"actual"`
}

// Option is a functional option for configuring a Differ
type Option func(*Options)

// Differ compares texts with a fixed set of normalization options.
type Differ struct {
	options Options
}

// New creates a Differ with default options
func New(opts ...Option) *Differ {
	o := Options{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &Differ{options: o}
}

// Options returns a copy of the current options
func (d *Differ) Options() Options {
	return d.options
}

// Equal reports whether both texts are identical after normalization.
func (d *Differ) Equal(expected, actual string) bool {
	return d.Normalize(expected) == d.Normalize(actual)
}

// Diff returns the unified diff from expected to actual, or "" when they match.
func (d *Differ) Diff(expected, actual string) string {
	normalizedExpected := d.Normalize(expected)
	normalizedActual := d.Normalize(actual)
	if normalizedActual == normalizedExpected {
		return ""
	}

	// gotextdiff expects newline-terminated input to render the last line
	if !strings.HasSuffix(normalizedExpected, "\n") {
		normalizedExpected += "\n"
	}
	if !strings.HasSuffix(normalizedActual, "\n") {
		normalizedActual += "\n"
	}

	edits := myers.ComputeEdits("", normalizedExpected, normalizedActual)
	unified := gotextdiff.ToUnified(d.options.ExpectedLabel, d.options.ActualLabel, normalizedExpected, edits)

	return d.colorize(fmt.Sprint(unified))
}

// colorize applies colors to unified diff output
func (d *Differ) colorize(diff string) string {
	if !d.options.EnableColors {
		return diff
	}

	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()
	yellow := color.New(color.FgYellow)
	yellow.EnableColor()

	lines := strings.Split(diff, "\n")
	colorized := make([]string, 0, len(lines))
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
			colorized = append(colorized, yellow.Sprint(line))
		case strings.HasPrefix(line, "@@"):
			colorized = append(colorized, cyan.Sprint(line))
		case strings.HasPrefix(line, "-"):
			colorized = append(colorized, red.Sprint(highlightWhitespace(line)))
		case strings.HasPrefix(line, "+"):
			colorized = append(colorized, green.Sprint(highlightWhitespace(line)))
		default:
			colorized = append(colorized, line)
		}
	}
	return strings.Join(colorized, "\n")
}

// highlightWhitespace replaces spaces with a middle dot and tabs with an arrow
func highlightWhitespace(line string) string {
	line = strings.ReplaceAll(line, " ", "·")
	return strings.ReplaceAll(line, "\t", "→")
}

// Normalize applies the configured whitespace rules to text.
func (d *Differ) Normalize(text string) string {
	if d.options.TrimSpace {
		text = strings.TrimSpace(text)
	}

	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if d.options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		if d.options.IgnoreLeadingWhitespace {
			line = strings.TrimLeft(line, " \t")
		}
		if d.options.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

// WithIgnoreLeadingWhitespace sets whether to ignore leading whitespace on each line
func WithIgnoreLeadingWhitespace(ignore bool) Option {
	return func(o *Options) { o.IgnoreLeadingWhitespace = ignore }
}

// WithIgnoreTrailingWhitespace sets whether to ignore trailing whitespace on each line
func WithIgnoreTrailingWhitespace(ignore bool) Option {
	return func(o *Options) { o.IgnoreTrailingWhitespace = ignore }
}

// WithIgnoreEmptyLines sets whether to ignore empty lines
func WithIgnoreEmptyLines(ignore bool) Option {
	return func(o *Options) { o.IgnoreEmptyLines = ignore }
}

// WithTrimSpace sets whether to trim leading and trailing whitespace from entire text
func WithTrimSpace(trim bool) Option {
	return func(o *Options) { o.TrimSpace = trim }
}

// WithEnableColors sets whether to enable colored diff output
func WithEnableColors(enable bool) Option {
	return func(o *Options) { o.EnableColors = enable }
}

// WithLabels names the two sides in the diff header.
func WithLabels(expected, actual string) Option {
	return func(o *Options) {
		o.ExpectedLabel = expected
		o.ActualLabel = actual
	}
}
