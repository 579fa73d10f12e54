// Package output provides output formatters for scenario results.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/alertflow/internal/scenario"
)

// Formatter formats a scenario result for output.
type Formatter interface {
	// Format writes the formatted result to the writer.
	Format(w io.Writer, res *scenario.Result) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatPlain FormatType = "plain"
	FormatJSON  FormatType = "json"
	FormatKinds FormatType = "kinds"
)

// ParseFormat validates a format name. Empty means plain.
func ParseFormat(s string) (FormatType, error) {
	switch FormatType(strings.ToLower(s)) {
	case FormatPlain, "":
		return FormatPlain, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatKinds:
		return FormatKinds, nil
	}
	return "", fmt.Errorf("unknown output format %q (want plain, json or kinds)", s)
}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) (Formatter, error) {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatKinds:
		return NewKindsFormatter(), nil
	default:
		return NewPlainFormatter(opts)
	}
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template  string // Custom per-event template for plain format
	ShowIndex bool   // Show 0-based event index prefix
	ShowSteps bool   // Append the per-step visibility table
	TitleLen  int    // Maximum title length (0 = unlimited)
}

// DefaultFormatterOptions returns sensible defaults for terminal output.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		TitleLen: 40,
	}
}

// KindsFormatter outputs just the event kinds, one per line.
// Useful for diffing two runs.
type KindsFormatter struct{}

// NewKindsFormatter creates a new kinds formatter.
func NewKindsFormatter() *KindsFormatter {
	return &KindsFormatter{}
}

// Format writes event kinds to the writer, one per line.
func (f *KindsFormatter) Format(w io.Writer, res *scenario.Result) error {
	for _, e := range res.Events {
		if _, err := fmt.Fprintln(w, e.Kind); err != nil {
			return err
		}
	}
	return nil
}
