package output

import (
	"encoding/json"
	"io"

	"github.com/jmylchreest/alertflow/internal/scenario"
)

// JSONFormatter formats results as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the result as an indented JSON object.
func (f *JSONFormatter) Format(w io.Writer, res *scenario.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(res)
}
