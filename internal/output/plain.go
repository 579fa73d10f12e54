package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/jmylchreest/alertflow/internal/monitor"
	"github.com/jmylchreest/alertflow/internal/scenario"
)

// PlainFormatter formats results as plain text, one line per event.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// templateData is passed to custom templates.
type templateData struct {
	Index  int
	Offset time.Duration
	Event  monitor.Event
	Title  string
}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter(opts FormatterOptions) (*PlainFormatter, error) {
	f := &PlainFormatter{opts: opts}

	if opts.Template != "" {
		tmpl, err := template.New("plain").Funcs(templateFuncs()).Parse(opts.Template)
		if err != nil {
			return nil, fmt.Errorf("invalid template: %w", err)
		}
		f.template = tmpl
	}

	return f, nil
}

// Format writes the result as plain text.
func (f *PlainFormatter) Format(w io.Writer, res *scenario.Result) error {
	if res.Name != "" {
		if _, err := fmt.Fprintf(w, "scenario %s\n", res.Name); err != nil {
			return err
		}
	}

	for i, e := range res.Events {
		if err := f.formatEvent(w, i, e.Time.Sub(res.Start), e); err != nil {
			return err
		}
	}

	if f.opts.ShowSteps {
		for _, st := range res.Steps {
			visible := st.Visible
			if visible == "" {
				visible = "-"
			}
			if _, err := fmt.Fprintf(w, "step %-3d %8s  %-8s depth=%d visible=%s\n",
				st.Index, st.Offset, st.Op, st.Depth, visible); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "%d events, %d steps\n", len(res.Events), len(res.Steps))
	return err
}

// formatEvent formats a single event line.
func (f *PlainFormatter) formatEvent(w io.Writer, index int, offset time.Duration, e monitor.Event) error {
	if f.template != nil {
		data := templateData{
			Index:  index,
			Offset: offset,
			Event:  e,
			Title:  title(e),
		}
		if err := f.template.Execute(w, data); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w)
		return err
	}

	var sb strings.Builder
	if f.opts.ShowIndex {
		sb.WriteString(fmt.Sprintf("[%d] ", index))
	}
	sb.WriteString(fmt.Sprintf("%8s  %-28s ", offset, e.Kind))
	sb.WriteString(f.describe(e))
	sb.WriteString("\n")

	_, err := w.Write([]byte(sb.String()))
	return err
}

func (f *PlainFormatter) describe(e monitor.Event) string {
	if e.Kind == monitor.KindFatalInconsistency {
		return e.Message
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("level=%d", e.Level))
	if e.Request != nil {
		sb.WriteString(fmt.Sprintf(" %s %q", e.Request.Tier, truncate(title(e), f.opts.TitleLen)))
	}
	if n := len(e.Blockers); n > 0 {
		sb.WriteString(fmt.Sprintf(" blockers=%d", n))
	}
	if len(e.Interrupts) > 0 {
		labels := make([]string, 0, len(e.Interrupts))
		for _, in := range e.Interrupts {
			labels = append(labels, in.Label())
		}
		sb.WriteString(" interrupts=" + strings.Join(labels, ","))
	}
	return sb.String()
}

func title(e monitor.Event) string {
	if e.Request == nil {
		return ""
	}
	return e.Request.Payload.Title
}

// templateFuncs returns custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate": truncate,
		"ms": func(d time.Duration) int64 {
			return d.Milliseconds()
		},
	}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
