package journal

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/araddon/dateparse"
	"github.com/dustin/go-humanize"
)

// DefaultFormat is the template used to print an entry.
const DefaultFormat = `{{ .Created | date "2006-01-02 15:04:05" }} {{ .Command | printf "%-12s" }}` +
	`{{ if .Failed }} {{ .Kind }}{{ with .Error }}: {{ . }}{{ end }}` +
	`{{ else }} undo={{ .Undo }} redo={{ .Redo }} {{ .Width }}x{{ .Height }}{{ end }}` +
	` ({{ .Elapsed }})`

// ParseSince reads a point in time. It accepts a duration, counted
// back from now ("2h", "30m"), or a date in most common formats.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			d = -d
		}
		return now.Add(-d), nil
	}

	t, err := dateparse.ParseLocal(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date or duration %q", s)
	}
	return t, nil
}

// Formatter prints journal entries with a text template.
type Formatter struct {
	tpl *template.Template
}

// NewFormatter compiles a template. An empty format uses
// DefaultFormat. Besides the sprig functions, "ago" renders a
// relative time.
func NewFormatter(format string) (*Formatter, error) {
	if format == "" {
		format = DefaultFormat
	}
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}

	funcs := sprig.TxtFuncMap()
	funcs["ago"] = humanize.Time

	tpl, err := template.New("entry").Funcs(funcs).Parse(format)
	if err != nil {
		return nil, err
	}
	return &Formatter{tpl: tpl}, nil
}

// Write prints every entry.
func (f *Formatter) Write(w io.Writer, entries []*Entry) error {
	for _, e := range entries {
		if err := f.tpl.Execute(w, e); err != nil {
			return err
		}
	}
	return nil
}
