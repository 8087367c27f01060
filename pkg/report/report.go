// Package report renders analysis reports as Markdown, JSON or styled
// terminal text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/logflow/pmlens/pkg/analysis"
	"github.com/logflow/pmlens/pkg/eventlog"
)

// Format selects a renderer.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
)

// ParseFormat parses a renderer name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "text", "terminal", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want markdown, json or text)", s)
	}
}

// Options controls rendering.
type Options struct {
	// Decimals is the display precision of averages.
	Decimals int

	// Labels are the source column names shown in category tables.
	Activity, IssueType, Resolver, Satisfaction string
}

// DefaultOptions matches the default event log schema.
func DefaultOptions() Options {
	return Options{
		Decimals:     2,
		Activity:     "concept:name",
		IssueType:    "trace:issue_type",
		Resolver:     "event:resolver",
		Satisfaction: "trace:customer_satisfaction",
	}
}

// OptionsFromSchema labels tables with the schema's column names.
func OptionsFromSchema(s eventlog.Schema, decimals int) Options {
	return Options{
		Decimals:     decimals,
		Activity:     s.Activity,
		IssueType:    s.IssueType,
		Resolver:     s.Resolver,
		Satisfaction: s.Satisfaction,
	}
}

// Write renders r to w.
func Write(w io.Writer, r *analysis.Report, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(r, opts))
		return err
	case FormatText:
		_, err := io.WriteString(w, Terminal(r, opts))
		return err
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *analysis.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
