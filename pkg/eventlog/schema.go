// Package eventlog loads tabular process event logs (CSV, XLSX, Parquet)
// into in-memory tables of event records.
package eventlog

import (
	"math"
	"strconv"
	"strings"

	"github.com/logflow/pmlens/internal/model"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

// Schema names the columns of an event log. Names are matched exactly
// (case-sensitive).
type Schema struct {
	CaseID       string `yaml:"case_id" json:"case_id"`
	Activity     string `yaml:"activity" json:"activity"`
	Timestamp    string `yaml:"timestamp" json:"timestamp"`
	CaseDuration string `yaml:"case_duration" json:"case_duration"`
	Satisfaction string `yaml:"satisfaction" json:"satisfaction"`
	Resolver     string `yaml:"resolver" json:"resolver"`
	IssueType    string `yaml:"issue_type" json:"issue_type"`

	// TimestampFormat is an extra Go time layout tried after the built-in ones.
	TimestampFormat string `yaml:"timestamp_format,omitempty" json:"timestamp_format,omitempty"`
}

// DefaultSchema returns the XES-style column names used by helpdesk exports.
func DefaultSchema() Schema {
	return Schema{
		CaseID:       "case:concept:name",
		Activity:     "concept:name",
		Timestamp:    "time:timestamp",
		CaseDuration: "case_duration",
		Satisfaction: "trace:customer_satisfaction",
		Resolver:     "event:resolver",
		IssueType:    "trace:issue_type",
	}
}

// Required returns every column the analysis needs, in a fixed order.
func (s Schema) Required() []string {
	return []string{s.CaseID, s.Activity, s.Timestamp, s.CaseDuration, s.Satisfaction, s.Resolver, s.IssueType}
}

// columnIndex maps each schema field to a header position.
type columnIndex struct {
	caseID, activity, timestamp, duration, satisfaction, resolver, issueType int
	width                                                                    int
}

// bind resolves the schema against a header row. It fails with a
// MissingColumn error naming the first absent column.
func (s Schema) bind(header []string) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	idx := make([]int, 0, 7)
	for _, name := range s.Required() {
		i, ok := pos[name]
		if !ok || name == "" {
			return columnIndex{}, pmerrors.MissingColumn(name, header)
		}
		idx = append(idx, i)
	}

	return columnIndex{
		caseID:       idx[0],
		activity:     idx[1],
		timestamp:    idx[2],
		duration:     idx[3],
		satisfaction: idx[4],
		resolver:     idx[5],
		issueType:    idx[6],
		width:        len(header),
	}, nil
}

// ValidateColumns checks a header row against the schema.
func (s Schema) ValidateColumns(header []string) error {
	_, err := s.bind(header)
	return err
}

// rowBuilder converts string cells into event records.
type rowBuilder struct {
	schema      Schema
	idx         columnIndex
	table       *model.Table
	invalid     int
	missingKeys int
}

func newRowBuilder(schema Schema, header []string, source string) (*rowBuilder, error) {
	idx, err := schema.bind(header)
	if err != nil {
		return nil, err
	}
	return &rowBuilder{
		schema: schema,
		idx:    idx,
		table: &model.Table{
			Source:  source,
			Columns: append([]string(nil), header...),
		},
	}, nil
}

// add appends one data row. Short rows read missing cells as empty. Rows
// without a case ID or activity cannot be placed in a trace and are skipped.
func (b *rowBuilder) add(cells []string, row int) error {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	caseID, activity := cell(b.idx.caseID), cell(b.idx.activity)
	if caseID == "" || activity == "" {
		b.missingKeys++
		return nil
	}

	tsRaw := cell(b.idx.timestamp)
	ts, err := ParseTimestamp(tsRaw, b.schema.TimestampFormat)
	if err != nil {
		return pmerrors.InvalidTimestamp(tsRaw, row)
	}

	b.table.Records = append(b.table.Records, model.EventRecord{
		CaseID:       caseID,
		Activity:     activity,
		Timestamp:    ts,
		Resolver:     cell(b.idx.resolver),
		IssueType:    cell(b.idx.issueType),
		Satisfaction: b.number(cell(b.idx.satisfaction)),
		CaseDuration: b.number(cell(b.idx.duration)),
		Row:          row,
	})
	return nil
}

// number parses a numeric cell. Empty and NA markers are null; anything
// else that fails to parse is null and counted as invalid.
func (b *rowBuilder) number(s string) model.NullFloat {
	v, ok, valid := ParseNumber(s)
	if !valid {
		b.invalid++
	}
	if !ok {
		return model.Null()
	}
	return model.Float(v)
}

func (b *rowBuilder) finish() *model.Table {
	b.table.InvalidNumbers = b.invalid
	b.table.MissingKeys = b.missingKeys
	return b.table
}

// ParseNumber parses a numeric cell. ok reports a usable value; valid is
// false only when the cell held text that is neither a number nor a null marker.
func ParseNumber(s string) (v float64, ok bool, valid bool) {
	s = strings.TrimSpace(s)
	if isNullMarker(s) {
		return 0, false, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, true
	}
	return v, true, true
}

func isNullMarker(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "null", "none", "<na>", "nat":
		return true
	}
	return false
}
