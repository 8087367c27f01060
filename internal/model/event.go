// Package model defines core data structures for pmlens.
package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// EventRecord is one row of a process event log.
// Records are read-only once loaded.
type EventRecord struct {
	// CaseID identifies the process instance (trace).
	CaseID string

	// Activity is the event name/activity label.
	Activity string

	// Timestamp of the event.
	Timestamp time.Time

	// Resolver is the actor handling the event.
	Resolver string

	// IssueType is the case category label.
	IssueType string

	// Satisfaction is the customer satisfaction score of the case.
	Satisfaction NullFloat

	// CaseDuration is the precomputed duration of the whole case.
	CaseDuration NullFloat

	// Row is the 1-based data row in the source (header excluded).
	Row int
}

// Qualifies reports whether the record carries both numeric case metrics.
func (r *EventRecord) Qualifies() bool {
	return r.Satisfaction.Valid && r.CaseDuration.Valid
}

// Table is an in-memory event log.
type Table struct {
	// Source describes where the table was loaded from.
	Source string

	// Columns lists the header names in source order.
	Columns []string

	// Records holds the rows in source order.
	Records []EventRecord

	// InvalidNumbers counts numeric cells that could not be parsed and were read as null.
	InvalidNumbers int

	// MissingKeys counts rows skipped for an empty case ID or activity.
	MissingKeys int
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// NullFloat is a float64 that may be absent.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid NullFloat.
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Null returns an absent NullFloat.
func Null() NullFloat {
	return NullFloat{}
}

// Round rounds to the given number of decimal places (half away from zero).
func (n NullFloat) Round(places int) NullFloat {
	if !n.Valid {
		return n
	}
	p := math.Pow(10, float64(places))
	return Float(math.Round(n.Float64*p) / p)
}

// Format renders the value with fixed decimals, or na when absent.
func (n NullFloat) Format(places int, na string) string {
	if !n.Valid {
		return na
	}
	return strconv.FormatFloat(n.Round(places).Float64, 'f', places, 64)
}

// MarshalJSON encodes absent values as null.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// UnmarshalJSON decodes null as an absent value.
func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}
