// Package mining discovers process variants in an event log and aggregates
// per-variant case metrics.
//
// Every function in this package is a pure transformation of its arguments:
// nothing is cached between calls and inputs are never modified.
package mining

import (
	"sort"
	"time"

	"github.com/logflow/pmlens/internal/model"
)

// Case is one process instance: the qualifying events sharing a case ID,
// ordered by timestamp.
type Case struct {
	ID string

	// Events are ordered by timestamp ascending. Events with equal
	// timestamps keep their source order.
	Events []model.EventRecord

	// Activities is the ordered activity sequence, duplicates preserved.
	Activities []string

	// Satisfaction is the first non-null satisfaction value in event order.
	Satisfaction model.NullFloat

	// CaseDuration is the first non-null precomputed case duration in event order.
	CaseDuration model.NullFloat

	// SatisfactionConsistent is false when events disagree on satisfaction.
	SatisfactionConsistent bool

	// IssueType is the first non-empty issue type in event order.
	IssueType string
}

// EventCount returns the number of events in the case.
func (c *Case) EventCount() int {
	return len(c.Events)
}

// Span returns max(timestamp) - min(timestamp).
func (c *Case) Span() time.Duration {
	if len(c.Events) == 0 {
		return 0
	}
	return c.Events[len(c.Events)-1].Timestamp.Sub(c.Events[0].Timestamp)
}

// DurationHours returns the observed span in hours. A single-event case has
// no meaningful span and yields null.
func (c *Case) DurationHours() model.NullFloat {
	if len(c.Events) < 2 {
		return model.Null()
	}
	return model.Float(c.Span().Hours())
}

// Qualify keeps the records carrying both satisfaction and case duration.
// It returns the kept records in source order and the number dropped.
func Qualify(records []model.EventRecord) ([]model.EventRecord, int) {
	kept := make([]model.EventRecord, 0, len(records))
	for i := range records {
		if records[i].Qualifies() {
			kept = append(kept, records[i])
		}
	}
	return kept, len(records) - len(kept)
}

// GroupCases partitions records by case ID.
//
// Cases are returned in the order their first record appears in the input.
// Each case's events are sorted by timestamp here, so callers need not
// pre-sort; the sort is stable and the input slice is left untouched.
func GroupCases(records []model.EventRecord) []Case {
	index := make(map[string]int)
	var cases []Case

	for i := range records {
		rec := records[i]
		pos, ok := index[rec.CaseID]
		if !ok {
			pos = len(cases)
			index[rec.CaseID] = pos
			cases = append(cases, Case{ID: rec.CaseID})
		}
		cases[pos].Events = append(cases[pos].Events, rec)
	}

	for i := range cases {
		finishCase(&cases[i])
	}
	return cases
}

func finishCase(c *Case) {
	sort.SliceStable(c.Events, func(i, j int) bool {
		return c.Events[i].Timestamp.Before(c.Events[j].Timestamp)
	})

	c.Activities = make([]string, len(c.Events))
	c.SatisfactionConsistent = true

	for i := range c.Events {
		ev := &c.Events[i]
		c.Activities[i] = ev.Activity

		if ev.Satisfaction.Valid {
			if !c.Satisfaction.Valid {
				c.Satisfaction = ev.Satisfaction
			} else if c.Satisfaction.Float64 != ev.Satisfaction.Float64 {
				c.SatisfactionConsistent = false
			}
		}
		if ev.CaseDuration.Valid && !c.CaseDuration.Valid {
			c.CaseDuration = ev.CaseDuration
		}
		if c.IssueType == "" {
			c.IssueType = ev.IssueType
		}
	}
}
