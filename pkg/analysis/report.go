package analysis

import (
	"time"

	"github.com/logflow/pmlens/internal/model"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
	"github.com/logflow/pmlens/pkg/mining"
	"github.com/logflow/pmlens/pkg/narrative"
	"github.com/logflow/pmlens/pkg/summary"
)

// Condition is a non-fatal outcome recorded during a run.
type Condition struct {
	Code    pmerrors.Code `json:"code"`
	Message string        `json:"message"`
}

// Report is the result of one analysis run.
type Report struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	Format      string    `json:"format"`
	GeneratedAt time.Time `json:"generated_at"`

	Rows           int `json:"rows"`
	Qualifying     int `json:"qualifying_rows"`
	Dropped        int `json:"dropped_rows"`
	InvalidNumbers int `json:"invalid_numbers"`
	SkippedRows    int `json:"skipped_rows"`
	Cases          int `json:"cases"`

	// Variants is sorted by frequency descending. Averages are unrounded.
	Variants []mining.VariantStats `json:"variants"`

	Extremes mining.Extremes `json:"extremes"`

	// Insights is the Markdown rendering of Extremes.
	Insights string `json:"insights"`

	// Correlation is Pearson r over (case duration, satisfaction), one pair per case.
	Correlation model.NullFloat `json:"correlation"`

	Summary *summary.Summary `json:"summary,omitempty"`

	// SummaryTable is the Markdown category table sent to the narrative model.
	SummaryTable string `json:"summary_table,omitempty"`

	Narrative *narrative.Result `json:"narrative,omitempty"`

	Conditions []Condition `json:"conditions,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// HasCondition reports whether a condition with code was recorded.
func (r *Report) HasCondition(code pmerrors.Code) bool {
	for _, c := range r.Conditions {
		if c.Code == code {
			return true
		}
	}
	return false
}

func (r *Report) addCondition(err error) {
	r.Conditions = append(r.Conditions, Condition{Code: pmerrors.GetCode(err), Message: err.Error()})
}
