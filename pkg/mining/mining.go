package mining

import (
	"github.com/logflow/pmlens/internal/model"
)

// Result is the outcome of one mining pass over an event log.
type Result struct {
	// Qualifying is the number of records kept by Qualify.
	Qualifying int
	// Dropped is the number of records missing satisfaction or case duration.
	Dropped int

	// Records are the qualifying records in source order.
	Records []model.EventRecord

	Cases    []Case
	Variants []Variant

	// Stats is sorted by frequency descending, first-seen order on ties.
	Stats []VariantStats

	Extremes Extremes
	// ExtremesErr is ErrInsufficientData or ErrNoValidSatisfactionData when
	// part of the selection was impossible.
	ExtremesErr error

	// Insights is the rendered Markdown summary of Extremes.
	Insights string

	Correlation model.NullFloat
	// CorrelationErr is ErrUndefinedCorrelation when Correlation is null.
	CorrelationErr error

	// InconsistentCases counts cases whose events disagree on satisfaction.
	InconsistentCases int
}

// Mine runs qualification, case grouping, variant extraction, aggregation,
// extremal selection, insight rendering and correlation over records.
// Degraded outcomes are reported in the Result, never as a failure.
func Mine(records []model.EventRecord) *Result {
	kept, dropped := Qualify(records)

	res := &Result{
		Qualifying: len(kept),
		Dropped:    dropped,
		Records:    kept,
	}

	res.Cases = GroupCases(kept)
	for i := range res.Cases {
		if !res.Cases[i].SatisfactionConsistent {
			res.InconsistentCases++
		}
	}

	res.Variants = ExtractVariants(res.Cases)
	res.Stats = Aggregate(res.Variants)
	res.Extremes, res.ExtremesErr = SelectExtremes(res.Stats)
	res.Insights = RenderInsights(res.Extremes)
	res.Correlation, res.CorrelationErr = Correlate(res.Cases)

	return res
}
