package mining

import (
	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

var (
	// ErrInsufficientData means no qualifying case remained.
	ErrInsufficientData = pmerrors.Sentinel(pmerrors.CodeInsufficientData, "no qualifying cases")

	// ErrNoValidSatisfactionData means every variant has a null average satisfaction.
	ErrNoValidSatisfactionData = pmerrors.Sentinel(pmerrors.CodeNoValidSatisfaction, "no valid satisfaction data")
)

// Extremes holds the extremal variants of one aggregation.
// A nil field means the selection was not possible.
type Extremes struct {
	Top              *VariantStats `json:"top_variant"`
	HighSatisfaction *VariantStats `json:"high_satisfaction_variant"`
	LowSatisfaction  *VariantStats `json:"low_satisfaction_variant"`
}

// SelectExtremes picks the most frequent, highest-satisfaction and
// lowest-satisfaction variants from stats sorted as Aggregate returns them.
//
// Ties go to the earliest record. Comparisons use unrounded values.
// With no records it returns ErrInsufficientData. When no record has a
// satisfaction average it returns Top together with ErrNoValidSatisfactionData.
func SelectExtremes(stats []VariantStats) (Extremes, error) {
	if len(stats) == 0 {
		return Extremes{}, ErrInsufficientData
	}

	ext := Extremes{Top: &stats[0]}

	for i := range stats {
		s := &stats[i]
		if !s.AvgSatisfaction.Valid {
			continue
		}
		v := s.AvgSatisfaction.Float64
		if ext.HighSatisfaction == nil || v > ext.HighSatisfaction.AvgSatisfaction.Float64 {
			ext.HighSatisfaction = s
		}
		if ext.LowSatisfaction == nil || v < ext.LowSatisfaction.AvgSatisfaction.Float64 {
			ext.LowSatisfaction = s
		}
	}

	if ext.HighSatisfaction == nil {
		return ext, ErrNoValidSatisfactionData
	}
	return ext, nil
}
