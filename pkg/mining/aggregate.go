package mining

import (
	"sort"

	"github.com/logflow/pmlens/internal/model"
)

// VariantStats holds the aggregate metrics of one variant.
// Averages are kept unrounded; use Rounded for display.
type VariantStats struct {
	VariantID        string          `json:"variant"`
	Activities       []string        `json:"activities"`
	Frequency        int             `json:"frequency"`
	AvgSatisfaction  model.NullFloat `json:"avg_satisfaction"`
	AvgDurationHours model.NullFloat `json:"avg_duration_hours"`

	// MultiEventCases is the number of cases contributing to AvgDurationHours.
	MultiEventCases int `json:"multi_event_cases"`
}

// Rounded returns a copy with both averages rounded to places decimals.
func (s VariantStats) Rounded(places int) VariantStats {
	s.AvgSatisfaction = s.AvgSatisfaction.Round(places)
	s.AvgDurationHours = s.AvgDurationHours.Round(places)
	return s
}

// Aggregate computes VariantStats for every variant.
//
// avg satisfaction is the mean over all member cases with a satisfaction
// value; avg duration is the mean observed span over multi-event cases only.
// The result is sorted by frequency descending; equal frequencies keep the
// first-seen variant order.
func Aggregate(variants []Variant) []VariantStats {
	stats := make([]VariantStats, len(variants))
	for i := range variants {
		stats[i] = aggregateVariant(&variants[i])
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Frequency > stats[j].Frequency
	})
	return stats
}

func aggregateVariant(v *Variant) VariantStats {
	var sat, dur mean
	multi := 0

	for _, c := range v.Cases {
		if c.Satisfaction.Valid {
			sat.add(c.Satisfaction.Float64)
		}
		if d := c.DurationHours(); d.Valid {
			dur.add(d.Float64)
			multi++
		}
	}

	return VariantStats{
		VariantID:        v.ID,
		Activities:       v.Activities,
		Frequency:        len(v.Cases),
		AvgSatisfaction:  sat.value(),
		AvgDurationHours: dur.value(),
		MultiEventCases:  multi,
	}
}

// mean accumulates an arithmetic mean.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m *mean) value() model.NullFloat {
	if m.n == 0 {
		return model.Null()
	}
	return model.Float(m.sum / float64(m.n))
}
