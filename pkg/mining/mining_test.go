package mining

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/pmlens/internal/model"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func ev(caseID, activity string, offsetHours float64, sat, dur model.NullFloat) model.EventRecord {
	return model.EventRecord{
		CaseID:       caseID,
		Activity:     activity,
		Timestamp:    base.Add(time.Duration(offsetHours * float64(time.Hour))),
		Satisfaction: sat,
		CaseDuration: dur,
	}
}

func f(v float64) model.NullFloat { return model.Float(v) }

// scenarioRecords is the three-case helpdesk example: A and C share a path.
func scenarioRecords() []model.EventRecord {
	return []model.EventRecord{
		ev("A", "Submit", 0, f(5), f(2)),
		ev("A", "Resolve", 2, f(5), f(2)),
		ev("B", "Submit", 0, f(2), f(10)),
		ev("B", "Escalate", 3, f(2), f(10)),
		ev("B", "Resolve", 10, f(2), f(10)),
		ev("C", "Submit", 1, f(4), f(4)),
		ev("C", "Resolve", 5, f(4), f(4)),
	}
}

func TestMine_Scenario(t *testing.T) {
	res := Mine(scenarioRecords())

	require.Len(t, res.Stats, 2)

	sr := res.Stats[0]
	assert.Equal(t, "Submit -> Resolve", sr.VariantID)
	assert.Equal(t, 2, sr.Frequency)
	assert.InDelta(t, 4.5, sr.AvgSatisfaction.Float64, 1e-9)
	assert.InDelta(t, 3.0, sr.AvgDurationHours.Float64, 1e-9)

	ser := res.Stats[1]
	assert.Equal(t, "Submit -> Escalate -> Resolve", ser.VariantID)
	assert.Equal(t, 1, ser.Frequency)
	assert.InDelta(t, 2.0, ser.AvgSatisfaction.Float64, 1e-9)
	assert.InDelta(t, 10.0, ser.AvgDurationHours.Float64, 1e-9)

	require.NoError(t, res.ExtremesErr)
	assert.Equal(t, "Submit -> Resolve", res.Extremes.Top.VariantID)
	assert.Equal(t, "Submit -> Resolve", res.Extremes.HighSatisfaction.VariantID)
	assert.Equal(t, "Submit -> Escalate -> Resolve", res.Extremes.LowSatisfaction.VariantID)

	require.NoError(t, res.CorrelationErr)
	assert.InDelta(t, -0.9959, res.Correlation.Float64, 1e-3)
}

func TestMine_ScenarioInsights(t *testing.T) {
	res := Mine(scenarioRecords())

	want := `### Key Variant Insights

- **Most Frequent Variant:**
  **Submit -> Resolve** occurs in **2 cases**
  with an average satisfaction of **4.50**
  and average duration of **3.00 hrs**.

- **Highest Satisfaction Variant:**
  **Submit -> Resolve** shows the **highest customer satisfaction**
  at **4.50**, with an average duration of **3.00 hrs**
  across **2 cases**.

- **Lowest Satisfaction Variant:**
  **Submit -> Escalate -> Resolve** has the **lowest satisfaction** (score **2.00**)
  and takes an average of **10.00 hrs** to complete
  across **1 case**.
`
	assert.Equal(t, want, res.Insights)
}

func TestMine_SingleEventCaseCountsForSatisfactionOnly(t *testing.T) {
	records := []model.EventRecord{
		ev("A", "Submit", 0, f(5), f(1)),
		ev("A", "Resolve", 4, f(5), f(1)),
		ev("B", "Submit", 0, f(1), f(0)),
		ev("C", "Submit", 2, f(3), f(0)),
		ev("D", "Submit", 0, f(2), f(6)),
		ev("D", "Resolve", 6, f(2), f(6)),
	}

	res := Mine(records)
	require.Len(t, res.Stats, 2)

	// Submit -> Resolve and Submit both have frequency 2; first seen wins.
	assert.Equal(t, "Submit -> Resolve", res.Stats[0].VariantID)
	assert.InDelta(t, 5.0, res.Stats[0].AvgDurationHours.Float64, 1e-9)

	single := res.Stats[1]
	assert.Equal(t, "Submit", single.VariantID)
	assert.Equal(t, 2, single.Frequency)
	assert.InDelta(t, 2.0, single.AvgSatisfaction.Float64, 1e-9)
	assert.False(t, single.AvgDurationHours.Valid, "single-event variant must have null duration")
	assert.Equal(t, 0, single.MultiEventCases)

	assert.Contains(t, res.Insights, "**Submit** has the **lowest satisfaction** (score **2.00**)")
	assert.Contains(t, res.Insights, "takes an average of **not available** to complete")
}

func TestAggregate_DurationAveragesObservedSpans(t *testing.T) {
	// Members of a variant share a sequence, hence an event count.
	records := []model.EventRecord{
		ev("X", "Submit", 0, f(4), f(1)),
		ev("X", "Submit", 3, f(4), f(1)),
		ev("Y", "Submit", 0, f(2), f(1)),
		ev("Y", "Submit", 5, f(2), f(1)),
	}
	res := Mine(records)
	require.Len(t, res.Stats, 1)
	assert.InDelta(t, 4.0, res.Stats[0].AvgDurationHours.Float64, 1e-9)
	assert.Equal(t, 2, res.Stats[0].MultiEventCases)
}

func TestMine_DropsRowsMissingMetrics(t *testing.T) {
	records := scenarioRecords()
	records = append(records,
		ev("D", "Submit", 0, model.Null(), f(3)),
		ev("E", "Submit", 0, f(3), model.Null()),
	)

	res := Mine(records)
	assert.Equal(t, 7, res.Qualifying)
	assert.Equal(t, 2, res.Dropped)
	assert.Len(t, res.Cases, 3)
}

func TestMine_EmptyInputIsValidTerminalState(t *testing.T) {
	res := Mine(nil)

	assert.Empty(t, res.Stats)
	assert.Empty(t, res.Variants)
	assert.ErrorIs(t, res.ExtremesErr, ErrInsufficientData)
	assert.Nil(t, res.Extremes.Top)
	assert.ErrorIs(t, res.CorrelationErr, ErrUndefinedCorrelation)
	assert.False(t, res.Correlation.Valid)
	assert.Contains(t, res.Insights, "No qualifying cases")
}

func TestMine_AllRowsUnqualified(t *testing.T) {
	records := []model.EventRecord{
		ev("A", "Submit", 0, model.Null(), f(1)),
		ev("A", "Resolve", 1, model.Null(), f(1)),
	}
	res := Mine(records)
	assert.Equal(t, 2, res.Dropped)
	assert.ErrorIs(t, res.ExtremesErr, ErrInsufficientData)
}

func TestSelectExtremes_AllNullSatisfaction(t *testing.T) {
	stats := []VariantStats{
		{VariantID: "a", Frequency: 3},
		{VariantID: "b", Frequency: 1},
	}

	ext, err := SelectExtremes(stats)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoValidSatisfactionData))
	require.NotNil(t, ext.Top)
	assert.Equal(t, "a", ext.Top.VariantID)
	assert.Nil(t, ext.HighSatisfaction)
	assert.Nil(t, ext.LowSatisfaction)

	text := RenderInsights(ext)
	assert.Contains(t, text, "**a** occurs in **3 cases**")
	assert.Contains(t, text, "with an average satisfaction of **not available**")
	assert.Contains(t, text, "no variant has valid satisfaction data")
	assert.NotContains(t, text, "Highest Satisfaction Variant")
}

func TestSelectExtremes_SkipsNullAndBreaksTiesFirstSeen(t *testing.T) {
	stats := []VariantStats{
		{VariantID: "top", Frequency: 5},
		{VariantID: "hi1", Frequency: 4, AvgSatisfaction: f(4.5)},
		{VariantID: "lo1", Frequency: 3, AvgSatisfaction: f(1.25)},
		{VariantID: "hi2", Frequency: 2, AvgSatisfaction: f(4.5)},
		{VariantID: "lo2", Frequency: 1, AvgSatisfaction: f(1.25)},
	}

	ext, err := SelectExtremes(stats)
	require.NoError(t, err)
	assert.Equal(t, "top", ext.Top.VariantID)
	assert.Equal(t, "hi1", ext.HighSatisfaction.VariantID)
	assert.Equal(t, "lo1", ext.LowSatisfaction.VariantID)
}

func TestSelectExtremes_UsesUnroundedValues(t *testing.T) {
	stats := []VariantStats{
		{VariantID: "a", Frequency: 2, AvgSatisfaction: f(4.001)},
		{VariantID: "b", Frequency: 1, AvgSatisfaction: f(4.004)},
	}
	ext, err := SelectExtremes(stats)
	require.NoError(t, err)
	assert.Equal(t, "b", ext.HighSatisfaction.VariantID)
	assert.Equal(t, "a", ext.LowSatisfaction.VariantID)
}

func TestExtractVariants_PartitionInvariant(t *testing.T) {
	records := randomLog(rand.New(rand.NewSource(7)), 60)
	cases := GroupCases(records)
	variants := ExtractVariants(cases)

	seen := make(map[string]string)
	total := 0
	for _, v := range variants {
		for _, c := range v.Cases {
			prev, dup := seen[c.ID]
			require.False(t, dup, "case %s in %s and %s", c.ID, prev, v.ID)
			seen[c.ID] = v.ID
			assert.Equal(t, v.Activities, c.Activities)
		}
		total += len(v.Cases)
	}
	assert.Equal(t, len(cases), total)
	assert.Len(t, seen, len(cases))

	for _, s := range Aggregate(variants) {
		n := 0
		for i := range cases {
			if VariantID(cases[i].Activities) == s.VariantID {
				n++
			}
		}
		assert.Equal(t, n, s.Frequency, s.VariantID)
		// Null duration iff every member has exactly one event.
		assert.Equal(t, len(s.Activities) > 1, s.AvgDurationHours.Valid, s.VariantID)
	}
}

func TestExtractVariants_OrderAndDuplicateSensitive(t *testing.T) {
	records := []model.EventRecord{
		ev("1", "A", 0, f(1), f(1)), ev("1", "B", 1, f(1), f(1)),
		ev("2", "B", 0, f(1), f(1)), ev("2", "A", 1, f(1), f(1)),
		ev("3", "A", 0, f(1), f(1)), ev("3", "A", 1, f(1), f(1)), ev("3", "B", 2, f(1), f(1)),
	}
	variants := ExtractVariants(GroupCases(records))
	require.Len(t, variants, 3)
	assert.Equal(t, []string{"1"}, variants[0].CaseIDs())
	assert.Equal(t, "A -> A -> B", variants[2].ID)
}

func TestExtractVariants_SeparatorInActivityNames(t *testing.T) {
	records := []model.EventRecord{
		ev("1", "A -> B", 0, f(1), f(1)),
		ev("2", "A", 0, f(1), f(1)), ev("2", "B", 1, f(1), f(1)),
	}
	variants := ExtractVariants(GroupCases(records))
	assert.Len(t, variants, 2, "distinct sequences must not merge")
}

func TestGroupCases_SortsByTimestampStable(t *testing.T) {
	records := []model.EventRecord{
		ev("A", "Resolve", 5, f(3), f(1)),
		ev("A", "Submit", 0, f(3), f(1)),
		ev("A", "Tie1", 2, f(3), f(1)),
		ev("A", "Tie2", 2, f(3), f(1)),
	}
	cases := GroupCases(records)
	require.Len(t, cases, 1)
	assert.Equal(t, []string{"Submit", "Tie1", "Tie2", "Resolve"}, cases[0].Activities)
	assert.InDelta(t, 5.0, cases[0].DurationHours().Float64, 1e-9)
	// Input untouched.
	assert.Equal(t, "Resolve", records[0].Activity)
}

func TestGroupCases_InconsistentSatisfactionTakesFirst(t *testing.T) {
	records := []model.EventRecord{
		ev("A", "Resolve", 1, f(2), f(1)),
		ev("A", "Submit", 0, f(4), f(1)),
	}
	res := Mine(records)
	require.Len(t, res.Cases, 1)
	assert.False(t, res.Cases[0].SatisfactionConsistent)
	assert.InDelta(t, 4.0, res.Cases[0].Satisfaction.Float64, 1e-9)
	assert.Equal(t, 1, res.InconsistentCases)
}

func TestMine_Deterministic(t *testing.T) {
	records := randomLog(rand.New(rand.NewSource(42)), 80)

	first := Mine(records)
	second := Mine(records)

	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Insights, second.Insights)
}

func TestMine_RowOrderDoesNotChangeAggregates(t *testing.T) {
	records := randomLog(rand.New(rand.NewSource(3)), 80)
	shuffled := append([]model.EventRecord(nil), records...)
	rand.New(rand.NewSource(9)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	index := func(stats []VariantStats) map[string]VariantStats {
		m := make(map[string]VariantStats)
		for _, s := range stats {
			m[s.VariantID] = s.Rounded(6)
		}
		return m
	}

	assert.Equal(t, index(Mine(records).Stats), index(Mine(shuffled).Stats))
}

func TestPearson(t *testing.T) {
	r, err := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-12)

	r, err = Pearson([]float64{1, 2, 3}, []float64{3, 2, 1})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, r, 1e-12)

	_, err = Pearson([]float64{1}, []float64{1})
	assert.ErrorIs(t, err, ErrUndefinedCorrelation)

	_, err = Pearson([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.ErrorIs(t, err, ErrUndefinedCorrelation)

	_, err = Pearson([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ErrUndefinedCorrelation)
}

func TestCorrelate_ConstantDurationIsUndefined(t *testing.T) {
	records := []model.EventRecord{
		ev("A", "Submit", 0, f(1), f(5)),
		ev("B", "Submit", 0, f(4), f(5)),
	}
	r, err := Correlate(GroupCases(records))
	assert.ErrorIs(t, err, ErrUndefinedCorrelation)
	assert.False(t, r.Valid)
}

func TestCorrelate_InexactConstantSatisfactionIsUndefined(t *testing.T) {
	records := []model.EventRecord{
		ev("A", "Submit", 0, f(0.1), f(1)),
		ev("B", "Submit", 0, f(0.1), f(7)),
		ev("C", "Submit", 0, f(0.1), f(3)),
	}
	r, err := Correlate(GroupCases(records))
	assert.ErrorIs(t, err, ErrUndefinedCorrelation)
	assert.False(t, r.Valid)

	_, err = Pearson([]float64{1, 7, 3}, []float64{0.1, 0.1, 0.1})
	assert.ErrorIs(t, err, ErrUndefinedCorrelation)
}

func TestVariantStats_Rounded(t *testing.T) {
	s := VariantStats{AvgSatisfaction: f(4.456), AvgDurationHours: model.Null()}
	r := s.Rounded(2)
	assert.InDelta(t, 4.46, r.AvgSatisfaction.Float64, 1e-12)
	assert.False(t, r.AvgDurationHours.Valid)
	assert.InDelta(t, 4.456, s.AvgSatisfaction.Float64, 1e-12)
}

// randomLog builds a log of n cases over a small activity alphabet, with
// per-case constant satisfaction and case duration.
func randomLog(rng *rand.Rand, n int) []model.EventRecord {
	activities := []string{"Submit", "Triage", "Escalate", "Resolve"}
	var records []model.EventRecord
	for i := 0; i < n; i++ {
		id := string(rune('a'+i%26)) + string(rune('A'+i/26))
		events := 1 + rng.Intn(4)
		sat := f(float64(1 + rng.Intn(5)))
		dur := f(float64(rng.Intn(48)))
		for j := 0; j < events; j++ {
			records = append(records, ev(id, activities[rng.Intn(len(activities))], float64(j)*1.5, sat, dur))
		}
	}
	return records
}
