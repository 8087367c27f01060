package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/pmlens/internal/model"
	"github.com/logflow/pmlens/pkg/analysis"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
	"github.com/logflow/pmlens/pkg/mining"
	"github.com/logflow/pmlens/pkg/narrative"
	"github.com/logflow/pmlens/pkg/summary"
)

func sampleReport() *analysis.Report {
	stats := []mining.VariantStats{
		{VariantID: "Submit -> Resolve", Frequency: 2, AvgSatisfaction: model.Float(4.5), AvgDurationHours: model.Float(3)},
		{VariantID: "Submit", Frequency: 1, AvgSatisfaction: model.Float(2.125), AvgDurationHours: model.Null()},
	}
	ext, _ := mining.SelectExtremes(stats)
	return &analysis.Report{
		RunID:       "run-1",
		Source:      "helpdesk.csv",
		Rows:        5,
		Qualifying:  4,
		Dropped:     1,
		Cases:       3,
		Variants:    stats,
		Extremes:    ext,
		Insights:    mining.RenderInsights(ext),
		Correlation: model.Float(-0.456),
		Summary: &summary.Summary{
			Rows:        []summary.Row{{Activity: "Submit", IssueType: "Billing", Resolver: "alice"}},
			TotalGroups: 20,
			Breakdowns: []summary.Breakdown{{
				Dimension: summary.DimResolver,
				Rows:      []summary.BreakdownRow{{Value: "alice", AvgSatisfaction: model.Float(4), Events: 2}},
			}},
		},
		SummaryTable: "| concept:name |\n|:--|\n| Submit |\n",
		Narrative:    &narrative.Result{Text: "- shorter cases are happier", Model: "gpt-4o-mini"},
		Conditions:   []analysis.Condition{{Code: pmerrors.CodeInvalidNumber, Message: "1 numeric cells could not be parsed"}},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"md": FormatMarkdown, "JSON": FormatJSON, "": FormatText, "terminal": FormatText} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("html")
	assert.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleReport(), DefaultOptions())

	assert.True(t, strings.HasPrefix(md, "# Variant Analysis: helpdesk.csv\n"))
	assert.Equal(t, []string{"Variant", "Frequency (#Cases)", "Avg Satisfaction", "Avg Duration (hrs)"}, tableRow(md, "Variant"))
	assert.Equal(t, []string{"Submit -> Resolve", "2", "4.50", "3.00"}, tableRow(md, "Submit -> Resolve"))
	assert.Equal(t, []string{"Submit", "1", "2.13", ""}, tableRow(md, "Submit"))
	assert.Contains(t, md, "## Variant Summary\n\n| Variant ")
	assert.Contains(t, md, "### Key Variant Insights")
	assert.Contains(t, md, "**Correlation (case duration vs satisfaction):** -0.46")
	assert.Contains(t, md, "Showing 1 of 20 combinations.")
	assert.Contains(t, md, "## Average Satisfaction by Resolver\n\n| event:resolver ")
	assert.Equal(t, []string{"alice", "4.00", "2"}, tableRow(md, "alice"))
	assert.Contains(t, md, "## LLM-Generated Insights\n\n- shorter cases are happier\n")
	assert.Contains(t, md, "- `E106` 1 numeric cells could not be parsed\n")
	assert.True(t, strings.HasSuffix(md, "parsed\n"))
}

// tableRow returns the trimmed cells of the first table line whose first
// cell is first.
func tableRow(md, first string) []string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") {
			continue
		}
		parts := strings.Split(strings.Trim(line, "|"), "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == first {
			return parts
		}
	}
	return nil
}

func TestMarkdown_NullCorrelationAndNoExtras(t *testing.T) {
	r := sampleReport()
	r.Correlation = model.Null()
	r.Summary = nil
	r.Narrative = nil
	r.Conditions = nil

	md := Markdown(r, DefaultOptions())
	assert.Contains(t, md, "**Correlation (case duration vs satisfaction):** not available")
	assert.NotContains(t, md, "## Category Summary")
	assert.NotContains(t, md, "LLM-Generated")
	assert.NotContains(t, md, "Data Quality")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatJSON, DefaultOptions()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])

	variants := decoded["variants"].([]any)
	require.Len(t, variants, 2)
	second := variants[1].(map[string]any)
	assert.Equal(t, "Submit", second["variant"])
	assert.Nil(t, second["avg_duration_hours"])
	assert.InDelta(t, 2.125, second["avg_satisfaction"], 1e-9)

	narr := decoded["narrative"].(map[string]any)
	assert.Equal(t, "- shorter cases are happier", narr["text"])
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatText, DefaultOptions()))
	out := buf.String()

	assert.Contains(t, out, "ANALYSIS COMPLETE")
	assert.Contains(t, out, "helpdesk.csv")
	assert.Contains(t, out, "Submit -> Resolve")
	assert.Contains(t, out, "Frequency (#Cases)")
	assert.Contains(t, out, "4.50")
	assert.Contains(t, out, "Most Frequent Variant:")
	assert.NotContains(t, out, "**")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "- shorter cases are happier")
	assert.Contains(t, out, "E106")
}
