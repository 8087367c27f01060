package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/logflow/pmlens/pkg/analysis"
	"github.com/logflow/pmlens/pkg/summary"
)

// VariantHeaders are the columns of the variant table.
var VariantHeaders = []string{"Variant", "Frequency (#Cases)", "Avg Satisfaction", "Avg Duration (hrs)"}

// VariantRows formats the variant table cells. Nulls are empty.
func VariantRows(r *analysis.Report, decimals int) [][]string {
	rows := make([][]string, 0, len(r.Variants))
	for _, v := range r.Variants {
		rows = append(rows, []string{
			v.VariantID,
			strconv.Itoa(v.Frequency),
			v.AvgSatisfaction.Format(decimals, ""),
			v.AvgDurationHours.Format(decimals, ""),
		})
	}
	return rows
}

// Markdown renders the full report as a Markdown document.
func Markdown(r *analysis.Report, opts Options) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Variant Analysis: %s\n\n", r.Source)
	fmt.Fprintf(&sb, "Run `%s`: %d rows, %d qualifying, %d dropped, %d cases, %d variants.\n\n",
		r.RunID, r.Rows, r.Qualifying, r.Dropped, r.Cases, len(r.Variants))

	sb.WriteString("## Variant Summary\n\n")
	sb.WriteString(summary.MarkdownTable(VariantHeaders, []bool{false, true, true, true}, VariantRows(r, opts.Decimals)))
	sb.WriteString("\n")

	sb.WriteString(strings.TrimSpace(r.Insights))
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "**Correlation (case duration vs satisfaction):** %s\n\n",
		r.Correlation.Format(opts.Decimals, "not available"))

	if r.Summary != nil {
		sb.WriteString("## Category Summary\n\n")
		sb.WriteString(r.SummaryTable)
		if r.Summary.TotalGroups > len(r.Summary.Rows) {
			fmt.Fprintf(&sb, "\nShowing %d of %d combinations.\n", len(r.Summary.Rows), r.Summary.TotalGroups)
		}
		sb.WriteString("\n")

		for _, b := range r.Summary.Breakdowns {
			title, label := breakdownTitle(b.Dimension, opts)
			fmt.Fprintf(&sb, "## Average Satisfaction by %s\n\n", title)
			sb.WriteString(b.Markdown(label, opts.Satisfaction, opts.Decimals))
			sb.WriteString("\n")
		}
	}

	if r.Narrative != nil {
		sb.WriteString("## LLM-Generated Insights\n\n")
		sb.WriteString(strings.TrimSpace(r.Narrative.Text))
		sb.WriteString("\n\n")
	}

	if len(r.Conditions) > 0 {
		sb.WriteString("## Data Quality\n\n")
		for _, c := range r.Conditions {
			fmt.Fprintf(&sb, "- `%s` %s\n", c.Code, c.Message)
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func breakdownTitle(d summary.Dimension, opts Options) (title, label string) {
	switch d {
	case summary.DimActivity:
		return "Activity", opts.Activity
	case summary.DimIssueType:
		return "Issue Type", opts.IssueType
	case summary.DimResolver:
		return "Resolver", opts.Resolver
	default:
		return string(d), string(d)
	}
}
