package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/logflow/pmlens/pkg/analysis"
	"github.com/logflow/pmlens/pkg/mining"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numberStyle  = cellStyle.Align(lipgloss.Right)
)

const rule = "─────────────────────────────────────"

// Terminal renders the report for an interactive terminal.
func Terminal(r *analysis.Report, opts Options) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(successStyle.Render("  ✓ ANALYSIS COMPLETE"))
	sb.WriteString("\n\n")
	line(&sb, "Source:", titleStyle.Render(r.Source))
	line(&sb, "Run:", mutedStyle.Render(r.RunID))
	line(&sb, "Rows:", fmt.Sprintf("%s %s", titleStyle.Render(fmt.Sprint(r.Rows)),
		mutedStyle.Render(fmt.Sprintf("(%d qualifying, %d dropped)", r.Qualifying, r.Dropped))))
	line(&sb, "Cases:", titleStyle.Render(fmt.Sprint(r.Cases)))
	line(&sb, "Variants:", titleStyle.Render(fmt.Sprint(len(r.Variants))))
	line(&sb, "Correlation:", titleStyle.Render(r.Correlation.Format(opts.Decimals, mining.NotAvailable)))
	sb.WriteString(mutedStyle.Render("  " + rule))
	sb.WriteString("\n\n")

	sb.WriteString(accentStyle.Render("▸ VARIANTS"))
	sb.WriteString("\n")
	numeric := []bool{false, true, true, true}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(VariantHeaders...).
		Rows(VariantRows(r, opts.Decimals)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case numeric[col]:
				return numberStyle
			default:
				return cellStyle
			}
		})
	sb.WriteString(t.String())
	sb.WriteString("\n\n")

	sb.WriteString(accentStyle.Render("▸ KEY INSIGHTS"))
	sb.WriteString("\n")
	for _, l := range strings.Split(strings.TrimSpace(r.Insights), "\n") {
		l = strings.TrimPrefix(l, "### Key Variant Insights")
		if strings.TrimSpace(l) == "" {
			continue
		}
		sb.WriteString("  " + strings.ReplaceAll(l, "**", "") + "\n")
	}
	sb.WriteString("\n")

	if r.Summary != nil && len(r.Summary.Breakdowns) > 0 {
		sb.WriteString(accentStyle.Render("▸ SATISFACTION BREAKDOWNS"))
		sb.WriteString("\n")
		for _, b := range r.Summary.Breakdowns {
			title, _ := breakdownTitle(b.Dimension, opts)
			sb.WriteString("  " + titleStyle.Render(title) + "\n")
			for _, row := range b.Rows {
				fmt.Fprintf(&sb, "    %-24s %s %s\n", row.Value,
					titleStyle.Render(row.AvgSatisfaction.Format(opts.Decimals, mining.NotAvailable)),
					mutedStyle.Render(fmt.Sprintf("(%d events)", row.Events)))
			}
		}
		sb.WriteString("\n")
	}

	if r.Narrative != nil {
		sb.WriteString(accentStyle.Render("▸ LLM-GENERATED INSIGHTS"))
		sb.WriteString("\n")
		for _, l := range strings.Split(strings.TrimSpace(r.Narrative.Text), "\n") {
			sb.WriteString("  " + l + "\n")
		}
		sb.WriteString("\n")
	}

	if len(r.Conditions) > 0 {
		sb.WriteString(accentStyle.Render("▸ DATA QUALITY"))
		sb.WriteString("\n")
		for _, c := range r.Conditions {
			fmt.Fprintf(&sb, "  %s %s\n", accentStyle.Render(string(c.Code)), c.Message)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func line(sb *strings.Builder, label, value string) {
	fmt.Fprintf(sb, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-12s", label)), value)
}
