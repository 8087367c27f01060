package summary

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Labels are the column headers used when rendering tables, normally the
// source column names.
type Labels struct {
	Activity     string
	IssueType    string
	Resolver     string
	CaseDuration string
	Satisfaction string
}

var (
	markdownCell   = lipgloss.NewStyle().Padding(0, 1)
	markdownNumber = markdownCell.Align(lipgloss.Right)
)

// Markdown renders the category table as a pipe table. Null values render
// as empty cells.
func (s *Summary) Markdown(l Labels, places int) string {
	rows := make([][]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		rows = append(rows, []string{
			r.Activity, r.IssueType, r.Resolver,
			r.AvgCaseDuration.Format(places, ""),
			r.AvgSatisfaction.Format(places, ""),
		})
	}
	return MarkdownTable(
		[]string{l.Activity, l.IssueType, l.Resolver, l.CaseDuration, l.Satisfaction},
		[]bool{false, false, false, true, true},
		rows,
	)
}

// Markdown renders the breakdown as a pipe table.
func (b *Breakdown) Markdown(label, satLabel string, places int) string {
	rows := make([][]string, 0, len(b.Rows))
	for _, r := range b.Rows {
		rows = append(rows, []string{r.Value, r.AvgSatisfaction.Format(places, ""), strconv.Itoa(r.Events)})
	}
	return MarkdownTable([]string{label, satLabel, "events"}, []bool{false, true, true}, rows)
}

// MarkdownTable renders a pipe table with one line per row. numeric marks
// right-aligned columns. Pipes in cells are escaped and line breaks become
// spaces.
func MarkdownTable(headers []string, numeric []bool, rows [][]string) string {
	escaped := make([][]string, len(rows))
	for i, row := range rows {
		escaped[i] = escapeCells(row)
	}

	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		Headers(escapeCells(headers)...).
		Rows(escaped...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row != table.HeaderRow && col < len(numeric) && numeric[col] {
				return markdownNumber
			}
			return markdownCell
		})
	return strings.TrimRight(t.String(), "\n") + "\n"
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = cellEscaper.Replace(c)
	}
	return out
}
