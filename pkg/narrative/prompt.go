// Package narrative asks a chat-completions model for a free-text
// interpretation of the category summary and the duration/satisfaction
// correlation.
package narrative

import (
	"fmt"
	"strings"

	"github.com/logflow/pmlens/internal/model"
)

// FallbackPrefix starts the text returned in place of a narrative when the
// model call fails.
const FallbackPrefix = "Error generating insights: "

// BuildPrompt renders the analyst prompt around a markdown summary table.
// The correlation is printed with two decimals.
func BuildPrompt(summaryTable string, correlation model.NullFloat) string {
	var sb strings.Builder
	sb.WriteString("You are an expert data analyst specialized in process mining and customer experience.\n")
	sb.WriteString("Analyze the following summary data from a process mining dataset.\n\n")
	sb.WriteString(strings.TrimRight(summaryTable, "\n"))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "The correlation between case duration and satisfaction score is %s.\n",
		correlation.Format(2, "not available"))
	sb.WriteString("Summarize the main findings and explain which combinations or patterns lead to lower satisfaction.\n")
	sb.WriteString("Provide concise, actionable insights in bullet points.\n")
	return sb.String()
}

// Fallback returns the text shown when generation failed.
func Fallback(err error) string {
	return FallbackPrefix + err.Error()
}
