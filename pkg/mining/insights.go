package mining

import (
	"fmt"
	"strings"
)

// NotAvailable is rendered in place of a null metric.
const NotAvailable = "not available"

// DisplayDecimals is the rounding applied to rendered averages.
const DisplayDecimals = 2

// RenderInsights formats the extremal variants as Markdown.
// The output depends only on ext. A missing satisfaction selection renders
// an explicit notice instead of the two satisfaction paragraphs; a missing
// top variant renders an empty-log notice.
func RenderInsights(ext Extremes) string {
	var sb strings.Builder
	sb.WriteString("### Key Variant Insights\n")

	if ext.Top == nil {
		sb.WriteString("\nNo qualifying cases were found, so no variant insights are available.\n")
		return sb.String()
	}

	top := ext.Top
	fmt.Fprintf(&sb, "\n- **Most Frequent Variant:**\n")
	fmt.Fprintf(&sb, "  **%s** occurs in **%s**\n", top.VariantID, cases(top.Frequency))
	fmt.Fprintf(&sb, "  with an average satisfaction of **%s**\n", score(top))
	fmt.Fprintf(&sb, "  and average duration of **%s**.\n", hours(top))

	if ext.HighSatisfaction == nil || ext.LowSatisfaction == nil {
		sb.WriteString("\n- **Satisfaction Variants:** not available, no variant has valid satisfaction data.\n")
		return sb.String()
	}

	high := ext.HighSatisfaction
	fmt.Fprintf(&sb, "\n- **Highest Satisfaction Variant:**\n")
	fmt.Fprintf(&sb, "  **%s** shows the **highest customer satisfaction**\n", high.VariantID)
	fmt.Fprintf(&sb, "  at **%s**, with an average duration of **%s**\n", score(high), hours(high))
	fmt.Fprintf(&sb, "  across **%s**.\n", cases(high.Frequency))

	low := ext.LowSatisfaction
	fmt.Fprintf(&sb, "\n- **Lowest Satisfaction Variant:**\n")
	fmt.Fprintf(&sb, "  **%s** has the **lowest satisfaction** (score **%s**)\n", low.VariantID, score(low))
	fmt.Fprintf(&sb, "  and takes an average of **%s** to complete\n", hours(low))
	fmt.Fprintf(&sb, "  across **%s**.\n", cases(low.Frequency))

	return sb.String()
}

func score(s *VariantStats) string {
	return s.AvgSatisfaction.Format(DisplayDecimals, NotAvailable)
}

func hours(s *VariantStats) string {
	if !s.AvgDurationHours.Valid {
		return NotAvailable
	}
	return s.AvgDurationHours.Format(DisplayDecimals, NotAvailable) + " hrs"
}

func cases(n int) string {
	if n == 1 {
		return "1 case"
	}
	return fmt.Sprintf("%d cases", n)
}
