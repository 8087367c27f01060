// Package tui provides the command line chrome: banner, progress and run
// summaries. Plain streaming output, no full screen UI.
package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/pmlens/pkg/analysis"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warn    = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warn).Bold(true)
)

// Header prints the program banner.
func Header(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  PMLENS")+mutedStyle.Render(" v"+version))
	fmt.Fprintln(w, mutedStyle.Render("  Process variant analysis for event logs"))
	fmt.Fprintln(w)
}

// PrintRunStats prints a one block summary of a finished analysis.
func PrintRunStats(w io.Writer, r *analysis.Report) {
	mark := successStyle.Render("  ✓ ANALYSIS COMPLETE")
	if len(r.Conditions) > 0 {
		mark = warnStyle.Render(fmt.Sprintf("  ! ANALYSIS COMPLETE (%d data quality notes)", len(r.Conditions)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, mark)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Source:"), titleStyle.Render(r.Source))
	fmt.Fprintf(w, "  %s %s %s\n",
		mutedStyle.Render("Events:"),
		titleStyle.Render(formatNumber(int64(r.Qualifying))),
		mutedStyle.Render(fmt.Sprintf("(%s dropped)", formatNumber(int64(r.Dropped)))))
	fmt.Fprintf(w, "  %s %s  %s %s\n",
		mutedStyle.Render("Cases:"), titleStyle.Render(formatNumber(int64(r.Cases))),
		mutedStyle.Render("Variants:"), titleStyle.Render(formatNumber(int64(len(r.Variants)))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(r.Elapsed)))
	fmt.Fprintln(w)
}

// ShowProgress creates a progress bar over a known number of inputs.
func ShowProgress(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Spinner animates message on w until done is closed.
func Spinner(w io.Writer, message string, done <-chan struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % len(frames) {
		fmt.Fprintf(w, "\r%s %s", accentStyle.Render(frames[i]), message)
		select {
		case <-done:
			fmt.Fprintf(w, "\r\033[K%s %s\n", successStyle.Render("✓"), message)
			return
		case <-ticker.C:
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
