package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/logflow/pmlens/pkg/analysis"
	"github.com/logflow/pmlens/pkg/config"
	"github.com/logflow/pmlens/pkg/eventlog"
	"github.com/logflow/pmlens/pkg/report"
	"github.com/logflow/pmlens/pkg/tui"
)

type analyzeFlags struct {
	output      string
	format      string
	inputFormat string
	delimiter   string
	sheet       string
	topN        int
	decimals    int
	quiet       bool

	// Column overrides
	caseID       string
	activity     string
	timestamp    string
	caseDuration string
	satisfaction string
	resolver     string
	issueType    string
}

func newAnalyzeCmd(a *app) *cobra.Command {
	f := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze <input>...",
		Short: "Analyze process variants in one or more event logs",
		Long: `Analyze reads each input, groups events into cases, extracts variants and
prints a report with the variant table, extremal insights, the duration vs
satisfaction correlation, a category summary and the LLM narrative.

Inputs can be local paths, "-" for stdin or s3://bucket/key.

Examples:
  pmlens analyze events.csv
  pmlens analyze events.xlsx --format markdown -o report.md
  pmlens analyze s3://logs/helpdesk.parquet --format json
  cat events.csv | pmlens analyze - --input-format csv --no-narrative`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, a, f, args)
		},
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Report format (text, markdown, json); inferred from --output when empty")
	cmd.Flags().StringVar(&f.inputFormat, "input-format", "", "Input format (csv, xlsx, parquet); detected from the name when empty")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV field delimiter")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "XLSX sheet name")
	cmd.Flags().IntVar(&f.topN, "top-n", 0, "Rows in the category summary")
	cmd.Flags().IntVar(&f.decimals, "decimals", 0, "Display precision of averages")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Suppress banner and progress output")

	cmd.Flags().StringVar(&f.caseID, "case-id", "", "Case ID column name")
	cmd.Flags().StringVar(&f.activity, "activity", "", "Activity column name")
	cmd.Flags().StringVar(&f.timestamp, "timestamp", "", "Timestamp column name")
	cmd.Flags().StringVar(&f.caseDuration, "case-duration", "", "Case duration column name")
	cmd.Flags().StringVar(&f.satisfaction, "satisfaction", "", "Satisfaction column name")
	cmd.Flags().StringVar(&f.resolver, "resolver", "", "Resolver column name")
	cmd.Flags().StringVar(&f.issueType, "issue-type", "", "Issue type column name")

	return cmd
}

// apply layers command line overrides on top of the loaded configuration.
func (f *analyzeFlags) apply(cfg *config.Config) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Schema.CaseID, f.caseID)
	set(&cfg.Schema.Activity, f.activity)
	set(&cfg.Schema.Timestamp, f.timestamp)
	set(&cfg.Schema.CaseDuration, f.caseDuration)
	set(&cfg.Schema.Satisfaction, f.satisfaction)
	set(&cfg.Schema.Resolver, f.resolver)
	set(&cfg.Schema.IssueType, f.issueType)
	set(&cfg.Analysis.Delimiter, f.delimiter)
	set(&cfg.Analysis.Sheet, f.sheet)
	set(&cfg.Analysis.Format, f.inputFormat)

	if f.topN > 0 {
		cfg.Analysis.SummaryTopN = f.topN
	}
	if f.decimals > 0 {
		cfg.Analysis.Decimals = f.decimals
	}
	return cfg.Validate()
}

// reportFormat resolves --format, falling back to the --output extension.
func (f *analyzeFlags) reportFormat() (report.Format, error) {
	if f.format != "" {
		return report.ParseFormat(f.format)
	}
	switch strings.ToLower(filepath.Ext(f.output)) {
	case ".md", ".markdown":
		return report.FormatMarkdown, nil
	case ".json":
		return report.FormatJSON, nil
	}
	return report.FormatText, nil
}

func runAnalyze(cmd *cobra.Command, a *app, f *analyzeFlags, inputs []string) error {
	if err := f.apply(a.cfg); err != nil {
		return err
	}
	format, err := f.reportFormat()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stderr := cmd.ErrOrStderr()
	interactive := !f.quiet && format == report.FormatText && f.output == ""
	if interactive {
		tui.Header(stderr, version)
	}

	// Reports of inputs that succeeded are still written when others fail.
	reports, analyzeErr := analyzeWithProgress(ctx, a, inputs, stderr, !f.quiet)
	if len(reports) == 0 && analyzeErr != nil {
		return analyzeErr
	}

	out := cmd.OutOrStdout()
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}

	opts := a.reportOptions()
	written := 0
	for _, r := range reports {
		if r == nil {
			continue
		}
		if written > 0 && format != report.FormatJSON {
			fmt.Fprintln(out)
		}
		if err := report.Write(out, r, format, opts); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		written++
		if interactive {
			tui.PrintRunStats(stderr, r)
		}
	}

	a.logger.Debug("analyze finished", zap.Int("inputs", len(inputs)), zap.Int("reports", written), zap.String("format", string(format)))
	return analyzeErr
}

// analyzeWithProgress runs every input, showing a spinner for a single
// input and a progress bar for several.
func analyzeWithProgress(ctx context.Context, a *app, inputs []string, w io.Writer, show bool) ([]*analysis.Report, error) {
	if !show {
		analyzer, err := a.analyzer(ctx, nil)
		if err != nil {
			return nil, err
		}
		return analyzer.AnalyzeAll(ctx, inputs)
	}

	if len(inputs) == 1 {
		analyzer, err := a.analyzer(ctx, nil)
		if err != nil {
			return nil, err
		}
		done := make(chan struct{})
		finished := make(chan struct{})
		go func() {
			tui.Spinner(w, "Analyzing "+inputs[0], done)
			close(finished)
		}()
		r, err := analyzer.Analyze(ctx, inputs[0])
		close(done)
		<-finished
		if err != nil {
			return nil, fmt.Errorf("%s: %w", inputs[0], err)
		}
		return []*analysis.Report{r}, nil
	}

	bar := tui.ShowProgress(w, len(inputs), "Analyzing")
	analyzer, err := a.analyzer(ctx, func(string, error) { _ = bar.Add(1) })
	if err != nil {
		return nil, err
	}
	reports, err := analyzer.AnalyzeAll(ctx, inputs)
	if err != nil {
		_ = bar.Exit()
		return reports, err
	}
	_ = bar.Finish()
	return reports, nil
}

func formatFromConfig(s string) eventlog.Format {
	if s == "" {
		return eventlog.FormatUnknown
	}
	return eventlog.ParseFormat(s)
}
