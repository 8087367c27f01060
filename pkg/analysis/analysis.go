// Package analysis runs the complete variant analysis of one event log:
// load, mine, summarize and narrate.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/pmlens/internal/model"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
	"github.com/logflow/pmlens/pkg/eventlog"
	"github.com/logflow/pmlens/pkg/mining"
	"github.com/logflow/pmlens/pkg/narrative"
	"github.com/logflow/pmlens/pkg/source"
	"github.com/logflow/pmlens/pkg/summary"
	"github.com/logflow/pmlens/pkg/telemetry"
)

// DefaultDecimals is the precision of summary tables.
const DefaultDecimals = 2

// Options configures an Analyzer.
type Options struct {
	Schema eventlog.Schema

	// Format forces the input format. FormatUnknown detects it from the
	// location and falls back to CSV.
	Format eventlog.Format

	Load eventlog.Options

	SummaryTopN int
	Decimals    int

	// Opener resolves locations for Analyze. Defaults to local files and stdin.
	Opener *source.Opener

	// Narrator generates the narrative. Nil disables it.
	Narrator *narrative.Service

	// Parallelism bounds AnalyzeAll. Zero means 4.
	Parallelism int

	// OnComplete, when set, is called by AnalyzeAll after each location
	// finishes. It may be called concurrently.
	OnComplete func(location string, err error)
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Schema:      eventlog.DefaultSchema(),
		SummaryTopN: summary.DefaultTopN,
		Decimals:    DefaultDecimals,
		Parallelism: 4,
	}
}

// Analyzer runs analyses. It is safe for concurrent use.
type Analyzer struct {
	opts       Options
	opener     *source.Opener
	summarizer *summary.Summarizer
	logger     *zap.Logger
}

// New creates an analyzer.
func New(opts Options, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Schema == (eventlog.Schema{}) {
		opts.Schema = eventlog.DefaultSchema()
	}
	if opts.Decimals <= 0 {
		opts.Decimals = DefaultDecimals
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	opener := opts.Opener
	if opener == nil {
		opener = source.NewOpener(source.DefaultS3Config())
	}
	return &Analyzer{
		opts:       opts,
		opener:     opener,
		summarizer: summary.New(opts.SummaryTopN, logger),
		logger:     logger,
	}
}

// Analyze opens location and analyzes it.
func (a *Analyzer) Analyze(ctx context.Context, location string) (*Report, error) {
	rc, loc, err := a.opener.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return a.AnalyzeReader(ctx, rc, loc.Name(), a.opts.Format)
}

// AnalyzeReader loads an event log from r and analyzes it. name is used for
// format detection and reporting.
func (a *Analyzer) AnalyzeReader(ctx context.Context, r io.Reader, name string, format eventlog.Format) (*Report, error) {
	if format == eventlog.FormatUnknown {
		format = eventlog.DetectFormat(name)
	}
	if format == eventlog.FormatUnknown {
		format = eventlog.FormatCSV
	}

	loader, err := eventlog.NewLoader(format, a.opts.Schema, a.opts.Load)
	if err != nil {
		return nil, pmerrors.Wrapf(err, pmerrors.CodeInvalidFormat, "create %s loader", format)
	}

	ctx, span := telemetry.StartSpan(ctx, "analysis.load",
		attribute.String("source", name),
		attribute.String("format", format.String()),
	)
	tbl, err := loader.Load(ctx, r, name)
	telemetry.EndSpan(span, err)
	if err != nil {
		fields := []zap.Field{zap.String("source", name), zap.Error(err)}
		var perr *pmerrors.Error
		if errors.As(err, &perr) {
			fields = append(fields, zap.String("stack", perr.FormatStack()))
		}
		a.logger.Error("load failed", fields...)
		return nil, err
	}

	report, err := a.AnalyzeTable(ctx, tbl)
	if report != nil {
		report.Format = format.String()
	}
	return report, err
}

// AnalyzeTable analyzes an already loaded event log. Only cancellation
// fails a run; everything else degrades into report conditions.
func (a *Analyzer) AnalyzeTable(ctx context.Context, tbl *model.Table) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:          uuid.NewString(),
		Source:         tbl.Source,
		GeneratedAt:    start.UTC(),
		Rows:           tbl.Len(),
		InvalidNumbers: tbl.InvalidNumbers,
		SkippedRows:    tbl.MissingKeys,
	}
	logger := a.logger.With(zap.String("run_id", report.RunID), zap.String("source", tbl.Source))

	ctx, root := telemetry.StartSpan(ctx, "analysis.run",
		attribute.String("run_id", report.RunID),
		attribute.Int("rows", tbl.Len()),
	)
	defer root.End()

	if tbl.MissingKeys > 0 {
		report.addCondition(pmerrors.New(pmerrors.CodeMissingKey,
			fmt.Sprintf("%d rows without a case ID or activity were skipped", tbl.MissingKeys)))
	}
	if tbl.InvalidNumbers > 0 {
		report.addCondition(pmerrors.New(pmerrors.CodeInvalidNumber,
			fmt.Sprintf("%d numeric cells could not be parsed and were treated as missing", tbl.InvalidNumbers)))
	}

	_, span := telemetry.StartSpan(ctx, "analysis.mine")
	res := mining.Mine(tbl.Records)
	span.SetAttributes(
		attribute.Int("qualifying", res.Qualifying),
		attribute.Int("cases", len(res.Cases)),
		attribute.Int("variants", len(res.Variants)),
	)
	telemetry.EndSpan(span, nil)

	report.Qualifying = res.Qualifying
	report.Dropped = res.Dropped
	report.Cases = len(res.Cases)
	report.Variants = res.Stats
	report.Extremes = res.Extremes
	report.Insights = res.Insights
	report.Correlation = res.Correlation

	if res.ExtremesErr != nil {
		report.addCondition(res.ExtremesErr)
	}
	if res.CorrelationErr != nil {
		report.addCondition(res.CorrelationErr)
	}
	if res.InconsistentCases > 0 {
		report.addCondition(pmerrors.New(pmerrors.CodeInconsistentSatisfaction,
			fmt.Sprintf("%d cases carry more than one satisfaction value; the earliest was used", res.InconsistentCases)))
	}

	if err := ctx.Err(); err != nil {
		return nil, pmerrors.ContextCanceled("analysis", err)
	}

	sctx, span := telemetry.StartSpan(ctx, "analysis.summary")
	sum, err := a.summarizer.Summarize(sctx, res.Records)
	telemetry.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			err = pmerrors.ContextCanceled("summary", ctx.Err())
		}
		if pmerrors.IsFatal(err) {
			return nil, err
		}
		logger.Warn("summary failed", zap.Error(err))
		report.addCondition(err)
	} else {
		report.Summary = sum
		report.SummaryTable = sum.Markdown(a.labels(), a.opts.Decimals)
	}

	if a.opts.Narrator != nil && report.Summary != nil {
		nctx, span := telemetry.StartSpan(ctx, "analysis.narrative")
		prompt := narrative.BuildPrompt(report.SummaryTable, report.Correlation)
		report.Narrative = a.opts.Narrator.Generate(nctx, prompt)
		span.SetAttributes(attribute.Bool("cached", report.Narrative.Cached))
		telemetry.EndSpan(span, report.Narrative.Err)
		if report.Narrative.Failed() {
			if ctx.Err() != nil {
				return nil, pmerrors.ContextCanceled("narrative", ctx.Err())
			}
			report.addCondition(report.Narrative.Err)
		}
	}

	report.Elapsed = time.Since(start)

	for _, c := range report.Conditions {
		logger.Warn("analysis condition", zap.String("code", string(c.Code)), zap.String("message", c.Message))
	}
	logger.Info("analysis complete",
		zap.Int("rows", report.Rows),
		zap.Int("qualifying", report.Qualifying),
		zap.Int("dropped", report.Dropped),
		zap.Int("cases", report.Cases),
		zap.Int("variants", len(report.Variants)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// AnalyzeAll analyzes independent inputs concurrently. Reports keep the
// order of locations and a failed input leaves a nil entry. Failures are
// collected into a *pmerrors.MultiError when there is more than one.
// Cancellation stops the remaining runs.
func (a *Analyzer) AnalyzeAll(ctx context.Context, locations []string) ([]*Report, error) {
	reports := make([]*Report, len(locations))
	failures := make([]error, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Parallelism)
	for i, loc := range locations {
		i, loc := i, loc
		g.Go(func() error {
			r, err := a.Analyze(gctx, loc)
			if a.opts.OnComplete != nil {
				a.opts.OnComplete(loc, err)
			}
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", loc, err)
				if pmerrors.IsCode(err, pmerrors.CodeContextCanceled) || pmerrors.IsCode(err, pmerrors.CodeTimeout) {
					return err
				}
				return nil
			}
			reports[i] = r
			return nil
		})
	}
	_ = g.Wait()

	var merr pmerrors.MultiError
	for _, err := range failures {
		merr.Add(err)
	}
	if merr.HasErrors() {
		a.logger.Warn("some inputs failed", zap.Int("failed", len(merr.Errors)), zap.Int("inputs", len(locations)))
	}
	return reports, merr.Combined()
}

func (a *Analyzer) labels() summary.Labels {
	s := a.opts.Schema
	return summary.Labels{
		Activity:     s.Activity,
		IssueType:    s.IssueType,
		Resolver:     s.Resolver,
		CaseDuration: s.CaseDuration,
		Satisfaction: s.Satisfaction,
	}
}
