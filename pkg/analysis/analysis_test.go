package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	pmerrors "github.com/logflow/pmlens/pkg/errors"
	"github.com/logflow/pmlens/pkg/eventlog"
	"github.com/logflow/pmlens/pkg/narrative"
)

const helpdeskCSV = `case:concept:name,concept:name,time:timestamp,case_duration,trace:customer_satisfaction,event:resolver,trace:issue_type
C1,Submit,2024-03-01T09:00:00Z,2,5,alice,Billing
C1,Resolve,2024-03-01T11:00:00Z,2,5,alice,Billing
C2,Submit,2024-03-02T09:00:00Z,4,4,bob,Billing
C2,Resolve,2024-03-02T13:00:00Z,4,4,bob,Billing
C3,Submit,2024-03-03T09:00:00Z,9,2,carol,Login
C3,Escalate,2024-03-03T12:00:00Z,9,2,dave,Login
C3,Resolve,2024-03-03T18:00:00Z,9,2,dave,Login
C4,Submit,2024-03-04T09:00:00Z,,3,erin,Other
`

type stubCompleter struct {
	prompt string
	err    error
}

func (s *stubCompleter) Model() string { return "stub" }

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return "- escalations hurt satisfaction", nil
}

func analyze(t *testing.T, a *Analyzer, data string) *Report {
	t.Helper()
	r, err := a.AnalyzeReader(context.Background(), strings.NewReader(data), "helpdesk.csv", eventlog.FormatUnknown)
	require.NoError(t, err)
	return r
}

func TestAnalyzeReader(t *testing.T) {
	stub := &stubCompleter{}
	opts := DefaultOptions()
	opts.Narrator = narrative.NewService(stub, nil, time.Second, zap.NewNop())

	r := analyze(t, New(opts, zap.NewNop()), helpdeskCSV)

	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, "helpdesk.csv", r.Source)
	assert.Equal(t, "csv", r.Format)
	assert.Equal(t, 8, r.Rows)
	assert.Equal(t, 7, r.Qualifying)
	assert.Equal(t, 1, r.Dropped)
	assert.Equal(t, 3, r.Cases)

	require.Len(t, r.Variants, 2)
	assert.Equal(t, "Submit -> Resolve", r.Variants[0].VariantID)
	assert.Equal(t, 2, r.Variants[0].Frequency)
	assert.InDelta(t, 4.5, r.Variants[0].AvgSatisfaction.Float64, 1e-9)
	assert.InDelta(t, 3.0, r.Variants[0].AvgDurationHours.Float64, 1e-9)

	require.NotNil(t, r.Extremes.LowSatisfaction)
	assert.Equal(t, "Submit -> Escalate -> Resolve", r.Extremes.LowSatisfaction.VariantID)
	assert.Contains(t, r.Insights, "### Key Variant Insights")

	require.True(t, r.Correlation.Valid)
	assert.Less(t, r.Correlation.Float64, -0.9)

	require.NotNil(t, r.Summary)
	assert.Equal(t, 7, r.Summary.TotalGroups)
	assert.True(t, strings.HasPrefix(r.SummaryTable, "| concept:name"))

	require.NotNil(t, r.Narrative)
	assert.False(t, r.Narrative.Failed())
	assert.Equal(t, "- escalations hurt satisfaction", r.Narrative.Text)
	assert.Contains(t, stub.prompt, r.SummaryTable)
	assert.Contains(t, stub.prompt, "satisfaction score is -1.00.")

	assert.Empty(t, r.Conditions)
}

func TestAnalyzeReader_NarrativeFailureIsACondition(t *testing.T) {
	opts := DefaultOptions()
	opts.Narrator = narrative.NewService(&stubCompleter{err: errors.New("quota exceeded")}, nil, time.Second, nil)

	r := analyze(t, New(opts, nil), helpdeskCSV)

	require.NotNil(t, r.Narrative)
	assert.Equal(t, "Error generating insights: quota exceeded", r.Narrative.Text)
	assert.True(t, r.HasCondition(pmerrors.CodeExternalService))
	assert.NotEmpty(t, r.Insights)
}

func TestAnalyzeReader_NoNarrator(t *testing.T) {
	r := analyze(t, New(DefaultOptions(), nil), helpdeskCSV)
	assert.Nil(t, r.Narrative)
}

func TestAnalyzeReader_MissingColumn(t *testing.T) {
	data := strings.Replace(helpdeskCSV, "trace:customer_satisfaction", "satisfaction", 1)
	_, err := New(DefaultOptions(), nil).AnalyzeReader(context.Background(), strings.NewReader(data), "x.csv", eventlog.FormatCSV)
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeMissingColumn))
}

func TestAnalyzeReader_NoQualifyingRows(t *testing.T) {
	data := `case:concept:name,concept:name,time:timestamp,case_duration,trace:customer_satisfaction,event:resolver,trace:issue_type
C1,Submit,2024-03-01T09:00:00Z,,5,alice,Billing
C2,Submit,2024-03-01T09:00:00Z,3,x,alice,Billing
`
	r := analyze(t, New(DefaultOptions(), nil), data)

	assert.Equal(t, 0, r.Qualifying)
	assert.Empty(t, r.Variants)
	assert.Nil(t, r.Extremes.Top)
	assert.True(t, r.HasCondition(pmerrors.CodeInsufficientData))
	assert.True(t, r.HasCondition(pmerrors.CodeUndefinedCorrelation))
	assert.True(t, r.HasCondition(pmerrors.CodeInvalidNumber))
	assert.Contains(t, r.Insights, "No qualifying cases")
}

func TestAnalyzeReader_InconsistentSatisfaction(t *testing.T) {
	data := strings.Replace(helpdeskCSV, "C1,Resolve,2024-03-01T11:00:00Z,2,5", "C1,Resolve,2024-03-01T11:00:00Z,2,1", 1)
	r := analyze(t, New(DefaultOptions(), nil), data)
	assert.True(t, r.HasCondition(pmerrors.CodeInconsistentSatisfaction))
}

func TestAnalyzeTable_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultOptions(), nil).AnalyzeReader(ctx, strings.NewReader(helpdeskCSV), "x.csv", eventlog.FormatCSV)
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeContextCanceled))
}

func TestAnalyzeAll(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(helpdeskCSV), 0o644))
		paths = append(paths, p)
	}

	var completed atomic.Int32
	opts := DefaultOptions()
	opts.OnComplete = func(string, error) { completed.Add(1) }

	reports, err := New(opts, nil).AnalyzeAll(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, int32(3), completed.Load())
	for i, r := range reports {
		assert.Equal(t, filepath.Base(paths[i]), filepath.Base(r.Source))
		assert.Equal(t, 3, r.Cases)
	}
	assert.NotEqual(t, reports[0].RunID, reports[1].RunID)
}

func TestAnalyzeReader_SkipsRowsWithoutKeys(t *testing.T) {
	data := helpdeskCSV + ",Submit,2024-03-05T09:00:00Z,1,1,frank,Other\nC9,,2024-03-05T09:00:00Z,1,1,frank,Other\n"
	r := analyze(t, New(DefaultOptions(), nil), data)

	assert.Equal(t, 2, r.SkippedRows)
	assert.True(t, r.HasCondition(pmerrors.CodeMissingKey))
	assert.Equal(t, 8, r.Rows)
	assert.Equal(t, 3, r.Cases)
}

func TestAnalyzeReader_ExpiredDeadlineIsTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := New(DefaultOptions(), nil).AnalyzeReader(ctx, strings.NewReader(helpdeskCSV), "x.csv", eventlog.FormatCSV)
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyzeReader_LoadFailureLogsStack(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	a := New(DefaultOptions(), zap.New(core))

	_, err := a.AnalyzeReader(context.Background(), strings.NewReader("case:concept:name\nC1\n"), "x.csv", eventlog.FormatCSV)
	require.Error(t, err)

	entries := logs.FilterMessage("load failed").All()
	require.Len(t, entries, 1)
	stack, ok := entries[0].ContextMap()["stack"].(string)
	require.True(t, ok)
	assert.Contains(t, stack, "eventlog")
}

func TestAnalyzeAll_CollectsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(good, []byte(helpdeskCSV), 0o644))
	paths := []string{filepath.Join(dir, "a.csv"), good, filepath.Join(dir, "b.csv")}

	reports, err := New(DefaultOptions(), nil).AnalyzeAll(context.Background(), paths)
	require.Error(t, err)

	var merr *pmerrors.MultiError
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeSourceNotFound))
	assert.Contains(t, err.Error(), "a.csv")
	assert.Contains(t, err.Error(), "b.csv")

	require.Len(t, reports, 3)
	assert.Nil(t, reports[0])
	require.NotNil(t, reports[1])
	assert.Equal(t, 3, reports[1].Cases)
	assert.Nil(t, reports[2])
}

func TestAnalyzeAll_MissingInput(t *testing.T) {
	_, err := New(DefaultOptions(), nil).AnalyzeAll(context.Background(), []string{filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeSourceNotFound))
}
