// Package summary computes per-category mean aggregates of an event log in an
// in-memory DuckDB database.
package summary

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/logflow/pmlens/internal/model"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

// DefaultTopN is the number of category rows kept in the summary.
const DefaultTopN = 15

// Dimension is a categorical column of the event log.
type Dimension string

const (
	DimActivity  Dimension = "activity"
	DimIssueType Dimension = "issue_type"
	DimResolver  Dimension = "resolver"
)

// Dimensions lists the breakdown dimensions in report order.
var Dimensions = []Dimension{DimActivity, DimIssueType, DimResolver}

// Row is the mean of the numeric columns for one (activity, issue type,
// resolver) combination.
type Row struct {
	Activity        string          `json:"activity"`
	IssueType       string          `json:"issue_type"`
	Resolver        string          `json:"resolver"`
	AvgCaseDuration model.NullFloat `json:"avg_case_duration"`
	AvgSatisfaction model.NullFloat `json:"avg_satisfaction"`
	Events          int             `json:"events"`
}

// BreakdownRow is the mean satisfaction for one value of a dimension.
type BreakdownRow struct {
	Value           string          `json:"value"`
	AvgSatisfaction model.NullFloat `json:"avg_satisfaction"`
	Events          int             `json:"events"`
}

// Breakdown groups satisfaction by a single dimension.
type Breakdown struct {
	Dimension Dimension      `json:"dimension"`
	Rows      []BreakdownRow `json:"rows"`
}

// Summary is the category table plus the single-dimension breakdowns.
type Summary struct {
	// Rows are sorted by (activity, issue type, resolver) and cut to TopN.
	Rows []Row `json:"rows"`

	// TotalGroups counts all combinations before the cut.
	TotalGroups int `json:"total_groups"`

	Breakdowns []Breakdown `json:"breakdowns"`
}

// Breakdown returns the breakdown for d, or nil.
func (s *Summary) Breakdown(d Dimension) *Breakdown {
	for i := range s.Breakdowns {
		if s.Breakdowns[i].Dimension == d {
			return &s.Breakdowns[i]
		}
	}
	return nil
}

// Summarizer computes summaries.
type Summarizer struct {
	topN   int
	logger *zap.Logger
}

// New creates a summarizer. topN <= 0 selects DefaultTopN.
func New(topN int, logger *zap.Logger) *Summarizer {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{topN: topN, logger: logger}
}

// Summarize loads records into a fresh in-memory database and aggregates them.
func (s *Summarizer) Summarize(ctx context.Context, records []model.EventRecord) (*Summary, error) {
	start := time.Now()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "open duckdb")
	}
	defer db.Close()
	// One connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)

	if err := load(ctx, db, records); err != nil {
		return nil, err
	}

	rows, total, err := s.categories(ctx, db)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Rows: rows, TotalGroups: total}
	for _, d := range Dimensions {
		b, err := breakdown(ctx, db, d)
		if err != nil {
			return nil, err
		}
		sum.Breakdowns = append(sum.Breakdowns, *b)
	}

	s.logger.Debug("summary computed",
		zap.Int("records", len(records)),
		zap.Int("groups", total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sum, nil
}

func load(ctx context.Context, db *sql.DB, records []model.EventRecord) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE events (
			activity VARCHAR NOT NULL,
			issue_type VARCHAR NOT NULL,
			resolver VARCHAR NOT NULL,
			case_duration DOUBLE,
			satisfaction DOUBLE
		)
	`)
	if err != nil {
		return pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "create table")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (activity, issue_type, resolver, case_duration, satisfaction)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "prepare insert")
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if _, err := stmt.ExecContext(ctx, r.Activity, r.IssueType, r.Resolver,
			nullable(r.CaseDuration), nullable(r.Satisfaction)); err != nil {
			return pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "insert event").WithContext("row", r.Row)
		}
	}

	if err := tx.Commit(); err != nil {
		return pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "commit")
	}
	return nil
}

func (s *Summarizer) categories(ctx context.Context, db *sql.DB) ([]Row, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (SELECT DISTINCT activity, issue_type, resolver FROM events)
	`).Scan(&total); err != nil {
		return nil, 0, pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "count groups")
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT activity, issue_type, resolver,
			AVG(case_duration), AVG(satisfaction), COUNT(*)
		FROM events
		GROUP BY activity, issue_type, resolver
		ORDER BY activity, issue_type, resolver
		LIMIT %d
	`, s.topN))
	if err != nil {
		return nil, 0, pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "query categories")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var dur, sat sql.NullFloat64
		var n int64
		if err := rows.Scan(&r.Activity, &r.IssueType, &r.Resolver, &dur, &sat, &n); err != nil {
			return nil, 0, pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "scan category")
		}
		r.AvgCaseDuration = fromSQL(dur)
		r.AvgSatisfaction = fromSQL(sat)
		r.Events = int(n)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "iterate categories")
	}
	return out, total, nil
}

func breakdown(ctx context.Context, db *sql.DB, d Dimension) (*Breakdown, error) {
	// d is one of the fixed Dimensions, never user input.
	query := fmt.Sprintf(`
		SELECT %[1]s, AVG(satisfaction), COUNT(*)
		FROM events
		GROUP BY %[1]s
		ORDER BY %[1]s
	`, string(d))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "query breakdown").WithContext("dimension", d)
	}
	defer rows.Close()

	b := &Breakdown{Dimension: d}
	for rows.Next() {
		var r BreakdownRow
		var sat sql.NullFloat64
		var n int64
		if err := rows.Scan(&r.Value, &sat, &n); err != nil {
			return nil, pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "scan breakdown")
		}
		r.AvgSatisfaction = fromSQL(sat)
		r.Events = int(n)
		b.Rows = append(b.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeSummaryFailed, "iterate breakdown")
	}
	return b, nil
}

func nullable(v model.NullFloat) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func fromSQL(v sql.NullFloat64) model.NullFloat {
	if !v.Valid {
		return model.Null()
	}
	return model.Float(v.Float64)
}
