package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// Aggregator answers the read-API side of §4.7 (overview stats, breakdowns,
// temporal patterns) via duckdb querying the postgres query_records table
// directly through duckdb's postgres scanner, keeping heavy OLAP-style
// aggregation off the hot primary postgres connection pool that the
// Cognitive Pipeline depends on for every request.
type Aggregator struct {
	db *sql.DB
}

// NewAggregator opens an in-process duckdb database and attaches the
// primary postgres database read-only under the alias "pg".
func NewAggregator(postgresDSN string) (*Aggregator, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	attach := fmt.Sprintf("INSTALL postgres; LOAD postgres; ATTACH '%s' AS pg (TYPE postgres, READ_ONLY)", postgresDSN)
	if _, err := db.Exec(attach); err != nil {
		db.Close()
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	return &Aggregator{db: db}, nil
}

func (a *Aggregator) Close() error { return a.db.Close() }

// OverviewStats is the top-level count/latency summary.
type OverviewStats struct {
	TotalQueries   int64
	AvgResponseMs  float64
	FailureRate    float64
	DistinctUsers  int64
}

func (a *Aggregator) OverviewStats(ctx context.Context, tenantID string, hours int) (OverviewStats, error) {
	var s OverviewStats
	row := a.db.QueryRowContext(ctx, `
		SELECT count(*), avg(response_time_ms),
		       avg(CASE WHEN status != 'OK' THEN 1.0 ELSE 0.0 END),
		       count(DISTINCT user_email)
		FROM pg.query_records
		WHERE tenant_id = ? AND created_at >= now() - (? || ' hours')::interval`,
		tenantID, hours,
	)
	if err := row.Scan(&s.TotalQueries, &s.AvgResponseMs, &s.FailureRate, &s.DistinctUsers); err != nil {
		return OverviewStats{}, apperr.New(apperr.BackendUnavailable, err)
	}
	return s, nil
}

// HourBucket is one (hour, count) pair for the queries-by-hour chart.
type HourBucket struct {
	Hour  int
	Count int64
}

func (a *Aggregator) QueriesByHour(ctx context.Context, tenantID string, hours int) ([]HourBucket, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT extract('hour' FROM created_at)::int AS h, count(*)
		FROM pg.query_records
		WHERE tenant_id = ? AND created_at >= now() - (? || ' hours')::interval
		GROUP BY h ORDER BY h`,
		tenantID, hours,
	)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	defer rows.Close()
	var out []HourBucket
	for rows.Next() {
		var b HourBucket
		if err := rows.Scan(&b.Hour, &b.Count); err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Breakdown is a generic label/count pair used by category, intent,
// urgency, and inferred-department breakdowns.
type Breakdown struct {
	Label string
	Count int64
}

func (a *Aggregator) breakdown(ctx context.Context, column, tenantID string, hours int) ([]Breakdown, error) {
	query := fmt.Sprintf(`
		SELECT %s, count(*)
		FROM pg.query_records
		WHERE tenant_id = ? AND created_at >= now() - (? || ' hours')::interval
		GROUP BY %s ORDER BY count(*) DESC`, column, column)
	rows, err := a.db.QueryContext(ctx, query, tenantID, hours)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	defer rows.Close()
	var out []Breakdown
	for rows.Next() {
		var b Breakdown
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (a *Aggregator) CategoryBreakdown(ctx context.Context, tenantID string, hours int) ([]Breakdown, error) {
	return a.breakdown(ctx, "category", tenantID, hours)
}

func (a *Aggregator) IntentBreakdown(ctx context.Context, tenantID string, hours int) ([]Breakdown, error) {
	return a.breakdown(ctx, "intent", tenantID, hours)
}

func (a *Aggregator) UrgencyBreakdown(ctx context.Context, tenantID string, hours int) ([]Breakdown, error) {
	return a.breakdown(ctx, "urgency", tenantID, hours)
}

func (a *Aggregator) InferredDepartmentBreakdown(ctx context.Context, tenantID string, hours int) ([]Breakdown, error) {
	return a.breakdown(ctx, "inferred_department", tenantID, hours)
}

// ComplexityDistribution buckets complexity scores into deciles.
func (a *Aggregator) ComplexityDistribution(ctx context.Context, tenantID string, hours int) ([]Breakdown, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT (floor(complexity * 10) / 10)::varchar AS bucket, count(*)
		FROM pg.query_records
		WHERE tenant_id = ? AND created_at >= now() - (? || ' hours')::interval
		GROUP BY bucket ORDER BY bucket`,
		tenantID, hours,
	)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	defer rows.Close()
	var out []Breakdown
	for rows.Next() {
		var b Breakdown
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// QueryRecordsInWindow loads the fields the Trend & Anomaly Detector (§4.6.4)
// needs for records created in [start, end), feeding TrendScheduler's
// recent/historical pair.
func (a *Aggregator) QueryRecordsInWindow(ctx context.Context, tenantID string, start, end time.Time) ([]types.QueryRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT department_id, inferred_department, is_repeat, keywords::varchar, created_at
		FROM pg.query_records
		WHERE tenant_id = ? AND created_at >= ? AND created_at < ?`,
		tenantID, start, end,
	)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	defer rows.Close()

	var out []types.QueryRecord
	for rows.Next() {
		var r types.QueryRecord
		var keywordsJSON string
		if err := rows.Scan(&r.DepartmentID, &r.InferredDepartment, &r.IsRepeat, &keywordsJSON, &r.CreatedAt); err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		_ = json.Unmarshal([]byte(keywordsJSON), &r.Keywords)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentErrors returns the last n non-OK query records for operator triage.
type ErrorRecord struct {
	ID        string
	Status    string
	QueryText string
	ModelID   string
}

func (a *Aggregator) RecentErrors(ctx context.Context, tenantID string, n int) ([]ErrorRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id::varchar, status, query_text, model_id
		FROM pg.query_records
		WHERE tenant_id = ? AND status != 'OK'
		ORDER BY created_at DESC LIMIT ?`,
		tenantID, n,
	)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	defer rows.Close()
	var out []ErrorRecord
	for rows.Next() {
		var e ErrorRecord
		if err := rows.Scan(&e.ID, &e.Status, &e.QueryText, &e.ModelID); err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
