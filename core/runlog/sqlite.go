package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/bhkw/core/schedule"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	ts          INTEGER NOT NULL,
	solver      TEXT NOT NULL,
	status      TEXT NOT NULL,
	objective   REAL,
	gap         REAL,
	nodes       INTEGER,
	runtime_ns  INTEGER,
	steps       INTEGER,
	online      INTEGER,
	fuel_cost   TEXT,
	capacity    TEXT,
	revenue     TEXT,
	net         TEXT,
	input_dir   TEXT,
	output      TEXT,
	error       TEXT
);
CREATE INDEX IF NOT EXISTS runs_ts ON runs (ts);
CREATE INDEX IF NOT EXISTS runs_status ON runs (status, ts);`

const runColumns = `id, ts, solver, status, objective, gap, nodes, runtime_ns, steps, online,
	fuel_cost, capacity, revenue, net, input_dir, output, error`

// SQLiteStore keeps one row per run so the history can be filtered in SQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(runsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runlog schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append inserts the record. Appending a run id twice is an error.
func (s *SQLiteStore) Append(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), rec.Solver, rec.Status, rec.Objective, rec.Gap,
		rec.Nodes, int64(rec.Runtime), rec.Steps, rec.Online,
		rec.Cost.FuelCost.String(), rec.Cost.CapacityCharge.String(), rec.Cost.Revenue.String(), rec.Cost.Net.String(),
		rec.InputDir, rec.Output, rec.Error)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// Query returns records matching q, newest first.
func (s *SQLiteStore) Query(ctx context.Context, q RunQuery) ([]RunRecord, error) {
	var (
		where []string
		args  []any
	)
	if !q.Start.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.End.UnixNano())
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ts DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func scanRun(rows *sql.Rows) (RunRecord, error) {
	var (
		r                          RunRecord
		ts, runtime                int64
		fuel, capacity, rev, net   string
		inputDir, output, errorMsg sql.NullString
	)
	if err := rows.Scan(&r.ID, &ts, &r.Solver, &r.Status, &r.Objective, &r.Gap, &r.Nodes, &runtime,
		&r.Steps, &r.Online, &fuel, &capacity, &rev, &net, &inputDir, &output, &errorMsg); err != nil {
		return r, err
	}
	r.Timestamp = time.Unix(0, ts).UTC()
	r.Runtime = time.Duration(runtime)
	r.InputDir, r.Output, r.Error = inputDir.String, output.String, errorMsg.String
	var err error
	if r.Cost, err = parseBreakdown(fuel, capacity, rev, net); err != nil {
		return r, fmt.Errorf("run %s: %w", r.ID, err)
	}
	return r, nil
}

func parseBreakdown(fuel, capacity, revenue, net string) (schedule.Breakdown, error) {
	vals := make([]decimal.Decimal, 4)
	for i, s := range []string{fuel, capacity, revenue, net} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return schedule.Breakdown{}, err
		}
		vals[i] = d
	}
	return schedule.Breakdown{FuelCost: vals[0], CapacityCharge: vals[1], Revenue: vals[2], Net: vals[3]}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
