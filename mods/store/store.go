// Package store keeps the history of fit runs in a SQLite database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/airperm/aptfit/mods/report"
	"github.com/gofrs/uuid/v5"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on every schema change; older databases are rejected.
const schemaVersion = 2

var ErrSchemaMismatch = errors.New("schema version mismatch")

// timeLayout has a fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	// pragmas go in the DSN so that every pooled connection gets them
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Run describes one stored fit run.
type Run struct {
	ID              uuid.UUID `json:"id" yaml:"id"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	Files           []string  `json:"files" yaml:"files"`
	ConfidenceLevel float64   `json:"confidence_level" yaml:"confidence_level"`
	Specimens       int       `json:"specimens" yaml:"specimens"`
	Converged       int       `json:"converged" yaml:"converged"`
}

// Record is a summary row together with the run it belongs to.
type Record struct {
	RunID     uuid.UUID  `json:"run_id" yaml:"run_id"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	Row       report.Row `json:"row" yaml:"row"`
}

// SaveRun stores the summary rows of one run and returns the new run ID.
func (s *Store) SaveRun(ctx context.Context, files []string, level float64, horizon float64, rows []report.Row) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("run id: %w", err)
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal files: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, files, confidence_level, horizon) VALUES (?, ?, ?, ?, ?)`,
		id.String(), time.Now().UTC().Format(timeLayout), string(filesJSON), level, nullable(horizon),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fits (
            run_id, seq, specimen, samples, status, a, b, c, sigma_a, sigma_b, sigma_c,
            rss, correlation, iterations, horizon, projected, observed, error
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, fmt.Errorf("prepare fit insert: %w", err)
	}
	defer stmt.Close()
	for i, r := range rows {
		_, err := stmt.ExecContext(ctx,
			id.String(), i, r.ID, r.Samples, r.Status,
			nullable(r.A.Float64()), nullable(r.B.Float64()), nullable(r.C.Float64()),
			nullable(r.SigmaA.Float64()), nullable(r.SigmaB.Float64()), nullable(r.SigmaC.Float64()),
			nullable(r.RSS.Float64()), nullable(r.Correlation.Float64()), r.Iterations, nullable(r.Horizon.Float64()),
			nullable(r.Projected.Float64()), nullable(r.Observed.Float64()), nullableString(r.Error),
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert fit %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

// Runs lists the most recent runs first, at most limit when limit > 0.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT r.id, r.created_at, r.files, r.confidence_level,
            COUNT(f.seq), COALESCE(SUM(CASE WHEN f.status = ? THEN 1 ELSE 0 END), 0)
        FROM runs r LEFT JOIN fits f ON f.run_id = r.id
        GROUP BY r.id
        ORDER BY r.created_at DESC, r.id DESC`
	args := []any{report.StatusConverged}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var ret []Run
	for rows.Next() {
		var run Run
		var id, created, files string
		if err := rows.Scan(&id, &created, &files, &run.ConfidenceLevel, &run.Specimens, &run.Converged); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.ID, err = uuid.FromString(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("run %s created_at: %w", id, err)
		}
		if err := json.Unmarshal([]byte(files), &run.Files); err != nil {
			return nil, fmt.Errorf("run %s files: %w", id, err)
		}
		ret = append(ret, run)
	}
	return ret, rows.Err()
}

// History returns every stored row of a specimen, oldest run first.
func (s *Store) History(ctx context.Context, specimen string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id, r.created_at,
            f.specimen, f.samples, f.status, f.a, f.b, f.c, f.sigma_a, f.sigma_b, f.sigma_c,
            f.rss, f.correlation, f.iterations, f.horizon, f.projected, f.observed, f.error
        FROM fits f JOIN runs r ON r.id = f.run_id
        WHERE f.specimen = ?
        ORDER BY r.created_at, f.seq`, specimen)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var ret []Record
	for rows.Next() {
		var rec Record
		var id, created string
		var a, b, c, sa, sb, sc, rss, corr, horizon, projected, observed sql.NullFloat64
		var errText sql.NullString
		r := &rec.Row
		if err := rows.Scan(&id, &created, &r.ID, &r.Samples, &r.Status,
			&a, &b, &c, &sa, &sb, &sc, &rss, &corr, &r.Iterations, &horizon, &projected, &observed, &errText); err != nil {
			return nil, fmt.Errorf("scan fit: %w", err)
		}
		if rec.RunID, err = uuid.FromString(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("run %s created_at: %w", id, err)
		}
		r.A, r.B, r.C = number(a), number(b), number(c)
		r.SigmaA, r.SigmaB, r.SigmaC = number(sa), number(sb), number(sc)
		r.RSS, r.Correlation, r.Horizon = number(rss), number(corr), number(horizon)
		r.Projected, r.Observed = number(projected), number(observed)
		r.Error = errText.String
		ret = append(ret, rec)
	}
	return ret, rows.Err()
}

// DeleteRun removes a run and its rows.
func (s *Store) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// nullable stores non-finite values as NULL.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func number(v sql.NullFloat64) report.Number {
	if !v.Valid {
		return report.Number(math.NaN())
	}
	return report.Number(v.Float64)
}
