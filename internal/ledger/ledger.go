// Package ledger records pipeline runs in a SQLite database so impaired
// datasets can be traced back to the parameters and seed that produced them.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DBName is the database filename inside the ledger directory.
const DBName = "runs.db"

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one recorded pipeline execution.
type Run struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Input          string    `json:"input"`
	Output         string    `json:"output"`
	Mode           string    `json:"mode"`
	LagMS          float64   `json:"lag_ms"`
	SigmaMS        float64   `json:"sigma_ms"`
	DropP          float64   `json:"drop_p"`
	Seed           int64     `json:"seed"`
	Seeded         bool      `json:"seeded"`
	RecordsIn      int       `json:"records_in"`
	RecordsOut     int       `json:"records_out"`
	Dropped        int       `json:"dropped"`
	OffsetMeanMS   float64   `json:"offset_mean_ms"`
	OffsetStdDevMS float64   `json:"offset_stddev_ms"`
	OutputSHA256   string    `json:"output_sha256"`
	TrackerCmd     string    `json:"tracker_cmd,omitempty"`
	ExitCode       int       `json:"exit_code"`
	DurationMS     int64     `json:"duration_ms"`
}

// Ledger is a SQLite-backed run history. Safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// Open opens or creates the ledger database in dir.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Ledger{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string { return l.dbPath }

// Record inserts a run.
func (l *Ledger) Record(ctx context.Context, r Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, input_path, output_path,
			mode, lag_ms, sigma_ms, drop_p, seed, seeded,
			records_in, records_out, dropped, offset_mean_ms, offset_stddev_ms,
			output_sha256, tracker_cmd, exit_code, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UTC().Format(time.RFC3339Nano), r.Input, r.Output,
		r.Mode, r.LagMS, r.SigmaMS, r.DropP, r.Seed, boolToInt(r.Seeded),
		r.RecordsIn, r.RecordsOut, r.Dropped, r.OffsetMeanMS, r.OffsetStdDevMS,
		nullString(r.OutputSHA256), nullString(r.TrackerCmd), r.ExitCode, r.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

const selectRun = `
	SELECT id, created_at, input_path, output_path,
		mode, lag_ms, sigma_ms, drop_p, seed, seeded,
		records_in, records_out, dropped, offset_mean_ms, offset_stddev_ms,
		output_sha256, tracker_cmd, exit_code, duration_ms
	FROM runs`

// Get returns the run with id, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (*Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all runs.
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := selectRun + ` ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r         Run
		createdAt string
		seeded    int
		sha, cmd  sql.NullString
	)
	err := s.Scan(&r.ID, &createdAt, &r.Input, &r.Output,
		&r.Mode, &r.LagMS, &r.SigmaMS, &r.DropP, &r.Seed, &seeded,
		&r.RecordsIn, &r.RecordsOut, &r.Dropped, &r.OffsetMeanMS, &r.OffsetStdDevMS,
		&sha, &cmd, &r.ExitCode, &r.DurationMS)
	if err != nil {
		return nil, err
	}
	r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for run %s: %w", r.ID, err)
	}
	r.Seeded = seeded != 0
	r.OutputSHA256 = sha.String
	r.TrackerCmd = cmd.String
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
