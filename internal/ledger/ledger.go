// Package ledger records every account run in SQLite so operators can see
// what a batch did without walking the output tree.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/vhist/idgen"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one ledger row.
type Run struct {
	ID         string
	Username   string
	RunDate    string
	Attempt    int
	Status     string
	Entries    int
	New        int
	Resolved   int
	Downloaded int
	Mismatch   bool
	Truncated  bool
	Error      string
	StartedAt  int64 // unix ms
	FinishedAt int64 // unix ms, 0 while running
}

// Summary is what Finish records about a completed run.
type Summary struct {
	Entries    int
	New        int
	Resolved   int
	Downloaded int
	Mismatch   bool
	Truncated  bool
	Err        error
}

// Ledger writes and reads run rows.
type Ledger struct {
	DB    *sql.DB
	NewID idgen.Generator
	Now   func() time.Time
}

// New wraps an open database that already carries Schema.
func New(db *sql.DB) *Ledger {
	return &Ledger{DB: db, NewID: idgen.Run, Now: time.Now}
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.DB.Close() }

// Begin inserts a running row and returns its id.
func (l *Ledger) Begin(ctx context.Context, username, runDate string, attempt int) (string, error) {
	id := l.NewID()
	_, err := l.exec(ctx,
		`INSERT INTO runs (id, username, run_date, attempt, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, username, runDate, attempt, StatusRunning, l.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("ledger: begin: %w", err)
	}
	return id, nil
}

// Finish closes the row id with the run's counters. A non-nil s.Err marks
// the run failed.
func (l *Ledger) Finish(ctx context.Context, id string, s Summary) error {
	status, msg := StatusOK, ""
	if s.Err != nil {
		status, msg = StatusFailed, s.Err.Error()
	}
	res, err := l.exec(ctx,
		`UPDATE runs SET status = ?, entries = ?, new_entries = ?, resolved = ?,
		downloaded = ?, mismatch = ?, truncated = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		status, s.Entries, s.New, s.Resolved, s.Downloaded, boolInt(s.Mismatch), boolInt(s.Truncated), msg,
		l.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("ledger: finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger: finish: run %s not found", id)
	}
	return nil
}

// Recent returns up to limit runs, newest first. An empty username lists
// every account.
func (l *Ledger) Recent(ctx context.Context, username string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, username, run_date, attempt, status, entries, new_entries,
		resolved, downloaded, mismatch, truncated, error, started_at, finished_at
		FROM runs`
	args := []any{}
	if username != "" {
		q += ` WHERE username = ?`
		args = append(args, username)
	}
	q += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var mismatch, truncated int
		if err := rows.Scan(&r.ID, &r.Username, &r.RunDate, &r.Attempt, &r.Status,
			&r.Entries, &r.New, &r.Resolved, &r.Downloaded, &mismatch, &truncated, &r.Error,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		r.Mismatch = mismatch != 0
		r.Truncated = truncated != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
