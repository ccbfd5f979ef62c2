package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"yogastudio/internal/adapters/storage"
	domain "yogastudio/internal/domain/journal"
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Compile-time check that *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new journal store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Record appends an entry to its run.
// PRE: entry passes Validate
// POST: entry persisted with the next sequence number of its run
func (s *SQLiteStore) Record(ctx context.Context, e domain.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	query := `INSERT INTO journal_entry (id, run_id, seq, alias, method, path, status_code, matched, at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM journal_entry WHERE run_id = ?), ?, ?, ?, ?, ?, ?)`
	matched := 0
	if e.Matched {
		matched = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.RunID, e.RunID, e.Alias, e.Method, e.Path, e.StatusCode, matched, e.At.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// ListByRun returns the entries of one run in recording order.
// PRE: runID is non-empty
// POST: Returns an empty slice for unknown runs
func (s *SQLiteStore) ListByRun(ctx context.Context, runID string) ([]domain.Entry, error) {
	query := "SELECT id, run_id, alias, method, path, status_code, matched, at FROM journal_entry WHERE run_id = ? ORDER BY seq"
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Runs lists journaled runs, most recent first.
// PRE: limit > 0, otherwise 50 is used
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT run_id, COUNT(*), SUM(CASE WHEN matched = 0 THEN 1 ELSE 0 END), MIN(at)
		FROM journal_entry GROUP BY run_id ORDER BY MIN(at) DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		var r domain.Run
		var startedAt string
		if err := rows.Scan(&r.ID, &r.Entries, &r.Unmatched, &startedAt); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanEntry(scan func(dest ...any) error) (domain.Entry, error) {
	var e domain.Entry
	var matched int
	var at string
	if err := scan(&e.ID, &e.RunID, &e.Alias, &e.Method, &e.Path, &e.StatusCode, &matched, &at); err != nil {
		if err == sql.ErrNoRows {
			return domain.Entry{}, fmt.Errorf("journal entry not found: %w", err)
		}
		return domain.Entry{}, err
	}
	e.Matched = matched == 1
	e.At, _ = time.Parse(timeLayout, at)
	return e, nil
}
