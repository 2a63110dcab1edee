package autonomy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists fingerprints in an embedded SQLite database. Outcome
// history lives in an append-only table; fingerprint rows are upserted with
// the latest derived state.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and runs
// migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("autonomy: open sqlite %s: %w", path, err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an existing database handle and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const query = `
	CREATE TABLE IF NOT EXISTS fingerprints (
		id TEXT PRIMARY KEY,
		confidence REAL NOT NULL,
		state TEXT NOT NULL,
		clean_runs INTEGER NOT NULL DEFAULT 0,
		violations INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS outcome_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint_id TEXT NOT NULL,
		execution_id TEXT,
		step_id TEXT,
		outcome TEXT NOT NULL,
		write_capable INTEGER NOT NULL DEFAULT 0,
		approved INTEGER NOT NULL DEFAULT 0,
		detail TEXT,
		at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outcome_events_fp ON outcome_events(fingerprint_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("autonomy: migrate: %w", err)
	}
	return nil
}

// Get loads a fingerprint and its full outcome history.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Fingerprint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, confidence, state, clean_runs, violations, updated_at FROM fingerprints WHERE id = ?`, id)

	var fp Fingerprint
	var updatedAt sql.NullTime
	err := row.Scan(&fp.ID, &fp.Confidence, &fp.State, &fp.CleanRuns, &fp.Violations, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFingerprintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("autonomy: scan fingerprint: %w", err)
	}
	if updatedAt.Valid {
		fp.UpdatedAt = updatedAt.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, step_id, outcome, write_capable, approved, detail, at
		 FROM outcome_events WHERE fingerprint_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("autonomy: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ev OutcomeEvent
		var execID, stepID, detail sql.NullString
		var at time.Time
		if err := rows.Scan(&execID, &stepID, &ev.Outcome, &ev.WriteCapable, &ev.Approved, &detail, &at); err != nil {
			return nil, fmt.Errorf("autonomy: scan event: %w", err)
		}
		ev.ExecutionID = execID.String
		ev.StepID = stepID.String
		ev.Detail = detail.String
		ev.At = at
		fp.History = append(fp.History, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("autonomy: iterate events: %w", err)
	}
	return &fp, nil
}

// Save upserts the fingerprint row and appends any history entries not yet
// persisted. Existing events are never updated or deleted.
func (s *SQLiteStore) Save(ctx context.Context, fp *Fingerprint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("autonomy: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fingerprints (id, confidence, state, clean_runs, violations, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			confidence = excluded.confidence,
			state = excluded.state,
			clean_runs = excluded.clean_runs,
			violations = excluded.violations,
			updated_at = excluded.updated_at`,
		fp.ID, fp.Confidence, string(fp.State), fp.CleanRuns, fp.Violations, fp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("autonomy: upsert fingerprint: %w", err)
	}

	var persisted int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outcome_events WHERE fingerprint_id = ?`, fp.ID).Scan(&persisted); err != nil {
		return fmt.Errorf("autonomy: count events: %w", err)
	}
	for i := persisted; i < len(fp.History); i++ {
		ev := fp.History[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outcome_events
				(fingerprint_id, execution_id, step_id, outcome, write_capable, approved, detail, at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			fp.ID, ev.ExecutionID, ev.StepID, string(ev.Outcome), ev.WriteCapable, ev.Approved, ev.Detail, ev.At)
		if err != nil {
			return fmt.Errorf("autonomy: append event: %w", err)
		}
	}

	return tx.Commit()
}

// List returns all fingerprints without their histories.
func (s *SQLiteStore) List(ctx context.Context) ([]*Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, confidence, state, clean_runs, violations, updated_at FROM fingerprints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("autonomy: list fingerprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Fingerprint
	for rows.Next() {
		var fp Fingerprint
		var updatedAt sql.NullTime
		if err := rows.Scan(&fp.ID, &fp.Confidence, &fp.State, &fp.CleanRuns, &fp.Violations, &updatedAt); err != nil {
			return nil, fmt.Errorf("autonomy: scan fingerprint: %w", err)
		}
		if updatedAt.Valid {
			fp.UpdatedAt = updatedAt.Time
		}
		out = append(out, &fp)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// MarshalHistory serializes a fingerprint history for export surfaces.
func MarshalHistory(fp *Fingerprint) ([]byte, error) {
	return json.MarshalIndent(fp.History, "", "  ")
}
