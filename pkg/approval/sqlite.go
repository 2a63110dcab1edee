package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists approval records in an embedded SQLite database.
// The embedded plan and prestate snapshots are stored as JSON blobs; they
// are opaque to queries and only read back whole.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and runs
// migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("approval: open sqlite %s: %w", path, err)
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
	CREATE TABLE IF NOT EXISTS approvals (
		execution_id TEXT PRIMARY KEY,
		plan_hash TEXT NOT NULL,
		approved_by TEXT NOT NULL,
		approved_at DATETIME NOT NULL,
		token TEXT,
		snapshot_refs TEXT,
		plan_json TEXT,
		prestate_json TEXT
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("approval: migrate: %w", err)
	}
	return nil
}

// Create inserts an approval record. The primary key enforces at most one
// approval per execution.
func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	refs, err := json.Marshal(rec.PrestateSnapshotRefs)
	if err != nil {
		return fmt.Errorf("approval: encode refs: %w", err)
	}
	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("approval: encode plan: %w", err)
	}
	prestateJSON, err := json.Marshal(rec.PrestateSnapshots)
	if err != nil {
		return fmt.Errorf("approval: encode prestate: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO approvals
			(execution_id, plan_hash, approved_by, approved_at, token, snapshot_refs, plan_json, prestate_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.PlanHash, rec.ApprovedBy, rec.ApprovedAt, rec.Token,
		string(refs), string(planJSON), string(prestateJSON))
	if err != nil {
		var existing *Record
		if existing, _ = s.Get(ctx, rec.ExecutionID); existing != nil {
			return ErrAlreadyApproved
		}
		return fmt.Errorf("approval: create: %w", err)
	}
	return nil
}

// Get returns the approval record for an execution.
func (s *SQLiteStore) Get(ctx context.Context, executionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, plan_hash, approved_by, approved_at, token, snapshot_refs, plan_json, prestate_json
		FROM approvals WHERE execution_id = ?`, executionID)

	var rec Record
	var token, refs, planJSON, prestateJSON sql.NullString
	err := row.Scan(&rec.ExecutionID, &rec.PlanHash, &rec.ApprovedBy, &rec.ApprovedAt,
		&token, &refs, &planJSON, &prestateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("approval: get: %w", err)
	}

	rec.Token = token.String
	if refs.Valid && refs.String != "" {
		if err := json.Unmarshal([]byte(refs.String), &rec.PrestateSnapshotRefs); err != nil {
			return nil, fmt.Errorf("approval: decode refs: %w", err)
		}
	}
	if planJSON.Valid && planJSON.String != "" {
		if err := json.Unmarshal([]byte(planJSON.String), &rec.Plan); err != nil {
			return nil, fmt.Errorf("approval: decode plan: %w", err)
		}
	}
	if prestateJSON.Valid && prestateJSON.String != "" {
		if err := json.Unmarshal([]byte(prestateJSON.String), &rec.PrestateSnapshots); err != nil {
			return nil, fmt.Errorf("approval: decode prestate: %w", err)
		}
	}
	return &rec, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
