package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteLog persists receipts in an embedded SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLiteLog opens (or creates) the database at path and runs migrations.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receipts: open sqlite %s: %w", path, err)
	}
	return NewSQLiteLog(db)
}

// NewSQLiteLog wraps an existing database handle and runs migrations.
func NewSQLiteLog(db *sql.DB) (*SQLiteLog, error) {
	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) migrate() error {
	const query = `
	CREATE TABLE IF NOT EXISTS receipts (
		execution_id TEXT PRIMARY KEY,
		plan_hash TEXT NOT NULL,
		fingerprint TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		policy_code TEXT NOT NULL
	);`
	if _, err := l.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("receipts: migrate: %w", err)
	}
	return nil
}

// Append inserts a receipt. The primary key enforces one entry per
// execution.
func (l *SQLiteLog) Append(ctx context.Context, r *Receipt) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO receipts
			(execution_id, plan_hash, fingerprint, started_at, finished_at, status, policy_code)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ExecutionID, r.PlanHash, r.Fingerprint, r.StartedAt, r.FinishedAt, string(r.Status), r.PolicyCode)
	if err != nil {
		// SQLite reports the primary-key conflict as a generic error; the
		// caller only needs to know the append was a duplicate.
		var existing *Receipt
		if existing, _ = l.Get(ctx, r.ExecutionID); existing != nil {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("receipts: append: %w", err)
	}
	return nil
}

// Get returns the receipt for an execution.
func (l *SQLiteLog) Get(ctx context.Context, executionID string) (*Receipt, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT execution_id, plan_hash, fingerprint, started_at, finished_at, status, policy_code
		FROM receipts WHERE execution_id = ?`, executionID)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	return r, err
}

// List returns the most recent receipts, newest first.
func (l *SQLiteLog) List(ctx context.Context, limit int) ([]*Receipt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT execution_id, plan_hash, fingerprint, started_at, finished_at, status, policy_code
		FROM receipts ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("receipts: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (l *SQLiteLog) Close() error { return l.db.Close() }

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(s scanner) (*Receipt, error) {
	var r Receipt
	var fingerprint sql.NullString
	var status string
	if err := s.Scan(&r.ExecutionID, &r.PlanHash, &fingerprint, &r.StartedAt, &r.FinishedAt, &status, &r.PolicyCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("receipts: scan: %w", err)
	}
	r.Fingerprint = fingerprint.String
	r.Status = Status(status)
	return &r, nil
}
