package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/mdnorm/internal/apperr"
	"github.com/starford/mdnorm/internal/models"
)

// Store is the ledger surface the runner depends on.
type Store interface {
	DocumentStates() (map[string]models.DocumentState, error)
	RecordRun(r *models.Report, states []models.DocumentState) error
	ForgetDocuments(keep map[string]struct{}) error
	ListRuns(limit int) ([]models.Report, error)
	GetRun(id string) (*models.Report, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// DocumentStates returns the last recorded state of every document.
func (db *DB) DocumentStates() (map[string]models.DocumentState, error) {
	rows, err := db.conn.Query(`SELECT path, checksum, fingerprint FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("ledger: document states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.DocumentState)
	for rows.Next() {
		var s models.DocumentState
		if err := rows.Scan(&s.Path, &s.Checksum, &s.Fingerprint); err != nil {
			return nil, err
		}
		out[s.Path] = s
	}
	return out, rows.Err()
}

// RecordRun stores a run, its failures, and the resulting document states
// in one transaction.
func (db *DB) RecordRun(r *models.Report, states []models.DocumentState) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	collisions, _ := json.Marshal(r.Collisions)
	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, dry_run, cancelled, processed, changed, unchanged, skipped, collisions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.DryRun, r.Cancelled,
		r.Processed, r.Changed, r.Unchanged, r.Skipped, string(collisions))
	if err != nil {
		return fmt.Errorf("ledger: insert run: %w", err)
	}

	if len(r.Failures) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO failures (run_id, path, kind, error) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("ledger: prepare failure insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range r.Failures {
			if _, err := stmt.Exec(r.RunID, f.Path, f.Kind, f.Error); err != nil {
				return fmt.Errorf("ledger: insert failure: %w", err)
			}
		}
	}

	if len(states) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO documents (path, checksum, fingerprint, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				checksum    = excluded.checksum,
				fingerprint = excluded.fingerprint,
				updated_at  = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("ledger: prepare document upsert: %w", err)
		}
		defer stmt.Close()
		now := time.Now().UTC()
		for _, s := range states {
			if _, err := stmt.Exec(s.Path, s.Checksum, s.Fingerprint, now); err != nil {
				return fmt.Errorf("ledger: upsert document: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ForgetDocuments removes stored state for paths no longer in the corpus.
func (db *DB) ForgetDocuments(keep map[string]struct{}) error {
	states, err := db.DocumentStates()
	if err != nil {
		return err
	}
	for p := range states {
		if _, ok := keep[p]; ok {
			continue
		}
		if _, err := db.conn.Exec(`DELETE FROM documents WHERE path = ?`, p); err != nil {
			return fmt.Errorf("ledger: forget %s: %w", p, err)
		}
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, with their failures.
func (db *DB) ListRuns(limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, dry_run, cancelled, processed, changed, unchanged, skipped, collisions
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}

	var out []models.Report
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if out[i].Failures, err = db.failures(out[i].RunID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetRun returns one run by id, or apperr.ErrNotFound.
func (db *DB) GetRun(id string) (*models.Report, error) {
	row := db.conn.QueryRow(`
		SELECT id, started_at, finished_at, dry_run, cancelled, processed, changed, unchanged, skipped, collisions
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.Failures, err = db.failures(id); err != nil {
		return nil, err
	}
	return r, nil
}

func (db *DB) failures(runID string) ([]models.Failure, error) {
	rows, err := db.conn.Query(`SELECT path, kind, error FROM failures WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: failures: %w", err)
	}
	defer rows.Close()

	out := []models.Failure{}
	for rows.Next() {
		var f models.Failure
		if err := rows.Scan(&f.Path, &f.Kind, &f.Error); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Report, error) {
	var (
		r          models.Report
		collisions string
	)
	if err := s.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.DryRun, &r.Cancelled,
		&r.Processed, &r.Changed, &r.Unchanged, &r.Skipped, &collisions); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(collisions), &r.Collisions)
	return &r, nil
}
