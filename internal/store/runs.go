package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID            string
	ReferenceDate time.Time
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        string
	Error         string
	Counts        map[string]int // rows written per stage
}

// StartRun records a new running run.
// Thread-safe: acquires write lock.
func (s *Store) StartRun(id string, ref time.Time, started time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO runs (id, reference_date, started_at, status) VALUES (?, ?, ?, ?)`,
		id, formatDate(ref), started.UTC(), RunRunning)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun marks a run done, or failed when runErr is non-nil.
// Thread-safe: acquires write lock.
func (s *Store) FinishRun(id string, finished time.Time, counts map[string]int, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	status, msg := RunDone, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}

	res, err := s.db.Exec(`UPDATE runs SET finished_at = ?, status = ?, error = ?, counts = ? WHERE id = ?`,
		finished.UTC(), status, msg, string(data), id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Runs returns the most recent runs first.
// Thread-safe: acquires read lock.
func (s *Store) Runs(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, reference_date, started_at, finished_at, status, COALESCE(error, ''), COALESCE(counts, '')
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var ref, counts string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &ref, &r.StartedAt, &finished, &r.Status, &r.Error, &counts); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.ReferenceDate, err = parseDate(ref); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		if counts != "" {
			if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
				return nil, fmt.Errorf("decode counts: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
