package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/moodmap/internal/gdelt"
)

// tagSep joins tag lists in sqlite. GKG lists are split on it at parse time,
// so no tag contains it.
const tagSep = ";"

// SaveEvents stores events, returning the count of new rows. Events already
// stored (by GDELT id) are ignored.
// Thread-safe: acquires write lock.
func (s *Store) SaveEvents(events []gdelt.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO events (id, event_date, country, admin1, lat, lon,
			event_code, event_base_code, event_root_code, tone, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		res, err := stmt.Exec(e.ID, formatDate(e.Date), nullString(e.Country), nullString(e.Admin1),
			e.Lat, e.Lon, nullString(e.EventCode), nullString(e.EventBaseCode), nullString(e.EventRootCode),
			e.Tone, nullString(e.URL))
		if err != nil {
			return 0, fmt.Errorf("insert event %s: %w", e.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// SaveKnowledge stores GKG records, returning the count of new rows.
// Thread-safe: acquires write lock.
func (s *Store) SaveKnowledge(docs []gdelt.Knowledge) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO gkg (id, gkg_date, url, themes, persons, orgs)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, d := range docs {
		res, err := stmt.Exec(d.ID, formatDate(d.Date), d.URL,
			strings.Join(d.Themes, tagSep), strings.Join(d.Persons, tagSep), strings.Join(d.Orgs, tagSep))
		if err != nil {
			return 0, fmt.Errorf("insert gkg %s: %w", d.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// EventsBetween returns events dated from..to inclusive, in ingestion order.
// Thread-safe: acquires read lock.
func (s *Store) EventsBetween(from, to time.Time) ([]gdelt.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, event_date, COALESCE(country, ''), COALESCE(admin1, ''), lat, lon,
			COALESCE(event_code, ''), COALESCE(event_base_code, ''), COALESCE(event_root_code, ''),
			tone, COALESCE(url, '')
		FROM events
		WHERE event_date >= ? AND event_date <= ?
		ORDER BY seq
	`, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []gdelt.Event
	for rows.Next() {
		var e gdelt.Event
		var date string
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&e.ID, &date, &e.Country, &e.Admin1, &lat, &lon,
			&e.EventCode, &e.EventBaseCode, &e.EventRootCode, &e.Tone, &e.URL); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		e.Lat = floatPtr(lat)
		e.Lon = floatPtr(lon)
		events = append(events, e)
	}
	return events, rows.Err()
}

// KnowledgeForURLs returns GKG records whose URL is in urls, in ingestion
// order.
// Thread-safe: acquires write lock for the staging temp table.
func (s *Store) KnowledgeForURLs(urls []string) ([]gdelt.Knowledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(urls) == 0 {
		return nil, nil
	}

	// The url list can exceed sqlite's bound-parameter limit; stage it in a
	// temp table instead.
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TEMP TABLE IF NOT EXISTS wanted_urls (url TEXT PRIMARY KEY)`); err != nil {
		return nil, fmt.Errorf("create temp table: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM wanted_urls`); err != nil {
		return nil, fmt.Errorf("clear temp table: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO wanted_urls (url) VALUES (?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	for _, u := range urls {
		if _, err := stmt.Exec(u); err != nil {
			stmt.Close()
			return nil, fmt.Errorf("stage url: %w", err)
		}
	}
	stmt.Close()

	rows, err := tx.Query(`
		SELECT g.id, g.gkg_date, g.url, COALESCE(g.themes, ''), COALESCE(g.persons, ''), COALESCE(g.orgs, '')
		FROM gkg g
		JOIN wanted_urls w ON w.url = g.url
		ORDER BY g.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query gkg: %w", err)
	}
	defer rows.Close()

	var docs []gdelt.Knowledge
	for rows.Next() {
		var d gdelt.Knowledge
		var date, themes, persons, orgs string
		if err := rows.Scan(&d.ID, &date, &d.URL, &themes, &persons, &orgs); err != nil {
			return nil, fmt.Errorf("scan gkg: %w", err)
		}
		if d.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		d.Themes = splitTags(themes)
		d.Persons = splitTags(persons)
		d.Orgs = splitTags(orgs)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// PruneBefore deletes raw events and GKG records dated before cutoff and
// returns the number of rows removed.
// Thread-safe: acquires write lock.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, q := range []string{
		`DELETE FROM events WHERE event_date < ?`,
		`DELETE FROM gkg WHERE gkg_date < ?`,
	} {
		res, err := s.db.Exec(q, formatDate(cutoff))
		if err != nil {
			return total, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// InputCounts returns the number of stored events and GKG records.
// Thread-safe: acquires read lock.
func (s *Store) InputCounts() (events, docs int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err = s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&events); err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRow("SELECT COUNT(*) FROM gkg").Scan(&docs)
	return events, docs, err
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSep)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
