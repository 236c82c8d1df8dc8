// Package store provides SQLite persistence for moodmap: raw GDELT input and
// one replace-in-place table per pipeline stage.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/abelbrown/moodmap/internal/gdelt"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Each in-memory store gets its own named database; shared cache lets
		// every pooled connection see it.
		connStr = "file:mem-" + uuid.NewString() + "?mode=memory&cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
// seq columns record ingestion order, which fixes first-seen selection.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		event_date TEXT NOT NULL,
		country TEXT,
		admin1 TEXT,
		lat REAL,
		lon REAL,
		event_code TEXT,
		event_base_code TEXT,
		event_root_code TEXT,
		tone REAL NOT NULL,
		url TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_date ON events(event_date);

	CREATE TABLE IF NOT EXISTS gkg (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		gkg_date TEXT NOT NULL,
		url TEXT NOT NULL,
		themes TEXT,
		persons TEXT,
		orgs TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_gkg_url ON gkg(url);
	CREATE INDEX IF NOT EXISTS idx_gkg_date ON gkg(gkg_date);

	CREATE TABLE IF NOT EXISTS daily_country_topics (
		event_date TEXT NOT NULL,
		country TEXT NOT NULL,
		headline_count INTEGER NOT NULL,
		avg_tone REAL NOT NULL,
		min_tone REAL NOT NULL,
		max_tone REAL NOT NULL,
		top_event_types TEXT NOT NULL,
		sample_urls TEXT NOT NULL,
		topic_doc TEXT NOT NULL,
		PRIMARY KEY (event_date, country)
	);

	CREATE TABLE IF NOT EXISTS daily_top_entities (
		event_date TEXT NOT NULL,
		country TEXT NOT NULL,
		top_themes TEXT NOT NULL,
		top_people TEXT NOT NULL,
		PRIMARY KEY (event_date, country)
	);

	CREATE TABLE IF NOT EXISTS news_embeddings (
		id TEXT PRIMARY KEY,
		event_date TEXT NOT NULL,
		country TEXT NOT NULL,
		topic_doc TEXT NOT NULL,
		dims INTEGER NOT NULL,
		embedding BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS embedding_cache (
		hash TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		dims INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_analogs_flat (
		event_date TEXT NOT NULL,
		country TEXT NOT NULL,
		rank INTEGER NOT NULL,
		past_date TEXT NOT NULL,
		snippet TEXT NOT NULL,
		distance REAL NOT NULL,
		PRIMARY KEY (event_date, country, rank)
	);

	CREATE TABLE IF NOT EXISTS daily_analogs (
		event_date TEXT NOT NULL,
		country TEXT NOT NULL,
		analogs TEXT NOT NULL,
		analogs_txt TEXT NOT NULL,
		PRIMARY KEY (event_date, country)
	);

	CREATE TABLE IF NOT EXISTS daily_briefings (
		event_date TEXT NOT NULL,
		country TEXT NOT NULL,
		briefing_text TEXT NOT NULL,
		PRIMARY KEY (event_date, country)
	);

	CREATE TABLE IF NOT EXISTS daily_moodmap (
		event_date TEXT NOT NULL,
		country TEXT NOT NULL,
		mood_score REAL NOT NULL,
		summary TEXT NOT NULL,
		briefing_text TEXT NOT NULL,
		top_themes TEXT NOT NULL,
		PRIMARY KEY (event_date, country)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		reference_date TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		error TEXT,
		counts TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// replace deletes every row of table and runs fill in the same transaction.
// Caller must hold s.mu.
func (s *Store) replace(fill func(tx *sql.Tx) error, tables ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := fill(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func formatDate(t time.Time) string {
	return t.Format(gdelt.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(gdelt.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
