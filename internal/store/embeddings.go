package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Embedding is one news_embeddings row.
type Embedding struct {
	ID       string // "country-date"
	Date     time.Time
	Country  string
	TopicDoc string // the truncated text that was embedded
	Vector   []float32
}

// ReplaceEmbeddings replaces news_embeddings.
// Thread-safe: acquires write lock.
func (s *Store) ReplaceEmbeddings(embs []Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replace(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO news_embeddings (id, event_date, country, topic_doc, dims, embedding)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, e := range embs {
			if _, err := stmt.Exec(e.ID, formatDate(e.Date), e.Country, e.TopicDoc, len(e.Vector), encodeVector(e.Vector)); err != nil {
				return fmt.Errorf("insert embedding %s: %w", e.ID, err)
			}
		}
		return nil
	}, "news_embeddings")
}

// Embeddings returns every stored embedding, ordered by date then country.
// Thread-safe: acquires read lock.
func (s *Store) Embeddings() ([]Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, event_date, country, topic_doc, dims, embedding
		FROM news_embeddings
		ORDER BY event_date, country
	`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var date string
		var dims int
		var blob []byte
		if err := rows.Scan(&e.ID, &date, &e.Country, &e.TopicDoc, &dims, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if e.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if e.Vector, err = decodeVector(blob, dims); err != nil {
			return nil, fmt.Errorf("embedding %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CacheKey is the embedding cache key for text under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// CachedVectors returns the cached vectors for the given keys. Missing keys
// are absent from the result.
// Thread-safe: acquires read lock.
func (s *Store) CachedVectors(keys []string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]float32, len(keys))
	stmt, err := s.db.Prepare(`SELECT dims, embedding FROM embedding_cache WHERE hash = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		var dims int
		var blob []byte
		err := stmt.QueryRow(k).Scan(&dims, &blob)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query cache: %w", err)
		}
		vec, err := decodeVector(blob, dims)
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", k, err)
		}
		out[k] = vec
	}
	return out, nil
}

// CacheVectors stores vectors by cache key.
// Thread-safe: acquires write lock.
func (s *Store) CacheVectors(model string, vecs map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vecs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO embedding_cache (hash, model, dims, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for k, v := range vecs {
		if _, err := stmt.Exec(k, model, len(v), encodeVector(v), now); err != nil {
			return fmt.Errorf("insert cache: %w", err)
		}
	}
	return tx.Commit()
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte, dims int) ([]float32, error) {
	if len(b) != 4*dims {
		return nil, fmt.Errorf("blob has %d bytes, want %d", len(b), 4*dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
