package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abelbrown/moodmap/internal/aggregate"
	"github.com/abelbrown/moodmap/internal/analog"
	"github.com/abelbrown/moodmap/internal/briefing"
	"github.com/abelbrown/moodmap/internal/entities"
	"github.com/abelbrown/moodmap/internal/mood"
)

// ReplaceTopics replaces daily_country_topics with days.
// Thread-safe: acquires write lock.
func (s *Store) ReplaceTopics(days []aggregate.CountryDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replace(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_country_topics (event_date, country, headline_count, avg_tone, min_tone, max_tone,
				top_event_types, sample_urls, topic_doc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, d := range days {
			codes, err := json.Marshal(nonNil(d.TopEventTypes))
			if err != nil {
				return err
			}
			urls, err := json.Marshal(nonNil(d.SampleURLs))
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(formatDate(d.Date), d.Country, d.HeadlineCount, d.AvgTone, d.MinTone, d.MaxTone,
				string(codes), string(urls), d.TopicDoc); err != nil {
				return fmt.Errorf("insert topic %s: %w", d.Key(), err)
			}
		}
		return nil
	}, "daily_country_topics")
}

// Topics returns every stored aggregate, ordered by date then country.
// Thread-safe: acquires read lock.
func (s *Store) Topics() ([]aggregate.CountryDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_date, country, headline_count, avg_tone, min_tone, max_tone, top_event_types, sample_urls, topic_doc
		FROM daily_country_topics
		ORDER BY event_date, country
	`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var days []aggregate.CountryDay
	for rows.Next() {
		var d aggregate.CountryDay
		var date, codes, urls string
		if err := rows.Scan(&date, &d.Country, &d.HeadlineCount, &d.AvgTone, &d.MinTone, &d.MaxTone,
			&codes, &urls, &d.TopicDoc); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		if d.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(codes), &d.TopEventTypes); err != nil {
			return nil, fmt.Errorf("decode event types: %w", err)
		}
		if err := json.Unmarshal([]byte(urls), &d.SampleURLs); err != nil {
			return nil, fmt.Errorf("decode sample urls: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// ReplaceEntities replaces daily_top_entities.
// Thread-safe: acquires write lock.
func (s *Store) ReplaceEntities(tops []entities.TopEntities) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replace(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_top_entities (event_date, country, top_themes, top_people)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, t := range tops {
			themes, err := json.Marshal(nonNil(t.Themes))
			if err != nil {
				return err
			}
			people, err := json.Marshal(nonNil(t.People))
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(formatDate(t.Date), t.Country, string(themes), string(people)); err != nil {
				return fmt.Errorf("insert entities %s: %w", t.Key(), err)
			}
		}
		return nil
	}, "daily_top_entities")
}

// Entities returns every stored entity ranking, ordered by date then country.
// Thread-safe: acquires read lock.
func (s *Store) Entities() ([]entities.TopEntities, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_date, country, top_themes, top_people
		FROM daily_top_entities
		ORDER BY event_date, country
	`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []entities.TopEntities
	for rows.Next() {
		var t entities.TopEntities
		var date, themes, people string
		if err := rows.Scan(&date, &t.Country, &themes, &people); err != nil {
			return nil, fmt.Errorf("scan entities: %w", err)
		}
		if t.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(themes), &t.Themes); err != nil {
			return nil, fmt.Errorf("decode themes: %w", err)
		}
		if err := json.Unmarshal([]byte(people), &t.People); err != nil {
			return nil, fmt.Errorf("decode people: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// analogJSON is the stored shape of one daily_analogs array element.
type analogJSON struct {
	PastDate string  `json:"past_date"`
	Snippet  string  `json:"snippet"`
	Distance float64 `json:"distance"`
}

// ReplaceAnalogs replaces daily_analogs_flat and daily_analogs together.
// Thread-safe: acquires write lock.
func (s *Store) ReplaceAnalogs(days []analog.Daily) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replace(func(tx *sql.Tx) error {
		flat, err := tx.Prepare(`
			INSERT INTO daily_analogs_flat (event_date, country, rank, past_date, snippet, distance)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer flat.Close()

		agg, err := tx.Prepare(`
			INSERT INTO daily_analogs (event_date, country, analogs, analogs_txt)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer agg.Close()

		for _, d := range days {
			arr := make([]analogJSON, len(d.Analogs))
			for i, a := range d.Analogs {
				arr[i] = analogJSON{PastDate: formatDate(a.PastDate), Snippet: a.Snippet, Distance: a.Distance}
				if _, err := flat.Exec(formatDate(d.EventDate), d.Country, i+1, arr[i].PastDate, a.Snippet, a.Distance); err != nil {
					return fmt.Errorf("insert analog %s: %w", d.Key(), err)
				}
			}
			data, err := json.Marshal(arr)
			if err != nil {
				return err
			}
			if _, err := agg.Exec(formatDate(d.EventDate), d.Country, string(data), d.Text); err != nil {
				return fmt.Errorf("insert analogs %s: %w", d.Key(), err)
			}
		}
		return nil
	}, "daily_analogs_flat", "daily_analogs")
}

// Analogs returns every stored analog list, ordered by date then country.
// Thread-safe: acquires read lock.
func (s *Store) Analogs() ([]analog.Daily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAnalogs(`
		SELECT event_date, country, analogs, analogs_txt
		FROM daily_analogs
		ORDER BY event_date, country
	`)
}

// AnalogsFor returns the analog list stored for (country, date).
// Thread-safe: acquires read lock.
func (s *Store) AnalogsFor(country string, date time.Time) (analog.Daily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days, err := s.queryAnalogs(`
		SELECT event_date, country, analogs, analogs_txt
		FROM daily_analogs
		WHERE event_date = ? AND country = ?
	`, formatDate(date), country)
	if err != nil {
		return analog.Daily{}, err
	}
	if len(days) == 0 {
		return analog.Daily{}, ErrNotFound
	}
	return days[0], nil
}

func (s *Store) queryAnalogs(query string, args ...any) ([]analog.Daily, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analogs: %w", err)
	}
	defer rows.Close()

	var out []analog.Daily
	for rows.Next() {
		var d analog.Daily
		var date, data string
		if err := rows.Scan(&date, &d.Country, &data, &d.Text); err != nil {
			return nil, fmt.Errorf("scan analogs: %w", err)
		}
		if d.EventDate, err = parseDate(date); err != nil {
			return nil, err
		}
		var arr []analogJSON
		if err := json.Unmarshal([]byte(data), &arr); err != nil {
			return nil, fmt.Errorf("decode analogs: %w", err)
		}
		for _, a := range arr {
			past, err := parseDate(a.PastDate)
			if err != nil {
				return nil, err
			}
			d.Analogs = append(d.Analogs, analog.Analog{PastDate: past, Snippet: a.Snippet, Distance: a.Distance})
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FlatAnalogs returns daily_analogs_flat rows, ordered by date, country, rank.
// Thread-safe: acquires read lock.
func (s *Store) FlatAnalogs() ([]analog.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_date, country, past_date, snippet, distance
		FROM daily_analogs_flat
		ORDER BY event_date, country, rank
	`)
	if err != nil {
		return nil, fmt.Errorf("query flat analogs: %w", err)
	}
	defer rows.Close()

	var out []analog.Result
	for rows.Next() {
		var r analog.Result
		var date, past string
		if err := rows.Scan(&date, &r.Country, &past, &r.Snippet, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan flat analog: %w", err)
		}
		if r.EventDate, err = parseDate(date); err != nil {
			return nil, err
		}
		if r.PastDate, err = parseDate(past); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceBriefings replaces daily_briefings.
// Thread-safe: acquires write lock.
func (s *Store) ReplaceBriefings(bs []briefing.Briefing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replace(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO daily_briefings (event_date, country, briefing_text) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, b := range bs {
			if _, err := stmt.Exec(formatDate(b.EventDate), b.Country, b.Text); err != nil {
				return fmt.Errorf("insert briefing %s: %w", b.Key(), err)
			}
		}
		return nil
	}, "daily_briefings")
}

// Briefings returns every stored briefing, ordered by date then country.
// Thread-safe: acquires read lock.
func (s *Store) Briefings() ([]briefing.Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT event_date, country, briefing_text FROM daily_briefings ORDER BY event_date, country`)
	if err != nil {
		return nil, fmt.Errorf("query briefings: %w", err)
	}
	defer rows.Close()

	var out []briefing.Briefing
	for rows.Next() {
		var b briefing.Briefing
		var date string
		if err := rows.Scan(&date, &b.Country, &b.Text); err != nil {
			return nil, fmt.Errorf("scan briefing: %w", err)
		}
		if b.EventDate, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ReplaceMoodMap replaces daily_moodmap.
// Thread-safe: acquires write lock.
func (s *Store) ReplaceMoodMap(entries []mood.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replace(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_moodmap (event_date, country, mood_score, summary, briefing_text, top_themes)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			themes, err := json.Marshal(nonNil(e.TopThemes))
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(formatDate(e.EventDate), e.Country, e.Score, e.Summary, e.Briefing, string(themes)); err != nil {
				return fmt.Errorf("insert mood %s: %w", e.Key(), err)
			}
		}
		return nil
	}, "daily_moodmap")
}

// MoodMap returns the mood map for the most recent stored date, lowest
// score first. It returns ErrNotFound when the table is empty.
// Thread-safe: acquires read lock.
func (s *Store) MoodMap() ([]mood.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(event_date) FROM daily_moodmap`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("query latest mood date: %w", err)
	}
	if !latest.Valid {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(`
		SELECT event_date, country, mood_score, summary, briefing_text, top_themes
		FROM daily_moodmap
		WHERE event_date = ?
		ORDER BY mood_score, country
	`, latest.String)
	if err != nil {
		return nil, fmt.Errorf("query mood map: %w", err)
	}
	defer rows.Close()

	var out []mood.Entry
	for rows.Next() {
		var e mood.Entry
		var date, themes string
		if err := rows.Scan(&date, &e.Country, &e.Score, &e.Summary, &e.Briefing, &themes); err != nil {
			return nil, fmt.Errorf("scan mood: %w", err)
		}
		if e.EventDate, err = parseDate(date); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(themes), &e.TopThemes); err != nil {
			return nil, fmt.Errorf("decode top themes: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Briefing returns the stored briefing for (country, date).
// Thread-safe: acquires read lock.
func (s *Store) Briefing(country string, date time.Time) (briefing.Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := briefing.Briefing{EventDate: date, Country: country}
	err := s.db.QueryRow(`SELECT briefing_text FROM daily_briefings WHERE event_date = ? AND country = ?`,
		formatDate(date), country).Scan(&b.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return briefing.Briefing{}, ErrNotFound
	}
	if err != nil {
		return briefing.Briefing{}, fmt.Errorf("query briefing: %w", err)
	}
	return b, nil
}

// nonNil makes json encode empty lists as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
