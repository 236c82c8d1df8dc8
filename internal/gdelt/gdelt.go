// Package gdelt parses GDELT 2.0 event exports and GKG 2.1 exports into the
// records the pipeline consumes.
package gdelt

import (
	"time"
)

// DateLayout is the canonical day format used for keys and rendered text.
const DateLayout = "2006-01-02"

// Event is one coded event. Country and URL may be empty; the pipeline
// filters those out before grouping.
type Event struct {
	ID            string
	Date          time.Time
	Country       string
	Admin1        string
	Lat           *float64
	Lon           *float64
	EventCode     string
	EventBaseCode string
	EventRootCode string
	Tone          float64
	URL           string
}

// Day returns the event date formatted as YYYY-MM-DD.
func (e Event) Day() string {
	return e.Date.Format(DateLayout)
}

// Knowledge is one GKG document record.
type Knowledge struct {
	ID      string
	Date    time.Time
	URL     string
	Themes  []string
	Persons []string
	Orgs    []string
}

// Enriched is an event joined to the GKG record of its source document.
// Tag lists are empty when no GKG record matched.
type Enriched struct {
	Event
	Themes  []string
	Persons []string
	Orgs    []string
}

// Tag list caps applied when a GKG record is parsed.
const (
	MaxThemes  = 50
	MaxPersons = 30
	MaxOrgs    = 30
)

// Enrich left-joins events to knowledge records by source URL. When several
// records share a URL the first one wins, so the join never multiplies events.
func Enrich(events []Event, docs []Knowledge) []Enriched {
	byURL := make(map[string]*Knowledge, len(docs))
	for i := range docs {
		if _, ok := byURL[docs[i].URL]; !ok {
			byURL[docs[i].URL] = &docs[i]
		}
	}

	out := make([]Enriched, 0, len(events))
	for _, ev := range events {
		en := Enriched{Event: ev}
		if k, ok := byURL[ev.URL]; ok {
			en.Themes = k.Themes
			en.Persons = k.Persons
			en.Orgs = k.Orgs
		}
		out = append(out, en)
	}
	return out
}

// InWindow reports whether day falls within the trailing window of days
// ending at (and including) ref.
func InWindow(day, ref time.Time, days int) bool {
	start := ref.AddDate(0, 0, -days)
	return !day.Before(start) && !day.After(ref)
}
