// Package entities ranks the most frequent themes and people per
// (date, country).
package entities

import (
	"sort"
	"strings"
	"time"

	"github.com/abelbrown/moodmap/internal/aggregate"
	"github.com/abelbrown/moodmap/internal/gdelt"
)

// Count is a label with its frequency.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TopEntities holds the ranked themes and people for one (date, country).
type TopEntities struct {
	Date    time.Time
	Country string
	Themes  []Count
	People  []Count // may be empty
}

// Key returns the "country-date" identifier.
func (t TopEntities) Key() string {
	return aggregate.Key(t.Country, t.Date)
}

// ThemeLabels returns the theme labels in rank order.
func (t TopEntities) ThemeLabels() []string { return labels(t.Themes) }

// PeopleLabels returns the person labels in rank order.
func (t TopEntities) PeopleLabels() []string { return labels(t.People) }

// Options configures Rank.
type Options struct {
	Reference  time.Time
	WindowDays int
	Top        int
}

// platformNames are person tags that are almost always social-media
// mentions rather than people.
var platformNames = map[string]struct{}{
	"facebook":  {},
	"twitter":   {},
	"instagram": {},
	"linkedin":  {},
	"whatsapp":  {},
	"youtube":   {},
}

// minPersonLen drops initials and other fragments.
const minPersonLen = 3

// Rank explodes theme and person tags, counts them per (date, country) and
// keeps the Top most frequent of each. Ties keep first-seen order. Every
// (date, country) with at least one theme gets a record; its people list is
// empty when no person survived the noise filter. Groups with people but no
// themes are not emitted. Output is sorted by date then country.
func Rank(records []gdelt.Enriched, opts Options) []TopEntities {
	type bucket struct {
		date    time.Time
		country string
		themes  *counter
		people  *counter
	}
	buckets := make(map[string]*bucket)

	for _, r := range records {
		if r.Country == "" {
			continue
		}
		if !gdelt.InWindow(r.Date, opts.Reference, opts.WindowDays) {
			continue
		}
		k := aggregate.Key(r.Country, r.Date)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{date: r.Date, country: r.Country, themes: newCounter(), people: newCounter()}
			buckets[k] = b
		}

		for _, tag := range r.Themes {
			if label := Label(tag); label != "" {
				b.themes.add(label)
			}
		}
		for _, tag := range r.Persons {
			if label := Label(tag); keepPerson(label) {
				b.people.add(label)
			}
		}
	}

	out := make([]TopEntities, 0, len(buckets))
	for _, b := range buckets {
		themes := b.themes.top(opts.Top)
		if len(themes) == 0 {
			continue
		}
		out = append(out, TopEntities{
			Date:    b.date,
			Country: b.country,
			Themes:  themes,
			People:  b.people.top(opts.Top),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Country < out[j].Country
	})
	return out
}

// Label takes the first comma-delimited segment of a tag and lower-cases it.
// GKG tags carry a character offset after the comma.
func Label(tag string) string {
	if i := strings.IndexByte(tag, ','); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(strings.TrimSpace(tag))
}

func keepPerson(label string) bool {
	if len([]rune(label)) < minPersonLen {
		return false
	}
	_, platform := platformNames[label]
	return !platform
}

// counter counts labels and remembers first-seen order.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(label string) {
	if _, ok := c.counts[label]; !ok {
		c.order = append(c.order, label)
	}
	c.counts[label]++
}

// top returns up to n labels by count descending, first-seen on ties.
func (c *counter) top(n int) []Count {
	ranked := make([]Count, len(c.order))
	for i, label := range c.order {
		ranked[i] = Count{Label: label, Count: c.counts[label]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func labels(cs []Count) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Label
	}
	return out
}
