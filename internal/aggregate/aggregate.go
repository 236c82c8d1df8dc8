// Package aggregate rolls per-event records up into one summary per
// (date, country) and renders the text document that gets embedded.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abelbrown/moodmap/internal/gdelt"
)

// CountryDay is the per-(date, country) aggregate.
type CountryDay struct {
	Date          time.Time
	Country       string
	HeadlineCount int
	AvgTone       float64
	MinTone       float64
	MaxTone       float64
	TopEventTypes []string // distinct root codes, first-seen order
	SampleURLs    []string // distinct URLs, first-seen order
	TopicDoc      string
}

// Key returns the "country-date" identifier shared with the embedding record.
func (c CountryDay) Key() string {
	return Key(c.Country, c.Date)
}

// Key builds the "country-date" identifier.
func Key(country string, date time.Time) string {
	return country + "-" + date.Format(gdelt.DateLayout)
}

// Options configures Build.
type Options struct {
	Reference     time.Time // "today"
	WindowDays    int
	MaxEventCodes int
	MaxSampleURLs int
}

type group struct {
	day       CountryDay
	sum       float64
	seenCodes map[string]struct{}
	seenURLs  map[string]struct{}
}

// Build groups events by (date, country). Events without a country or URL,
// or outside the window, are ignored. When a group has more distinct codes
// or URLs than the cap, the earliest-seen values in input order are kept, so
// identical input order always yields identical aggregates. Output is sorted
// by date then country.
func Build(events []gdelt.Event, opts Options) []CountryDay {
	groups := make(map[string]*group)

	for _, ev := range events {
		if ev.Country == "" || ev.URL == "" {
			continue
		}
		if !gdelt.InWindow(ev.Date, opts.Reference, opts.WindowDays) {
			continue
		}

		k := Key(ev.Country, ev.Date)
		g, ok := groups[k]
		if !ok {
			g = &group{
				day: CountryDay{
					Date:    ev.Date,
					Country: ev.Country,
					MinTone: ev.Tone,
					MaxTone: ev.Tone,
				},
				seenCodes: make(map[string]struct{}),
				seenURLs:  make(map[string]struct{}),
			}
			groups[k] = g
		}

		d := &g.day
		d.HeadlineCount++
		g.sum += ev.Tone
		d.MinTone = math.Min(d.MinTone, ev.Tone)
		d.MaxTone = math.Max(d.MaxTone, ev.Tone)

		if code := ev.EventRootCode; code != "" && len(d.TopEventTypes) < opts.MaxEventCodes {
			if _, dup := g.seenCodes[code]; !dup {
				g.seenCodes[code] = struct{}{}
				d.TopEventTypes = append(d.TopEventTypes, code)
			}
		}
		if len(d.SampleURLs) < opts.MaxSampleURLs {
			if _, dup := g.seenURLs[ev.URL]; !dup {
				g.seenURLs[ev.URL] = struct{}{}
				d.SampleURLs = append(d.SampleURLs, ev.URL)
			}
		}
	}

	out := make([]CountryDay, 0, len(groups))
	for _, g := range groups {
		d := g.day
		// Summation error can push the mean just outside [min, max].
		d.AvgTone = math.Min(math.Max(g.sum/float64(d.HeadlineCount), d.MinTone), d.MaxTone)
		d.TopicDoc = RenderTopicDoc(d)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Country < out[j].Country
	})
	return out
}

// RenderTopicDoc renders the fixed-order text document for an aggregate.
// It depends only on the fields it prints.
func RenderTopicDoc(d CountryDay) string {
	return fmt.Sprintf(
		"Country: %s | Date: %s | Headlines: %d | Tone avg/min/max: %s/%s/%s | Top Event Codes: %s | Sample URLs: %s",
		d.Country,
		d.Date.Format(gdelt.DateLayout),
		d.HeadlineCount,
		formatTone(d.AvgTone),
		formatTone(d.MinTone),
		formatTone(d.MaxTone),
		strings.Join(d.TopEventTypes, ", "),
		strings.Join(d.SampleURLs, " | "),
	)
}

// Round rounds half away from zero to the given number of decimals.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(x*p) / p
	if r == 0 {
		return 0 // no "-0"
	}
	return r
}

func formatTone(x float64) string {
	return strconv.FormatFloat(Round(x, 2), 'f', -1, 64)
}

// Latest returns the most recent date among days, and false when days is empty.
func Latest(days []CountryDay) (time.Time, bool) {
	var latest time.Time
	for _, d := range days {
		if d.Date.After(latest) {
			latest = d.Date
		}
	}
	return latest, !latest.IsZero()
}
