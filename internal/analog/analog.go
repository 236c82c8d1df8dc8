// Package analog finds strictly historical country-days that resemble
// today's, and renders them for the briefing prompt.
package analog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/moodmap/internal/aggregate"
	"github.com/abelbrown/moodmap/internal/embed"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/index"
	"github.com/abelbrown/moodmap/internal/logging"
)

// None is the rendered text of an empty analog list.
const None = "None"

// Record is the corpus metadata for one embedded country-day.
type Record struct {
	ID       string // "country-date"
	Date     time.Time
	Country  string
	TopicDoc string
}

// Analog is one retained historical match.
type Analog struct {
	PastDate time.Time
	Snippet  string
	Distance float64
}

// Result is the flat form of one retained match.
type Result struct {
	EventDate time.Time
	Country   string
	Analog
}

// Daily is the ranked analog list for one (event_date, country).
type Daily struct {
	EventDate time.Time
	Country   string
	Analogs   []Analog // ascending distance, at most TopK
	Text      string   // rendered by Render
}

// Key returns the "country-date" identifier.
func (d Daily) Key() string {
	return aggregate.Key(d.Country, d.EventDate)
}

// Flatten returns one Result per analog, preserving order.
func Flatten(days []Daily) []Result {
	var out []Result
	for _, d := range days {
		for _, a := range d.Analogs {
			out = append(out, Result{EventDate: d.EventDate, Country: d.Country, Analog: a})
		}
	}
	return out
}

// Options configures a Retriever.
type Options struct {
	OverFetch    int // neighbours requested per anchor
	TopK         int
	SnippetChars int
	Jobs         int // concurrent searches
}

// Cohort returns the topN aggregates on the most recent date, by headline
// count descending. Ties go to the lexically smaller country.
func Cohort(days []aggregate.CountryDay, topN int) []aggregate.CountryDay {
	latest, ok := aggregate.Latest(days)
	if !ok || topN <= 0 {
		return nil
	}

	var cohort []aggregate.CountryDay
	for _, d := range days {
		if d.Date.Equal(latest) {
			cohort = append(cohort, d)
		}
	}
	sort.SliceStable(cohort, func(i, j int) bool {
		if cohort[i].HeadlineCount != cohort[j].HeadlineCount {
			return cohort[i].HeadlineCount > cohort[j].HeadlineCount
		}
		return cohort[i].Country < cohort[j].Country
	})
	if len(cohort) > topN {
		cohort = cohort[:topN]
	}
	return cohort
}

// Retriever runs the per-country analog searches over an index.
type Retriever struct {
	idx     index.Index
	records map[string]Record
	opts    Options
}

// NewRetriever builds a Retriever. records must describe every key in idx.
func NewRetriever(idx index.Index, records []Record, opts Options) *Retriever {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	return &Retriever{idx: idx, records: m, opts: opts}
}

// Retrieve returns one Daily per cohort member, in cohort order. Searches
// run concurrently; an index failure aborts the whole call.
func (r *Retriever) Retrieve(ctx context.Context, cohort []aggregate.CountryDay) ([]Daily, error) {
	out := make([]Daily, len(cohort))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Jobs)
	for i, day := range cohort {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			analogs, err := r.forAnchor(day.Country, day.Date)
			if err != nil {
				return err
			}
			out[i] = Daily{
				EventDate: day.Date,
				Country:   day.Country,
				Analogs:   analogs,
				Text:      Render(analogs),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Retriever) forAnchor(country string, date time.Time) ([]Analog, error) {
	key := aggregate.Key(country, date)
	vec, ok := r.idx.Lookup(key)
	if !ok {
		logging.Warn("No embedding for cohort member", "country", country, "event_date", date.Format(gdelt.DateLayout))
		return nil, nil
	}

	hits, err := r.idx.Search(vec, r.opts.OverFetch)
	if err != nil {
		return nil, fmt.Errorf("analog: search %s: %w", key, err)
	}

	var analogs []Analog
	for _, h := range hits {
		rec, ok := r.records[h.Key]
		if !ok || !rec.Date.Before(date) {
			continue
		}
		analogs = append(analogs, Analog{
			PastDate: rec.Date,
			Snippet:  Snippet(rec.TopicDoc, r.opts.SnippetChars),
			Distance: h.Distance,
		})
	}
	sort.SliceStable(analogs, func(i, j int) bool {
		if analogs[i].Distance != analogs[j].Distance {
			return analogs[i].Distance < analogs[j].Distance
		}
		return analogs[i].PastDate.Before(analogs[j].PastDate)
	})
	if len(analogs) > r.opts.TopK {
		analogs = analogs[:r.opts.TopK]
	}
	return analogs, nil
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// StripURLs removes every http(s) token from s.
func StripURLs(s string) string {
	return urlPattern.ReplaceAllString(s, "")
}

// Snippet strips URLs from doc and keeps the first n runes.
func Snippet(doc string, n int) string {
	return embed.Truncate(StripURLs(doc), n)
}

// Render joins analogs as "{past_date}: {snippet}" lines separated by
// "\n- ", or returns None for an empty list.
func Render(analogs []Analog) string {
	if len(analogs) == 0 {
		return None
	}
	lines := make([]string, len(analogs))
	for i, a := range analogs {
		lines[i] = a.PastDate.Format(gdelt.DateLayout) + ": " + a.Snippet
	}
	return strings.Join(lines, "\n- ")
}
