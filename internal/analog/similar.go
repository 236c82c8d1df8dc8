package analog

import (
	"context"
	"fmt"
	"time"

	"github.com/abelbrown/moodmap/internal/aggregate"
	"github.com/abelbrown/moodmap/internal/embed"
	"github.com/abelbrown/moodmap/internal/index"
)

// SimilarLimit is the number of neighbours the similarity lookups request.
const SimilarLimit = 10

// Match is a similarity lookup hit.
type Match struct {
	Record
	Distance float64
}

// Corpus pairs an index with the records it holds, for ad hoc lookups.
type Corpus struct {
	idx     index.Index
	records map[string]Record
}

// NewCorpus builds a Corpus over idx. records must describe every key in idx.
func NewCorpus(idx index.Index, records []Record) *Corpus {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return &Corpus{idx: idx, records: m}
}

// SimilarToText embeds query and returns the nearest country-days.
func (c *Corpus) SimilarToText(ctx context.Context, e embed.Embedder, query string) ([]Match, error) {
	vec, err := embed.EmbedQueryText(ctx, e, query)
	if err != nil {
		return nil, fmt.Errorf("analog: embed query: %w", err)
	}
	return c.search(vec, nil)
}

// SimilarToDay returns the neighbours of the stored (country, day) embedding,
// minus any hit on that same date. Hits are dropped after the search so the
// result may hold fewer than SimilarLimit matches.
func (c *Corpus) SimilarToDay(country string, day time.Time) ([]Match, error) {
	key := aggregate.Key(country, day)
	vec, ok := c.idx.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("analog: no embedding for %s", key)
	}
	return c.search(vec, func(r Record) bool { return !r.Date.Equal(day) })
}

func (c *Corpus) search(vec []float32, keep func(Record) bool) ([]Match, error) {
	hits, err := c.idx.Search(vec, SimilarLimit)
	if err != nil {
		return nil, fmt.Errorf("analog: search: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		rec, ok := c.records[h.Key]
		if !ok || (keep != nil && !keep(rec)) {
			continue
		}
		matches = append(matches, Match{Record: rec, Distance: h.Distance})
	}
	return matches, nil
}
