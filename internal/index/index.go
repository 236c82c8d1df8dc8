// Package index provides cosine nearest-neighbour search over embedding
// vectors keyed by record id.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/abelbrown/moodmap/internal/config"
	"github.com/abelbrown/moodmap/internal/embed"
)

// Neighbor is one search hit. Distance is cosine distance, smaller is closer.
type Neighbor struct {
	Key      string
	Distance float64
}

// Index is the vector similarity search capability. Search results are
// sorted by ascending distance, ties by key. Implementations are safe for
// concurrent Search calls.
type Index interface {
	Add(key string, vec []float32) error
	Search(vec []float32, k int) ([]Neighbor, error)
	Lookup(key string) ([]float32, bool)
	Len() int
}

// New builds the index selected by settings. Exact is the default; HNSW
// trades recall for speed and only pays off on large corpora.
func New(s config.IndexSettings) (Index, error) {
	switch s.Kind {
	case "", "exact":
		return NewExact(), nil
	case "hnsw":
		return NewHNSW(s.M, s.EfSearch, s.Seed), nil
	default:
		return nil, fmt.Errorf("index: unknown kind %q", s.Kind)
	}
}

// sortNeighbors orders by distance, then key, and keeps the first k.
func sortNeighbors(ns []Neighbor, k int) []Neighbor {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].Key < ns[j].Key
	})
	if len(ns) > k {
		ns = ns[:k]
	}
	return ns
}

// Exact is a brute-force scan. It is the reference implementation and is
// fast enough for a few thousand country-days.
type Exact struct {
	mu   sync.RWMutex
	keys []string
	vecs map[string][]float32
	dims int
}

// NewExact creates an empty brute-force index.
func NewExact() *Exact {
	return &Exact{vecs: make(map[string][]float32)}
}

// Add stores vec under key, replacing any previous vector.
func (x *Exact) Add(key string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("index: empty vector for %s", key)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dims == 0 {
		x.dims = len(vec)
	} else if len(vec) != x.dims {
		return fmt.Errorf("index: %s has %d dims, index has %d", key, len(vec), x.dims)
	}
	if _, ok := x.vecs[key]; !ok {
		x.keys = append(x.keys, key)
	}
	x.vecs[key] = vec
	return nil
}

// Search returns the k nearest vectors to vec.
func (x *Exact) Search(vec []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.keys) == 0 {
		return nil, nil
	}
	if len(vec) != x.dims {
		return nil, fmt.Errorf("index: query has %d dims, index has %d", len(vec), x.dims)
	}

	ns := make([]Neighbor, 0, len(x.keys))
	for _, key := range x.keys {
		ns = append(ns, Neighbor{Key: key, Distance: embed.CosineDistance(vec, x.vecs[key])})
	}
	return sortNeighbors(ns, k), nil
}

// Lookup returns the vector stored under key.
func (x *Exact) Lookup(key string) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	v, ok := x.vecs[key]
	return v, ok
}

// Len returns the number of indexed vectors.
func (x *Exact) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.keys)
}
