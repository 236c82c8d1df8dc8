package index

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/coder/hnsw"

	"github.com/abelbrown/moodmap/internal/embed"
	"github.com/abelbrown/moodmap/internal/logging"
)

// HNSW is an approximate index backed by coder/hnsw. Recall is well below
// Exact on high-dimensional vectors and results vary between runs, because
// the graph picks its entry point from map iteration order.
type HNSW struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	dims  int
}

// NewHNSW creates an empty HNSW index. Zero values pick M=16, EfSearch=64.
// A non-zero seed makes level assignment reproducible.
func NewHNSW(m, efSearch int, seed int64) *HNSW {
	if m <= 0 {
		m = 16
	}
	if efSearch <= 0 {
		efSearch = 64
	}

	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	g.M = m
	g.EfSearch = efSearch
	if seed != 0 {
		g.Rng = rand.New(rand.NewSource(seed))
	}

	return &HNSW{graph: g}
}

// Add inserts vec under key, replacing any previous vector.
func (h *HNSW) Add(key string, vec []float32) (err error) {
	if len(vec) == 0 {
		return fmt.Errorf("index: empty vector for %s", key)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Error("HNSW panic recovered in Add", "error", r, "key", key)
			err = fmt.Errorf("index: hnsw add %s: %v", key, r)
		}
	}()

	if h.dims == 0 {
		h.dims = len(vec)
	} else if len(vec) != h.dims {
		return fmt.Errorf("index: %s has %d dims, index has %d", key, len(vec), h.dims)
	}

	// Add replaces a node that already has this key.
	h.graph.Add(hnsw.MakeNode(key, vec))
	return nil
}

// Search returns up to k approximate nearest neighbours. Distances are
// recomputed exactly so results from HNSW and Exact are comparable.
// The graph stops exploring once it holds k results, so at least EfSearch
// candidates are requested and trimmed to k afterwards.
func (h *HNSW) Search(vec []float32, k int) (ns []Neighbor, err error) {
	if k <= 0 {
		return nil, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 {
		return nil, nil
	}
	if len(vec) != h.dims {
		return nil, fmt.Errorf("index: query has %d dims, index has %d", len(vec), h.dims)
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("HNSW panic recovered in Search", "error", r)
			ns, err = nil, fmt.Errorf("index: hnsw search: %v", r)
		}
	}()

	nodes := h.graph.Search(vec, max(k, h.graph.EfSearch))
	ns = make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		if len(n.Value) != len(vec) {
			continue
		}
		ns = append(ns, Neighbor{Key: n.Key, Distance: embed.CosineDistance(vec, n.Value)})
	}
	return sortNeighbors(ns, k), nil
}

// Lookup returns the vector stored under key.
func (h *HNSW) Lookup(key string) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.graph.Lookup(key)
	return v, ok
}

// Len returns the number of indexed vectors.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph.Len()
}
