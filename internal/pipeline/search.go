package pipeline

import (
	"errors"
	"fmt"

	"github.com/abelbrown/moodmap/internal/analog"
	"github.com/abelbrown/moodmap/internal/index"
	"github.com/abelbrown/moodmap/internal/store"
)

// ErrNoEmbeddings means no run has stored embeddings yet.
var ErrNoEmbeddings = errors.New("pipeline: no stored embeddings")

// LoadCorpus builds a searchable corpus from the embeddings stored by the
// last run.
func LoadCorpus(st *store.Store, newIndex NewIndexFunc) (*analog.Corpus, error) {
	embs, err := st.Embeddings()
	if err != nil {
		return nil, err
	}
	if len(embs) == 0 {
		return nil, ErrNoEmbeddings
	}
	if newIndex == nil {
		newIndex = func() (index.Index, error) { return index.NewExact(), nil }
	}

	idx, err := buildIndex(newIndex, embs)
	if err != nil {
		return nil, err
	}
	records := make([]analog.Record, len(embs))
	for i, e := range embs {
		records[i] = analog.Record{ID: e.ID, Date: e.Date, Country: e.Country, TopicDoc: e.TopicDoc}
	}
	return analog.NewCorpus(idx, records), nil
}

func buildIndex(newIndex NewIndexFunc, embs []store.Embedding) (index.Index, error) {
	idx, err := newIndex()
	if err != nil {
		return nil, err
	}
	for _, e := range embs {
		if err := idx.Add(e.ID, e.Vector); err != nil {
			return nil, fmt.Errorf("index %s: %w", e.ID, err)
		}
	}
	return idx, nil
}
