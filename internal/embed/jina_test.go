package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJinaPlacesByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jk" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var req jinaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		// Reply in reverse order.
		var resp jinaEmbedResponse
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, jinaEmbedding{Index: i, Embedding: []float32{float32(i)}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewJinaEmbedder("jk", "")
	e.client = testClient("jina", 0)
	e.endpoint = srv.URL

	vecs, err := e.EmbedBatch(context.Background(), []string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	for i := range vecs {
		if vecs[i][0] != float32(i) {
			t.Errorf("vecs[%d] = %v", i, vecs[i])
		}
	}
}

func TestJinaQueryTask(t *testing.T) {
	var task string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jinaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		task = req.Task
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e := NewJinaEmbedder("jk", "")
	e.client = testClient("jina", 0)
	e.endpoint = srv.URL

	if _, err := EmbedQueryText(context.Background(), e, "protests"); err != nil {
		t.Fatalf("EmbedQueryText() error = %v", err)
	}
	if task != "retrieval.query" {
		t.Errorf("task = %q, want retrieval.query", task)
	}
}

func TestJinaMissingEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	e := NewJinaEmbedder("jk", "")
	e.client = testClient("jina", 0)
	e.endpoint = srv.URL

	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for missing embedding")
	}
}
