package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := NewGeminiEmbedder("test-key", "")
	e.client = testClient("gemini", 2)
	e.baseURL = srv.URL
	return e
}

func TestGeminiEmbedBatch(t *testing.T) {
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-embedding-001:batchEmbedContents") {
			t.Errorf("path = %s", r.URL.Path)
		}

		var req geminiBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		var resp geminiBatchResponse
		for i, item := range req.Requests {
			if item.Model != "models/gemini-embedding-001" {
				t.Errorf("request model = %q", item.Model)
			}
			if item.TaskType != "RETRIEVAL_DOCUMENT" {
				t.Errorf("task = %q", item.TaskType)
			}
			resp.Embeddings = append(resp.Embeddings, struct {
				Values []float32 `json:"values"`
			}{Values: []float32{float32(i), float32(len(item.Content.Parts[0].Text))}})
		}
		json.NewEncoder(w).Encode(resp)
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 2 || vecs[0][1] != 1 || vecs[1][1] != 3 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestGeminiRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"embeddings":[{"values":[0.5,0.5]}]}`))
	})

	vec, err := e.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vec = %v", vec)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestGeminiDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	})

	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGeminiCountMismatch(t *testing.T) {
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[{"values":[1]}]}`))
	})
	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestGeminiUnavailableWithoutKey(t *testing.T) {
	e := NewGeminiEmbedder("", "")
	if e.Available() {
		t.Error("Available() = true without key")
	}
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected error without key")
	}
}
