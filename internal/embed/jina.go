package embed

import (
	"context"
	"fmt"
	"time"
)

// JinaEmbedder generates embeddings via the Jina AI API.
type JinaEmbedder struct {
	client
	apiKey   string
	model    string
	endpoint string
}

type jinaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Task       string   `json:"task"`
	Dimensions int      `json:"dimensions"`
	Truncate   bool     `json:"truncate"`
}

type jinaEmbedResponse struct {
	Data []jinaEmbedding `json:"data"`
}

type jinaEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// jinaChunkSize is the number of texts sent per request.
const jinaChunkSize = 25

// NewJinaEmbedder creates a JinaEmbedder. An empty model means jina-embeddings-v3.
func NewJinaEmbedder(apiKey, model string) *JinaEmbedder {
	if model == "" {
		model = "jina-embeddings-v3"
	}
	return &JinaEmbedder{
		client:   newClient("jina", 60*time.Second, 80, 3),
		apiKey:   apiKey,
		model:    model,
		endpoint: "https://api.jina.ai/v1/embeddings",
	}
}

// Available returns true if the Jina API key is configured.
func (e *JinaEmbedder) Available() bool { return e.apiKey != "" }

// Model returns the configured model name.
func (e *JinaEmbedder) Model() string { return e.model }

// Embed embeds one document with the retrieval.passage task.
func (e *JinaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, "retrieval.passage")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search query with the retrieval.query task.
func (e *JinaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, "retrieval.query")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in chunks, placing results by the index the API
// reports so out-of-order responses are handled.
func (e *JinaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += jinaChunkSize {
		end := min(start+jinaChunkSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end], "retrieval.passage")
		if err != nil {
			return nil, fmt.Errorf("embed: jina chunk at %d: %w", start, err)
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *JinaEmbedder) embed(ctx context.Context, input []string, task string) ([][]float32, error) {
	if !e.Available() {
		return nil, fmt.Errorf("embed: jina api key not configured")
	}

	var resp jinaEmbedResponse
	err := e.postJSON(ctx, e.endpoint, map[string]string{"Authorization": "Bearer " + e.apiKey},
		jinaEmbedRequest{Model: e.model, Input: input, Task: task, Dimensions: 1024, Truncate: true}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(input))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(input) {
			return nil, fmt.Errorf("embed: jina returned out-of-range index %d for %d inputs", item.Index, len(input))
		}
		out[item.Index] = item.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embed: jina returned no embedding for input %d", i)
		}
	}
	return out, nil
}
