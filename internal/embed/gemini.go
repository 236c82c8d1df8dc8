package embed

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GeminiEmbedder generates embeddings via the Gemini batchEmbedContents API.
type GeminiEmbedder struct {
	client
	apiKey  string
	model   string
	baseURL string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// geminiChunkSize is the API's per-call request limit.
const geminiChunkSize = 100

// NewGeminiEmbedder creates a GeminiEmbedder. An empty model means gemini-embedding-001.
func NewGeminiEmbedder(apiKey, model string) *GeminiEmbedder {
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GeminiEmbedder{
		client:  newClient("gemini", 60*time.Second, 80, 3),
		apiKey:  apiKey,
		model:   strings.TrimPrefix(model, "models/"),
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
	}
}

// Available returns true if an API key is configured.
func (e *GeminiEmbedder) Available() bool { return e.apiKey != "" }

// Model returns the configured model name.
func (e *GeminiEmbedder) Model() string { return e.model }

// Embed embeds one document.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search query.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in API-sized chunks, preserving order.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiChunkSize {
		end := min(start+geminiChunkSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end], "RETRIEVAL_DOCUMENT")
		if err != nil {
			return nil, fmt.Errorf("embed: gemini chunk at %d: %w", start, err)
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if !e.Available() {
		return nil, fmt.Errorf("embed: gemini api key not configured")
	}

	req := geminiBatchRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = geminiEmbedRequest{
			Model:    "models/" + e.model,
			Content:  geminiContent{Parts: []geminiPart{{Text: t}}},
			TaskType: task,
		}
	}

	var resp geminiBatchResponse
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", e.baseURL, e.model)
	if err := e.postJSON(ctx, url, map[string]string{"x-goog-api-key": e.apiKey}, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("embed: gemini returned an empty embedding for input %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
