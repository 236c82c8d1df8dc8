package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/abelbrown/moodmap/internal/config"
)

// Provider configurations. An empty endpoint or model picks the public default.

func GeminiConfig(apiKey, model, baseURL string) *ProviderConfig {
	if model == "" {
		model = "gemini-2.0-flash-001"
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &ProviderConfig{
		Name:          "gemini",
		Endpoint:      strings.TrimRight(baseURL, "/") + "/models/" + model + ":generateContent",
		APIKey:        apiKey,
		Model:         model,
		AuthHeader:    "x-goog-api-key",
		BuildBody:     buildGeminiBody,
		ParseResponse: parseGeminiResponse,
	}
}

func OpenAIConfig(apiKey, model, baseURL string) *ProviderConfig {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &ProviderConfig{
		Name:          "openai",
		Endpoint:      strings.TrimRight(baseURL, "/") + "/chat/completions",
		APIKey:        apiKey,
		Model:         model,
		AuthHeader:    "Authorization",
		AuthPrefix:    "Bearer ",
		BuildBody:     buildOpenAIBody,
		ParseResponse: parseOpenAIResponse,
	}
}

func ClaudeConfig(apiKey, model, endpoint string) *ProviderConfig {
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}
	return &ProviderConfig{
		Name:       "claude",
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Model:      model,
		AuthHeader: "x-api-key",
		ExtraHeaders: map[string]string{
			"anthropic-version": "2023-06-01",
		},
		BuildBody:     buildClaudeBody,
		ParseResponse: parseClaudeResponse,
	}
}

// OllamaConfig targets a local server. When model is empty the first
// installed instruct model (or any model) is picked.
func OllamaConfig(host, model string) *ProviderConfig {
	if host == "" {
		host = "http://localhost:11434"
	}
	host = strings.TrimRight(host, "/")
	if model == "" {
		model = detectOllamaModel(host)
	}
	return &ProviderConfig{
		Name:          "ollama",
		Endpoint:      host + "/api/generate",
		Model:         model,
		KeyOptional:   true,
		BuildBody:     buildOllamaBody,
		ParseResponse: parseOllamaResponse,
	}
}

// New builds the provider named in settings.
func New(s config.ServiceSettings) (*HTTPProvider, error) {
	var cfg *ProviderConfig
	switch s.Name {
	case "gemini":
		cfg = GeminiConfig(s.APIKey, s.Model, s.Endpoint)
	case "openai":
		cfg = OpenAIConfig(s.APIKey, s.Model, s.Endpoint)
	case "claude":
		cfg = ClaudeConfig(s.APIKey, s.Model, s.Endpoint)
	case "ollama":
		cfg = OllamaConfig(s.Endpoint, s.Model)
	default:
		return nil, fmt.Errorf("brain: unknown provider %q", s.Name)
	}
	return NewHTTPProvider(cfg).WithLimits(s.Timeout, s.RPM, s.Retries), nil
}

// detectOllamaModel queries Ollama for available models and picks one
func detectOllamaModel(host string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return ""
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "" // Will mark provider as unavailable
	}
	defer resp.Body.Close()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil || len(tags.Models) == 0 {
		return ""
	}

	for _, m := range tags.Models {
		if strings.Contains(strings.ToLower(m.Name), "instruct") {
			return m.Name
		}
	}
	return tags.Models[0].Name
}

// Body builders

func buildGeminiBody(cfg *ProviderConfig, req Request) map[string]any {
	gen := map[string]any{
		"maxOutputTokens": maxTokensOr(req.MaxTokens, 2048),
	}
	if req.Temperature != nil {
		gen["temperature"] = *req.Temperature
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": req.UserPrompt}}},
		},
		"generationConfig": gen,
	}
	if req.SystemPrompt != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": req.SystemPrompt}},
		}
	}
	return body
}

func buildOpenAIBody(cfg *ProviderConfig, req Request) map[string]any {
	messages := []map[string]string{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserPrompt})

	body := map[string]any{
		"model":                 cfg.Model,
		"max_completion_tokens": maxTokensOr(req.MaxTokens, 2048),
		"messages":              messages,
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	return body
}

func buildClaudeBody(cfg *ProviderConfig, req Request) map[string]any {
	body := map[string]any{
		"model":      cfg.Model,
		"max_tokens": maxTokensOr(req.MaxTokens, 2048),
		"messages":   []map[string]string{{"role": "user", "content": req.UserPrompt}},
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	return body
}

func buildOllamaBody(cfg *ProviderConfig, req Request) map[string]any {
	prompt := req.UserPrompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.UserPrompt
	}
	options := map[string]any{
		"num_predict": maxTokensOr(req.MaxTokens, 2048),
	}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	return map[string]any{
		"model":   cfg.Model,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	}
}

// Response parsers read only the provider's primary field. Other shapes
// are left to Extract.

func parseGeminiResponse(body []byte) (string, string, error) {
	if !gjson.ValidBytes(body) {
		return "", "", fmt.Errorf("invalid JSON from gemini")
	}
	r := gjson.ParseBytes(body)
	return r.Get("candidates.0.content.parts.0.text").String(), r.Get("modelVersion").String(), nil
}

func parseOpenAIResponse(body []byte) (string, string, error) {
	if !gjson.ValidBytes(body) {
		return "", "", fmt.Errorf("invalid JSON from openai")
	}
	r := gjson.ParseBytes(body)
	return r.Get("choices.0.message.content").String(), r.Get("model").String(), nil
}

func parseClaudeResponse(body []byte) (string, string, error) {
	if !gjson.ValidBytes(body) {
		return "", "", fmt.Errorf("invalid JSON from claude")
	}
	r := gjson.ParseBytes(body)
	var texts []string
	r.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			texts = append(texts, block.Get("text").String())
		}
		return true
	})
	return strings.Join(texts, "\n\n"), r.Get("model").String(), nil
}

func parseOllamaResponse(body []byte) (string, string, error) {
	if !gjson.ValidBytes(body) {
		return "", "", fmt.Errorf("invalid JSON from ollama")
	}
	r := gjson.ParseBytes(body)
	return r.Get("response").String(), r.Get("model").String(), nil
}

func maxTokensOr(v, defaultVal int) int {
	if v > 0 {
		return v
	}
	return defaultVal
}
