package embed

import (
	"fmt"
	"time"

	"github.com/abelbrown/moodmap/internal/config"
)

// New builds the embedder named in settings.
func New(s config.ServiceSettings) (Embedder, error) {
	switch s.Name {
	case "gemini":
		e := NewGeminiEmbedder(s.APIKey, s.Model)
		if s.Endpoint != "" {
			e.baseURL = s.Endpoint
		}
		e.client = newClient("gemini", orDefault(s.Timeout, 60*time.Second), s.RPM, s.Retries)
		return e, nil
	case "jina":
		e := NewJinaEmbedder(s.APIKey, s.Model)
		if s.Endpoint != "" {
			e.endpoint = s.Endpoint
		}
		e.client = newClient("jina", orDefault(s.Timeout, 60*time.Second), s.RPM, s.Retries)
		return e, nil
	case "ollama":
		e := NewOllamaEmbedder(s.Endpoint, s.Model)
		e.client = newClient("ollama", orDefault(s.Timeout, 30*time.Second), s.RPM, s.Retries)
		return e, nil
	default:
		return nil, fmt.Errorf("embed: unknown embedder %q", s.Name)
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
