package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/moodmap/internal/logging"
	"github.com/abelbrown/moodmap/internal/retry"
)

// Compile-time interface satisfaction check
var _ Provider = (*HTTPProvider)(nil)

// ProviderConfig defines how to communicate with an LLM API
type ProviderConfig struct {
	Name         string
	Endpoint     string
	APIKey       string
	Model        string
	AuthHeader   string            // "x-goog-api-key" or "Authorization"
	AuthPrefix   string            // "" or "Bearer "
	ExtraHeaders map[string]string // Additional headers (e.g., anthropic-version)
	KeyOptional  bool              // local servers need no key

	// Request building
	BuildBody func(cfg *ProviderConfig, req Request) map[string]any

	// Response parsing. An unrecognised but valid JSON shape returns "".
	ParseResponse func(body []byte) (content, model string, err error)
}

// HTTPProvider is a generic HTTP-based LLM provider
type HTTPProvider struct {
	config  *ProviderConfig
	client  *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
}

// NewHTTPProvider creates a provider from config
func NewHTTPProvider(cfg *ProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		config:  cfg,
		client:  &http.Client{Timeout: 120 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
		policy:  retry.DefaultPolicy(),
	}
}

// WithLimits sets the request timeout, requests per minute (0 for no limit)
// and retry count.
func (p *HTTPProvider) WithLimits(timeout time.Duration, rpm, retries int) *HTTPProvider {
	if timeout > 0 {
		p.client = &http.Client{Timeout: timeout}
	}
	if rpm > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	} else {
		p.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	p.policy.MaxRetries = retries
	return p
}

func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Model returns the configured model.
func (p *HTTPProvider) Model() string {
	return p.config.Model
}

func (p *HTTPProvider) Available() bool {
	if p.config.KeyOptional {
		return p.config.Model != ""
	}
	return p.config.APIKey != ""
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if !p.Available() {
		return Response{}, fmt.Errorf("brain: %s provider not configured", p.config.Name)
	}

	logging.Debug("HTTP provider request", "provider", p.config.Name, "model", p.config.Model)

	jsonBody, err := json.Marshal(p.config.BuildBody(p.config, req))
	if err != nil {
		return Response{}, fmt.Errorf("brain: marshal request: %w", err)
	}

	var out Response
	err = retry.Do(ctx, p.policy, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("brain: rate limiter wait: %w", err))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(jsonBody))
		if err != nil {
			return retry.Permanent(fmt.Errorf("brain: create request: %w", err))
		}
		p.setHeaders(httpReq)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(ctx.Err())
			}
			return fmt.Errorf("brain: request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("brain: read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			logging.Warn("API error", "provider", p.config.Name, "status", resp.StatusCode)
			return retry.NewStatusError(p.config.Name, resp, respBody)
		}

		content, model, err := p.config.ParseResponse(respBody)
		if err != nil {
			return fmt.Errorf("brain: parse response: %w", err)
		}
		if model == "" {
			model = p.config.Model
		}
		out = Response{Content: content, Model: model, RawResponse: string(respBody)}
		return nil
	})
	if err != nil {
		logging.Error("Generation failed", "provider", p.config.Name, "error", err)
		return Response{}, err
	}

	logging.Debug("API response", "provider", p.config.Name, "model", out.Model, "content_len", len(out.Content))
	return out, nil
}

func (p *HTTPProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")

	if p.config.AuthHeader != "" && p.config.APIKey != "" {
		req.Header.Set(p.config.AuthHeader, p.config.AuthPrefix+p.config.APIKey)
	}

	for k, v := range p.config.ExtraHeaders {
		req.Header.Set(k, v)
	}
}
