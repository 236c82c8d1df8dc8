package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/moodmap/internal/retry"
)

// client is the HTTP plumbing shared by the hosted embedders.
type client struct {
	service string
	http    *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
}

func newClient(service string, timeout time.Duration, rpm int, retries int) client {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Every(time.Minute / time.Duration(rpm))
	}
	policy := retry.DefaultPolicy()
	policy.MaxRetries = retries
	return client{
		service: service,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		policy:  policy,
	}
}

// postJSON sends body to url and decodes a 200 response into out. 429, 5xx
// and undecodable bodies are retried under the client's policy.
func (c client) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("embed: marshal request: %w", err)
	}

	return retry.Do(ctx, c.policy, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("embed: rate limiter wait: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("embed: create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(fmt.Errorf("embed: request cancelled: %w", ctx.Err()))
			}
			return fmt.Errorf("embed: request failed: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("embed: read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return retry.NewStatusError(c.service, resp, data)
		}
		// Truncated bodies are treated as transient.
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("embed: parse %s response: %w", c.service, err)
		}
		return nil
	})
}
