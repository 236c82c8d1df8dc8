// Package retry wraps calls to external capabilities with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how hard a caller retries a transient failure.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy doubles from one second, three retries.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// StatusError is returned by HTTP clients for non-2xx responses.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewStatusError builds a StatusError, honouring Retry-After on 429.
func NewStatusError(service string, resp *http.Response, body []byte) *StatusError {
	se := &StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
	if resp.StatusCode == http.StatusTooManyRequests {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
				se.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return se
}

// Permanent marks err so Do stops immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. Non-retryable StatusErrors stop the loop.
func Do(ctx context.Context, p Policy, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = 0 // bounded by MaxRetries instead

	var b backoff.BackOff = bo
	if p.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(bo, uint64(p.MaxRetries))
	}
	ra := &retryAfter{BackOff: b}

	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) {
			if !se.Retryable() {
				return backoff.Permanent(err)
			}
			ra.next = se.RetryAfter
		}
		return err
	}

	return backoff.Retry(op, backoff.WithContext(ra, ctx))
}

// retryAfter lets a server-provided Retry-After override the next interval.
type retryAfter struct {
	backoff.BackOff
	next time.Duration
}

// maxRetryAfter caps how long a server can make us wait.
const maxRetryAfter = 30 * time.Second

func (r *retryAfter) NextBackOff() time.Duration {
	d := r.BackOff.NextBackOff()
	if d == backoff.Stop || r.next <= 0 {
		return d
	}
	d = r.next
	r.next = 0
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}
