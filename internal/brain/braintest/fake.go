// Package braintest provides a scriptable in-memory brain.Provider.
package braintest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/abelbrown/moodmap/internal/brain"
)

// Fake answers each request with Respond. With no Respond it echoes the
// prompt. Safe for concurrent use.
type Fake struct {
	Respond func(req brain.Request) (brain.Response, error)

	calls atomic.Int32
	mu    sync.Mutex
	reqs  []brain.Request
}

var _ brain.Provider = (*Fake)(nil)

func (f *Fake) Name() string    { return "fake" }
func (f *Fake) Available() bool { return true }

func (f *Fake) Generate(ctx context.Context, req brain.Request) (brain.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return brain.Response{}, err
	}
	if f.Respond == nil {
		return brain.Response{Content: req.UserPrompt, Model: "fake"}, nil
	}
	return f.Respond(req)
}

// Calls returns the number of Generate calls.
func (f *Fake) Calls() int {
	return int(f.calls.Load())
}

// Requests returns a copy of every request received.
func (f *Fake) Requests() []brain.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]brain.Request(nil), f.reqs...)
}

// Text returns a Respond func that always answers with text.
func Text(text string) func(brain.Request) (brain.Response, error) {
	return func(brain.Request) (brain.Response, error) {
		return brain.Response{Content: text, Model: "fake"}, nil
	}
}
