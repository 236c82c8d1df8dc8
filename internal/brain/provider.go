// Package brain talks to hosted and local text-generation models.
package brain

import (
	"context"
)

// Provider is the interface for text-generation providers
type Provider interface {
	// Name returns the provider name (e.g., "gemini", "ollama")
	Name() string

	// Available returns true if the provider is configured and ready
	Available() bool

	// Generate sends a prompt and returns the response
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is a prompt request to a provider
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  *float64 // nil leaves the provider default
}

// Response is the provider's response. Content is the provider's own
// primary field; RawResponse keeps the body for the extraction chain.
type Response struct {
	Content     string
	Model       string
	RawResponse string
}

// Temp returns a pointer suitable for Request.Temperature.
func Temp(t float64) *float64 {
	return &t
}
