package brain

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoText means no extractor found text in a response.
var ErrNoText = errors.New("brain: no text in response")

// Extractor pulls text from a response. ok is false when the extractor's
// field is absent or blank.
type Extractor struct {
	Name string
	Func func(Response) (text string, ok bool)
}

// jsonPath extracts a gjson path from the raw body.
func jsonPath(path string) Extractor {
	return Extractor{
		Name: path,
		Func: func(r Response) (string, bool) {
			if r.RawResponse == "" {
				return "", false
			}
			return nonBlank(gjson.Get(r.RawResponse, path).String())
		},
	}
}

// DefaultChain is the extraction order for generated text: the provider's
// primary field, two multi-candidate shapes, predictions, then a bare text field.
var DefaultChain = []Extractor{
	{Name: "content", Func: func(r Response) (string, bool) { return nonBlank(r.Content) }},
	jsonPath("candidates.0.content.parts.0.text"),
	jsonPath("candidates.0.content.0.text"),
	jsonPath("predictions.0.content"),
	jsonPath("text"),
}

// Extract runs DefaultChain and returns the first hit, or ErrNoText.
func Extract(r Response) (string, error) {
	return ExtractWith(DefaultChain, r)
}

// ExtractWith runs chain in order and returns the first hit, or ErrNoText.
func ExtractWith(chain []Extractor, r Response) (string, error) {
	for _, ex := range chain {
		if text, ok := ex.Func(r); ok {
			return text, nil
		}
	}
	return "", ErrNoText
}

func nonBlank(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
