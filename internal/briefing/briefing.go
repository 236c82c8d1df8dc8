// Package briefing builds the analyst prompt for each cohort country and
// collects the generated four-section briefings.
package briefing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/moodmap/internal/aggregate"
	"github.com/abelbrown/moodmap/internal/analog"
	"github.com/abelbrown/moodmap/internal/brain"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/logging"
)

// Input is everything the prompt needs for one country-day.
type Input struct {
	Day         aggregate.CountryDay
	Themes      []string // ranked theme labels, may be empty
	People      []string // ranked person labels, may be empty
	AnalogsText string   // rendered analogs; empty means none were found
}

// Briefing is one generated narrative.
type Briefing struct {
	EventDate time.Time
	Country   string
	Text      string
}

// Key returns the "country-date" identifier.
func (b Briefing) Key() string {
	return aggregate.Key(b.Country, b.EventDate)
}

// Options configures a Generator.
type Options struct {
	ContextChars int
	Temperature  float64
	MaxTokens    int
	Jobs         int
}

// DropFunc is told about every row that produced no text.
type DropFunc func(country string, date time.Time, err error)

// Generator runs the briefing prompt through a provider.
type Generator struct {
	provider brain.Provider
	opts     Options
	onDrop   DropFunc
}

// NewGenerator creates a Generator. onDrop may be nil.
func NewGenerator(p brain.Provider, opts Options, onDrop DropFunc) *Generator {
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	return &Generator{provider: p, opts: opts, onDrop: onDrop}
}

// Generate returns one Briefing per input that yielded text, in input
// order. Rows with no extractable text are dropped and reported; a provider
// error aborts the call.
func (g *Generator) Generate(ctx context.Context, inputs []Input) ([]Briefing, error) {
	results := make([]*Briefing, len(inputs))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Jobs)
	for i, in := range inputs {
		eg.Go(func() error {
			resp, err := g.provider.Generate(ctx, brain.Request{
				UserPrompt:  BuildPrompt(in, g.opts.ContextChars),
				MaxTokens:   g.opts.MaxTokens,
				Temperature: brain.Temp(g.opts.Temperature),
			})
			if err != nil {
				return fmt.Errorf("briefing: %s: %w", in.Day.Key(), err)
			}

			text, err := brain.Extract(resp)
			if errors.Is(err, brain.ErrNoText) {
				logging.Warn("Dropping briefing row", "stage", "briefing", "country", in.Day.Country,
					"event_date", in.Day.Date.Format(gdelt.DateLayout), "reason", err)
				if g.onDrop != nil {
					g.onDrop(in.Day.Country, in.Day.Date, err)
				}
				return nil
			}
			results[i] = &Briefing{EventDate: in.Day.Date, Country: in.Day.Country, Text: text}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]Briefing, 0, len(results))
	for _, b := range results {
		if b != nil {
			out = append(out, *b)
		}
	}
	return out, nil
}

// BuildPrompt renders the analyst prompt for one country-day.
func BuildPrompt(in Input, contextChars int) string {
	themes := orNone(NormalizeThemes(strings.Join(in.Themes, ", ")))
	people := orNone(NormalizePeople(strings.Join(in.People, ", ")))
	analogs := in.AnalogsText
	if analogs == "" {
		analogs = analog.None
	}

	var b strings.Builder
	b.WriteString("You are a news analyst. Country is an ISO code.\n")
	b.WriteString("Fill in this EXACT template with ≤90 words, no intro/outro:\n")
	b.WriteString("[What happened] \n")
	b.WriteString("[Key drivers] \n")
	b.WriteString("[Impact] \n")
	b.WriteString("[Watch next] \n")
	b.WriteString("Rules:\n")
	b.WriteString("- Only summarize events for ISO code " + in.Day.Country + ".\n")
	b.WriteString("- Use at least TWO items from \"Top themes (readable)\" and at least ONE name from \"Top people\".\n")
	b.WriteString("- Do NOT output raw taxonomy tokens. Use natural English phrases.\n")
	b.WriteString("- Do NOT mention event codes. Avoid boilerplate.\n")
	b.WriteString("- Include at least one concrete number if available.\n")
	b.WriteString("- ALWAYS include all 4 sections.\n")
	b.WriteString("- Limit each section to 1–2 sentences. Be concise and specific.\n")
	b.WriteString("Top themes (readable): " + themes + "\n")
	b.WriteString("Top people: " + people + "\n")
	b.WriteString("Context: " + analog.Snippet(in.Day.TopicDoc, contextChars) + "\n")
	b.WriteString("Relevant past events to consider (analog history):\n")
	b.WriteString(analogs)
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
