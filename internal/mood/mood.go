// Package mood scores each briefing's sentiment, blends it with the average
// event tone and writes a one-line hover summary.
package mood

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/moodmap/internal/aggregate"
	"github.com/abelbrown/moodmap/internal/brain"
	"github.com/abelbrown/moodmap/internal/briefing"
	"github.com/abelbrown/moodmap/internal/entities"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/logging"
)

// ErrNoSentiment means the sentiment reply held no signed decimal.
var ErrNoSentiment = errors.New("mood: no sentiment score in response")

// ErrNoTone means the briefing has no aggregate to take avg_tone from.
var ErrNoTone = errors.New("mood: no average tone for briefing")

// Entry is one row of the mood map.
type Entry struct {
	EventDate time.Time
	Country   string
	Score     float64
	Summary   string // empty when the summary call returned no text
	Briefing  string
	TopThemes []entities.Count
}

// Key returns the "country-date" identifier.
func (e Entry) Key() string {
	return aggregate.Key(e.Country, e.EventDate)
}

// Input pairs a briefing with its day's average tone and top themes.
type Input struct {
	Briefing  briefing.Briefing
	AvgTone   *float64 // nil when no aggregate matched
	TopThemes []entities.Count
}

var decimalPattern = regexp.MustCompile(`-?\d+\.\d+`)

// ParseSentiment returns the first signed decimal in text. Integers such
// as "1" or "-1" do not match.
func ParseSentiment(text string) (float64, error) {
	m := decimalPattern.FindString(text)
	if m == "" {
		return 0, ErrNoSentiment
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoSentiment, err)
	}
	return v, nil
}

// Blend averages sentiment with the tone rescaled from about ±10 to ±1,
// rounded to 4 decimals. It does not clamp.
func Blend(sentiment, avgTone float64) float64 {
	return aggregate.Round((sentiment+avgTone/10)/2, 4)
}

// SentimentPrompt asks for a single number in [-1, 1] for text.
func SentimentPrompt(text string) string {
	return "You are a sentiment analysis model. Read the news briefing and respond with a single number between -1 (very negative) and 1 (very positive).\n" +
		"Briefing:\n" +
		text + "\n" +
		"Sentiment score:"
}

// SummaryPrompt asks for a one-sentence hover summary for country.
func SummaryPrompt(country string) string {
	return `Summarize today’s news mood for the ISO country code "` + country + `". ` +
		"Write ONE sentence (≤25 words). " +
		"Do not use labels. " +
		"Keep it concise, neutral, and hover-friendly."
}

// Options configures a Blender.
type Options struct {
	Temperature     float64
	SentimentTokens int
	SummaryTokens   int
	Jobs            int
}

// DropFunc is told about every row that got no score.
type DropFunc func(country string, date time.Time, err error)

// Blender turns briefings into mood map entries.
type Blender struct {
	provider brain.Provider
	opts     Options
	onDrop   DropFunc
}

// NewBlender creates a Blender. onDrop may be nil.
func NewBlender(p brain.Provider, opts Options, onDrop DropFunc) *Blender {
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	return &Blender{provider: p, opts: opts, onDrop: onDrop}
}

// Score returns one Entry per input with a parseable sentiment and a tone,
// in input order. Provider errors abort the call.
func (b *Blender) Score(ctx context.Context, inputs []Input) ([]Entry, error) {
	results := make([]*Entry, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Jobs)
	for i, in := range inputs {
		g.Go(func() error {
			e, err := b.score(ctx, in)
			switch {
			case errors.Is(err, ErrNoSentiment), errors.Is(err, ErrNoTone):
				b.drop(in.Briefing, err)
				return nil
			case err != nil:
				return err
			}
			results[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(results))
	for _, e := range results {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (b *Blender) score(ctx context.Context, in Input) (*Entry, error) {
	br := in.Briefing
	if in.AvgTone == nil {
		return nil, ErrNoTone
	}

	resp, err := b.provider.Generate(ctx, brain.Request{
		UserPrompt:  SentimentPrompt(br.Text),
		MaxTokens:   b.opts.SentimentTokens,
		Temperature: brain.Temp(b.opts.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("mood: sentiment %s: %w", br.Key(), err)
	}
	text, err := brain.Extract(resp)
	if err != nil {
		return nil, ErrNoSentiment
	}
	sentiment, err := ParseSentiment(text)
	if err != nil {
		return nil, err
	}

	resp, err = b.provider.Generate(ctx, brain.Request{
		UserPrompt:  SummaryPrompt(br.Country),
		MaxTokens:   b.opts.SummaryTokens,
		Temperature: brain.Temp(b.opts.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("mood: summary %s: %w", br.Key(), err)
	}
	summary, err := brain.Extract(resp)
	if err != nil {
		logging.Debug("Empty hover summary", "country", br.Country, "event_date", br.EventDate.Format(gdelt.DateLayout))
		summary = ""
	}

	return &Entry{
		EventDate: br.EventDate,
		Country:   br.Country,
		Score:     Blend(sentiment, *in.AvgTone),
		Summary:   summary,
		Briefing:  br.Text,
		TopThemes: in.TopThemes,
	}, nil
}

func (b *Blender) drop(br briefing.Briefing, err error) {
	logging.Warn("Dropping mood row", "stage", "mood", "country", br.Country,
		"event_date", br.EventDate.Format(gdelt.DateLayout), "reason", err)
	if b.onDrop != nil {
		b.onDrop(br.Country, br.EventDate, err)
	}
}
