package mood

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/moodmap/internal/brain"
	"github.com/abelbrown/moodmap/internal/brain/braintest"
	"github.com/abelbrown/moodmap/internal/briefing"
)

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.30", 0.30, false},
		{"Sentiment score: -0.65", -0.65, false},
		{"I'd say 0.2, maybe -0.4", 0.2, false},
		{"-1.0", -1.0, false},
		{"1", 0, true},
		{"-1", 0, true},
		{"neutral", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSentiment(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrNoSentiment) {
					t.Errorf("ParseSentiment(%q) error = %v, want ErrNoSentiment", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseSentiment(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestBlend(t *testing.T) {
	tests := []struct {
		sentiment, tone, want float64
	}{
		{0.4, -2, 0.1},
		{0.30, 5.0, 0.4},
		{-1, -10, -1},
		{1, 10, 1},
		{0, 0, 0},
		{0.5, -3.3333, 0.0833},
	}
	for _, tt := range tests {
		if got := Blend(tt.sentiment, tt.tone); got != tt.want {
			t.Errorf("Blend(%v, %v) = %v, want %v", tt.sentiment, tt.tone, got, tt.want)
		}
	}
}

func TestBlendBounded(t *testing.T) {
	for s := -1.0; s <= 1.0; s += 0.25 {
		for tone := -10.0; tone <= 10.0; tone += 2.5 {
			if m := Blend(s, tone); m < -1 || m > 1 {
				t.Errorf("Blend(%v, %v) = %v out of [-1, 1]", s, tone, m)
			}
		}
	}
}

func TestPrompts(t *testing.T) {
	p := SentimentPrompt("[What happened] Strikes.")
	want := "You are a sentiment analysis model. Read the news briefing and respond with a single number between -1 (very negative) and 1 (very positive).\nBriefing:\n[What happened] Strikes.\nSentiment score:"
	if p != want {
		t.Errorf("SentimentPrompt() = %q", p)
	}

	s := SummaryPrompt("FR")
	if !strings.Contains(s, `ISO country code "FR". Write ONE sentence (≤25 words).`) {
		t.Errorf("SummaryPrompt() = %q", s)
	}
}

func tone(v float64) *float64 { return &v }

var day10 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func TestScoreEndToEnd(t *testing.T) {
	fake := &braintest.Fake{Respond: func(req brain.Request) (brain.Response, error) {
		switch {
		case strings.HasPrefix(req.UserPrompt, "You are a sentiment"):
			if strings.Contains(req.UserPrompt, "about B") {
				return brain.Response{Content: "positive"}, nil
			}
			return brain.Response{Content: "0.30"}, nil
		case strings.Contains(req.UserPrompt, `"C"`):
			return brain.Response{}, nil
		default:
			return brain.Response{Content: "Calm day."}, nil
		}
	}}

	var dropped []string
	b := NewBlender(fake, Options{Temperature: 0.2, SentimentTokens: 300, SummaryTokens: 60, Jobs: 1},
		func(country string, _ time.Time, err error) { dropped = append(dropped, country+":"+err.Error()) })

	inputs := []Input{
		{Briefing: briefing.Briefing{EventDate: day10, Country: "A", Text: "about A"}, AvgTone: tone(5.0)},
		{Briefing: briefing.Briefing{EventDate: day10, Country: "B", Text: "about B"}, AvgTone: tone(1)},
		{Briefing: briefing.Briefing{EventDate: day10, Country: "C", Text: "about C"}, AvgTone: tone(-2)},
		{Briefing: briefing.Briefing{EventDate: day10, Country: "D", Text: "about D"}},
	}
	out, err := b.Score(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("out = %+v", out)
	}
	if out[0].Country != "A" || out[0].Score != 0.4 || out[0].Summary != "Calm day." || out[0].Briefing != "about A" {
		t.Errorf("A = %+v", out[0])
	}
	// An empty summary keeps the row.
	if out[1].Country != "C" || out[1].Score != 0.05 || out[1].Summary != "" {
		t.Errorf("C = %+v", out[1])
	}
	if len(dropped) != 2 || !strings.HasPrefix(dropped[0], "B:") || !strings.HasPrefix(dropped[1], "D:") {
		t.Errorf("dropped = %v", dropped)
	}

	for _, req := range fake.Requests() {
		if strings.HasPrefix(req.UserPrompt, "Summarize") && req.MaxTokens != 60 {
			t.Errorf("summary MaxTokens = %d", req.MaxTokens)
		}
		if strings.HasPrefix(req.UserPrompt, "You are a sentiment") && req.MaxTokens != 300 {
			t.Errorf("sentiment MaxTokens = %d", req.MaxTokens)
		}
	}
}

func TestScoreProviderFailure(t *testing.T) {
	fake := &braintest.Fake{Respond: func(brain.Request) (brain.Response, error) {
		return brain.Response{}, errors.New("quota exhausted")
	}}
	b := NewBlender(fake, Options{SentimentTokens: 300, SummaryTokens: 60, Jobs: 2}, nil)

	_, err := b.Score(context.Background(), []Input{
		{Briefing: briefing.Briefing{EventDate: day10, Country: "A", Text: "x"}, AvgTone: tone(1)},
	})
	if err == nil {
		t.Fatal("expected provider error")
	}
}
