package briefing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/moodmap/internal/aggregate"
	"github.com/abelbrown/moodmap/internal/brain"
	"github.com/abelbrown/moodmap/internal/brain/braintest"
)

var today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func input(country string) Input {
	return Input{
		Day: aggregate.CountryDay{
			Date:     today,
			Country:  country,
			TopicDoc: "Country: " + country + " | Date: 2025-03-10 | Sample URLs: https://example.com/a | https://example.com/b",
		},
		Themes:      []string{"protest", "wb_2432_fragility"},
		People:      []string{"emmanuel macron"},
		AnalogsText: "2025-03-01: earlier",
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(input("FR"), 700)

	for _, want := range []string{
		"You are a news analyst. Country is an ISO code.\n",
		"Fill in this EXACT template with ≤90 words, no intro/outro:\n[What happened] \n[Key drivers] \n[Impact] \n[Watch next] \n",
		"- Only summarize events for ISO code FR.\n",
		"- Limit each section to 1–2 sentences. Be concise and specific.\n",
		"Top themes (readable): Protest, Fragility\n",
		"Top people: Emmanuel Macron\n",
		"Context: Country: FR | Date: 2025-03-10 | Sample URLs:  | \n",
		"Relevant past events to consider (analog history):\n2025-03-01: earlier",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q\n%s", want, p)
		}
	}
	if strings.Contains(p, "https://") {
		t.Error("prompt context kept URLs")
	}
}

func TestBuildPromptEmptyInputs(t *testing.T) {
	in := input("GB")
	in.Themes, in.People, in.AnalogsText = nil, nil, ""
	p := BuildPrompt(in, 10)

	if !strings.Contains(p, "Top themes (readable): none\n") || !strings.Contains(p, "Top people: none\n") {
		t.Errorf("empty lists not rendered as none:\n%s", p)
	}
	if !strings.HasSuffix(p, "(analog history):\nNone") {
		t.Errorf("missing analogs not rendered as None:\n%s", p)
	}
	if !strings.Contains(p, "Context: Country: G\n") {
		t.Errorf("context not cut to 10 runes:\n%s", p)
	}
}

func TestGenerateDropsRowsWithoutText(t *testing.T) {
	fake := &braintest.Fake{Respond: func(req brain.Request) (brain.Response, error) {
		if strings.Contains(req.UserPrompt, "ISO code DE.") {
			return brain.Response{RawResponse: `{"unexpected":true}`}, nil
		}
		if strings.Contains(req.UserPrompt, "ISO code IT.") {
			return brain.Response{RawResponse: `{"predictions":[{"content":"IT briefing"}]}`}, nil
		}
		return brain.Response{Content: "briefing"}, nil
	}}

	var mu sync.Mutex
	var dropped []string
	g := NewGenerator(fake, Options{ContextChars: 700, Temperature: 0.2, MaxTokens: 300, Jobs: 2},
		func(country string, _ time.Time, err error) {
			mu.Lock()
			defer mu.Unlock()
			if !errors.Is(err, brain.ErrNoText) {
				t.Errorf("drop reason = %v", err)
			}
			dropped = append(dropped, country)
		})

	out, err := g.Generate(context.Background(), []Input{input("FR"), input("DE"), input("IT")})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(out) != 2 || out[0].Country != "FR" || out[1].Country != "IT" || out[1].Text != "IT briefing" {
		t.Errorf("out = %+v", out)
	}
	if len(dropped) != 1 || dropped[0] != "DE" {
		t.Errorf("dropped = %v", dropped)
	}

	req := fake.Requests()[0]
	if req.MaxTokens != 300 || req.Temperature == nil || *req.Temperature != 0.2 {
		t.Errorf("request params = %+v", req)
	}
}

func TestGenerateProviderFailureIsFatal(t *testing.T) {
	fake := &braintest.Fake{Respond: func(brain.Request) (brain.Response, error) {
		return brain.Response{}, errors.New("service unavailable")
	}}
	g := NewGenerator(fake, Options{ContextChars: 700, MaxTokens: 300, Jobs: 4}, nil)

	if _, err := g.Generate(context.Background(), []Input{input("FR")}); err == nil {
		t.Fatal("expected provider error")
	}
}
