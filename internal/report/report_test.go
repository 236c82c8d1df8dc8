package report

import (
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/moodmap/internal/entities"
	"github.com/abelbrown/moodmap/internal/mood"
)

func TestBandOf(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{-1, "very negative"},
		{-3, "very negative"},
		{-0.6, "negative"},
		{-0.25, "negative"},
		{-0.2, "neutral"},
		{0, "neutral"},
		{0.2, "positive"},
		{0.6, "very positive"},
		{1, "very positive"},
		{5, "very positive"},
	}
	for _, tt := range tests {
		if got := BandOf(tt.score).Name; got != tt.want {
			t.Errorf("BandOf(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := []mood.Entry{
		{EventDate: date, Country: "B", Score: 0.1, Summary: "Steady."},
		{EventDate: date, Country: "A", Score: 0.4, TopThemes: []entities.Count{{Label: "protest", Count: 3}, {Label: "economy", Count: 1}}},
	}

	out := Render(entries, 0)
	for _, want := range []string{"Mood map 2025-03-10 (2 countries)", "+0.1000", "+0.4000", "Steady.", "(no summary)", "protest · economy", "very positive"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Steady.") > strings.Index(out, "(no summary)") {
		t.Error("entries not rendered in the given order")
	}
}

func TestRenderEmpty(t *testing.T) {
	if out := Render(nil, 80); !strings.Contains(out, "No mood map yet") {
		t.Errorf("Render(nil) = %q", out)
	}
}

func TestThemeLine(t *testing.T) {
	themes := []entities.Count{{Label: "a"}, {Label: "b"}, {Label: "c"}}
	if got := ThemeLine(themes, 2); got != "a · b" {
		t.Errorf("ThemeLine() = %q", got)
	}
	if got := ThemeLine(nil, 2); got != "" {
		t.Errorf("ThemeLine(nil) = %q", got)
	}
}
