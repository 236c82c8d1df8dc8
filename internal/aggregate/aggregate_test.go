package aggregate

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/moodmap/internal/gdelt"
)

var ref = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func day(offset int) time.Time { return ref.AddDate(0, 0, offset) }

func defaultOpts() Options {
	return Options{Reference: ref, WindowDays: 7, MaxEventCodes: 20, MaxSampleURLs: 30}
}

func TestBuildGroupsAndStats(t *testing.T) {
	events := []gdelt.Event{
		{Date: day(0), Country: "FR", Tone: -2, EventRootCode: "14", URL: "https://a.fr/1"},
		{Date: day(0), Country: "FR", Tone: 4, EventRootCode: "04", URL: "https://a.fr/2"},
		{Date: day(0), Country: "FR", Tone: 1, EventRootCode: "14", URL: "https://a.fr/1"},
		{Date: day(-1), Country: "FR", Tone: 3, EventRootCode: "01", URL: "https://a.fr/3"},
		{Date: day(0), Country: "DE", Tone: -1.005, URL: "https://b.de/1"},
	}

	got := Build(events, defaultOpts())
	if len(got) != 3 {
		t.Fatalf("Build returned %d groups, want 3", len(got))
	}

	// Sorted by date, then country.
	keys := []string{got[0].Key(), got[1].Key(), got[2].Key()}
	want := []string{"FR-2025-03-09", "DE-2025-03-10", "FR-2025-03-10"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", keys, want)
	}

	fr := got[2]
	if fr.HeadlineCount != 3 {
		t.Errorf("HeadlineCount = %d, want 3", fr.HeadlineCount)
	}
	if fr.AvgTone != 1 || fr.MinTone != -2 || fr.MaxTone != 4 {
		t.Errorf("tone stats = %v/%v/%v", fr.AvgTone, fr.MinTone, fr.MaxTone)
	}
	if strings.Join(fr.TopEventTypes, ",") != "14,04" {
		t.Errorf("TopEventTypes = %v", fr.TopEventTypes)
	}
	if strings.Join(fr.SampleURLs, ",") != "https://a.fr/1,https://a.fr/2" {
		t.Errorf("SampleURLs = %v", fr.SampleURLs)
	}

	de := got[1]
	if len(de.TopEventTypes) != 0 {
		t.Errorf("empty root codes must be skipped: %v", de.TopEventTypes)
	}
}

func TestBuildFiltersNullsAndWindow(t *testing.T) {
	events := []gdelt.Event{
		{Date: day(0), Country: "", Tone: 1, URL: "https://x/1"},
		{Date: day(0), Country: "US", Tone: 1, URL: ""},
		{Date: day(-8), Country: "US", Tone: 1, URL: "https://x/2"},
		{Date: day(-7), Country: "US", Tone: 1, URL: "https://x/3"},
	}
	got := Build(events, defaultOpts())
	if len(got) != 1 || got[0].Date != day(-7) {
		t.Fatalf("Build = %+v, want only the day(-7) US group", got)
	}
}

func TestBuildCapsKeepFirstSeen(t *testing.T) {
	var events []gdelt.Event
	for i := 0; i < 40; i++ {
		events = append(events, gdelt.Event{
			Date:          day(0),
			Country:       "IN",
			Tone:          float64(i % 5),
			EventRootCode: fmt.Sprintf("%02d", i%25),
			URL:           fmt.Sprintf("https://in.example/%02d", i),
		})
	}

	got := Build(events, defaultOpts())[0]
	if len(got.TopEventTypes) != 20 {
		t.Fatalf("len(TopEventTypes) = %d, want 20", len(got.TopEventTypes))
	}
	if got.TopEventTypes[0] != "00" || got.TopEventTypes[19] != "19" {
		t.Errorf("codes not first-seen: %v", got.TopEventTypes)
	}
	if len(got.SampleURLs) != 30 || got.SampleURLs[29] != "https://in.example/29" {
		t.Errorf("urls not capped first-seen: %d %v", len(got.SampleURLs), got.SampleURLs[len(got.SampleURLs)-1])
	}
}

func TestToneOrderingInvariant(t *testing.T) {
	events := []gdelt.Event{
		{Date: day(0), Country: "BR", Tone: -7.3, URL: "u1"},
		{Date: day(0), Country: "BR", Tone: 9.1, URL: "u2"},
		{Date: day(0), Country: "BR", Tone: 0.4, URL: "u3"},
		{Date: day(-2), Country: "AR", Tone: 2.2, URL: "u4"},
	}
	for _, d := range Build(events, defaultOpts()) {
		if !(d.MinTone <= d.AvgTone && d.AvgTone <= d.MaxTone) {
			t.Errorf("%s: min %v <= avg %v <= max %v violated", d.Key(), d.MinTone, d.AvgTone, d.MaxTone)
		}
	}
}

func TestAvgToneStaysWithinBoundsOnRoundingError(t *testing.T) {
	// 0.1+0.1+0.1 divided by 3 is 0.10000000000000002 in float64.
	var events []gdelt.Event
	for i := 0; i < 3; i++ {
		events = append(events, gdelt.Event{Date: day(0), Country: "US", Tone: 0.1, URL: fmt.Sprintf("https://c.us/%d", i)})
	}

	got := Build(events, defaultOpts())
	if len(got) != 1 {
		t.Fatalf("Build returned %d groups, want 1", len(got))
	}
	d := got[0]
	if d.AvgTone < d.MinTone || d.AvgTone > d.MaxTone {
		t.Errorf("min=%v avg=%v max=%v, want min <= avg <= max", d.MinTone, d.AvgTone, d.MaxTone)
	}
	if d.AvgTone != 0.1 {
		t.Errorf("AvgTone = %v, want 0.1", d.AvgTone)
	}
}

func TestRenderTopicDoc(t *testing.T) {
	d := CountryDay{
		Date:          day(0),
		Country:       "FR",
		HeadlineCount: 3,
		AvgTone:       1.23456,
		MinTone:       -2,
		MaxTone:       4.006,
		TopEventTypes: []string{"14", "04"},
		SampleURLs:    []string{"https://a.fr/1", "https://a.fr/2"},
	}
	want := "Country: FR | Date: 2025-03-10 | Headlines: 3 | Tone avg/min/max: 1.23/-2/4.01 | " +
		"Top Event Codes: 14, 04 | Sample URLs: https://a.fr/1 | https://a.fr/2"
	if got := RenderTopicDoc(d); got != want {
		t.Errorf("RenderTopicDoc() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	events := []gdelt.Event{
		{Date: day(0), Country: "JP", Tone: 1.5, EventRootCode: "03", URL: "https://jp/1"},
		{Date: day(0), Country: "JP", Tone: -0.5, EventRootCode: "19", URL: "https://jp/2"},
		{Date: day(-3), Country: "KR", Tone: 0.25, EventRootCode: "05", URL: "https://kr/1"},
	}
	a := Build(events, defaultOpts())
	b := Build(events, defaultOpts())
	for i := range a {
		if a[i].TopicDoc != b[i].TopicDoc {
			t.Errorf("topic_doc differs between runs:\n%s\n%s", a[i].TopicDoc, b[i].TopicDoc)
		}
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		x    float64
		n    int
		want float64
	}{
		{1.23456, 2, 1.23},
		{-0.001, 2, 0},
		{0.125, 2, 0.13},
		{-1.5, 0, -2},
	}
	for _, tt := range tests {
		if got := Round(tt.x, tt.n); got != tt.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.x, tt.n, got, tt.want)
		}
	}
}

func TestLatest(t *testing.T) {
	if _, ok := Latest(nil); ok {
		t.Error("Latest(nil) should report false")
	}
	got, ok := Latest([]CountryDay{{Date: day(-2)}, {Date: day(0)}, {Date: day(-1)}})
	if !ok || !got.Equal(day(0)) {
		t.Errorf("Latest = %v, %v", got, ok)
	}
}
