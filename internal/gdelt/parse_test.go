package gdelt

import (
	"strings"
	"testing"
	"time"
)

// eventRow builds a 61-column export line with the given overrides.
func eventRow(overrides map[int]string) string {
	f := make([]string, eventColumnCount)
	f[colEventID] = "1001"
	f[colSQLDate] = "20250310"
	f[colEventCode] = "0231"
	f[colEventBaseCode] = "023"
	f[colEventRootCode] = "02"
	f[colAvgTone] = "-3.25"
	f[colSourceURL] = "https://news.example/a"
	for k, v := range overrides {
		f[k] = v
	}
	return strings.Join(f, "\t")
}

func TestParseEventsCoalescesGeo(t *testing.T) {
	tests := []struct {
		name        string
		overrides   map[int]string
		wantCountry string
		wantADM1    string
		wantLat     *float64
	}{
		{
			name:        "action geo wins",
			overrides:   map[int]string{colActionCountry: "FR", colActor1Country: "US", colActionADM1: "FR11", colActionLat: "48.85"},
			wantCountry: "FR",
			wantADM1:    "FR11",
			wantLat:     ptr(48.85),
		},
		{
			name:        "falls back to actor1",
			overrides:   map[int]string{colActor1Country: "US", colActor2Country: "CA", colActor1Lat: "38.9"},
			wantCountry: "US",
			wantLat:     ptr(38.9),
		},
		{
			name:        "falls back to actor2",
			overrides:   map[int]string{colActor2Country: "CA", colActor2ADM1: "CA08"},
			wantCountry: "CA",
			wantADM1:    "CA08",
		},
		{
			name:      "no geo at all",
			overrides: map[int]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, skipped, err := ParseEvents(strings.NewReader(eventRow(tt.overrides) + "\n"))
			if err != nil {
				t.Fatalf("ParseEvents() error = %v", err)
			}
			if skipped != 0 || len(events) != 1 {
				t.Fatalf("got %d events, %d skipped", len(events), skipped)
			}
			ev := events[0]
			if ev.Country != tt.wantCountry || ev.Admin1 != tt.wantADM1 {
				t.Errorf("country/adm1 = %q/%q, want %q/%q", ev.Country, ev.Admin1, tt.wantCountry, tt.wantADM1)
			}
			switch {
			case tt.wantLat == nil && ev.Lat != nil:
				t.Errorf("Lat = %v, want nil", *ev.Lat)
			case tt.wantLat != nil && (ev.Lat == nil || *ev.Lat != *tt.wantLat):
				t.Errorf("Lat = %v, want %v", ev.Lat, *tt.wantLat)
			}
		})
	}
}

func TestParseEventsFields(t *testing.T) {
	events, _, err := ParseEvents(strings.NewReader(eventRow(map[int]string{colActionCountry: "DE"})))
	if err != nil {
		t.Fatal(err)
	}
	ev := events[0]
	if !ev.Date.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", ev.Date)
	}
	if ev.Day() != "2025-03-10" {
		t.Errorf("Day() = %q", ev.Day())
	}
	if ev.Tone != -3.25 || ev.EventRootCode != "02" || ev.URL != "https://news.example/a" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestParseEventsSkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"too\tshort",
		eventRow(map[int]string{colSQLDate: "2025-03-10"}),
		eventRow(map[int]string{colAvgTone: "n/a"}),
		"",
		eventRow(nil),
	}, "\n")

	events, skipped, err := ParseEvents(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || skipped != 3 {
		t.Errorf("events=%d skipped=%d, want 1 and 3", len(events), skipped)
	}
}

func TestParseKnowledge(t *testing.T) {
	f := make([]string, 27)
	f[colGKGID] = "20250310120000-1"
	f[colGKGDate] = "20250310121500"
	f[colDocumentID] = "https://news.example/a"
	f[colV2Themes] = "TAX_FNCACT_PRESIDENT,120; ;WB_2432_FRAGILITY,44;"
	f[colV2Persons] = "Emmanuel Macron,88;Twitter,12"
	f[colV2Organization] = "United Nations,5"

	docs, skipped, err := ParseKnowledge(strings.NewReader(strings.Join(f, "\t")))
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 0 || len(docs) != 1 {
		t.Fatalf("docs=%d skipped=%d", len(docs), skipped)
	}
	d := docs[0]
	if d.Date.Format(DateLayout) != "2025-03-10" {
		t.Errorf("Date = %v", d.Date)
	}
	wantThemes := []string{"TAX_FNCACT_PRESIDENT,120", "WB_2432_FRAGILITY,44"}
	if strings.Join(d.Themes, "|") != strings.Join(wantThemes, "|") {
		t.Errorf("Themes = %v, want %v", d.Themes, wantThemes)
	}
	if len(d.Persons) != 2 || len(d.Orgs) != 1 {
		t.Errorf("Persons=%v Orgs=%v", d.Persons, d.Orgs)
	}
}

func TestSplitTagsLimit(t *testing.T) {
	got := SplitTags("a;b;;c;d", 3)
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("SplitTags = %v", got)
	}
	if SplitTags("", 5) != nil {
		t.Error("empty field should yield nil")
	}
}

func TestEnrichFirstDocumentWins(t *testing.T) {
	events := []Event{
		{ID: "1", URL: "u1"},
		{ID: "2", URL: "u2"},
		{ID: "3", URL: "u1"},
	}
	docs := []Knowledge{
		{ID: "k1", URL: "u1", Themes: []string{"FIRST"}},
		{ID: "k2", URL: "u1", Themes: []string{"SECOND"}},
	}

	out := Enrich(events, docs)
	if len(out) != 3 {
		t.Fatalf("Enrich returned %d rows, want 3 (no multiplication)", len(out))
	}
	if out[0].Themes[0] != "FIRST" || out[2].Themes[0] != "FIRST" {
		t.Errorf("expected first GKG record to win: %+v", out)
	}
	if out[1].Themes != nil {
		t.Errorf("unmatched event should have no themes: %+v", out[1])
	}
}

func TestInWindow(t *testing.T) {
	ref := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		day  time.Time
		want bool
	}{
		{ref, true},
		{ref.AddDate(0, 0, -7), true},
		{ref.AddDate(0, 0, -8), false},
		{ref.AddDate(0, 0, 1), false},
	}
	for _, tt := range tests {
		if got := InWindow(tt.day, ref, 7); got != tt.want {
			t.Errorf("InWindow(%s) = %v, want %v", tt.day.Format(DateLayout), got, tt.want)
		}
	}
}

func ptr(f float64) *float64 { return &f }
