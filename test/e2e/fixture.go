package e2e

import (
	"os"
	"path/filepath"
	"time"

	"github.com/abelbrown/moodmap/internal/analog"
	"github.com/abelbrown/moodmap/internal/entities"
	"github.com/abelbrown/moodmap/internal/mood"
	"github.com/abelbrown/moodmap/internal/store"
)

var fixtureDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// seedFixtureDB writes a two-country mood map into the default database
// location under homeDir.
func seedFixtureDB(homeDir string) error {
	dataDir := filepath.Join(homeDir, ".moodmap")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	st, err := store.Open(filepath.Join(dataDir, "moodmap.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	entries := []mood.Entry{
		{
			EventDate: fixtureDate,
			Country:   "FR",
			Score:     0.4,
			Summary:   "Fixture summary for France.",
			Briefing:  "[What happened] Fixture briefing.",
			TopThemes: []entities.Count{{Label: "PROTEST", Count: 3}},
		},
		{
			EventDate: fixtureDate,
			Country:   "DE",
			Score:     -0.3,
			Briefing:  "[What happened] Second fixture.",
		},
	}
	if err := st.ReplaceMoodMap(entries); err != nil {
		return err
	}
	return st.ReplaceAnalogs([]analog.Daily{{
		EventDate: fixtureDate,
		Country:   "FR",
		Analogs:   []analog.Analog{{PastDate: fixtureDate.AddDate(0, 0, -3), Snippet: "Fixture analog snippet", Distance: 0.12}},
		Text:      "2025-03-07: Fixture analog snippet",
	}})
}
