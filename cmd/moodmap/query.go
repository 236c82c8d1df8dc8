package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/abelbrown/moodmap/internal/analog"
	"github.com/abelbrown/moodmap/internal/embed"
	"github.com/abelbrown/moodmap/internal/eventlog"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/pipeline"
	"github.com/abelbrown/moodmap/internal/report"
	"github.com/abelbrown/moodmap/internal/store"
	"github.com/abelbrown/moodmap/internal/ui"
)

type entryJSON struct {
	EventDate string   `json:"event_date"`
	Country   string   `json:"country"`
	Score     float64  `json:"mood_score"`
	Band      string   `json:"band"`
	Summary   string   `json:"summary,omitempty"`
	Briefing  string   `json:"briefing"`
	Themes    []string `json:"top_themes,omitempty"`
}

func reportCmd() *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the latest mood map",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			entries, err := e.store.MoodMap()
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}

			if !jsonOutput {
				fmt.Print(report.Render(entries, width))
				return nil
			}
			out := make([]entryJSON, len(entries))
			for i, en := range entries {
				out[i] = entryJSON{
					EventDate: en.EventDate.Format(gdelt.DateLayout),
					Country:   en.Country,
					Score:     en.Score,
					Band:      report.BandOf(en.Score).Name,
					Summary:   en.Summary,
					Briefing:  en.Briefing,
				}
				for _, th := range en.TopThemes {
					out[i].Themes = append(out[i].Themes, th.Label)
				}
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&width, "width", "w", 100, "Wrap width for summaries")
	return cmd
}

func browseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the mood map in a terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			loadMap := func() tea.Cmd {
				return func() tea.Msg {
					entries, err := e.store.MoodMap()
					if errors.Is(err, store.ErrNotFound) {
						return ui.MapLoaded{}
					}
					return ui.MapLoaded{Entries: entries, Err: err}
				}
			}
			loadDetail := func(country string, date time.Time) tea.Cmd {
				return func() tea.Msg {
					d, err := e.store.AnalogsFor(country, date)
					if errors.Is(err, store.ErrNotFound) {
						return ui.DetailLoaded{Country: country, Analogs: analog.Daily{Country: country, EventDate: date}}
					}
					return ui.DetailLoaded{Country: country, Analogs: d, Err: err}
				}
			}

			program := tea.NewProgram(ui.NewApp(loadMap, loadDetail), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = program.Run()
			return err
		},
	}
}

type matchJSON struct {
	Country  string  `json:"country"`
	Date     string  `json:"event_date"`
	Distance float64 `json:"distance"`
	Snippet  string  `json:"snippet"`
}

func printMatches(matches []analog.Match, snippetChars int) {
	if jsonOutput {
		out := make([]matchJSON, len(matches))
		for i, m := range matches {
			out[i] = matchJSON{Country: m.Country, Date: m.Date.Format(gdelt.DateLayout), Distance: m.Distance,
				Snippet: analog.Snippet(m.TopicDoc, snippetChars)}
		}
		printJSON(out)
		return
	}
	if len(matches) == 0 {
		fmt.Println("No matches.")
		return
	}
	for i, m := range matches {
		fmt.Printf("%2d. %-3s %s  d=%.4f\n", i+1, m.Country, m.Date.Format(gdelt.DateLayout), m.Distance)
		fmt.Printf("    %s\n", truncate(analog.Snippet(m.TopicDoc, snippetChars), 120))
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find the country-days closest to free text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			embedder, err := embed.New(e.cfg.Embedder)
			if err != nil {
				return err
			}
			corpus, err := pipeline.LoadCorpus(e.store, e.newIndex())
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			start := time.Now()
			matches, err := corpus.SimilarToText(cmd.Context(), embedder, query)
			e.events.Emit(eventlog.Event{Level: eventlog.LevelInfo, Kind: eventlog.KindSearch,
				Msg: query, Count: len(matches), Dur: time.Since(start), Err: errString(err)})
			if err != nil {
				return err
			}
			printMatches(matches, e.cfg.Pipeline.SnippetChars)
			return nil
		},
	}
}

func similarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similar <country> <date>",
		Short: "Find the country-days closest to a stored day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(gdelt.DateLayout, args[1])
			if err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
			}
			country := strings.ToUpper(args[0])

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			corpus, err := pipeline.LoadCorpus(e.store, e.newIndex())
			if err != nil {
				return err
			}
			start := time.Now()
			matches, err := corpus.SimilarToDay(country, day)
			e.events.Emit(eventlog.Event{Level: eventlog.LevelInfo, Kind: eventlog.KindSearch,
				Country: country, Date: args[1], Count: len(matches), Dur: time.Since(start), Err: errString(err)})
			if err != nil {
				return err
			}
			printMatches(matches, e.cfg.Pipeline.SnippetChars)
			return nil
		},
	}
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			runs, err := e.store.Runs(limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(runs)
				return nil
			}
			if len(runs) == 0 {
				fmt.Println("No runs yet.")
				return nil
			}
			for _, r := range runs {
				dur := "-"
				if r.FinishedAt != nil {
					dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Printf("%s  %s  ref=%s  %-7s %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.ID[:8], r.ReferenceDate.Format(gdelt.DateLayout), r.Status, dur)
				if r.Error != "" {
					fmt.Printf("    err=%s\n", r.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	return cmd
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
