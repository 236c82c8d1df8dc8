package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/moodmap/internal/brain"
	"github.com/abelbrown/moodmap/internal/embed"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/pipeline"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <files...>",
		Short: "Load GDELT event and GKG exports (.csv or .zip)",
		Long: `Ingest parses GDELT 2.0 event exports and GKG 2.1 exports into the
database. Files whose name contains ".gkg." are read as GKG. Raw rows older
than the retention window are pruned afterwards.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			p := e.cfg.Pipeline
			res, err := pipeline.Ingest(cmd.Context(), e.store, e.events, args, p.Today(), p.RetentionDays)
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(map[string]any{
					"ok":        true,
					"files":     res.Files,
					"events":    res.Events,
					"documents": res.Documents,
					"skipped":   res.Skipped,
					"pruned":    res.Pruned,
				})
				return nil
			}
			fmt.Printf("Files:      %d\n", res.Files)
			fmt.Printf("Events:     %d new\n", res.Events)
			fmt.Printf("Documents:  %d new\n", res.Documents)
			fmt.Printf("Skipped:    %d malformed\n", res.Skipped)
			fmt.Printf("Pruned:     %d older than %d days\n", res.Pruned, p.RetentionDays)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var refDate string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage and rebuild the mood map",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if refDate != "" {
				e.cfg.Pipeline.ReferenceDate = refDate
				if err := e.cfg.Validate(); err != nil {
					return err
				}
			}

			embedder, err := embed.New(e.cfg.Embedder)
			if err != nil {
				return err
			}
			provider, err := brain.New(e.cfg.Provider)
			if err != nil {
				return err
			}

			runner := pipeline.NewRunner(e.store, embedder, provider, e.newIndex(), e.events, pipeline.OptionsFrom(e.cfg.Pipeline))
			rep, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(map[string]any{
					"ok":          true,
					"run_id":      rep.RunID,
					"reference":   rep.Reference.Format(gdelt.DateLayout),
					"counts":      rep.Counts,
					"dropped":     rep.Dropped,
					"duration_ms": rep.Duration.Milliseconds(),
				})
				return nil
			}
			fmt.Printf("Run %s for %s (%s)\n", rep.RunID, rep.Reference.Format(gdelt.DateLayout), rep.Duration.Round(time.Millisecond))
			fmt.Print(formatCounts(rep.Counts))
			if rep.Dropped > 0 {
				fmt.Printf("  %-10s %d\n", "dropped", rep.Dropped)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refDate, "date", "", "Reference date YYYY-MM-DD (default: today, UTC)")
	return cmd
}

// formatCounts prints per-stage row counts in stage order.
func formatCounts(counts map[string]int) string {
	order := map[string]int{}
	for i, s := range []string{
		pipeline.StageAggregate, pipeline.StageEntities, pipeline.StageEmbed,
		pipeline.StageAnalogs, pipeline.StageBriefing, pipeline.StageMood,
	} {
		order[s] = i
	}
	stages := make([]string, 0, len(counts))
	for s := range counts {
		stages = append(stages, s)
	}
	sort.Slice(stages, func(i, j int) bool {
		oi, iok := order[stages[i]]
		oj, jok := order[stages[j]]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return stages[i] < stages[j]
	})

	var b strings.Builder
	for _, s := range stages {
		fmt.Fprintf(&b, "  %-10s %d\n", s, counts[s])
	}
	return b.String()
}
