// Command moodmap ingests GDELT exports and builds the daily country mood map.
//
// Usage:
//
//	moodmap ingest <files...>    Load event and GKG exports
//	moodmap run                  Run every stage for the reference date
//	moodmap report               Print the latest mood map
//	moodmap browse               Browse the mood map in a terminal UI
//	moodmap search <query>       Country-days closest to free text
//	moodmap similar <cc> <date>  Country-days closest to a stored day
//	moodmap runs                 Recent pipeline runs
//	moodmap events               JSONL event log viewer
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	configPath string
	dbOverride string
	jsonOutput bool
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "moodmap",
		Short: "Daily country mood map from GDELT",
		Long: `Moodmap aggregates GDELT events per country and day, retrieves
historical analogs by embedding similarity, has a language model write a
briefing for each country, and blends its sentiment with GDELT tone into a
single mood score.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.moodmap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbOverride, "db", "", "Database path override")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{"version": version})
				return
			}
			fmt.Printf("moodmap %s\n", version)
		},
	})

	rootCmd.AddCommand(
		ingestCmd(),
		runCmd(),
		reportCmd(),
		browseCmd(),
		searchCmd(),
		similarCmd(),
		runsCmd(),
		eventsCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if jsonOutput {
			printJSON(map[string]any{"ok": false, "message": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
