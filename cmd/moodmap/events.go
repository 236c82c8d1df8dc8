package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abelbrown/moodmap/internal/config"
	"github.com/abelbrown/moodmap/internal/eventlog"
)

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level eventlog.Level) int {
	switch level {
	case eventlog.LevelDebug:
		return 0
	case eventlog.LevelInfo:
		return 1
	case eventlog.LevelWarn:
		return 2
	case eventlog.LevelError:
		return 3
	default:
		return 0
	}
}

func eventsCmd() *cobra.Command {
	var (
		tail  int
		kind  string
		level string
		runID string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the JSONL event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The event log lives in the data dir; no database needed.
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			path := eventlog.DefaultPath(cfg.DataDir)

			all, err := eventlog.ReadTail(path, 0)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("event log not found at %s; run `moodmap run` first", path)
			}
			if err != nil {
				return err
			}

			minLevel := levelRank(eventlog.Level(level))
			var matched []eventlog.Event
			for _, ev := range all {
				if kind != "" && !strings.HasPrefix(string(ev.Kind), kind) {
					continue
				}
				if level != "" && levelRank(ev.Level) < minLevel {
					continue
				}
				if runID != "" && !strings.HasPrefix(ev.RunID, runID) {
					continue
				}
				matched = append(matched, ev)
			}
			if tail > 0 && len(matched) > tail {
				matched = matched[len(matched)-tail:]
			}

			for _, ev := range matched {
				if jsonOutput {
					line, err := json.Marshal(ev)
					if err != nil {
						return err
					}
					fmt.Println(string(line))
					continue
				}
				fmt.Println(formatEvent(ev))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 50, "Number of recent events to show")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by event kind prefix (e.g. 'stage')")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&runID, "run", "", "Filter by run ID prefix")
	return cmd
}

func formatEvent(ev eventlog.Event) string {
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s %-13s", ev.Time.Local().Format("15:04:05.000"), lvl, ev.Kind)}

	if ev.Stage != "" {
		parts = append(parts, "["+ev.Stage+"]")
	}
	if ev.Country != "" || ev.Date != "" {
		parts = append(parts, strings.TrimSpace(ev.Country+" "+ev.Date))
	}
	if ev.Msg != "" {
		parts = append(parts, ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	if ev.RunID != "" && len(ev.RunID) >= 8 {
		parts = append(parts, "run="+ev.RunID[:8])
	}
	return strings.Join(parts, " ")
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
