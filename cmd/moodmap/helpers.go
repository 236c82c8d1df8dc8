package main

import (
	"fmt"
	"os"

	"github.com/abelbrown/moodmap/internal/config"
	"github.com/abelbrown/moodmap/internal/eventlog"
	"github.com/abelbrown/moodmap/internal/index"
	"github.com/abelbrown/moodmap/internal/logging"
	"github.com/abelbrown/moodmap/internal/pipeline"
	"github.com/abelbrown/moodmap/internal/store"
)

// env is what every subcommand needs: config, store and the event log.
type env struct {
	cfg    *config.Config
	store  *store.Store
	events *eventlog.Logger
}

// openEnv loads .env and the config file, sets up logging and opens the
// store. The caller must call close.
func openEnv() (*env, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbOverride != "" {
		cfg.DBPath = dbOverride
	}

	if verbose {
		logging.Setup(os.Stderr, "debug")
	} else if err := logging.Init(cfg.DataDir, cfg.LogLevel); err != nil {
		return nil, err
	}

	events, err := eventlog.Open(eventlog.DefaultPath(cfg.DataDir))
	if err != nil {
		logging.Warn("Event log unavailable", "error", err)
		events = eventlog.NewNullLogger()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &env{cfg: cfg, store: st, events: events}, nil
}

func (e *env) close() {
	e.store.Close()
	e.events.Close()
	logging.Close()
}

// newIndex builds the configured similarity index.
func (e *env) newIndex() pipeline.NewIndexFunc {
	settings := e.cfg.Index
	return func() (index.Index, error) { return index.New(settings) }
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
