// Package eventlog records pipeline run events as JSONL.
//
// Events are typed structs serialized one per line. The Logger writes
// asynchronously via a buffered channel and background drain goroutine, so
// stage workers never block on disk.
package eventlog

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Kind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type Kind string

const (
	// Run lifecycle
	KindRunStart Kind = "run.start"
	KindRunDone  Kind = "run.done"
	KindRunError Kind = "run.error"

	// Stage lifecycle
	KindStageStart Kind = "stage.start"
	KindStageDone  Kind = "stage.done"

	// A (date, country) row left out of a stage's output.
	KindRowDrop Kind = "row.drop"

	// Input handling
	KindIngestFile Kind = "ingest.file"
	KindPrune      Kind = "ingest.prune"

	// Ad-hoc similarity queries
	KindSearch Kind = "search.query"
)

// Event is the universal run record. Every field except Kind and Time is
// optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      Kind           `json:"kind"`
	SessionID string         `json:"session_id,omitempty"` // random hex, same for the whole process
	RunID     string         `json:"run_id,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Country   string         `json:"country,omitempty"`
	Date      string         `json:"date,omitempty"`
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
