package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abelbrown/moodmap/internal/eventlog"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/logging"
	"github.com/abelbrown/moodmap/internal/store"
)

// FileKind says which GDELT export a file holds.
type FileKind int

const (
	KindEvents FileKind = iota
	KindKnowledge
)

// KindOf guesses the export kind from a GDELT file name: GKG exports carry
// ".gkg." in their name, everything else is read as an event export.
func KindOf(path string) FileKind {
	if strings.Contains(strings.ToLower(filepath.Base(path)), ".gkg.") {
		return KindKnowledge
	}
	return KindEvents
}

// IngestResult counts what one Ingest call did.
type IngestResult struct {
	Files     int
	Events    int // new event rows
	Documents int // new GKG rows
	Skipped   int // malformed rows
	Pruned    int64
}

// Ingest loads GDELT exports into the store and prunes raw rows older than
// the retention window. Files ending in .zip are read through their first
// entry.
func Ingest(ctx context.Context, st *store.Store, events *eventlog.Logger, files []string, ref time.Time, retentionDays int) (*IngestResult, error) {
	res := &IngestResult{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := time.Now()
		added, skipped, err := ingestFile(st, path)
		if err != nil {
			return res, err
		}
		res.Files++
		res.Skipped += skipped
		if KindOf(path) == KindKnowledge {
			res.Documents += added
		} else {
			res.Events += added
		}
		events.Emit(eventlog.Event{Level: eventlog.LevelInfo, Kind: eventlog.KindIngestFile,
			Msg: filepath.Base(path), Count: added, Dur: time.Since(start)})
		logging.Info("Ingested file", "file", filepath.Base(path), "new", added, "skipped", skipped)
	}

	if retentionDays > 0 {
		cutoff := ref.AddDate(0, 0, -retentionDays)
		n, err := st.PruneBefore(cutoff)
		if err != nil {
			return res, err
		}
		res.Pruned = n
		events.Emit(eventlog.Event{Level: eventlog.LevelInfo, Kind: eventlog.KindPrune,
			Date: cutoff.Format(gdelt.DateLayout), Count: int(n)})
	}
	return res, nil
}

func ingestFile(st *store.Store, path string) (added, skipped int, err error) {
	r, closeFn, err := openExport(path)
	if err != nil {
		return 0, 0, err
	}
	defer closeFn()

	switch KindOf(path) {
	case KindKnowledge:
		docs, skipped, err := gdelt.ParseKnowledge(r)
		if err != nil {
			return 0, skipped, fmt.Errorf("ingest %s: %w", path, err)
		}
		added, err := st.SaveKnowledge(docs)
		return added, skipped, err
	default:
		evs, skipped, err := gdelt.ParseEvents(r)
		if err != nil {
			return 0, skipped, fmt.Errorf("ingest %s: %w", path, err)
		}
		added, err := st.SaveEvents(evs)
		return added, skipped, err
	}
}

func openExport(path string) (io.Reader, func(), error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("ingest: %w", err)
		}
		return f, func() { f.Close() }, nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: open zip %s: %w", path, err)
	}
	if len(zr.File) == 0 {
		zr.Close()
		return nil, nil, fmt.Errorf("ingest: %s is an empty archive", path)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		zr.Close()
		return nil, nil, fmt.Errorf("ingest: open %s in %s: %w", zr.File[0].Name, path, err)
	}
	return rc, func() { rc.Close(); zr.Close() }, nil
}
