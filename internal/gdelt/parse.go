package gdelt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Column offsets in a GDELT 2.0 event export row.
const (
	colEventID       = 0
	colSQLDate       = 1
	colEventCode     = 26
	colEventBaseCode = 27
	colEventRootCode = 28
	colAvgTone       = 34
	colActor1Country = 37
	colActor1ADM1    = 38
	colActor1Lat     = 40
	colActor1Long    = 41
	colActor2Country = 45
	colActor2ADM1    = 46
	colActor2Lat     = 48
	colActor2Long    = 49
	colActionCountry = 53
	colActionADM1    = 54
	colActionLat     = 56
	colActionLong    = 57
	colSourceURL     = 60
	eventColumnCount = 61
)

// Column offsets in a GKG 2.1 row.
const (
	colGKGID          = 0
	colGKGDate        = 1
	colDocumentID     = 4
	colV2Themes       = 8
	colV2Persons      = 12
	colV2Organization = 14
	gkgMinColumns     = 15
)

// maxLineBytes bounds a single export line. GKG rows can be large.
const maxLineBytes = 4 << 20

// ParseEvents reads a tab-separated event export. Malformed rows are
// skipped and counted; an I/O error aborts the read.
func ParseEvents(r io.Reader) (events []Event, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		ev, ok := parseEventRow(strings.Split(line, "\t"))
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return events, skipped, fmt.Errorf("gdelt: read events: %w", err)
	}
	return events, skipped, nil
}

func parseEventRow(f []string) (Event, bool) {
	if len(f) < eventColumnCount {
		return Event{}, false
	}
	date, err := time.Parse("20060102", strings.TrimSpace(f[colSQLDate]))
	if err != nil {
		return Event{}, false
	}
	tone, err := strconv.ParseFloat(strings.TrimSpace(f[colAvgTone]), 64)
	if err != nil {
		return Event{}, false
	}

	return Event{
		ID:            strings.TrimSpace(f[colEventID]),
		Date:          date,
		Country:       coalesce(f[colActionCountry], f[colActor1Country], f[colActor2Country]),
		Admin1:        coalesce(f[colActionADM1], f[colActor1ADM1], f[colActor2ADM1]),
		Lat:           coalesceFloat(f[colActionLat], f[colActor1Lat], f[colActor2Lat]),
		Lon:           coalesceFloat(f[colActionLong], f[colActor1Long], f[colActor2Long]),
		EventCode:     strings.TrimSpace(f[colEventCode]),
		EventBaseCode: strings.TrimSpace(f[colEventBaseCode]),
		EventRootCode: strings.TrimSpace(f[colEventRootCode]),
		Tone:          tone,
		URL:           strings.TrimSpace(f[colSourceURL]),
	}, true
}

// ParseKnowledge reads a tab-separated GKG export.
func ParseKnowledge(r io.Reader) (docs []Knowledge, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		k, ok := parseKnowledgeRow(strings.Split(line, "\t"))
		if !ok {
			skipped++
			continue
		}
		docs = append(docs, k)
	}
	if err := sc.Err(); err != nil {
		return docs, skipped, fmt.Errorf("gdelt: read gkg: %w", err)
	}
	return docs, skipped, nil
}

func parseKnowledgeRow(f []string) (Knowledge, bool) {
	if len(f) < gkgMinColumns {
		return Knowledge{}, false
	}
	// DATE is YYYYMMDDHHMMSS; only the day matters.
	raw := strings.TrimSpace(f[colGKGDate])
	if len(raw) < 8 {
		return Knowledge{}, false
	}
	date, err := time.Parse("20060102", raw[:8])
	if err != nil {
		return Knowledge{}, false
	}
	url := strings.TrimSpace(f[colDocumentID])
	if url == "" {
		return Knowledge{}, false
	}

	return Knowledge{
		ID:      strings.TrimSpace(f[colGKGID]),
		Date:    date,
		URL:     url,
		Themes:  SplitTags(f[colV2Themes], MaxThemes),
		Persons: SplitTags(f[colV2Persons], MaxPersons),
		Orgs:    SplitTags(f[colV2Organization], MaxOrgs),
	}, true
}

// SplitTags splits a ';'-delimited tag field, trims each entry, drops empties
// and keeps at most limit entries in their original order.
func SplitTags(field string, limit int) []string {
	if field == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(field, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
		if len(out) == limit {
			break
		}
	}
	return out
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func coalesceFloat(vals ...string) *float64 {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}
