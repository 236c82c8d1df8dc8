// Package ui provides the Bubble Tea mood map browser.
package ui

import (
	"github.com/abelbrown/moodmap/internal/analog"
	"github.com/abelbrown/moodmap/internal/mood"
)

// MapLoaded is sent when the latest mood map has been read.
type MapLoaded struct {
	Entries []mood.Entry
	Err     error
}

// DetailLoaded is sent when one country's analogs are ready.
type DetailLoaded struct {
	Country string
	Analogs analog.Daily
	Err     error
}
