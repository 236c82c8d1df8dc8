// Package report renders the mood map for terminals.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/moodmap/internal/entities"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/mood"
)

// Band is one colour band of the -1..1 mood scale.
type Band struct {
	Name  string
	Upper float64 // scores below Upper (and at or above the previous band's) fall here
	Color lipgloss.Color
}

// Bands runs from very negative to very positive. Scores outside -1..1,
// which the blend does not clamp, land in the end bands.
var Bands = []Band{
	{Name: "very negative", Upper: -0.6, Color: lipgloss.Color("160")},
	{Name: "negative", Upper: -0.2, Color: lipgloss.Color("209")},
	{Name: "neutral", Upper: 0.2, Color: lipgloss.Color("250")},
	{Name: "positive", Upper: 0.6, Color: lipgloss.Color("113")},
	{Name: "very positive", Upper: 2, Color: lipgloss.Color("34")},
}

// BandOf returns the band for score.
func BandOf(score float64) Band {
	for _, b := range Bands {
		if score < b.Upper {
			return b
		}
	}
	return Bands[len(Bands)-1]
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1)

	countryStyle = lipgloss.NewStyle().
			Bold(true).
			Width(4)

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	themeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Badge renders score in its band colour.
func Badge(score float64) string {
	b := BandOf(score)
	return lipgloss.NewStyle().Foreground(b.Color).Bold(true).Width(8).Render(fmt.Sprintf("%+.4f", score))
}

// Render formats entries as one line per country plus its top themes.
// width wraps summaries; zero disables wrapping.
func Render(entries []mood.Entry, width int) string {
	if len(entries) == 0 {
		return "No mood map yet. Run `moodmap run` first.\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Mood map %s (%d countries)",
		entries[0].EventDate.Format(gdelt.DateLayout), len(entries))))
	b.WriteString("\n")

	sum := summaryStyle
	if width > 14 {
		sum = sum.Width(width - 14)
	}
	for _, e := range entries {
		summary := e.Summary
		if summary == "" {
			summary = "(no summary)"
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			countryStyle.Render(e.Country), Badge(e.Score), " ", sum.Render(summary))
		b.WriteString(line)
		b.WriteString("\n")
		if themes := ThemeLine(e.TopThemes, 5); themes != "" {
			b.WriteString(strings.Repeat(" ", 13))
			b.WriteString(themeStyle.Render(themes))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(Legend())
	b.WriteString("\n")
	return b.String()
}

// ThemeLine joins the first n theme labels.
func ThemeLine(themes []entities.Count, n int) string {
	if len(themes) > n {
		themes = themes[:n]
	}
	labels := make([]string, len(themes))
	for i, t := range themes {
		labels[i] = t.Label
	}
	return strings.Join(labels, " · ")
}

// Legend lists the bands in their colours.
func Legend() string {
	parts := make([]string, len(Bands))
	for i, b := range Bands {
		parts[i] = lipgloss.NewStyle().Foreground(b.Color).Render("■ " + b.Name)
	}
	return strings.Join(parts, "  ")
}
