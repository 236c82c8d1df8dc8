package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/moodmap/internal/analog"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/mood"
	"github.com/abelbrown/moodmap/internal/report"
)

// listWidth is the width of the country column.
const listWidth = 22

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	PageDown key.Binding
	PageUp   key.Binding
	Reload   key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("k", "up")),
	Down:     key.NewBinding(key.WithKeys("j", "down")),
	Top:      key.NewBinding(key.WithKeys("g", "home")),
	Bottom:   key.NewBinding(key.WithKeys("G", "end")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", " ")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "b")),
	Reload:   key.NewBinding(key.WithKeys("r")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// App is the root Bubble Tea model.
// App does NOT hold *store.Store. It receives data via messages.
type App struct {
	loadMap    func() tea.Cmd
	loadDetail func(country string, date time.Time) tea.Cmd

	entries []mood.Entry
	cursor  int
	detail  DetailLoaded
	pane    viewport.Model
	err     error
	width   int
	height  int
	ready   bool
	loading bool
}

// NewApp creates an App.
// loadMap: returns a Cmd that reads the latest mood map
// loadDetail: returns a Cmd that reads one country's briefing and analogs
func NewApp(loadMap func() tea.Cmd, loadDetail func(country string, date time.Time) tea.Cmd) App {
	return App{
		loadMap:    loadMap,
		loadDetail: loadDetail,
		pane:       viewport.New(0, 0),
	}
}

// Init loads the mood map.
func (a App) Init() tea.Cmd {
	if a.loadMap == nil {
		return nil
	}
	return a.loadMap()
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.pane.Width = max(a.width-listWidth-3, 10)
		a.pane.Height = max(a.height-1, 1)
		a.pane.SetContent(a.renderDetail())
		return a, nil

	case MapLoaded:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.entries = msg.Entries
		a.err = nil
		if a.cursor >= len(a.entries) {
			a.cursor = max(len(a.entries)-1, 0)
		}
		return a, a.requestDetail()

	case DetailLoaded:
		if e, ok := a.Selected(); !ok || e.Country != msg.Country {
			return a, nil // stale
		}
		if msg.Err != nil {
			a.err = msg.Err
		}
		a.detail = msg
		a.pane.SetContent(a.renderDetail())
		a.pane.GotoTop()
		return a, nil
	}

	return a, nil
}

func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.err = nil
	prev := a.cursor

	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit
	case key.Matches(msg, keys.Down):
		if a.cursor < len(a.entries)-1 {
			a.cursor++
		}
	case key.Matches(msg, keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(msg, keys.Top):
		a.cursor = 0
	case key.Matches(msg, keys.Bottom):
		if len(a.entries) > 0 {
			a.cursor = len(a.entries) - 1
		}
	case key.Matches(msg, keys.PageDown), key.Matches(msg, keys.PageUp):
		var cmd tea.Cmd
		a.pane, cmd = a.pane.Update(msg)
		return a, cmd
	case key.Matches(msg, keys.Reload):
		if a.loadMap != nil {
			a.loading = true
			return a, a.loadMap()
		}
		return a, nil
	}

	if a.cursor != prev {
		a.detail = DetailLoaded{}
		a.pane.SetContent(a.renderDetail())
		return a, a.requestDetail()
	}
	return a, nil
}

func (a App) requestDetail() tea.Cmd {
	e, ok := a.Selected()
	if !ok || a.loadDetail == nil {
		return nil
	}
	return a.loadDetail(e.Country, e.EventDate)
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if len(a.entries) == 0 && a.err == nil {
		return "No mood map yet. Run `moodmap run` first. (q to quit)"
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, a.renderList(), DetailPane.Render(a.pane.View()))

	var status string
	if a.err != nil {
		status = ErrorStyle.Width(a.width).Render("Error: " + a.err.Error())
	} else {
		status = StatusBar.Width(a.width).Render(a.statusText())
	}
	return body + "\n" + status
}

func (a App) renderList() string {
	rows := max(a.height-1, 1)
	start := 0
	if a.cursor >= rows {
		start = a.cursor - rows + 1
	}

	var b strings.Builder
	for i := start; i < len(a.entries) && i < start+rows; i++ {
		e := a.entries[i]
		line := fmt.Sprintf("%-3s %+.4f", e.Country, e.Score)
		if i == a.cursor {
			b.WriteString(SelectedItem.Width(listWidth).Render(line))
		} else {
			b.WriteString(NormalItem.Width(listWidth).Foreground(report.BandOf(e.Score).Color).Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a App) renderDetail() string {
	e, ok := a.Selected()
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s\n", e.Country, e.EventDate.Format(gdelt.DateLayout), report.Badge(e.Score))
	b.WriteString(MutedText.Render(report.BandOf(e.Score).Name))
	b.WriteString("\n")

	if e.Summary != "" {
		b.WriteString(SectionHeader.Render("Summary"))
		b.WriteString("\n" + e.Summary + "\n")
	}
	if themes := report.ThemeLine(e.TopThemes, 10); themes != "" {
		b.WriteString(SectionHeader.Render("Top themes"))
		b.WriteString("\n" + themes + "\n")
	}

	b.WriteString(SectionHeader.Render("Briefing"))
	b.WriteString("\n" + e.Briefing + "\n")

	b.WriteString(SectionHeader.Render("Historical analogs"))
	b.WriteString("\n")
	switch {
	case a.detail.Country != e.Country:
		b.WriteString(MutedText.Render("loading..."))
	case len(a.detail.Analogs.Analogs) == 0:
		b.WriteString(analog.None)
	default:
		for _, an := range a.detail.Analogs.Analogs {
			fmt.Fprintf(&b, "%s  d=%.4f\n", an.PastDate.Format(gdelt.DateLayout), an.Distance)
			b.WriteString(MutedText.Render(an.Snippet))
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().Width(max(a.pane.Width, 10)).Render(b.String())
}

func (a App) statusText() string {
	if a.loading {
		return "loading..."
	}
	return fmt.Sprintf("%d/%d  j/k move  space/b scroll  r reload  q quit", a.cursor+1, len(a.entries))
}

// Selected returns the highlighted entry.
func (a App) Selected() (mood.Entry, bool) {
	if a.cursor < 0 || a.cursor >= len(a.entries) {
		return mood.Entry{}, false
	}
	return a.entries[a.cursor], true
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}
