package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/loclhse/toolbanhangUIUX/internal/realtime"
	"github.com/loclhse/toolbanhangUIUX/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	State     realtime.State
	Attempt   int
	NextDelay time.Duration
	Offline   bool

	Orders int
	Items  int
	Marked int

	LastFetch time.Time
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// SetCounts updates the board counts.
func (m *Model) SetCounts(orders, items, marked int) {
	m.Orders = orders
	m.Items = items
	m.Marked = marked
}

// Connected reports whether the feed is live.
func (m Model) Connected() bool {
	switch m.State {
	case realtime.StateConnected, realtime.StateSubscribing, realtime.StateReady:
		return true
	}
	return false
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch {
	case m.Offline:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Offline")
	case m.State == realtime.StateReady:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Live")
	case m.Connected():
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◎ " + m.State.String())
	case m.State == realtime.StateConnecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ Connecting...")
	case m.Attempt > 0:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(
			fmt.Sprintf("○ Retry %d, next in %s", m.Attempt, m.NextDelay))
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDimmed).Render("○ Disconnected")
	}

	counts := fmt.Sprintf("%d orders  %d/%d items done", m.Orders, m.Marked, m.Items)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts
	if !m.LastFetch.IsZero() {
		content += sep + theme.StyleDimmed.Render("synced "+m.LastFetch.Format("15:04:05"))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
