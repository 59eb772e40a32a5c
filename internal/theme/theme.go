// Package theme provides the Lip Gloss palette and reusable styles for the
// kitchen board. It is a leaf package with no internal imports besides the
// wire types to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/loclhse/toolbanhangUIUX/internal/pos"
)

// Order status colors.
var (
	ColorPending    = lipgloss.Color("#d97706")
	ColorInProgress = lipgloss.Color("#2563eb")
	ColorServed     = lipgloss.Color("#06b6d4")
	ColorCompleted  = lipgloss.Color("#16a34a")
	ColorCancelled  = lipgloss.Color("#4b5563")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// Item mark colors.
var (
	ColorMarked   = lipgloss.Color("#22c55e")
	ColorUnmarked = lipgloss.Color("#f9fafb")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorInfo    = lipgloss.Color("#7c3aed")
)

// StatusColor returns the color for an order status.
func StatusColor(s pos.OrderStatus) lipgloss.Color {
	switch pos.OrderStatus(strings.ToUpper(string(s))) {
	case pos.OrderPending:
		return ColorPending
	case pos.OrderInProgress:
		return ColorInProgress
	case pos.OrderServed:
		return ColorServed
	case pos.OrderCompleted, pos.OrderPaid:
		return ColorCompleted
	case pos.OrderCancelled:
		return ColorCancelled
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph for an order status.
func StatusGlyph(s pos.OrderStatus) string {
	switch pos.OrderStatus(strings.ToUpper(string(s))) {
	case pos.OrderPending:
		return "◌"
	case pos.OrderInProgress:
		return "●>"
	case pos.OrderServed:
		return "◎"
	case pos.OrderCompleted, pos.OrderPaid:
		return "✓"
	case pos.OrderCancelled:
		return "✗"
	default:
		return "·"
	}
}

// MarkBox renders the checkbox for an order item.
func MarkBox(marked bool) string {
	if marked {
		return lipgloss.NewStyle().Foreground(ColorMarked).Render("[x]")
	}
	return lipgloss.NewStyle().Foreground(ColorUnmarked).Render("[ ]")
}

// Reusable styles.
var (
	StyleBorder   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(ColorBorder)
	StyleHeader   = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	StyleDimmed   = lipgloss.NewStyle().Foreground(ColorDimmed)
	StyleSelected = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	StyleDone     = lipgloss.NewStyle().Strikethrough(true).Foreground(ColorDimmed)
)
