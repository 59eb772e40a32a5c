package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the board.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	NextOrder key.Binding
	PrevOrder key.Binding
	Mark      key.Binding
	Refire    key.Binding
	Refresh   key.Binding
	Reconnect key.Binding
	Log       key.Binding
	Escape    key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev item"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next item"),
		),
		NextOrder: key.NewBinding(
			key.WithKeys("tab", "J"),
			key.WithHelp("tab", "next order"),
		),
		PrevOrder: key.NewBinding(
			key.WithKeys("shift+tab", "K"),
			key.WithHelp("shift+tab", "prev order"),
		),
		Mark: key.NewBinding(
			key.WithKeys(" ", "space", "enter"),
			key.WithHelp("space", "mark done"),
		),
		Refire: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "refire order"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "connect/disconnect"),
		),
		Log: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "event log"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
