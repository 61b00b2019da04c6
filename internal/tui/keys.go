package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the attendance TUI.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	Select    key.Binding // List: open the capture screen or start attendance.
	Back      key.Binding // Leave the capture flow or a prompt.
	NextField key.Binding
	PrevField key.Binding

	RegisterFace key.Binding
	Retry        key.Binding
	Refresh      key.Binding
	EndSession   key.Binding
	Logout       key.Binding

	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "back"),
	),
	NextField: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("Tab", "next field"),
	),
	PrevField: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("S-Tab", "previous field"),
	),
	RegisterFace: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "register face"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r", "ctrl+r"),
		key.WithHelp("r", "refresh"),
	),
	EndSession: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "end attendance"),
	),
	Logout: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "log out"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}
