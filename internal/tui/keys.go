package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the monitor
type KeyMap struct {
	Period      key.Binding
	Search      key.Binding
	Retry       key.Binding
	Refresh     key.Binding
	DataChanged key.Binding
	Find        key.Binding
	Help        key.Binding
	Escape      key.Binding
	Enter       key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Period: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "next period"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "retry"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "reload"),
		),
		DataChanged: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "data changed"),
		),
		Find: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "find"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "apply"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Period, k.Search, k.Find, k.Retry, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Period, k.Search, k.Find},
		{k.Retry, k.Refresh, k.DataChanged},
		{k.Help, k.Escape, k.Quit},
	}
}

// Keys is the global key bindings instance
var Keys = DefaultKeyMap()
