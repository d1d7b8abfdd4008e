package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the control panel.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Escape     key.Binding

	// Transport
	PlayPause    key.Binding
	Next         key.Binding
	Previous     key.Binding
	SeekBack     key.Binding
	SeekForward  key.Binding
	VolumeUp     key.Binding
	VolumeDown   key.Binding
	Shuffle      key.Binding
	Repeat       key.Binding
	CycleDevice  key.Binding
	Connect      key.Binding
	Logout       key.Binding
	GlobalHotkey key.Binding

	// Overlay
	EditOverlay key.Binding
	OpacityDown key.Binding
	OpacityUp   key.Binding

	// Views
	Search  key.Binding
	Logs    key.Binding
	Confirm key.Binding

	// Navigation
	Up           key.Binding
	Down         key.Binding
	Top          key.Binding
	Bottom       key.Binding
	HalfPageUp   key.Binding
	HalfPageDown key.Binding

	// Logs
	ToggleFollow key.Binding
	CycleLevel   key.Binding
	NextMatch    key.Binding
	PrevMatch    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back"),
		),

		PlayPause: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "Play/pause"),
		),
		Next: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Next track"),
		),
		Previous: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Previous track"),
		),
		SeekBack: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "Seek -5s"),
		),
		SeekForward: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "Seek +5s"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "Volume up"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "Volume down"),
		),
		Shuffle: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Toggle shuffle"),
		),
		Repeat: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Cycle repeat"),
		),
		CycleDevice: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Next device"),
		),
		Connect: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Connect"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Log out"),
		),
		GlobalHotkey: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "Toggle global hotkeys"),
		),

		EditOverlay: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "Edit overlay layout"),
		),
		OpacityDown: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "Overlay opacity -5"),
		),
		OpacityUp: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "Overlay opacity +5"),
		),

		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Search"),
		),
		Logs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Logs"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Queue or play"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("home"),
			key.WithHelp("home", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		HalfPageUp: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("ctrl+u", "Half page up"),
		),
		HalfPageDown: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "Half page down"),
		),

		ToggleFollow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Toggle follow mode"),
		),
		CycleLevel: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "Cycle minimum level"),
		),
		NextMatch: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Next match"),
		),
		PrevMatch: key.NewBinding(
			key.WithKeys("N"),
			key.WithHelp("N", "Previous match"),
		),
	}
}

// ShortHelp returns key bindings for the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PlayPause, k.Next, k.Search, k.EditOverlay, k.Help, k.Quit}
}

// FullHelp returns key bindings for the help modal, one group per column.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PlayPause, k.Next, k.Previous, k.SeekBack, k.SeekForward, k.VolumeUp, k.VolumeDown, k.Shuffle, k.Repeat, k.CycleDevice},
		{k.Search, k.Confirm, k.Logs, k.EditOverlay, k.OpacityDown, k.OpacityUp},
		{k.Connect, k.Logout, k.GlobalHotkey, k.CycleTheme, k.Help, k.Quit},
	}
}
