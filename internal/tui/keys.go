package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Select    key.Binding
	Browse    key.Binding
	Cancel    key.Binding
	Analyze   key.Binding
	Quit      key.Binding
	Interrupt key.Binding
}

var keys = keyMap{
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select image"),
	),
	Browse: key.NewBinding(
		key.WithKeys("o", "/"),
		key.WithHelp("o", "choose image"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "keep current image"),
	),
	Analyze: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "analyze scan"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	// Interrupt quits while typing a path, where q is just a letter.
	Interrupt: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}
