package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Prev    key.Binding
	Next    key.Binding
	Rotate  key.Binding
	Apply   key.Binding
	Keep    key.Binding
	Revert  key.Binding
	Load    key.Binding
	Stage   key.Binding
	New     key.Binding
	Delete  key.Binding
	Tab     key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Prev:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev mode")),
		Next:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next mode")),
		Rotate:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "rotate")),
		Apply:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply")),
		Keep:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "keep")),
		Revert:  key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n/esc", "revert")),
		Load:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "switch")),
		Stage:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stage only")),
		New:     key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save staged")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Tab:     key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch tab")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// bindingSet adapts a flat list of bindings to help.KeyMap.
type bindingSet []key.Binding

func (b bindingSet) ShortHelp() []key.Binding  { return b }
func (b bindingSet) FullHelp() [][]key.Binding { return [][]key.Binding{b} }

// helpFor returns the bindings that do something in the current context.
func (k keyMap) helpFor(tab Tab, armed bool) bindingSet {
	if armed {
		return bindingSet{k.Keep, k.Revert, k.Quit}
	}
	switch tab {
	case TabProfiles:
		return bindingSet{k.Up, k.Down, k.Load, k.Stage, k.New, k.Delete, k.Tab, k.Quit}
	default:
		return bindingSet{k.Up, k.Down, k.Prev, k.Next, k.Rotate, k.Apply, k.Refresh, k.Tab, k.Quit}
	}
}
