package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	Escape     key.Binding
	Logs       key.Binding
	Resync     key.Binding
	Faster     key.Binding
	Slower     key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Torrent actions
	Toggle      key.Binding
	StartNow    key.Binding
	Delete      key.Binding
	DeleteData  key.Binding
	Add         key.Binding
	Move        key.Binding
	Verify      key.Binding
	Limit       key.Binding
	GlobalLimit key.Binding

	// Files
	PrevFile      key.Binding
	NextFile      key.Binding
	CyclePriority key.Binding

	// Filter and sort
	Filter         key.Binding
	StatusFilter   key.Binding
	ProgressFilter key.Binding
	Sort           key.Binding
	SortDirection  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h", "help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "focus pane"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
		Logs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "daemon log"),
		),
		Resync: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resync now"),
		),
		Faster: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "refresh faster"),
		),
		Slower: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "refresh slower"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "bottom"),
		),

		Toggle: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p", "pause/resume"),
		),
		StartNow: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "start now"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		DeleteData: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "delete with data"),
		),
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		Move: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "move"),
		),
		Verify: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "verify"),
		),
		Limit: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "torrent limit"),
		),
		GlobalLimit: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "global limit"),
		),

		PrevFile: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "previous file"),
		),
		NextFile: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next file"),
		),
		CyclePriority: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "file priority"),
		),

		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		StatusFilter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "status filter"),
		),
		ProgressFilter: key.NewBinding(
			key.WithKeys("F"),
			key.WithHelp("F", "progress filter"),
		),
		Sort: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "sort key"),
		),
		SortDirection: key.NewBinding(
			key.WithKeys("O"),
			key.WithHelp("O", "sort direction"),
		),
	}
}

// ShortHelp returns key bindings for the command bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Add, k.Delete, k.Filter, k.Sort, k.Help, k.Quit}
}

// FullHelp returns key bindings for the help overlay, one column per group.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom, k.Tab, k.Escape},
		{k.Toggle, k.StartNow, k.Delete, k.DeleteData, k.Add, k.Move, k.Verify},
		{k.Limit, k.GlobalLimit, k.PrevFile, k.NextFile, k.CyclePriority},
		{k.Filter, k.StatusFilter, k.ProgressFilter, k.Sort, k.SortDirection},
		{k.Faster, k.Slower, k.Resync, k.Logs, k.CycleTheme, k.Help, k.Quit},
	}
}
