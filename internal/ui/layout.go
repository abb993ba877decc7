package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which secondary table
	// columns and header widgets are hidden.
	LayoutCompactWidth = 100

	// LayoutWideWidth is the minimum width for the added-at column.
	LayoutWideWidth = 140

	// LayoutSideBySideWidth places the detail pane beside the table
	// instead of below it.
	LayoutSideBySideWidth = 180
)

// Chrome rows: header, command bar and status line.
const chromeHeight = 3

const (
	// DefaultTick is how often the UI reloads the published view.
	DefaultTick = 250 * time.Millisecond

	// LogTailLines is how many daemon log lines the log overlay shows.
	LogTailLines = 500

	// statusTTL is how long a status line message stays visible.
	statusTTL = 8 * time.Second

	// refreshStep is the change applied by the refresh interval keys.
	refreshStep = 500 * time.Millisecond

	// sparkWidth is the number of samples drawn in the header.
	sparkWidth = 24
)
