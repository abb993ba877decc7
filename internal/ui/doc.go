// Package ui provides the torsh terminal dashboard.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program. It never talks to the daemon. Every tick
// it loads the current state.View from the store, which is a single atomic
// read, and re-renders from it. Actions are handed to a Submitter (the
// command router, behind the app reactions) and their outcomes come back as messages, so a slow or
// unreachable daemon never freezes the interface.
//
// # Package Structure
//
//   - app.go: Model, Update and View, key dispatch and the Run entry point
//   - actions.go: keys that submit commands, prompt handling, outcome text
//   - table.go: torrent table columns and the titled pane frame
//   - detail.go: selected torrent details with files and trackers
//   - header.go: connection badge, rates with sparkline, command bar, status line
//   - modal.go: text input and confirmation dialogs
//   - logs.go: daemon log overlay
//   - theme.go: color themes (Nightfox, Kanagawa, Slate)
//
// # Layout
//
// On terminals at least LayoutSideBySideWidth wide the table and detail
// panes sit side by side; otherwise the detail pane sits below the table.
// The header shows ONLINE, STALE (the last sync failed, data is from the
// time shown) or OFFLINE (repeated failures). A STALE or OFFLINE view keeps
// showing the last good snapshot.
//
// # Persistence
//
// Filter, sort, refresh interval, theme and the last download directory are
// saved through SessionStore on every change. The store debounces writes.
//
// # Key Features
//
//   - Selection follows the torrent id when the order changes
//   - A 60-sample rate history, one sample per published revision
//   - Outcomes of submitted commands in the status line, one per command
//   - Speed limits entered as "DOWN UP" in KiB/s, where - keeps a value and
//     0 removes the limit
package ui
