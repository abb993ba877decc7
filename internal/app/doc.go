// Package app is the composition root of torsh.
//
// # Overview
//
// Run resolves configuration, makes sure a Transmission daemon is reachable,
// starts the sync engine and the command router, and then hands the
// terminal to the UI. Everything it starts stops when the UI exits or the
// context is cancelled.
//
// # Startup Order
//
//  1. Resolve config from defaults, config.toml, TORSH_* variables and flags
//  2. Open the rotating log (the TUI owns the terminal)
//  3. Build the RPC client
//  4. With autostart enabled, probe, install and start the daemon as needed;
//     a failure here ends startup with the supervisor's message
//  5. Load the session file; a refresh set in config or flags wins
//  6. Create the state.Store, the sync engine and the command router
//  7. Attach the reactions and the config watcher
//  8. Run the engine and router in an errgroup and block in ui.Run
//
// Shutdown cancels the shared context, waits for the workers, and closes the
// session store last so the final preferences reach disk.
//
// # Data Flow
//
//	┌──────────────┐  snapshots   ┌─────────────┐  Load()  ┌──────┐
//	│ syncer.Engine├─────────────>│ state.Store │<─────────┤  ui  │
//	└──────┬───────┘              └─────────────┘          └──┬───┘
//	       │ events                      ^                    │ Submit()
//	       v                             │ revision           v
//	┌──────────────┐   Submit()   ┌──────┴──────┐  resync  ┌──────────┐
//	│  Reactions   ├─────────────>│   command   ├─────────>│  Engine  │
//	└──────────────┘              │   Router    │          └──────────┘
//	                              └─────────────┘
//
// UI commands reach the router through Reactions.Submit.
//
// # Reactions
//
//   - Completion: desktop notification and, when enabled, one verify per torrent
//   - Errored torrents below 100% are resumed up to behavior.max_auto_retries
//     times; the count resets once the torrent leaves the error state
//   - With behavior.auto_resume, paused torrents below 100% are started once
//     per pause, except those paused from the UI; UI commands pass through
//     Reactions.Submit so it knows which ones those are
//   - Three refused connections in a row restart the daemon in the background,
//     one restart at a time, when both autostart and restart_on_fail are on
//   - Going offline and coming back are logged and shown in the status line
//
// Config reloads re-apply the log level and the behavior toggles.
package app
