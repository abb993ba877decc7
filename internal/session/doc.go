// Package session keeps the dashboard state that survives restarts: the
// filter, the sort order, the refresh interval, the last download directory
// and the theme.
//
// The state lives in ~/.config/torsh/session.toml. A missing or corrupt file
// is never an error for the caller; Load returns defaults and the failure is
// available from LastError. Saves are debounced so a burst of key presses
// produces one write, and every write goes through a temp file and a rename
// so a crash never leaves a truncated file behind.
//
//	st := store.Load()
//	st.Filter.Status = st.Filter.Status.Next()
//	store.Save(st)      // written 500ms after the last change
//	defer store.Close() // flushes anything pending
//
// State.Apply evaluates the filter and sort against a snapshot's records
// without touching the snapshot.
package session
