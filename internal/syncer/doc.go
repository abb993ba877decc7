// Package syncer keeps the published snapshot in step with the daemon.
//
// # Cycle
//
// Each cycle fetches three things concurrently through an errgroup:
// torrent-get with the full field set, session-stats and session-get. Free
// space for the daemon's download directory comes next, from free-space when
// the daemon is new enough, from a local statfs when the daemon runs on this
// host, and is otherwise reported as -1.
//
// The records are sorted by id and handed to state.Store.Publish, which
// assigns the next revision. A failed fetch calls Store.MarkFailed instead;
// the previous snapshot stays current and is marked stale.
//
// # Delta Listings
//
// Listing every torrent with files and trackers is the expensive part of a
// cycle, so most cycles ask only for recently-active torrents and merge them
// into the previous records, dropping ids the daemon reports as removed. A
// full listing runs:
//
//   - on the first cycle
//   - on the cycle after a failure
//   - on every accelerated cycle
//   - every FullEvery cycles (default 10)
//
// # Accelerated Resync
//
// RequestResync does a non-blocking send on a channel with room for one
// signal. Any number of requests made while a cycle is running collapse into
// one extra cycle that starts as soon as the current one ends. A cycle in
// flight is never interrupted.
//
// # Completion Events
//
// After publishing, the engine compares the new snapshot with the previous
// one. A torrent that was present and incomplete before and is complete now
// produces one CompletionEvent. Complete means progress of at least 0.9999
// and not checking. Torrents that are complete in the very first snapshot do
// not fire, and a torrent that stays complete never fires again.
//
// Completion handlers run on their own goroutines. OnPublish and OnFailure
// hooks run on the sync goroutine and must return quickly.
//
// # Shutdown
//
// Run returns when its context is cancelled. No RPC starts after that, and a
// cycle cut short by cancellation is not recorded as a failure.
package syncer
