// Package state holds the published view of the Transmission daemon.
//
// # Overview
//
// The sync engine builds a fresh Snapshot on every successful cycle and hands
// it to the Store. The UI, the command router and the application reactions
// read the current View at any time without blocking the engine.
//
// # Architecture
//
//	Writer (sync engine):           Readers (UI, router, reactions):
//	┌──────────────────────┐       ┌──────────────────────┐
//	│ torrent-get, stats   │       │                      │
//	│        ↓             │       │                      │
//	│ store.Publish(draft) │──────→│ store.Load()         │
//	│ store.MarkFailed(err)│ swap  │ store.Wait(ctx, rev) │
//	└──────────────────────┘       └──────────────────────┘
//
// The Store keeps a single atomic.Pointer[View]. Publishing builds the new
// View completely and then swaps the pointer, so a reader holds either the
// old value or the new one, never a mix. Writers are serialized by a mutex;
// readers take no lock at all.
//
// # Core Types
//
// Snapshot:
//   - Torrents ordered by id, global Stats and daemon SessionInfo
//   - Revision assigned by the Store, strictly increasing
//   - Digest, an xxhash64 of the content excluding revision and time
//
// Health:
//   - StaleSince: first failure since the last successful cycle
//   - LastError and ConsecutiveFailures for the header
//
// View:
//   - The pair (Snapshot, Health) that readers load in one step
//
// # Update Semantics
//
//	// Success: new snapshot, health reset
//	store.Publish(draft)
//	→ view.Snapshot = &draft (revision = previous + 1)
//	→ view.Health   = {}
//
//	// Failure: snapshot kept, health records the error
//	store.MarkFailed(err, now)
//	→ view.Snapshot = <unchanged pointer>
//	→ view.Health.StaleSince = first failure time
//	→ view.Health.LastError  = err
//
// A failed cycle never changes which snapshot is current, so a given
// revision always names the same content.
//
// # Immutability
//
// Nothing in a published Snapshot is modified afterwards. Records are
// replaced wholesale by the next snapshot; unchanged records may share
// backing arrays with their predecessors, which is safe because neither side
// writes to them.
//
// # Waiting for Revisions
//
// Wait blocks until a revision newer than the one given is published. The
// command router uses it in tests to check that an applied command shows up
// in the following snapshots; the UI polls Load on its own tick instead.
//
// # Testing Considerations
//
// The zero Store is ready to use:
//
//	store := &state.Store{}
//	store.Load().Snapshot == nil // until the first Publish
package state
