// Package command turns user actions into daemon mutations.
//
// # Flow
//
//	UI key press
//	    ↓
//	router.Submit(command.Pause(id))   returns at once
//	    ↓ queue (64)
//	Router.Run worker                  one RPC at a time, FIFO
//	    ↓
//	Outcome on the returned channel    exactly once
//	    ↓ applied
//	Resyncer.RequestResync()           next snapshot shows the change
//
// Submit never blocks. A command that fails local validation is answered
// with a Rejected outcome before it reaches the queue, and a full queue
// answers Failed with ErrQueueFull.
//
// # Outcomes
//
//   - Applied: the daemon accepted the mutation
//   - Rejected: validation failed, or the daemon answered with a result
//     other than "success"; Reason carries the text
//   - Failed: transport or context error; Cause carries it and
//     errors.Is matches the transmission sentinels
//
// Adding a torrent the daemon already has is Rejected with
// "duplicate torrent: <name>".
//
// Every Outcome records IssuedAt, the store revision current at Submit.
// Because an applied command requests an accelerated cycle, the revision
// that reflects it is at least IssuedAt+1.
//
// # Shutdown
//
// When the context given to Run is cancelled, commands still waiting in the
// queue fail with the context error and later submissions fail immediately.
// A command already executing finishes or hits its RPC timeout.
package command
