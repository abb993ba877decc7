// Package daemon makes sure a Transmission daemon answers RPC before the
// dashboard starts.
//
// # Startup Sequence
//
// EnsureAvailable walks these steps and stops at the first that settles the
// outcome:
//
//  1. Handshake with session-get. Success means Ready.
//  2. An auth rejection ends immediately with KindAuthFailed; starting
//     another daemon would not fix credentials.
//  3. If a transmission-daemon process already exists (pgrep -x), skip to
//     polling; it is probably still binding its RPC port.
//  4. If the binary is missing, install it when allowed (apt-get, apt, brew,
//     dnf, yum, pacman, zypper, in that order, with sudo unless root or
//     brew), otherwise fail with KindNotInstalled.
//  5. Start the daemon detached: its own session, output appended to
//     <config-dir>/daemon.log. If it exits within 300ms the error carries
//     the exit code and the end of that log.
//  6. Poll the handshake with exponential backoff (250ms doubling to 2s),
//     never sleeping past the deadline. When time runs out the error is
//     KindTimedOut and carries the last RPC failure.
//
// # External Actions
//
// The four side effects are interfaces so tests can replace them:
//
//	Prober         RPCProber      session-get through the transport
//	ProcessFinder  PgrepFinder    pgrep -x transmission-daemon
//	Installer      PackageInstaller
//	Starter        ExecStarter
//
// # Lifetime
//
// The supervisor never stops the daemon. Torrents keep transferring after
// torsh exits, and the next torsh run simply finds the daemon reachable.
package daemon
