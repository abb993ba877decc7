// Package logtail reads the end of a log file.
//
// torsh uses it for transmission-daemon's own output: when the daemon exits
// right after being started, the last lines of daemon.log go into the error
// shown to the user, and the UI's log overlay shows the same file.
//
// Read seeks backwards from the end in fixed-size chunks until it has seen
// enough line breaks, so memory use depends on the lines requested, not on
// the size of the file. Lines come back oldest first with trailing carriage
// returns removed. A missing file is not an error; it simply has no lines.
//
//	lines, err := logtail.Read(cfg.Daemon.LogPath(), 200)
package logtail
