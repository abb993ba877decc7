// Package config resolves torsh's configuration.
//
// # Overview
//
// Settings come from four layers, lowest precedence first:
//
//  1. Built-in defaults set in code
//  2. The TOML file (~/.config/torsh/config.toml, or --config)
//  3. TORSH_* environment variables, plus an optional .env file next to the
//     config file that never overrides variables already set
//  4. Command-line flags that the user actually passed
//
// A single viper instance holds all layers and Unmarshal decodes them into
// Config through mapstructure tags.
//
// # Tolerance
//
// A missing file means defaults. A file that fails to parse also means
// defaults; Load still succeeds and FileError returns the parse error so the
// caller can log a warning. Values out of range are clamped rather than
// rejected: the port falls back to 9091, the RPC timeout is at least one
// second and the refresh interval stays within [0.5s, 30s].
//
// # Environment
//
// Each variable is bound explicitly, so only these names are honored:
//
//	TORSH_HOST, TORSH_PORT, TORSH_USER, TORSH_PASSWORD, TORSH_TIMEOUT,
//	TORSH_DOWNLOAD_DIR, TORSH_AUTOSTART, TORSH_INSTALL_MISSING,
//	TORSH_RESTART_ON_FAIL, TORSH_DAEMON_CONFIG_DIR, TORSH_DAEMON_ARGS,
//	TORSH_LOG_LEVEL, TORSH_LOG_FILE, TORSH_REFRESH
//
// Boolean variables accept yes/no and on/off in addition to the usual forms.
//
// # Hot Reload
//
// Watch registers a listener and starts viper's fsnotify watcher on the
// config file. Listeners receive the full re-resolved Config; torsh re-applies
// only the log level and the behavior toggles from it.
//
// # Default File
//
// WriteDefault renders a commented template with the built-in values and
// checks that the result parses as TOML before writing it. It refuses to
// replace an existing file unless asked to.
//
// # Path Expansion
//
// Paths beginning with ~ are expanded to the home directory and made
// absolute. XDG_CONFIG_HOME and XDG_CACHE_HOME move the config and log
// directories when set.
package config
