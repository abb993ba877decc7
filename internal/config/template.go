package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ErrConfigExists is returned by WriteDefault when the file is present and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

const defaultConfigTemplate = `# torsh configuration
#
# Values here override built-in defaults. TORSH_* environment variables
# override this file, and command-line flags override everything.

[rpc]
host = "{{ .RPC.Host }}"
port = {{ .RPC.Port }}
path = "{{ .RPC.Path }}"
# username = ""
# password = ""
tls = false
# Per-request timeout in seconds.
timeout = {{ printf "%.1f" .RPC.Timeout }}

[daemon]
# Start transmission-daemon when it is not reachable.
autostart = {{ .Daemon.Autostart }}
# Install transmission-daemon with the system package manager if missing.
install_missing = {{ .Daemon.InstallMissing }}
# Try to start the daemon again after repeated connection failures.
restart_on_fail = {{ .Daemon.RestartOnFail }}
binary = "{{ .Daemon.Binary }}"
config_dir = "{{ .Daemon.ConfigDir }}"
# Extra arguments, split like a shell would.
extra_args = ""
start_timeout = {{ printf "%.1f" .Daemon.StartTimeout }}

[paths]
download_dir = "{{ .Paths.DownloadDir }}"
session_file = "{{ .Paths.SessionFile }}"

[behavior]
auto_verify_on_complete = {{ .Behavior.AutoVerifyOnComplete }}
auto_retry_errors = {{ .Behavior.AutoRetryErrors }}
max_auto_retries = {{ .Behavior.MaxAutoRetries }}
# Start paused incomplete torrents that were not paused from torsh.
auto_resume = {{ .Behavior.AutoResume }}
notifications = {{ .Behavior.Notifications }}

[sync]
# Refresh interval in seconds (0.5 to 30). 0 keeps the value from the session file.
refresh = {{ printf "%.1f" .Sync.Refresh }}
# Every Nth cycle lists all torrents instead of only recently active ones.
full_every = {{ .Sync.FullEvery }}

[log]
# trace, debug, info, warn, error
level = "{{ .Log.Level }}"
# Use "-" to log to stderr.
file = "{{ .Log.File }}"
max_size_mb = {{ .Log.MaxSizeMB }}
max_backups = {{ .Log.MaxBackups }}
max_age_days = {{ .Log.MaxAgeDays }}
compress = {{ .Log.Compress }}
`

// Defaults returns the built-in configuration with paths expanded and no
// file or environment applied.
func Defaults() (Config, error) {
	v := viper.New()
	setDefaults(v)
	m := &Manager{v: v}
	return m.decode()
}

// RenderDefault returns the commented default config file.
func RenderDefault(cfg Config) ([]byte, error) {
	tmpl, err := template.New("config").Parse(defaultConfigTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}

	// The rendered file must round-trip, otherwise Load would ignore it.
	var check map[string]any
	if err := toml.Unmarshal(buf.Bytes(), &check); err != nil {
		return nil, fmt.Errorf("rendered config is not valid TOML: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the commented default config to path.
func WriteDefault(path string, overwrite bool) (string, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return "", err
	}
	if fileExists(resolved) && !overwrite {
		return resolved, fmt.Errorf("%s: %w", resolved, ErrConfigExists)
	}

	cfg, err := Defaults()
	if err != nil {
		return "", err
	}
	data, err := RenderDefault(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return resolved, nil
}
