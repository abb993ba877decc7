package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "TORSH_"

	defaultHost       = "127.0.0.1"
	defaultPort       = 9091
	defaultRPCPath    = "/transmission/rpc"
	defaultTimeout    = 10.0
	minTimeout        = 1.0
	defaultBinary     = "transmission-daemon"
	defaultDaemonDir  = "~/.config/transmission-daemon"
	defaultStartWait  = 15.0
	defaultDownload   = "~/Downloads/torrents"
	defaultFullEvery  = 10
	defaultMaxRetries = 3

	// MinRefresh and MaxRefresh bound the sync interval in seconds.
	MinRefresh = 0.5
	MaxRefresh = 30.0
)

// Config is the resolved application configuration.
type Config struct {
	RPC      RPCConfig      `mapstructure:"rpc"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Behavior BehaviorConfig `mapstructure:"behavior"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
}

// RPCConfig locates the daemon's control endpoint.
type RPCConfig struct {
	Host     string  `mapstructure:"host"`
	Port     int     `mapstructure:"port"`
	Path     string  `mapstructure:"path"`
	User     string  `mapstructure:"username"`
	Password string  `mapstructure:"password"`
	TLS      bool    `mapstructure:"tls"`
	Timeout  float64 `mapstructure:"timeout"` // seconds
}

// TimeoutDuration returns the per-request timeout.
func (c RPCConfig) TimeoutDuration() time.Duration {
	return seconds(c.Timeout)
}

// DaemonConfig controls the supervisor.
type DaemonConfig struct {
	Autostart      bool    `mapstructure:"autostart"`
	InstallMissing bool    `mapstructure:"install_missing"`
	RestartOnFail  bool    `mapstructure:"restart_on_fail"`
	Binary         string  `mapstructure:"binary"`
	ConfigDir      string  `mapstructure:"config_dir"`
	ExtraArgs      string  `mapstructure:"extra_args"`
	StartTimeout   float64 `mapstructure:"start_timeout"` // seconds
}

// StartTimeoutDuration returns how long startup may wait for the daemon.
func (c DaemonConfig) StartTimeoutDuration() time.Duration {
	return seconds(c.StartTimeout)
}

// LogPath is where the detached daemon's output goes.
func (c DaemonConfig) LogPath() string {
	return filepath.Join(c.ConfigDir, "daemon.log")
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	DownloadDir string `mapstructure:"download_dir"`
	SessionFile string `mapstructure:"session_file"`
}

// BehaviorConfig holds the toggles that hot reload re-applies.
type BehaviorConfig struct {
	AutoVerifyOnComplete bool `mapstructure:"auto_verify_on_complete"`
	AutoRetryErrors      bool `mapstructure:"auto_retry_errors"`
	AutoResume           bool `mapstructure:"auto_resume"`
	MaxAutoRetries       int  `mapstructure:"max_auto_retries"`
	Notifications        bool `mapstructure:"notifications"`
}

// SyncConfig tunes the sync engine. A zero Refresh keeps the interval
// stored in the session file.
type SyncConfig struct {
	Refresh   float64 `mapstructure:"refresh"` // seconds
	FullEvery int     `mapstructure:"full_every"`
}

// Interval returns the clamped refresh interval, or zero when unset.
func (c SyncConfig) Interval() time.Duration {
	if c.Refresh <= 0 {
		return 0
	}
	return seconds(ClampRefresh(c.Refresh))
}

// LogConfig configures torsh's own log.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// envKeys maps config keys to their environment variables.
var envKeys = map[string]string{
	"rpc.host":               "HOST",
	"rpc.port":               "PORT",
	"rpc.username":           "USER",
	"rpc.password":           "PASSWORD",
	"rpc.timeout":            "TIMEOUT",
	"paths.download_dir":     "DOWNLOAD_DIR",
	"daemon.autostart":       "AUTOSTART",
	"daemon.install_missing": "INSTALL_MISSING",
	"daemon.restart_on_fail": "RESTART_ON_FAIL",
	"daemon.config_dir":      "DAEMON_CONFIG_DIR",
	"daemon.extra_args":      "DAEMON_ARGS",
	"log.level":              "LOG_LEVEL",
	"log.file":               "LOG_FILE",
	"sync.refresh":           "REFRESH",
}

// flagKeys maps CLI flag names to config keys. Inverted flags are handled
// separately.
var flagKeys = map[string]string{
	"host":         "rpc.host",
	"port":         "rpc.port",
	"user":         "rpc.username",
	"password":     "rpc.password",
	"timeout":      "rpc.timeout",
	"download-dir": "paths.download_dir",
	"session-file": "paths.session_file",
	"log-level":    "log.level",
	"log-file":     "log.file",
	"refresh":      "sync.refresh",
}

var invertedFlags = map[string]string{
	"no-autostart":       "daemon.autostart",
	"no-install-missing": "daemon.install_missing",
	"no-restart":         "daemon.restart_on_fail",
}

// Manager owns the viper instance and the current resolved Config.
type Manager struct {
	v    *viper.Viper
	path string

	mu        sync.RWMutex
	current   Config
	fileErr   error
	listeners []func(Config)
}

// Load resolves configuration from defaults, the TOML file at path, the
// environment and any changed flags in fs. A missing or malformed file is not
// fatal: defaults are used and FileError reports what happened.
func Load(path string, fs *pflag.FlagSet) (*Manager, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	loadDotEnv(filepath.Dir(resolved))

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(resolved)
	v.SetConfigType("toml")

	m := &Manager{v: v, path: resolved}
	if err := v.ReadInConfig(); err != nil {
		if !isNotExist(err) {
			m.fileErr = fmt.Errorf("read config %s: %w", resolved, err)
		}
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}
	if err := applyFlags(v, fs); err != nil {
		return nil, err
	}

	cfg, err := m.decode()
	if err != nil {
		return nil, err
	}
	m.current = cfg
	return m, nil
}

// Config returns the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Path returns the resolved config file path.
func (m *Manager) Path() string {
	return m.path
}

// FileError reports a config file that existed but could not be parsed.
func (m *Manager) FileError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fileErr
}

// Watch re-reads the file on change and calls fn with the new Config. Only a
// file that loaded successfully is watched.
func (m *Manager) Watch(fn func(Config)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	first := len(m.listeners) == 1
	watchable := m.fileErr == nil && fileExists(m.path)
	m.mu.Unlock()

	if !first || !watchable {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		m.reload()
	})
	m.v.WatchConfig()
}

func (m *Manager) reload() {
	cfg, err := m.decode()
	m.mu.Lock()
	if err != nil {
		m.fileErr = err
		m.mu.Unlock()
		return
	}
	m.current = cfg
	m.fileErr = nil
	listeners := append([]func(Config){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func (m *Manager) decode() (Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.host", defaultHost)
	v.SetDefault("rpc.port", defaultPort)
	v.SetDefault("rpc.path", defaultRPCPath)
	v.SetDefault("rpc.username", "")
	v.SetDefault("rpc.password", "")
	v.SetDefault("rpc.tls", false)
	v.SetDefault("rpc.timeout", defaultTimeout)

	v.SetDefault("daemon.autostart", true)
	v.SetDefault("daemon.install_missing", true)
	v.SetDefault("daemon.restart_on_fail", true)
	v.SetDefault("daemon.binary", defaultBinary)
	v.SetDefault("daemon.config_dir", defaultDaemonDir)
	v.SetDefault("daemon.extra_args", "")
	v.SetDefault("daemon.start_timeout", defaultStartWait)

	v.SetDefault("paths.download_dir", defaultDownload)
	v.SetDefault("paths.session_file", filepath.Join(DefaultDir(), "session.toml"))

	v.SetDefault("behavior.auto_verify_on_complete", false)
	v.SetDefault("behavior.auto_retry_errors", true)
	v.SetDefault("behavior.max_auto_retries", defaultMaxRetries)
	v.SetDefault("behavior.auto_resume", false)
	v.SetDefault("behavior.notifications", true)

	v.SetDefault("sync.refresh", 0.0)
	v.SetDefault("sync.full_every", defaultFullEvery)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(defaultCacheDir(), "torsh.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
}

// bindEnv binds each key to its TORSH_ variable explicitly so that only the
// documented names are honored.
func bindEnv(v *viper.Viper) error {
	for key, name := range envKeys {
		if err := v.BindEnv(key, envPrefix+name); err != nil {
			return fmt.Errorf("bind env %s: %w", name, err)
		}
		// Word forms like "yes" and "off" are not understood by the decoder.
		if raw, ok := os.LookupEnv(envPrefix + name); ok && isBoolKey(key) {
			if b, ok := parseBoolWord(raw); ok {
				v.Set(key, b)
			}
		}
	}
	return nil
}

// applyFlags copies changed flags into viper with the highest precedence.
func applyFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		v.Set(key, f.Value.String())
	}
	for name, key := range invertedFlags {
		if !fs.Changed(name) {
			continue
		}
		on, err := fs.GetBool(name)
		if err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
		v.Set(key, !on)
	}
	return nil
}

func normalize(cfg *Config) {
	cfg.RPC.Host = strings.TrimSpace(cfg.RPC.Host)
	if cfg.RPC.Host == "" {
		cfg.RPC.Host = defaultHost
	}
	if cfg.RPC.Port < 1 || cfg.RPC.Port > 65535 {
		cfg.RPC.Port = defaultPort
	}
	if strings.TrimSpace(cfg.RPC.Path) == "" {
		cfg.RPC.Path = defaultRPCPath
	}
	if cfg.RPC.Timeout <= 0 || math.IsNaN(cfg.RPC.Timeout) {
		cfg.RPC.Timeout = defaultTimeout
	}
	cfg.RPC.Timeout = math.Max(minTimeout, cfg.RPC.Timeout)

	if strings.TrimSpace(cfg.Daemon.Binary) == "" {
		cfg.Daemon.Binary = defaultBinary
	}
	cfg.Daemon.ConfigDir = expandOr(cfg.Daemon.ConfigDir, defaultDaemonDir)
	if cfg.Daemon.StartTimeout <= 0 {
		cfg.Daemon.StartTimeout = defaultStartWait
	}

	cfg.Paths.DownloadDir = expandOr(cfg.Paths.DownloadDir, defaultDownload)
	cfg.Paths.SessionFile = expandOr(cfg.Paths.SessionFile, filepath.Join(DefaultDir(), "session.toml"))

	if cfg.Behavior.MaxAutoRetries < 0 {
		cfg.Behavior.MaxAutoRetries = 0
	}
	if cfg.Sync.Refresh > 0 {
		cfg.Sync.Refresh = ClampRefresh(cfg.Sync.Refresh)
	}
	if cfg.Sync.FullEvery <= 0 {
		cfg.Sync.FullEvery = defaultFullEvery
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if f := strings.TrimSpace(cfg.Log.File); f != "" && f != "-" {
		cfg.Log.File = mustExpand(f)
	}
}

// ClampRefresh bounds a refresh interval in seconds.
func ClampRefresh(secs float64) float64 {
	if math.IsNaN(secs) {
		return MinRefresh
	}
	return math.Max(MinRefresh, math.Min(MaxRefresh, secs))
}

// DefaultDir returns the torsh config directory, honoring XDG_CONFIG_HOME.
func DefaultDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "torsh")
	}
	return mustExpand("~/.config/torsh")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.toml")
}

func defaultCacheDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CACHE_HOME")); xdg != "" {
		return filepath.Join(xdg, "torsh")
	}
	return mustExpand("~/.cache/torsh")
}

// loadDotEnv reads <dir>/.env without overriding variables already set.
func loadDotEnv(dir string) {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return
	}
	_ = godotenv.Load(path)
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func isBoolKey(key string) bool {
	switch key {
	case "daemon.autostart", "daemon.install_missing", "daemon.restart_on_fail":
		return true
	}
	return false
}

func parseBoolWord(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on", "y":
		return true, true
	case "", "0", "false", "no", "off", "n":
		return false, true
	}
	return false, false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func expandOr(path, fallback string) string {
	if strings.TrimSpace(path) == "" {
		path = fallback
	}
	return mustExpand(path)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPath(), nil
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
