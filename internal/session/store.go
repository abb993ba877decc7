package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// DefaultDelay is how long Save waits for further changes before writing.
const DefaultDelay = 500 * time.Millisecond

// Op identifies the persistence step that failed.
type Op int

const (
	ReadFailed Op = iota + 1
	WriteFailed
)

func (o Op) String() string {
	switch o {
	case ReadFailed:
		return "read"
	case WriteFailed:
		return "write"
	default:
		return "unknown"
	}
}

// PersistenceError reports a session file that could not be read or written.
// It is never fatal; the in-memory state stays authoritative.
type PersistenceError struct {
	Op   Op
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store loads and persists State at a fixed path.
type Store struct {
	path  string
	delay time.Duration
	log   zerolog.Logger

	writeMu sync.Mutex // orders writes so an older value never lands last

	mu      sync.Mutex
	pending *State
	timer   *time.Timer
	closed  bool
	lastErr error
}

// Option configures a Store.
type Option func(*Store)

// WithDelay overrides the save debounce period.
func WithDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithLogger sets the logger for persistence failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open returns a store for path. Nothing is read until Load.
func Open(path string, opts ...Option) *Store {
	s := &Store{path: path, delay: DefaultDelay, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the session file location.
func (s *Store) Path() string { return s.path }

// Load reads the session file. A missing file yields Defaults silently; an
// unreadable or malformed one yields Defaults and records a ReadFailed error.
func (s *Store) Load() State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.recordErr(&PersistenceError{Op: ReadFailed, Path: s.path, Err: err})
		}
		return Defaults()
	}

	var f fileState
	if err := toml.Unmarshal(data, &f); err != nil {
		s.recordErr(&PersistenceError{Op: ReadFailed, Path: s.path, Err: err})
		return Defaults()
	}
	return fromFile(f)
}

// Save records st and writes it once no further Save arrives for the
// debounce period. After Close it writes immediately.
func (s *Store) Save(st State) {
	s.mu.Lock()
	s.pending = &st
	if s.closed {
		s.mu.Unlock()
		_ = s.Flush()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() { _ = s.Flush() })
	s.mu.Unlock()
}

// Flush writes any pending state now.
func (s *Store) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if pending == nil {
		return nil
	}
	if err := s.write(*pending); err != nil {
		s.recordErr(err)
		return err
	}
	return nil
}

// Close flushes pending state and stops the debounce timer.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Flush()
}

// LastError returns the most recent persistence failure, if any.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) recordErr(err error) {
	s.log.Warn().Err(err).Str("path", s.path).Msg("session state not persisted")
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// write replaces the file atomically: temp file in the same directory, then
// rename.
func (s *Store) write(st State) error {
	fail := func(err error) error {
		return &PersistenceError{Op: WriteFailed, Path: s.path, Err: err}
	}

	data, err := toml.Marshal(toFile(st))
	if err != nil {
		return fail(fmt.Errorf("marshal: %w", err))
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.toml")
	if err != nil {
		return fail(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fail(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fail(err)
	}
	return nil
}
