package daemon

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/torsh/internal/transmission"
)

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 2 * time.Second
	defaultBinary  = "transmission-daemon"
)

// Prober performs the RPC handshake.
type Prober interface {
	Probe(ctx context.Context) (transmission.SessionInfo, error)
}

// ProcessFinder reports whether a daemon process already exists.
type ProcessFinder interface {
	Running(ctx context.Context) (bool, error)
}

// Installer installs the daemon package.
type Installer interface {
	Install(ctx context.Context) (output string, err error)
}

// Starter launches the daemon detached from torsh.
type Starter interface {
	Start(ctx context.Context) error
}

// Ready describes a reachable daemon.
type Ready struct {
	Version    string
	RPCVersion int
	Installed  bool
	Started    bool
	Elapsed    time.Duration
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithBinary sets the daemon executable name looked up on PATH.
func WithBinary(name string) Option {
	return func(s *Supervisor) {
		if name != "" {
			s.binary = name
		}
	}
}

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(s *Supervisor) { s.lookPath = fn }
}

// WithBackoff overrides the poll backoff bounds.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(s *Supervisor) {
		s.initialBackoff = initial
		s.maxBackoff = maxDelay
	}
}

// Supervisor makes sure a daemon answers RPC, starting or installing it when
// allowed. It never stops the daemon; the daemon outlives torsh.
type Supervisor struct {
	prober    Prober
	finder    ProcessFinder
	installer Installer
	starter   Starter

	binary         string
	lookPath       func(string) (string, error)
	initialBackoff time.Duration
	maxBackoff     time.Duration
	log            zerolog.Logger
}

// NewSupervisor wires the external actions. All four are required.
func NewSupervisor(prober Prober, finder ProcessFinder, installer Installer, starter Starter, opts ...Option) *Supervisor {
	s := &Supervisor{
		prober:         prober,
		finder:         finder,
		installer:      installer,
		starter:        starter,
		binary:         defaultBinary,
		lookPath:       exec.LookPath,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureAvailable returns once the daemon answers session-get, or with an
// *Error once timeout has elapsed or a step failed for good. Cancelling ctx
// returns ctx.Err().
func (s *Supervisor) EnsureAvailable(ctx context.Context, timeout time.Duration, allowInstall bool) (Ready, error) {
	start := time.Now()
	deadline := start.Add(timeout)
	probeCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var ready Ready
	info, err := s.prober.Probe(probeCtx)
	if err == nil {
		return s.ready(ready, info, start), nil
	}
	if errors.Is(err, transmission.ErrAuth) {
		return Ready{}, &Error{Kind: KindAuthFailed, Binary: s.binary, LastRPCErr: err}
	}
	if ctx.Err() != nil {
		return Ready{}, ctx.Err()
	}
	if probeCtx.Err() != nil {
		return Ready{}, &Error{Kind: KindTimedOut, Binary: s.binary, LastRPCErr: err}
	}
	s.log.Debug().Err(err).Msg("daemon not reachable")

	running, ferr := s.finder.Running(probeCtx)
	if ferr != nil {
		s.log.Debug().Err(ferr).Msg("process check failed")
	}

	if running {
		s.log.Info().Msg("daemon process already running; waiting for RPC")
	} else {
		if _, lerr := s.lookPath(s.binary); lerr != nil {
			if !allowInstall {
				return Ready{}, &Error{Kind: KindNotInstalled, Binary: s.binary, LastRPCErr: err}
			}
			s.log.Info().Str("binary", s.binary).Msg("daemon not installed; installing")
			out, ierr := s.installer.Install(probeCtx)
			if ierr != nil {
				return Ready{}, &Error{Kind: KindInstallFailed, Binary: s.binary, Output: out, Err: ierr}
			}
			if _, lerr := s.lookPath(s.binary); lerr != nil {
				return Ready{}, &Error{Kind: KindInstallFailed, Binary: s.binary, Output: out, Err: lerr}
			}
			ready.Installed = true
		}

		s.log.Info().Str("binary", s.binary).Msg("starting daemon")
		if serr := s.starter.Start(probeCtx); serr != nil {
			derr := &Error{Kind: KindStartFailed, Binary: s.binary}
			var se *StartError
			if errors.As(serr, &se) {
				derr.ExitCode = se.ExitCode
				derr.Output = se.Output
			} else {
				derr.Err = serr
			}
			return Ready{}, derr
		}
		ready.Started = true
	}

	lastErr := err
	backoff := s.initialBackoff
	for {
		wait := min(backoff, time.Until(deadline))
		if wait <= 0 {
			return Ready{}, &Error{Kind: KindTimedOut, Binary: s.binary, LastRPCErr: lastErr}
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-probeCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return Ready{}, ctx.Err()
			}
			return Ready{}, &Error{Kind: KindTimedOut, Binary: s.binary, LastRPCErr: lastErr}
		}

		info, err := s.prober.Probe(probeCtx)
		if err == nil {
			return s.ready(ready, info, start), nil
		}
		if errors.Is(err, transmission.ErrAuth) {
			return Ready{}, &Error{Kind: KindAuthFailed, Binary: s.binary, LastRPCErr: err}
		}
		lastErr = err
		s.log.Debug().Err(err).Dur("backoff", backoff).Msg("waiting for daemon")
		backoff = min(backoff*2, s.maxBackoff)
	}
}

func (s *Supervisor) ready(r Ready, info transmission.SessionInfo, start time.Time) Ready {
	r.Version = info.Version
	r.RPCVersion = info.RPCVersion
	r.Elapsed = time.Since(start)
	s.log.Info().
		Str("version", r.Version).
		Bool("started", r.Started).
		Bool("installed", r.Installed).
		Dur("elapsed", r.Elapsed).
		Msg("daemon ready")
	return r
}
