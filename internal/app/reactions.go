package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/torsh/internal/command"
	"github.com/five82/torsh/internal/config"
	"github.com/five82/torsh/internal/daemon"
	"github.com/five82/torsh/internal/notify"
	"github.com/five82/torsh/internal/state"
	"github.com/five82/torsh/internal/transmission"
)

const (
	// refusedBeforeRestart is how many consecutive refused connections
	// trigger a daemon restart.
	refusedBeforeRestart = 3
	noticeBuffer         = 16
)

// Submitter queues commands.
type Submitter interface {
	Submit(command.Command) <-chan command.Outcome
}

// Ensurer brings the daemon back after it went away.
type Ensurer interface {
	EnsureAvailable(ctx context.Context, timeout time.Duration, allowInstall bool) (daemon.Ready, error)
}

// Behavior holds the reaction toggles. Config reloads replace it whole.
type Behavior struct {
	Notifications  bool
	AutoVerify     bool
	AutoRetry      bool
	MaxRetries     int
	AutoResume     bool
	RestartOnFail  bool
	InstallMissing bool
	StartTimeout   time.Duration
}

// BehaviorFrom extracts the reaction toggles from cfg. Restarting needs
// autostart as well, since a restart is just another start.
func BehaviorFrom(cfg config.Config) Behavior {
	return Behavior{
		Notifications:  cfg.Behavior.Notifications,
		AutoVerify:     cfg.Behavior.AutoVerifyOnComplete,
		AutoRetry:      cfg.Behavior.AutoRetryErrors,
		MaxRetries:     cfg.Behavior.MaxAutoRetries,
		AutoResume:     cfg.Behavior.AutoResume,
		RestartOnFail:  cfg.Daemon.RestartOnFail && cfg.Daemon.Autostart,
		InstallMissing: cfg.Daemon.InstallMissing,
		StartTimeout:   cfg.Daemon.StartTimeoutDuration(),
	}
}

// Reactions turns sync engine events into follow-up work: notifications,
// automatic verify, retry and resume, daemon restarts and connection
// notices. Commands from the UI pass through Submit so torrents the user
// paused are never resumed automatically.
type Reactions struct {
	ctx      context.Context
	commands Submitter
	notifier notify.Notifier
	ensurer  Ensurer
	store    *state.Store
	log      zerolog.Logger
	notices  chan string

	mu       sync.Mutex
	behavior Behavior
	verified map[int64]bool
	retries  map[int64]int
	paused   map[int64]bool // paused by the user
	resumed  map[int64]bool // auto-resume sent, awaiting a status change
	refused  int
	offline  bool

	restarting atomic.Bool
	wg         sync.WaitGroup
}

// ReactionsConfig wires a Reactions. A nil Ensurer disables restarts.
type ReactionsConfig struct {
	Commands Submitter
	Notifier notify.Notifier
	Ensurer  Ensurer
	Store    *state.Store
	Logger   zerolog.Logger
	Behavior Behavior
}

// NewReactions builds a Reactions whose background work stops with ctx.
func NewReactions(ctx context.Context, cfg ReactionsConfig) *Reactions {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Reactions{
		ctx:      ctx,
		commands: cfg.Commands,
		notifier: notifier,
		ensurer:  cfg.Ensurer,
		store:    cfg.Store,
		log:      cfg.Logger,
		notices:  make(chan string, noticeBuffer),
		behavior: cfg.Behavior,
		verified: make(map[int64]bool),
		retries:  make(map[int64]int),
		paused:   make(map[int64]bool),
		resumed:  make(map[int64]bool),
	}
}

// Engine is the part of the sync engine reactions subscribe to.
type Engine interface {
	OnCompletion(func(state.CompletionEvent))
	OnPublish(func(*state.Snapshot))
	OnFailure(func(error))
}

// Attach registers the handlers with e.
func (r *Reactions) Attach(e Engine) {
	e.OnCompletion(r.HandleCompletion)
	e.OnPublish(r.HandlePublish)
	e.OnFailure(r.HandleFailure)
}

// Submit records what the user paused, resumed or removed and forwards c.
func (r *Reactions) Submit(c command.Command) <-chan command.Outcome {
	r.mu.Lock()
	for _, id := range c.IDs {
		switch c.Kind {
		case command.KindPause:
			r.paused[id] = true
		case command.KindResume, command.KindDelete:
			delete(r.paused, id)
		}
	}
	r.mu.Unlock()
	return r.commands.Submit(c)
}

// Notices delivers connection changes for the status line.
func (r *Reactions) Notices() <-chan string {
	return r.notices
}

// SetBehavior replaces the toggles.
func (r *Reactions) SetBehavior(b Behavior) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.behavior = b
}

func (r *Reactions) current() Behavior {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.behavior
}

// Wait blocks until background work started by the handlers has finished.
func (r *Reactions) Wait() {
	r.wg.Wait()
}

// HandleCompletion notifies about a finished torrent and optionally queues a
// verify, at most once per torrent.
func (r *Reactions) HandleCompletion(ev state.CompletionEvent) {
	b := r.current()

	if b.Notifications {
		var size int64 = -1
		if rec, ok := r.store.Snapshot().Torrent(ev.ID); ok {
			size = rec.Size
		}
		title, body := notify.CompletionMessage(ev.Name, size, ev.DownloadDir)
		if err := r.notifier.Notify(r.ctx, title, body); err != nil {
			r.log.Warn().Err(err).Str("name", ev.Name).Msg("completion notification failed")
		}
	}

	if !b.AutoVerify {
		return
	}
	r.mu.Lock()
	done := r.verified[ev.ID]
	r.verified[ev.ID] = true
	r.mu.Unlock()
	if done {
		return
	}
	r.log.Info().Int64("id", ev.ID).Str("name", ev.Name).Msg("verifying completed torrent")
	r.follow(r.commands.Submit(command.Verify(ev.ID)), ev.Name)
}

// HandlePublish resumes errored torrents and, when enabled, paused ones the
// user did not pause, and reports a recovered connection. It runs on the
// sync goroutine and never blocks.
func (r *Reactions) HandlePublish(snap *state.Snapshot) {
	b := r.current()

	r.mu.Lock()
	r.refused = 0
	recovered := r.offline
	r.offline = false

	var retry []state.TorrentRecord
	for id := range r.retries {
		if rec, ok := snap.Torrent(id); !ok || rec.Status != state.StatusError {
			delete(r.retries, id)
		}
	}
	for id := range r.resumed {
		if rec, ok := snap.Torrent(id); !ok || rec.Status != state.StatusPaused {
			delete(r.resumed, id)
		}
	}
	for id := range r.paused {
		if _, ok := snap.Torrent(id); !ok {
			delete(r.paused, id)
		}
	}
	if b.AutoRetry {
		for _, rec := range snap.Torrents {
			if rec.Status != state.StatusError || rec.Progress >= state.CompleteThreshold {
				continue
			}
			if r.retries[rec.ID] >= b.MaxRetries {
				continue
			}
			r.retries[rec.ID]++
			retry = append(retry, rec)
		}
	}
	var resume []int64
	if b.AutoResume {
		for _, rec := range snap.Torrents {
			if rec.Status != state.StatusPaused || rec.Progress >= state.CompleteThreshold {
				continue
			}
			if r.paused[rec.ID] || r.resumed[rec.ID] {
				continue
			}
			r.resumed[rec.ID] = true
			resume = append(resume, rec.ID)
		}
	}
	r.mu.Unlock()

	if recovered {
		r.log.Info().Uint64("revision", snap.Revision).Msg("daemon connection restored")
		r.notice("Connection to the daemon restored")
	}
	for _, rec := range retry {
		r.log.Info().
			Int64("id", rec.ID).
			Str("name", rec.Name).
			Str("error", rec.ErrorMessage).
			Msg("resuming errored torrent")
		r.follow(r.commands.Submit(command.Resume(false, rec.ID)), rec.Name)
	}
	if len(resume) > 0 {
		r.log.Info().Ints64("ids", resume).Msg("resuming torrents paused outside torsh")
		r.notice(fmt.Sprintf("Auto-started %d paused torrent(s)", len(resume)))
		r.follow(r.commands.Submit(command.Resume(false, resume...)), "auto-resume")
	}
}

// HandleFailure tracks failed cycles. It reports the connection going
// offline and restarts the daemon after repeated refused connections.
func (r *Reactions) HandleFailure(err error) {
	b := r.current()
	health := r.store.Load().Health

	r.mu.Lock()
	if kind, ok := transmission.KindOf(err); ok && kind == transmission.KindConnectionRefused {
		r.refused++
	} else {
		r.refused = 0
	}
	refused := r.refused
	wentOffline := health.IsOffline() && !r.offline
	if wentOffline {
		r.offline = true
	}
	r.mu.Unlock()

	if wentOffline {
		r.log.Warn().Err(err).Int("failures", health.ConsecutiveFailures).Msg("daemon connection lost")
		r.notice("Lost connection to the daemon: " + err.Error())
	}

	if !b.RestartOnFail || r.ensurer == nil || refused < refusedBeforeRestart {
		return
	}
	if !r.restarting.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	r.refused = 0
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.restarting.Store(false)
		r.restart(b)
	}()
}

func (r *Reactions) restart(b Behavior) {
	r.log.Info().Msg("daemon refused connections; restarting")
	r.notice("Daemon unreachable, restarting it")
	ready, err := r.ensurer.EnsureAvailable(r.ctx, b.StartTimeout, b.InstallMissing)
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.log.Error().Err(err).Msg("daemon restart failed")
		r.notice("Daemon restart failed: " + err.Error())
		return
	}
	r.log.Info().
		Str("version", ready.Version).
		Bool("started", ready.Started).
		Dur("elapsed", ready.Elapsed).
		Msg("daemon available again")
	r.notice(fmt.Sprintf("Daemon %s available again", ready.Version))
}

// follow logs the outcome of a command the reactions issued themselves.
func (r *Reactions) follow(ch <-chan command.Outcome, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case o := <-ch:
			if err := o.Err(); err != nil {
				r.log.Warn().Err(err).Str("name", name).Msg("automatic command did not apply")
			}
		case <-r.ctx.Done():
		}
	}()
}

// notice never blocks; when the UI is not draining, older notices win.
func (r *Reactions) notice(msg string) {
	select {
	case r.notices <- msg:
	default:
		r.log.Debug().Str("notice", msg).Msg("notice dropped")
	}
}
