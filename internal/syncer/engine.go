package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/five82/torsh/internal/state"
	"github.com/five82/torsh/internal/transmission"
)

const (
	DefaultInterval  = 2500 * time.Millisecond
	DefaultFullEvery = 10
)

// Source is the part of the RPC client the engine reads from.
type Source interface {
	TorrentGet(ctx context.Context, ids []int64, fields []string) ([]transmission.Torrent, error)
	RecentlyActive(ctx context.Context, fields []string) ([]transmission.Torrent, []int64, error)
	SessionStats(ctx context.Context) (transmission.SessionStats, error)
	SessionGet(ctx context.Context) (transmission.SessionInfo, error)
	FreeSpace(ctx context.Context, path string) (int64, error)
	Capabilities() transmission.Capabilities
	Host() string
}

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	Interval  time.Duration
	FullEvery int
	Logger    zerolog.Logger

	// LocalFree measures free space on this host. Defaults to statfs.
	LocalFree func(path string) (int64, error)
	Now       func() time.Time
}

// Engine keeps the store's snapshot in step with the daemon. Run is the only
// writer to the store.
type Engine struct {
	src   Source
	store *state.Store
	log   zerolog.Logger

	interval  atomic.Int64
	fullEvery int
	localFree func(string) (int64, error)
	now       func() time.Time

	trigger         chan struct{}
	intervalChanged chan struct{}

	mu         sync.Mutex
	onComplete []func(state.CompletionEvent)
	onPublish  []func(*state.Snapshot)
	onFailure  []func(error)
	handlers   sync.WaitGroup // completion handlers still running

	// Owned by the Run goroutine.
	cycles   int
	needFull bool
}

// New builds an Engine. Call Run to start it.
func New(src Source, store *state.Store, opts Options) *Engine {
	e := &Engine{
		src:             src,
		store:           store,
		log:             opts.Logger,
		fullEvery:       opts.FullEvery,
		localFree:       opts.LocalFree,
		now:             opts.Now,
		trigger:         make(chan struct{}, 1),
		intervalChanged: make(chan struct{}, 1),
		needFull:        true,
	}
	if e.fullEvery <= 0 {
		e.fullEvery = DefaultFullEvery
	}
	if e.localFree == nil {
		e.localFree = statfsFree
	}
	if e.now == nil {
		e.now = time.Now
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	e.interval.Store(int64(interval))
	return e
}

// OnCompletion registers a handler for completion events. Handlers run on
// their own goroutine; Run waits for them before it returns.
func (e *Engine) OnCompletion(fn func(state.CompletionEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = append(e.onComplete, fn)
}

// OnPublish registers a hook called after every publish, on the sync
// goroutine. Hooks must not block.
func (e *Engine) OnPublish(fn func(*state.Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPublish = append(e.onPublish, fn)
}

// OnFailure registers a hook called after every failed cycle, on the sync
// goroutine. Hooks must not block.
func (e *Engine) OnFailure(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFailure = append(e.onFailure, fn)
}

// Interval returns the current cycle interval.
func (e *Engine) Interval() time.Duration {
	return time.Duration(e.interval.Load())
}

// SetInterval changes the cycle interval; the next wait uses it.
func (e *Engine) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	if time.Duration(e.interval.Swap(int64(d))) == d {
		return
	}
	select {
	case e.intervalChanged <- struct{}{}:
	default:
	}
}

// RequestResync asks for an extra full cycle. Requests made while one is
// already pending collapse into it. It never blocks.
func (e *Engine) RequestResync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run cycles until ctx is cancelled. The first cycle starts immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Dur("interval", e.Interval()).Msg("sync engine started")
	defer e.log.Info().Msg("sync engine stopped")
	defer e.handlers.Wait()

	if ctx.Err() != nil {
		return nil
	}
	e.cycle(ctx, false)

	timer := time.NewTimer(e.Interval())
	defer timer.Stop()
	for {
		accelerated := false
		select {
		case <-ctx.Done():
			return nil
		case <-e.intervalChanged:
			timer.Reset(e.Interval())
			continue
		case <-e.trigger:
			accelerated = true
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return nil
		}
		e.cycle(ctx, accelerated)
		timer.Reset(e.Interval())
	}
}

// cycle fetches, builds and publishes one snapshot, or records the failure.
func (e *Engine) cycle(ctx context.Context, accelerated bool) {
	prev := e.store.Snapshot()
	full := accelerated || e.needFull || prev == nil || e.cycles%e.fullEvery == 0

	draft, err := e.fetch(ctx, prev, full)
	if ctx.Err() != nil {
		// Shutting down: whatever the last calls returned is dropped.
		return
	}
	if err != nil {
		e.needFull = true
		view := e.store.MarkFailed(err, e.now())
		level := zerolog.WarnLevel
		if view.Health.ConsecutiveFailures > 1 {
			level = zerolog.DebugLevel
		}
		e.log.WithLevel(level).Err(err).Int("failures", view.Health.ConsecutiveFailures).Msg("sync failed; keeping last snapshot")
		for _, fn := range e.failureHooks() {
			fn(err)
		}
		return
	}

	snap := e.store.Publish(draft)
	e.cycles++
	e.needFull = false
	e.log.Trace().
		Uint64("revision", snap.Revision).
		Bool("full", full).
		Int("torrents", len(snap.Torrents)).
		Msg("snapshot published")

	for _, ev := range completions(prev, snap, e.now()) {
		e.log.Info().Int64("id", ev.ID).Str("name", ev.Name).Msg("torrent completed")
		for _, fn := range e.completionHandlers() {
			e.handlers.Add(1)
			go func() {
				defer e.handlers.Done()
				fn(ev)
			}()
		}
	}
	for _, fn := range e.publishHooks() {
		fn(snap)
	}
}

func (e *Engine) fetch(ctx context.Context, prev *state.Snapshot, full bool) (state.Snapshot, error) {
	var (
		torrents []transmission.Torrent
		removed  []int64
		stats    transmission.SessionStats
		info     transmission.SessionInfo
	)

	if err := ctx.Err(); err != nil {
		return state.Snapshot{}, err
	}
	// Cancellation stops new calls only. Calls already sent finish or hit
	// the client timeout.
	callCtx := context.WithoutCancel(ctx)

	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		var err error
		if full {
			torrents, err = e.src.TorrentGet(gctx, nil, transmission.TorrentFields)
		} else {
			torrents, removed, err = e.src.RecentlyActive(gctx, transmission.TorrentFields)
		}
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = e.src.SessionStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		info, err = e.src.SessionGet(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return state.Snapshot{}, err
	}

	records := toRecords(torrents)
	if full {
		sortByID(records)
	} else {
		records = merge(prev.Torrents, records, removed)
	}

	var free int64 = -1
	if ctx.Err() == nil {
		free = e.freeSpace(callCtx, info.DownloadDir)
	}
	return state.Snapshot{
		Torrents:  records,
		Stats:     aggregate(records, stats, free),
		Session:   toSessionInfo(info),
		FetchedAt: e.now(),
	}, nil
}

// freeSpace asks the daemon when it can answer, falls back to statfs for a
// daemon on this host, and otherwise reports -1.
func (e *Engine) freeSpace(ctx context.Context, dir string) int64 {
	if dir == "" {
		return -1
	}
	if e.src.Capabilities().FreeSpace {
		n, err := e.src.FreeSpace(ctx, dir)
		if err == nil {
			return n
		}
		e.log.Debug().Err(err).Str("dir", dir).Msg("free-space failed")
	}
	if !isLocalHost(e.src.Host()) {
		return -1
	}
	n, err := e.localFree(dir)
	if err != nil {
		e.log.Debug().Err(err).Str("dir", dir).Msg("statfs failed")
		return -1
	}
	return n
}

func (e *Engine) completionHandlers() []func(state.CompletionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]func(state.CompletionEvent){}, e.onComplete...)
}

func (e *Engine) publishHooks() []func(*state.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]func(*state.Snapshot){}, e.onPublish...)
}

func (e *Engine) failureHooks() []func(error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]func(error){}, e.onFailure...)
}

// completions returns one event per torrent that was present and incomplete
// in prev and is complete in next. The first snapshot yields none.
func completions(prev, next *state.Snapshot, at time.Time) []state.CompletionEvent {
	if prev == nil || next == nil {
		return nil
	}
	var events []state.CompletionEvent
	for _, rec := range next.Torrents {
		if !rec.Complete() {
			continue
		}
		old, ok := prev.Torrent(rec.ID)
		if !ok || old.Complete() {
			continue
		}
		events = append(events, state.CompletionEvent{
			ID:          rec.ID,
			Name:        rec.Name,
			DownloadDir: rec.DownloadDir,
			Revision:    next.Revision,
			At:          at,
		})
	}
	return events
}
