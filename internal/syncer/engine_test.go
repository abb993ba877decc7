package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/torsh/internal/state"
	"github.com/five82/torsh/internal/transmission"
)

// fakeSource serves a mutable torrent list. Deltas return whatever was
// queued with setDelta.
type fakeSource struct {
	mu       sync.Mutex
	torrents []transmission.Torrent
	delta    []transmission.Torrent
	removed  []int64
	err      error
	free     int64
	caps     transmission.Capabilities
	host     string
	block    chan struct{}

	fullCalls  atomic.Int32
	deltaCalls atomic.Int32
}

func newFakeSource(ts ...transmission.Torrent) *fakeSource {
	return &fakeSource{
		torrents: ts,
		free:     1 << 30,
		caps:     transmission.Capabilities{FreeSpace: true, StartNow: true},
		host:     "127.0.0.1",
	}
}

func (f *fakeSource) set(ts ...transmission.Torrent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torrents = ts
}

func (f *fakeSource) setDelta(changed []transmission.Torrent, removed []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delta = changed
	f.removed = removed
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) TorrentGet(ctx context.Context, _ []int64, _ []string) ([]transmission.Torrent, error) {
	f.fullCalls.Add(1)
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]transmission.Torrent(nil), f.torrents...), nil
}

func (f *fakeSource) RecentlyActive(context.Context, []string) ([]transmission.Torrent, []int64, error) {
	f.deltaCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.delta, f.removed, nil
}

func (f *fakeSource) SessionStats(context.Context) (transmission.SessionStats, error) {
	return transmission.SessionStats{DownloadSpeed: 100, UploadSpeed: 50}, nil
}

func (f *fakeSource) SessionGet(context.Context) (transmission.SessionInfo, error) {
	return transmission.SessionInfo{Version: "4.0.6", DownloadDir: "/data"}, nil
}

func (f *fakeSource) FreeSpace(context.Context, string) (int64, error) {
	return f.free, nil
}

func (f *fakeSource) Capabilities() transmission.Capabilities { return f.caps }
func (f *fakeSource) Host() string                            { return f.host }

func torrent(id int64, name string, pct float64, status int) transmission.Torrent {
	return transmission.Torrent{ID: id, Name: name, PercentDone: pct, Status: status, DownloadDir: "/data"}
}

func newTestEngine(src Source, store *state.Store) *Engine {
	return New(src, store, Options{
		Interval:  time.Hour,
		Logger:    zerolog.Nop(),
		LocalFree: func(string) (int64, error) { return 42, nil },
	})
}

func TestCycle_PublishesSortedSnapshot(t *testing.T) {
	src := newFakeSource(
		torrent(9, "c", 0.1, transmission.StatusDownloading),
		torrent(2, "a", 1, transmission.StatusSeeding),
		torrent(5, "b", 0, transmission.StatusStopped),
	)
	store := &state.Store{}
	e := newTestEngine(src, store)

	e.cycle(context.Background(), false)

	snap := store.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(1), snap.Revision)
	ids := []int64{snap.Torrents[0].ID, snap.Torrents[1].ID, snap.Torrents[2].ID}
	assert.Equal(t, []int64{2, 5, 9}, ids)
	assert.Equal(t, 3, snap.Stats.Total)
	assert.Equal(t, 1, snap.Stats.Paused)
	assert.Equal(t, int64(100), snap.Stats.RateDown)
	assert.Equal(t, int64(1<<30), snap.Stats.FreeSpace)
	assert.Equal(t, "4.0.6", snap.Session.Version)
}

func TestCycle_RevisionsStrictlyIncrease(t *testing.T) {
	store := &state.Store{}
	e := newTestEngine(newFakeSource(), store)

	var last uint64
	for i := 0; i < 12; i++ {
		e.cycle(context.Background(), i%3 == 0)
		rev := store.Load().Revision()
		assert.Greater(t, rev, last)
		last = rev
	}
}

func TestCycle_FailureKeepsSnapshotAndMarksStale(t *testing.T) {
	src := newFakeSource(torrent(1, "ubuntu", 0.5, transmission.StatusDownloading))
	store := &state.Store{}
	e := newTestEngine(src, store)

	var failures []error
	e.OnFailure(func(err error) { failures = append(failures, err) })

	e.cycle(context.Background(), false)
	good := store.Snapshot()

	refused := &transmission.Error{Kind: transmission.KindConnectionRefused, Method: "torrent-get"}
	src.fail(refused)
	e.cycle(context.Background(), false)
	e.cycle(context.Background(), false)

	view := store.Load()
	assert.Same(t, good, view.Snapshot)
	assert.Equal(t, good.Revision, view.Revision())
	assert.True(t, view.Health.Stale())
	assert.Equal(t, 2, view.Health.ConsecutiveFailures)
	assert.ErrorIs(t, view.Health.LastError, transmission.ErrConnectionRefused)
	assert.Len(t, failures, 2)

	src.fail(nil)
	e.cycle(context.Background(), false)
	view = store.Load()
	assert.False(t, view.Health.Stale())
	assert.Equal(t, good.Revision+1, view.Revision())
}

func TestCycle_CancelledContextIsNotAFailure(t *testing.T) {
	src := newFakeSource()
	store := &state.Store{}
	e := newTestEngine(src, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src.fail(context.Canceled)
	e.cycle(ctx, false)

	assert.False(t, store.Load().Health.Stale())
}

func TestCycle_DeltaMergesIntoPreviousRecords(t *testing.T) {
	src := newFakeSource(
		torrent(1, "one", 0.1, transmission.StatusDownloading),
		torrent(2, "two", 0.2, transmission.StatusDownloading),
		torrent(3, "three", 0.3, transmission.StatusDownloading),
	)
	store := &state.Store{}
	e := newTestEngine(src, store)
	e.cycle(context.Background(), false)
	require.Equal(t, int32(1), src.fullCalls.Load())

	src.setDelta([]transmission.Torrent{
		torrent(2, "two", 0.9, transmission.StatusDownloading),
		torrent(4, "four", 0, transmission.StatusCheckWait),
	}, []int64{3})
	e.cycle(context.Background(), false)

	assert.Equal(t, int32(1), src.deltaCalls.Load())
	snap := store.Snapshot()
	require.Len(t, snap.Torrents, 3)
	assert.Equal(t, int64(1), snap.Torrents[0].ID)
	assert.Equal(t, 0.9, snap.Torrents[1].Progress)
	assert.Equal(t, int64(4), snap.Torrents[2].ID)
	assert.Equal(t, state.StatusQueued, snap.Torrents[2].Status)
	_, ok := snap.Torrent(3)
	assert.False(t, ok)
}

func TestCycle_FullListingSchedule(t *testing.T) {
	src := newFakeSource()
	e := New(src, &state.Store{}, Options{Interval: time.Hour, FullEvery: 3, Logger: zerolog.Nop()})

	for i := 0; i < 6; i++ {
		e.cycle(context.Background(), false)
	}
	// Cycles 1 and 4 list everything; the rest are deltas.
	assert.Equal(t, int32(2), src.fullCalls.Load())
	assert.Equal(t, int32(4), src.deltaCalls.Load())

	e.cycle(context.Background(), true)
	assert.Equal(t, int32(3), src.fullCalls.Load(), "accelerated cycles list everything")

	src.fail(errors.New("boom"))
	e.cycle(context.Background(), false)
	src.fail(nil)
	before := src.fullCalls.Load()
	e.cycle(context.Background(), false)
	assert.Equal(t, before+1, src.fullCalls.Load(), "the cycle after a failure lists everything")
}

func collectEvents(e *Engine) (func() []state.CompletionEvent, *sync.WaitGroup) {
	var mu sync.Mutex
	var events []state.CompletionEvent
	var wg sync.WaitGroup
	e.OnCompletion(func(ev state.CompletionEvent) {
		defer wg.Done()
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return func() []state.CompletionEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]state.CompletionEvent(nil), events...)
	}, &wg
}

func TestCompletion_EdgeTriggered(t *testing.T) {
	src := newFakeSource(
		torrent(1, "debian", 0.5, transmission.StatusDownloading),
		torrent(2, "already", 1, transmission.StatusSeeding),
	)
	store := &state.Store{}
	e := newTestEngine(src, store)
	events, wg := collectEvents(e)

	e.cycle(context.Background(), true)
	assert.Empty(t, events(), "the first snapshot never fires")

	wg.Add(1)
	src.set(torrent(1, "debian", 1, transmission.StatusSeeding), torrent(2, "already", 1, transmission.StatusSeeding))
	e.cycle(context.Background(), true)
	e.cycle(context.Background(), true)

	src.set(torrent(1, "debian", 0.97, transmission.StatusDownloading), torrent(2, "already", 1, transmission.StatusSeeding))
	e.cycle(context.Background(), true)

	wg.Add(1)
	src.set(torrent(1, "debian", 1, transmission.StatusSeeding), torrent(2, "already", 1, transmission.StatusSeeding))
	e.cycle(context.Background(), true)
	wg.Wait()

	got := events()
	require.Len(t, got, 2)
	for _, ev := range got {
		assert.Equal(t, int64(1), ev.ID)
		assert.Equal(t, "debian", ev.Name)
		assert.Equal(t, "/data", ev.DownloadDir)
	}
	assert.ElementsMatch(t, []uint64{2, 5}, []uint64{got[0].Revision, got[1].Revision})
}

func TestCompletion_CheckingIsNotComplete(t *testing.T) {
	src := newFakeSource(torrent(1, "iso", 0.3, transmission.StatusDownloading))
	store := &state.Store{}
	e := newTestEngine(src, store)
	events, wg := collectEvents(e)

	e.cycle(context.Background(), true)
	src.set(torrent(1, "iso", 1, transmission.StatusChecking))
	e.cycle(context.Background(), true)
	assert.Empty(t, events())

	wg.Add(1)
	src.set(torrent(1, "iso", 1, transmission.StatusSeeding))
	e.cycle(context.Background(), true)
	wg.Wait()
	assert.Len(t, events(), 1)
}

func TestRequestResync_Coalesces(t *testing.T) {
	e := newTestEngine(newFakeSource(), &state.Store{})
	for i := 0; i < 100; i++ {
		e.RequestResync()
	}
	assert.Len(t, e.trigger, 1)
}

func TestRun_AcceleratedResyncPublishesNextRevision(t *testing.T) {
	src := newFakeSource(torrent(1, "a", 0.1, transmission.StatusDownloading))
	store := &state.Store{}
	e := newTestEngine(src, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	first, err := store.Wait(waitCtx, 0)
	require.NoError(t, err)

	issued := first.Revision
	e.RequestResync()
	next, err := store.Wait(waitCtx, issued)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, next.Revision, issued+1)
}

func TestRun_BurstOfResyncsRunsAtMostOneExtraCycle(t *testing.T) {
	src := newFakeSource()
	store := &state.Store{}
	e := newTestEngine(src, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	_, err := store.Wait(waitCtx, 0)
	require.NoError(t, err)

	// Hold the next cycle in flight while requests pile up.
	block := make(chan struct{})
	src.mu.Lock()
	src.block = block
	src.mu.Unlock()
	e.RequestResync()
	require.Eventually(t, func() bool { return src.fullCalls.Load() == 2 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 50; i++ {
		e.RequestResync()
	}
	src.mu.Lock()
	src.block = nil
	src.mu.Unlock()
	close(block)

	_, err = store.Wait(waitCtx, 2)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, uint64(3), store.Load().Revision())
	assert.Equal(t, int32(3), src.fullCalls.Load())
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := newTestEngine(newFakeSource(), &state.Store{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, e.Run(ctx))
}

func TestSetInterval(t *testing.T) {
	e := newTestEngine(newFakeSource(), &state.Store{})
	e.SetInterval(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, e.Interval())
	e.SetInterval(0)
	assert.Equal(t, 500*time.Millisecond, e.Interval())
	assert.Len(t, e.intervalChanged, 1)
}

func TestFreeSpace_Fallbacks(t *testing.T) {
	src := newFakeSource()
	e := newTestEngine(src, &state.Store{})

	assert.Equal(t, int64(1<<30), e.freeSpace(context.Background(), "/data"))
	assert.Equal(t, int64(-1), e.freeSpace(context.Background(), ""))

	src.caps.FreeSpace = false
	assert.Equal(t, int64(42), e.freeSpace(context.Background(), "/data"), "local daemon uses statfs")

	src.host = "seedbox.example"
	assert.Equal(t, int64(-1), e.freeSpace(context.Background(), "/data"), "remote daemon without free-space is unknown")
}

func TestCycle_CancelLetsInFlightCallFinish(t *testing.T) {
	src := newFakeSource(torrent(1, "debian", 0.5, transmission.StatusDownloading))
	block := make(chan struct{})
	src.block = block
	store := &state.Store{}
	e := newTestEngine(src, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.cycle(ctx, false)
	}()
	require.Eventually(t, func() bool { return src.fullCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
		t.Fatal("cancel aborted the call in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
	assert.Nil(t, store.Snapshot(), "results that arrive after shutdown are not published")
	assert.False(t, store.Load().Health.Stale())
}

func TestRun_WaitsForCompletionHandlers(t *testing.T) {
	src := newFakeSource(torrent(1, "debian", 0.5, transmission.StatusDownloading))
	store := &state.Store{}
	e := newTestEngine(src, store)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	e.OnCompletion(func(state.CompletionEvent) {
		close(started)
		<-release
		finished.Store(true)
	})

	e.cycle(context.Background(), true)
	seeded := torrent(1, "debian", 1, transmission.StatusSeeding)
	src.set(seeded)
	src.setDelta([]transmission.Torrent{seeded}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	<-started
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a completion handler was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done
	assert.True(t, finished.Load())
}
