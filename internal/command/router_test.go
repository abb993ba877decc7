package command

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
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

type call struct {
	method string
	ids    []int64
	set    transmission.TorrentSetArgs
	sess   transmission.SessionSetArgs
	add    transmission.AddArgs
	flag   bool
}

type fakeExec struct {
	mu      sync.Mutex
	calls   []call
	err     error
	added   transmission.AddResult
	release chan struct{}
}

func (f *fakeExec) record(c call) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeExec) all() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeExec) TorrentStart(_ context.Context, ids []int64, now bool) error {
	return f.record(call{method: "start", ids: ids, flag: now})
}
func (f *fakeExec) TorrentStop(_ context.Context, ids []int64) error {
	return f.record(call{method: "stop", ids: ids})
}
func (f *fakeExec) TorrentVerify(_ context.Context, ids []int64) error {
	return f.record(call{method: "verify", ids: ids})
}
func (f *fakeExec) TorrentRemove(_ context.Context, ids []int64, deleteData bool) error {
	return f.record(call{method: "remove", ids: ids, flag: deleteData})
}
func (f *fakeExec) TorrentSetLocation(_ context.Context, ids []int64, _ string, move bool) error {
	return f.record(call{method: "set-location", ids: ids, flag: move})
}
func (f *fakeExec) TorrentSet(_ context.Context, ids []int64, args transmission.TorrentSetArgs) error {
	return f.record(call{method: "torrent-set", ids: ids, set: args})
}
func (f *fakeExec) SessionSet(_ context.Context, args transmission.SessionSetArgs) error {
	return f.record(call{method: "session-set", sess: args})
}
func (f *fakeExec) TorrentAdd(_ context.Context, args transmission.AddArgs) (transmission.AddResult, error) {
	err := f.record(call{method: "add", add: args})
	return f.added, err
}

type countingResyncer struct{ n atomic.Int32 }

func (c *countingResyncer) RequestResync() { c.n.Add(1) }

func startRouter(t *testing.T, exec Executor, store *state.Store) (*Router, *countingResyncer) {
	t.Helper()
	resync := &countingResyncer{}
	r := NewRouter(exec, resync, store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r, resync
}

func await(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome")
		return Outcome{}
	}
}

func TestSubmit_AppliedTriggersResync(t *testing.T) {
	store := &state.Store{}
	store.Publish(state.Snapshot{})
	store.Publish(state.Snapshot{})
	exec := &fakeExec{}
	r, resync := startRouter(t, exec, store)

	o := await(t, r.Submit(Resume(true, 3)))
	assert.Equal(t, StatusApplied, o.Status)
	assert.Equal(t, uint64(2), o.IssuedAt)
	assert.NoError(t, o.Err())
	assert.Equal(t, int32(1), resync.n.Load())

	calls := exec.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "start", calls[0].method)
	assert.True(t, calls[0].flag)
}

func TestSubmit_ValidationRejectsWithoutRPC(t *testing.T) {
	exec := &fakeExec{}
	r, resync := startRouter(t, exec, &state.Store{})
	neg := int64(-1)

	bad := []Command{
		Pause(),
		SetPriority(1, nil, state.PriorityHigh),
		SetPriority(1, []int{0}, state.Priority(9)),
		Move("  ", true, 1),
		Add("", "", false),
		SetSpeedLimit(&neg, nil, 1),
		SetSpeedLimit(nil, nil, 1),
		{Kind: Kind(99), IDs: []int64{1}},
	}
	for _, cmd := range bad {
		o := await(t, r.Submit(cmd))
		assert.Equal(t, StatusRejected, o.Status, cmd.Kind.String())
		assert.NotEmpty(t, o.Reason)
	}
	assert.Empty(t, exec.all())
	assert.Zero(t, resync.n.Load())
}

func TestSubmit_DaemonRefusalIsRejected(t *testing.T) {
	exec := &fakeExec{err: &transmission.RPCError{Method: "torrent-set-location", Result: "invalid location"}}
	r, resync := startRouter(t, exec, &state.Store{})

	o := await(t, r.Submit(Move("/nowhere", true, 1)))
	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, "invalid location", o.Reason)
	assert.Zero(t, resync.n.Load())
}

func TestSubmit_TransportErrorIsFailed(t *testing.T) {
	cause := &transmission.Error{Kind: transmission.KindAmbiguous, Method: "torrent-remove"}
	exec := &fakeExec{err: cause}
	r, _ := startRouter(t, exec, &state.Store{})

	o := await(t, r.Submit(Delete(true, 1, 2)))
	assert.Equal(t, StatusFailed, o.Status)
	assert.ErrorIs(t, o.Cause, transmission.ErrAmbiguous)
	assert.ErrorIs(t, o.Err(), transmission.ErrAmbiguous)
}

func TestSubmit_DuplicateAddIsRejected(t *testing.T) {
	exec := &fakeExec{added: transmission.AddResult{Torrent: transmission.AddedTorrent{ID: 4, Name: "arch"}, Duplicate: true}}
	r, resync := startRouter(t, exec, &state.Store{})

	o := await(t, r.Submit(Add("magnet:?xt=urn:btih:abc", "", false)))
	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, "duplicate torrent: arch", o.Reason)
	assert.Zero(t, resync.n.Load())
}

func TestSubmit_AddReportsNewTorrent(t *testing.T) {
	exec := &fakeExec{added: transmission.AddResult{Torrent: transmission.AddedTorrent{ID: 12, Name: "debian"}}}
	r, _ := startRouter(t, exec, &state.Store{})

	o := await(t, r.Submit(Add("/tmp/debian.torrent", "/data", true)))
	assert.Equal(t, StatusApplied, o.Status)
	assert.Equal(t, int64(12), o.AddedID)
	assert.Equal(t, "debian", o.AddedName)
	assert.Equal(t, transmission.AddArgs{Source: "/tmp/debian.torrent", DownloadDir: "/data", Paused: true}, exec.all()[0].add)
}

func TestSubmit_PriorityAndLimitArguments(t *testing.T) {
	exec := &fakeExec{}
	r, _ := startRouter(t, exec, &state.Store{})
	limit, zero := int64(300), int64(0)

	await(t, r.Submit(SetPriority(1, []int{0, 2}, state.PrioritySkip)))
	await(t, r.Submit(SetPriority(1, []int{1}, state.PriorityHigh)))
	await(t, r.Submit(SetSpeedLimit(&limit, &zero, 1)))
	await(t, r.Submit(SetSpeedLimit(&limit, nil)))

	calls := exec.all()
	require.Len(t, calls, 4)
	assert.Equal(t, []int{0, 2}, calls[0].set.FilesUnwanted)
	assert.Nil(t, calls[0].set.FilesWanted)
	assert.Equal(t, []int{1}, calls[1].set.FilesWanted)
	assert.Equal(t, []int{1}, calls[1].set.PriorityHigh)

	assert.Equal(t, int64(300), *calls[2].set.DownloadLimit)
	assert.True(t, *calls[2].set.DownloadLimited)
	assert.False(t, *calls[2].set.UploadLimited)

	assert.Equal(t, "session-set", calls[3].method)
	assert.True(t, *calls[3].sess.SpeedLimitDownEnabled)
	assert.Nil(t, calls[3].sess.SpeedLimitUp)
}

func TestSubmit_FIFOOrder(t *testing.T) {
	exec := &fakeExec{}
	r, _ := startRouter(t, exec, &state.Store{})

	var outs []<-chan Outcome
	for i := int64(1); i <= 10; i++ {
		outs = append(outs, r.Submit(Pause(i)))
	}
	for _, ch := range outs {
		await(t, ch)
	}
	calls := exec.all()
	require.Len(t, calls, 10)
	for i, c := range calls {
		assert.Equal(t, []int64{int64(i + 1)}, c.ids)
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	exec := &fakeExec{release: make(chan struct{})}
	r, _ := startRouter(t, exec, &state.Store{})
	t.Cleanup(func() { close(exec.release) })

	// The first command occupies the worker; the next QueueSize fill the queue.
	first := r.Submit(Pause(1))
	require.Eventually(t, func() bool { return len(r.queue) == 0 }, time.Second, time.Millisecond)
	for i := 0; i < QueueSize; i++ {
		r.Submit(Pause(int64(i + 2)))
	}

	o := await(t, r.Submit(Pause(999)))
	assert.Equal(t, StatusFailed, o.Status)
	assert.ErrorIs(t, o.Cause, ErrQueueFull)

	exec.release <- struct{}{}
	assert.Equal(t, StatusApplied, await(t, first).Status)
}

func TestRun_CancelFailsQueuedCommands(t *testing.T) {
	exec := &fakeExec{}
	r := NewRouter(exec, nil, &state.Store{}, zerolog.Nop())

	queued := r.Submit(Pause(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	o := await(t, queued)
	assert.Equal(t, StatusFailed, o.Status)
	assert.True(t, errors.Is(o.Cause, context.Canceled))
	assert.Empty(t, exec.all())

	late := await(t, r.Submit(Pause(2)))
	assert.Equal(t, StatusFailed, late.Status)
}

func TestRun_CancelLetsExecutingCommandFinish(t *testing.T) {
	arrived := make(chan struct{})
	var once sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		once.Do(func() { close(arrived) })
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result":"success","arguments":{}}`)
	}))
	t.Cleanup(server.Close)

	client, err := transmission.NewClient(transmission.Config{Host: server.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	resync := &countingResyncer{}
	r := NewRouter(client, resync, &state.Store{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	out := r.Submit(Delete(true, 1))
	<-arrived
	cancel()

	o := await(t, out)
	assert.Equal(t, StatusApplied, o.Status, "cause: %v", o.Cause)
	<-done
}
