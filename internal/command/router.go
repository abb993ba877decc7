package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/five82/torsh/internal/state"
	"github.com/five82/torsh/internal/transmission"
)

// QueueSize bounds the number of commands waiting for the worker.
const QueueSize = 64

// ErrQueueFull is the cause of a Failed outcome when the queue has no room.
var ErrQueueFull = errors.New("command queue full")

// Executor performs the daemon mutations.
type Executor interface {
	TorrentStart(ctx context.Context, ids []int64, now bool) error
	TorrentStop(ctx context.Context, ids []int64) error
	TorrentVerify(ctx context.Context, ids []int64) error
	TorrentRemove(ctx context.Context, ids []int64, deleteData bool) error
	TorrentSetLocation(ctx context.Context, ids []int64, location string, move bool) error
	TorrentSet(ctx context.Context, ids []int64, args transmission.TorrentSetArgs) error
	SessionSet(ctx context.Context, args transmission.SessionSetArgs) error
	TorrentAdd(ctx context.Context, args transmission.AddArgs) (transmission.AddResult, error)
}

// Resyncer is asked for a fresh snapshot after every applied command.
type Resyncer interface {
	RequestResync()
}

type job struct {
	cmd    Command
	out    chan Outcome
	issued uint64
}

// Router runs commands one at a time on its own goroutine so a slow daemon
// never holds up the sync loop or the UI.
type Router struct {
	exec   Executor
	resync Resyncer
	store  *state.Store
	log    zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan job
}

// NewRouter wires a router. Call Run to start processing.
func NewRouter(exec Executor, resync Resyncer, store *state.Store, log zerolog.Logger) *Router {
	return &Router{
		exec:   exec,
		resync: resync,
		store:  store,
		log:    log,
		queue:  make(chan job, QueueSize),
	}
}

// Submit queues cmd and returns at once. The returned channel receives
// exactly one Outcome.
func (r *Router) Submit(cmd Command) <-chan Outcome {
	out := make(chan Outcome, 1)
	issued := r.store.Load().Revision()

	if err := Validate(cmd); err != nil {
		out <- Outcome{Command: cmd, Status: StatusRejected, Reason: err.Error(), IssuedAt: issued}
		return out
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		out <- Outcome{Command: cmd, Status: StatusFailed, Cause: context.Canceled, IssuedAt: issued}
		return out
	}
	select {
	case r.queue <- job{cmd: cmd, out: out, issued: issued}:
	default:
		out <- Outcome{Command: cmd, Status: StatusFailed, Cause: ErrQueueFull, IssuedAt: issued}
	}
	return out
}

// Run processes commands in submission order until ctx is cancelled.
// A command already executing finishes first; commands still queued then
// fail with the context's error.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain(ctx.Err())
			return nil
		case j := <-r.queue:
			if ctx.Err() != nil {
				r.fail(j, ctx.Err())
				continue
			}
			r.execute(ctx, j)
		}
	}
}

func (r *Router) drain(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for {
		select {
		case j := <-r.queue:
			r.fail(j, cause)
		default:
			return
		}
	}
}

func (r *Router) fail(j job, cause error) {
	j.out <- Outcome{Command: j.cmd, Status: StatusFailed, Cause: cause, IssuedAt: j.issued}
}

func (r *Router) execute(ctx context.Context, j job) {
	outcome := Outcome{Command: j.cmd, IssuedAt: j.issued}

	// A command that was started runs to completion or the client timeout;
	// aborting it would leave its effect unknown.
	added, err := r.dispatch(context.WithoutCancel(ctx), j.cmd)
	var rpcErr *transmission.RPCError
	switch {
	case err == nil && added.Duplicate:
		outcome.Status = StatusRejected
		outcome.Reason = fmt.Sprintf("duplicate torrent: %s", added.Torrent.Name)
	case err == nil:
		outcome.Status = StatusApplied
		outcome.AddedID = added.Torrent.ID
		outcome.AddedName = added.Torrent.Name
	case errors.As(err, &rpcErr):
		outcome.Status = StatusRejected
		outcome.Reason = rpcErr.Result
	default:
		outcome.Status = StatusFailed
		outcome.Cause = err
	}

	level := zerolog.InfoLevel
	if outcome.Status != StatusApplied {
		level = zerolog.WarnLevel
	}
	r.log.WithLevel(level).Str("command", j.cmd.Kind.String()).
		Ints64("ids", j.cmd.IDs).
		Str("status", outcome.Status.String()).
		Str("reason", outcome.Reason).
		AnErr("cause", outcome.Cause).
		Msg("command finished")

	if outcome.Status == StatusApplied && r.resync != nil {
		r.resync.RequestResync()
	}
	j.out <- outcome
}

func (r *Router) dispatch(ctx context.Context, c Command) (transmission.AddResult, error) {
	var none transmission.AddResult
	switch c.Kind {
	case KindPause:
		return none, r.exec.TorrentStop(ctx, c.IDs)
	case KindResume:
		return none, r.exec.TorrentStart(ctx, c.IDs, c.Now)
	case KindVerify:
		return none, r.exec.TorrentVerify(ctx, c.IDs)
	case KindDelete:
		return none, r.exec.TorrentRemove(ctx, c.IDs, c.WithData)
	case KindMove:
		return none, r.exec.TorrentSetLocation(ctx, c.IDs, c.Location, c.MoveData)
	case KindSetPriority:
		return none, r.exec.TorrentSet(ctx, c.IDs, priorityArgs(c.Files, c.Priority))
	case KindSetSpeedLimit:
		if c.Global() {
			return none, r.exec.SessionSet(ctx, sessionLimitArgs(c.Down, c.Up))
		}
		return none, r.exec.TorrentSet(ctx, c.IDs, torrentLimitArgs(c.Down, c.Up))
	case KindAdd:
		return r.exec.TorrentAdd(ctx, transmission.AddArgs{Source: c.Source, DownloadDir: c.DownloadDir, Paused: c.Paused})
	default:
		return none, fmt.Errorf("unsupported command %s", c.Kind)
	}
}

// priorityArgs expresses skip as unwanted and every other priority as wanted
// plus the daemon priority.
func priorityArgs(files []int, p state.Priority) transmission.TorrentSetArgs {
	var args transmission.TorrentSetArgs
	if p == state.PrioritySkip {
		args.FilesUnwanted = files
		return args
	}
	args.FilesWanted = files
	switch p {
	case state.PriorityLow:
		args.PriorityLow = files
	case state.PriorityHigh:
		args.PriorityHigh = files
	default:
		args.PriorityNormal = files
	}
	return args
}

func torrentLimitArgs(down, up *int64) transmission.TorrentSetArgs {
	var args transmission.TorrentSetArgs
	if down != nil {
		limited := *down > 0
		args.DownloadLimit, args.DownloadLimited = down, &limited
	}
	if up != nil {
		limited := *up > 0
		args.UploadLimit, args.UploadLimited = up, &limited
	}
	return args
}

func sessionLimitArgs(down, up *int64) transmission.SessionSetArgs {
	var args transmission.SessionSetArgs
	if down != nil {
		enabled := *down > 0
		args.SpeedLimitDown, args.SpeedLimitDownEnabled = down, &enabled
	}
	if up != nil {
		enabled := *up > 0
		args.SpeedLimitUp, args.SpeedLimitUpEnabled = up, &enabled
	}
	return args
}
