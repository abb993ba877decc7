package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/five82/torsh/internal/state"
)

// Kind names the action a Command performs.
type Kind int

const (
	KindPause Kind = iota + 1
	KindResume
	KindDelete
	KindSetPriority
	KindSetSpeedLimit
	KindMove
	KindAdd
	KindVerify
)

func (k Kind) String() string {
	switch k {
	case KindPause:
		return "pause"
	case KindResume:
		return "resume"
	case KindDelete:
		return "delete"
	case KindSetPriority:
		return "set priority"
	case KindSetSpeedLimit:
		return "set speed limit"
	case KindMove:
		return "move"
	case KindAdd:
		return "add"
	case KindVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Command is one user action addressed to zero or more torrents. Only the
// fields of its Kind are meaningful.
type Command struct {
	Kind Kind
	IDs  []int64

	Now      bool // resume: bypass the queue
	WithData bool // delete: remove downloaded data too

	Files    []int
	Priority state.Priority

	// Speed limits in KiB/s; 0 is unlimited and nil leaves the limit alone.
	// Without IDs they apply to the session.
	Down *int64
	Up   *int64

	Location string
	MoveData bool

	Source      string
	DownloadDir string
	Paused      bool
}

func Pause(ids ...int64) Command { return Command{Kind: KindPause, IDs: ids} }

func Resume(now bool, ids ...int64) Command { return Command{Kind: KindResume, IDs: ids, Now: now} }

func Delete(withData bool, ids ...int64) Command {
	return Command{Kind: KindDelete, IDs: ids, WithData: withData}
}

func Verify(ids ...int64) Command { return Command{Kind: KindVerify, IDs: ids} }

func SetPriority(id int64, files []int, p state.Priority) Command {
	return Command{Kind: KindSetPriority, IDs: []int64{id}, Files: files, Priority: p}
}

func SetSpeedLimit(down, up *int64, ids ...int64) Command {
	return Command{Kind: KindSetSpeedLimit, IDs: ids, Down: down, Up: up}
}

func Move(location string, moveData bool, ids ...int64) Command {
	return Command{Kind: KindMove, IDs: ids, Location: location, MoveData: moveData}
}

func Add(source, downloadDir string, paused bool) Command {
	return Command{Kind: KindAdd, Source: source, DownloadDir: downloadDir, Paused: paused}
}

// Global reports whether a speed limit applies to the whole session.
func (c Command) Global() bool {
	return c.Kind == KindSetSpeedLimit && len(c.IDs) == 0
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid command")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks a command locally, before any RPC.
func Validate(c Command) error {
	switch c.Kind {
	case KindPause, KindResume, KindDelete, KindVerify, KindMove, KindSetPriority, KindSetSpeedLimit, KindAdd:
	default:
		return invalid("unknown kind %d", int(c.Kind))
	}
	if len(c.IDs) == 0 && c.Kind != KindAdd && !c.Global() {
		return invalid("%s needs at least one torrent", c.Kind)
	}

	switch c.Kind {
	case KindSetPriority:
		if len(c.Files) == 0 {
			return invalid("no files selected")
		}
		if !c.Priority.Valid() {
			return invalid("priority %d out of range", int(c.Priority))
		}
		for _, f := range c.Files {
			if f < 0 {
				return invalid("file index %d out of range", f)
			}
		}
	case KindSetSpeedLimit:
		if c.Down == nil && c.Up == nil {
			return invalid("no limit given")
		}
		if (c.Down != nil && *c.Down < 0) || (c.Up != nil && *c.Up < 0) {
			return invalid("speed limit cannot be negative")
		}
	case KindMove:
		if strings.TrimSpace(c.Location) == "" {
			return invalid("location is empty")
		}
	case KindAdd:
		if strings.TrimSpace(c.Source) == "" {
			return invalid("source is empty")
		}
	}
	return nil
}

// Status is the terminal state of a command.
type Status int

const (
	StatusApplied Status = iota + 1
	StatusRejected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is delivered exactly once per submitted command.
type Outcome struct {
	Command Command
	Status  Status
	Reason  string // Rejected: why the daemon or validation refused
	Cause   error  // Failed: the transport or context error

	// IssuedAt is the store revision current when the command was submitted.
	IssuedAt uint64

	// AddedID and AddedName identify the torrent an applied add created.
	AddedID   int64
	AddedName string
}

// Err returns nil for Applied and a descriptive error otherwise.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusApplied:
		return nil
	case StatusRejected:
		return fmt.Errorf("%s rejected: %s", o.Command.Kind, o.Reason)
	default:
		return fmt.Errorf("%s failed: %w", o.Command.Kind, o.Cause)
	}
}
