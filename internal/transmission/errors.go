package transmission

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies transport failures.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindConnectionRefused
	KindAuth
	KindAmbiguous
	KindProtocol
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrTimeout           = errors.New("rpc timeout")
	ErrConnectionRefused = errors.New("rpc connection refused")
	ErrAuth              = errors.New("rpc authentication failed")
	ErrAmbiguous         = errors.New("rpc outcome unknown")
	ErrProtocol          = errors.New("rpc protocol error")
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection refused"
	case KindAuth:
		return "auth"
	case KindAmbiguous:
		return "ambiguous"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindConnectionRefused:
		return ErrConnectionRefused
	case KindAuth:
		return ErrAuth
	case KindAmbiguous:
		return ErrAmbiguous
	case KindProtocol:
		return ErrProtocol
	default:
		return nil
	}
}

// Error is a transport-level failure of a single RPC call.
type Error struct {
	Kind   Kind
	Method string
	Err    error

	// sent reports whether any request bytes reached the wire.
	sent      bool
	retryable bool
	renewable bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Method, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Method, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrAuth) and friends match by kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// RPCError reports a call the daemon received and refused.
type RPCError struct {
	Method string
	Result string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: daemon refused: %s", e.Method, e.Result)
}

// KindOf returns the transport kind of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

func transportError(method string, err error, sent, idempotent bool) *Error {
	kind := KindConnectionRefused
	if isTimeout(err) {
		kind = KindTimeout
	}
	if sent && !idempotent {
		kind = KindAmbiguous
	}
	return &Error{
		Kind:      kind,
		Method:    method,
		Err:       err,
		sent:      sent,
		retryable: idempotent || !sent,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.retryable
}
