package daemon

import (
	"fmt"
	"strings"
)

// Kind classifies why the daemon could not be made available.
type Kind int

const (
	KindNotInstalled Kind = iota + 1
	KindInstallFailed
	KindStartFailed
	KindTimedOut
	KindAuthFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotInstalled:
		return "not installed"
	case KindInstallFailed:
		return "install failed"
	case KindStartFailed:
		return "start failed"
	case KindTimedOut:
		return "timed out"
	case KindAuthFailed:
		return "auth failed"
	default:
		return "unknown"
	}
}

// Error explains why EnsureAvailable gave up.
type Error struct {
	Kind       Kind
	Binary     string
	ExitCode   int
	Output     string
	LastRPCErr error
	Err        error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindNotInstalled:
		msg = fmt.Sprintf("%s is not installed; install it or allow automatic installation", e.Binary)
	case KindInstallFailed:
		msg = fmt.Sprintf("could not install %s", e.Binary)
	case KindStartFailed:
		msg = fmt.Sprintf("%s exited during startup", e.Binary)
		if e.ExitCode != 0 {
			msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
		}
	case KindTimedOut:
		msg = "daemon did not answer RPC before the startup timeout"
	case KindAuthFailed:
		msg = "daemon rejected the RPC credentials; check rpc.username and rpc.password"
	default:
		msg = "daemon unavailable"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.LastRPCErr != nil {
		msg += ": " + e.LastRPCErr.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

// Unwrap exposes both the direct cause and the last RPC failure.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.LastRPCErr != nil {
		errs = append(errs, e.LastRPCErr)
	}
	return errs
}

// StartError is returned by a Starter whose process exited early.
type StartError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("exit code %d", e.ExitCode)
}

func (e *StartError) Unwrap() error { return e.Err }

// InstallError carries the package manager's output.
type InstallError struct {
	Manager string
	Output  string
	Err     error
}

func (e *InstallError) Error() string {
	if e.Manager == "" {
		return fmt.Sprintf("install: %v", e.Err)
	}
	return fmt.Sprintf("install via %s: %v", e.Manager, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }
