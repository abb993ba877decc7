package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	shellquote "github.com/Hellseher/go-shellquote"
	"github.com/rs/zerolog"

	"github.com/five82/torsh/internal/logtail"
	"github.com/five82/torsh/internal/transmission"
)

const (
	defaultGrace  = 300 * time.Millisecond
	startLogLines = 20
)

// CommandRunner runs a command to completion and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// SessionGetter is the part of the RPC client the prober needs.
type SessionGetter interface {
	SessionGet(ctx context.Context) (transmission.SessionInfo, error)
}

// RPCProber probes with session-get.
type RPCProber struct {
	Client SessionGetter
}

func (p RPCProber) Probe(ctx context.Context) (transmission.SessionInfo, error) {
	return p.Client.SessionGet(ctx)
}

// PgrepFinder looks for a process by exact name.
type PgrepFinder struct {
	Name string
	Run  CommandRunner
}

func (f PgrepFinder) Running(ctx context.Context) (bool, error) {
	run := f.Run
	if run == nil {
		run = runCommand
	}
	name := f.Name
	if name == "" {
		name = defaultBinary
	}
	_, err := run(ctx, "pgrep", "-x", name)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("pgrep: %w", err)
}

// packageManagers lists supported managers in detection order.
var packageManagers = []string{"apt-get", "apt", "brew", "dnf", "yum", "pacman", "zypper"}

// installSteps returns the commands that install the daemon with manager.
func installSteps(manager string) [][]string {
	switch manager {
	case "apt-get", "apt":
		return [][]string{
			{manager, "update"},
			{manager, "-y", "install", "transmission-daemon"},
		}
	case "brew":
		return [][]string{{"brew", "install", "transmission"}}
	case "dnf", "yum":
		return [][]string{{manager, "-y", "install", "transmission-daemon"}}
	case "pacman":
		return [][]string{{"pacman", "-Sy", "--noconfirm", "transmission-cli"}}
	case "zypper":
		return [][]string{{"zypper", "--non-interactive", "install", "transmission-daemon"}}
	default:
		return nil
	}
}

// PackageInstaller installs the daemon with the first package manager found.
type PackageInstaller struct {
	LookPath func(string) (string, error)
	Run      CommandRunner
	IsRoot   func() bool
	Log      zerolog.Logger
}

// Manager returns the package manager that would be used.
func (p PackageInstaller) Manager() (string, bool) {
	look := p.LookPath
	if look == nil {
		look = exec.LookPath
	}
	for _, m := range packageManagers {
		if _, err := look(m); err == nil {
			return m, true
		}
	}
	return "", false
}

func (p PackageInstaller) Install(ctx context.Context) (string, error) {
	manager, ok := p.Manager()
	if !ok {
		return "", &InstallError{Err: errors.New("no supported package manager found")}
	}
	run := p.Run
	if run == nil {
		run = runCommand
	}
	isRoot := p.IsRoot
	if isRoot == nil {
		isRoot = func() bool { return os.Geteuid() == 0 }
	}

	var output strings.Builder
	for _, step := range installSteps(manager) {
		if manager != "brew" && !isRoot() {
			step = append([]string{"sudo"}, step...)
		}
		p.Log.Info().Str("command", shellquote.Join(step...)).Msg("installing daemon")
		out, err := run(ctx, step[0], step[1:]...)
		output.Write(out)
		if err != nil {
			return output.String(), &InstallError{Manager: manager, Output: string(out), Err: err}
		}
	}
	return output.String(), nil
}

// ExecStarter runs the daemon in its own session with output appended to
// LogPath. The process is not tied to torsh's lifetime.
type ExecStarter struct {
	Binary      string
	ConfigDir   string
	DownloadDir string
	ExtraArgs   string // shell-quoted
	LogPath     string
	Grace       time.Duration
	Log         zerolog.Logger
}

// Args returns the daemon command line without the binary.
func (s ExecStarter) Args() ([]string, error) {
	args := []string{"--foreground", "--config-dir", s.ConfigDir}
	if s.DownloadDir != "" {
		args = append(args, "--download-dir", s.DownloadDir)
	}
	args = append(args, "--log-info")
	if strings.TrimSpace(s.ExtraArgs) != "" {
		extra, err := shellquote.Split(s.ExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("parse daemon extra_args: %w", err)
		}
		args = append(args, extra...)
	}
	return args, nil
}

func (s ExecStarter) Start(ctx context.Context) error {
	binary := s.Binary
	if binary == "" {
		binary = defaultBinary
	}
	args, err := s.Args()
	if err != nil {
		return err
	}
	for _, dir := range []string{s.ConfigDir, s.DownloadDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	logF, err := os.OpenFile(s.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer logF.Close()

	// Not CommandContext: the daemon must survive torsh.
	cmd := exec.Command(binary, args...)
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	s.Log.Info().Str("command", shellquote.Join(append([]string{binary}, args...)...)).Msg("launching daemon")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	// The waiter reaps the child if it exits while torsh is still running.
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	grace := s.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &StartError{ExitCode: code, Output: logtail.String(s.LogPath, startLogLines), Err: err}
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}
