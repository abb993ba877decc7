// Package notify sends desktop notifications through the platform's
// command-line notifier.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Notifier delivers a short message to the user outside the TUI.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

const sendTimeout = 5 * time.Second

// Desktop uses notify-send on Linux and osascript on macOS. When neither is
// available Notify does nothing.
type Desktop struct {
	GOOS     string
	LookPath func(string) (string, error)
	Run      Runner
	Log      zerolog.Logger
	AppName  string
}

// NewDesktop returns a Desktop notifier for the running platform.
func NewDesktop(log zerolog.Logger) *Desktop {
	return &Desktop{
		GOOS:     runtime.GOOS,
		LookPath: exec.LookPath,
		Run:      runCommand,
		Log:      log,
		AppName:  "torsh",
	}
}

// Command returns the program and arguments that would deliver the message,
// or ok=false when the platform has no notifier.
func (d *Desktop) Command(title, body string) (name string, args []string, ok bool) {
	switch d.GOOS {
	case "darwin":
		if _, err := d.LookPath("osascript"); err != nil {
			return "", nil, false
		}
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(body), strconv.Quote(title))
		return "osascript", []string{"-e", script}, true
	default:
		if _, err := d.LookPath("notify-send"); err != nil {
			return "", nil, false
		}
		args = []string{"--app-name", d.AppName, title}
		if body != "" {
			args = append(args, body)
		}
		return "notify-send", args, true
	}
}

// Notify implements Notifier.
func (d *Desktop) Notify(ctx context.Context, title, body string) error {
	name, args, ok := d.Command(title, body)
	if !ok {
		d.Log.Debug().Str("title", title).Msg("no desktop notifier available")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	out, err := d.Run(ctx, name, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// CompletionMessage formats the notification for a finished torrent.
func CompletionMessage(name string, size int64, dir string) (title, body string) {
	title = fmt.Sprintf("%s finished downloading", name)
	parts := make([]string, 0, 2)
	if size > 0 {
		parts = append(parts, humanize.IBytes(uint64(size)))
	}
	if dir != "" {
		parts = append(parts, dir)
	}
	return title, strings.Join(parts, " in ")
}
