package notify

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	name string
	args []string
}

func fakeDesktop(goos string, available map[string]bool, out []byte, err error) (*Desktop, *[]recorded) {
	var calls []recorded
	d := &Desktop{
		GOOS: goos,
		LookPath: func(name string) (string, error) {
			if available[name] {
				return "/usr/bin/" + name, nil
			}
			return "", exec.ErrNotFound
		},
		Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			calls = append(calls, recorded{name: name, args: args})
			return out, err
		},
		Log:     zerolog.Nop(),
		AppName: "torsh",
	}
	return d, &calls
}

func TestNotify_LinuxUsesNotifySend(t *testing.T) {
	d, calls := fakeDesktop("linux", map[string]bool{"notify-send": true}, nil, nil)

	require.NoError(t, d.Notify(context.Background(), "arch finished downloading", "1.2 GiB"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "notify-send", (*calls)[0].name)
	assert.Equal(t, []string{"--app-name", "torsh", "arch finished downloading", "1.2 GiB"}, (*calls)[0].args)
}

func TestNotify_MacUsesOsascript(t *testing.T) {
	d, calls := fakeDesktop("darwin", map[string]bool{"osascript": true}, nil, nil)

	require.NoError(t, d.Notify(context.Background(), `say "hi"`, "body"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "osascript", (*calls)[0].name)
	assert.Equal(t, []string{"-e", `display notification "body" with title "say \"hi\""`}, (*calls)[0].args)
}

func TestNotify_NoNotifierIsNoop(t *testing.T) {
	d, calls := fakeDesktop("linux", nil, nil, nil)

	assert.NoError(t, d.Notify(context.Background(), "title", "body"))
	assert.Empty(t, *calls)
}

func TestNotify_FailureIncludesOutput(t *testing.T) {
	d, _ := fakeDesktop("linux", map[string]bool{"notify-send": true}, []byte("no dbus session\n"), errors.New("exit status 1"))

	err := d.Notify(context.Background(), "title", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify-send")
	assert.Contains(t, err.Error(), "no dbus session")
}

func TestCompletionMessage(t *testing.T) {
	title, body := CompletionMessage("debian.iso", 3*1024*1024*1024, "/data")
	assert.Equal(t, "debian.iso finished downloading", title)
	assert.Equal(t, "3.0 GiB in /data", body)

	_, body = CompletionMessage("x", 0, "")
	assert.Empty(t, body)
}
