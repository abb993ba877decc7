package daemon

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exitWith(code string) ([]byte, error) {
	return exec.Command("sh", "-c", "exit "+code).CombinedOutput()
}

func TestPgrepFinder(t *testing.T) {
	var got []string
	found := PgrepFinder{Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		got = append([]string{name}, args...)
		return []byte("4242\n"), nil
	}}
	running, err := found.Running(context.Background())
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, []string{"pgrep", "-x", "transmission-daemon"}, got)

	absent := PgrepFinder{Run: func(context.Context, string, ...string) ([]byte, error) { return exitWith("1") }}
	running, err = absent.Running(context.Background())
	require.NoError(t, err)
	assert.False(t, running)

	noPgrep := PgrepFinder{Run: func(context.Context, string, ...string) ([]byte, error) { return nil, exec.ErrNotFound }}
	running, err = noPgrep.Running(context.Background())
	require.NoError(t, err)
	assert.False(t, running)

	broken := PgrepFinder{Run: func(context.Context, string, ...string) ([]byte, error) { return exitWith("3") }}
	_, err = broken.Running(context.Background())
	assert.Error(t, err)
}

func lookOnly(names ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, n := range names {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestPackageInstaller_DetectionOrder(t *testing.T) {
	m, ok := PackageInstaller{LookPath: lookOnly("pacman", "apt")}.Manager()
	assert.True(t, ok)
	assert.Equal(t, "apt", m)

	_, ok = PackageInstaller{LookPath: lookOnly()}.Manager()
	assert.False(t, ok)
}

func TestPackageInstaller_UsesSudoWhenNotRoot(t *testing.T) {
	var commands []string
	inst := PackageInstaller{
		LookPath: lookOnly("apt-get"),
		IsRoot:   func() bool { return false },
		Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			commands = append(commands, strings.Join(append([]string{name}, args...), " "))
			return []byte("ok\n"), nil
		},
	}

	out, err := inst.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok\nok\n", out)
	assert.Equal(t, []string{
		"sudo apt-get update",
		"sudo apt-get -y install transmission-daemon",
	}, commands)
}

func TestPackageInstaller_BrewNeverUsesSudo(t *testing.T) {
	var commands []string
	inst := PackageInstaller{
		LookPath: lookOnly("brew"),
		IsRoot:   func() bool { return false },
		Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			commands = append(commands, strings.Join(append([]string{name}, args...), " "))
			return nil, nil
		},
	}
	_, err := inst.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"brew install transmission"}, commands)
}

func TestPackageInstaller_Failures(t *testing.T) {
	_, err := PackageInstaller{LookPath: lookOnly()}.Install(context.Background())
	var ierr *InstallError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, err.Error(), "no supported package manager")

	inst := PackageInstaller{
		LookPath: lookOnly("dnf"),
		IsRoot:   func() bool { return true },
		Run: func(context.Context, string, ...string) ([]byte, error) {
			return []byte("No match for argument"), errors.New("exit status 1")
		},
	}
	out, err := inst.Install(context.Background())
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "dnf", ierr.Manager)
	assert.Contains(t, out, "No match for argument")
}

func TestExecStarter_Args(t *testing.T) {
	s := ExecStarter{ConfigDir: "/cfg", DownloadDir: "/dl", ExtraArgs: `--port 51413 --incomplete-dir "/mnt/in progress"`}
	args, err := s.Args()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--foreground", "--config-dir", "/cfg", "--download-dir", "/dl", "--log-info",
		"--port", "51413", "--incomplete-dir", "/mnt/in progress",
	}, args)

	_, err = ExecStarter{ConfigDir: "/cfg", ExtraArgs: `"unterminated`}.Args()
	assert.Error(t, err)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-daemon")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestExecStarter_EarlyExitReportsLogTail(t *testing.T) {
	dir := t.TempDir()
	s := ExecStarter{
		Binary:    writeScript(t, `echo "Couldn't bind port 9091" >&2; exit 3`),
		ConfigDir: filepath.Join(dir, "cfg"),
		LogPath:   filepath.Join(dir, "daemon.log"),
		Grace:     2 * time.Second,
	}

	err := s.Start(context.Background())
	var se *StartError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.ExitCode)
	assert.Contains(t, se.Output, "Couldn't bind port 9091")
	assert.DirExists(t, s.ConfigDir)
}

func TestExecStarter_StillRunningAfterGrace(t *testing.T) {
	dir := t.TempDir()
	s := ExecStarter{
		Binary:    writeScript(t, `sleep 1`),
		ConfigDir: filepath.Join(dir, "cfg"),
		LogPath:   filepath.Join(dir, "daemon.log"),
		Grace:     50 * time.Millisecond,
	}
	assert.NoError(t, s.Start(context.Background()))
}
