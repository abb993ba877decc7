package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/torsh/internal/command"
	"github.com/five82/torsh/internal/state"
)

// Submitter queues a command and delivers its outcome on the channel.
type Submitter interface {
	Submit(command.Command) <-chan command.Outcome
}

// outcomeMsg is a finished command plus the torrent name captured when it
// was submitted, since a delete removes the torrent before the outcome
// arrives.
type outcomeMsg struct {
	outcome command.Outcome
	label   string
}

// deleteMsg is emitted when a delete is confirmed.
type deleteMsg struct {
	ids      []int64
	label    string
	withData bool
}

func awaitOutcome(ctx context.Context, ch <-chan command.Outcome, label string) tea.Cmd {
	return func() tea.Msg {
		select {
		case o := <-ch:
			return outcomeMsg{outcome: o, label: label}
		case <-ctx.Done():
			return nil
		}
	}
}

// submit queues c and returns a command that waits for its outcome.
func (m *Model) submit(c command.Command, label string) tea.Cmd {
	if m.commands == nil {
		return nil
	}
	m.pending++
	return awaitOutcome(m.ctx, m.commands.Submit(c), label)
}

// handleTorrentKey runs the keys that act on the daemon. It reports false
// when the key is not one of them.
func (m Model) handleTorrentKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Add):
		m.modal = newInputModal(promptAddSource, "Add torrent", "Magnet link, URL or path to a .torrent file", "")
		return m, textinput.Blink, true
	case key.Matches(msg, m.keys.GlobalLimit):
		var down, up string
		if snap := m.view.Snapshot; snap != nil {
			down = limitValue(snap.Session.SpeedLimitDown, snap.Session.SpeedLimitDownEnabled)
			up = limitValue(snap.Session.SpeedLimitUp, snap.Session.SpeedLimitUpEnabled)
		}
		m.modal = newInputModal(promptGlobalLimit, "Global speed limit", limitHint, strings.TrimSpace(down+" "+up))
		return m, textinput.Blink, true
	}

	rec, ok := m.selected()
	if !ok {
		for _, b := range []key.Binding{m.keys.Toggle, m.keys.StartNow, m.keys.Delete, m.keys.DeleteData,
			m.keys.Move, m.keys.Verify, m.keys.Limit, m.keys.PrevFile, m.keys.NextFile, m.keys.CyclePriority} {
			if key.Matches(msg, b) {
				return m, nil, true
			}
		}
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Toggle):
		cmd := m.submit(toggleCommand(rec), rec.Name)
		return m, cmd, true
	case key.Matches(msg, m.keys.StartNow):
		cmd := m.submit(command.Resume(true, rec.ID), rec.Name)
		return m, cmd, true
	case key.Matches(msg, m.keys.Verify):
		cmd := m.submit(command.Verify(rec.ID), rec.Name)
		return m, cmd, true
	case key.Matches(msg, m.keys.Delete), key.Matches(msg, m.keys.DeleteData):
		withData := key.Matches(msg, m.keys.DeleteData)
		body := "The downloaded data is kept."
		if withData {
			body = "The downloaded data is deleted too."
		}
		m.modal = &confirmModal{
			title: fmt.Sprintf("Delete %q?", truncate(rec.Name, 40)),
			body:  body,
			onYes: deleteMsg{ids: []int64{rec.ID}, label: rec.Name, withData: withData},
		}
		return m, nil, true
	case key.Matches(msg, m.keys.Move):
		m.modal = newInputModal(promptMove, "Move "+truncate(rec.Name, 40), "New absolute location; data is moved", rec.DownloadDir, rec.ID)
		return m, textinput.Blink, true
	case key.Matches(msg, m.keys.Limit):
		value := limitValue(rec.DownloadLimit, rec.DownloadLimited) + " " + limitValue(rec.UploadLimit, rec.UploadLimited)
		m.modal = newInputModal(promptLimit, "Speed limit for "+truncate(rec.Name, 40), limitHint, value, rec.ID)
		return m, textinput.Blink, true
	case key.Matches(msg, m.keys.PrevFile):
		m.moveFileCursor(rec, -1)
		return m, nil, true
	case key.Matches(msg, m.keys.NextFile):
		m.moveFileCursor(rec, 1)
		return m, nil, true
	case key.Matches(msg, m.keys.CyclePriority):
		i := m.clampedFileCursor(rec)
		if i < 0 {
			m.setStatus("No files to prioritize", levelWarn)
			return m, nil, true
		}
		f := rec.Files[i]
		cmd := m.submit(command.SetPriority(rec.ID, []int{f.Index}, f.Priority.Next()), f.Path)
		return m, cmd, true
	}
	return m, nil, false
}

func (m *Model) moveFileCursor(rec state.TorrentRecord, delta int) {
	if len(rec.Files) == 0 {
		return
	}
	m.fileCursor = min(max(m.clampedFileCursor(rec)+delta, 0), len(rec.Files)-1)
	m.updateDetailViewport()
}

// toggleCommand resumes stopped torrents and pauses everything else.
func toggleCommand(rec state.TorrentRecord) command.Command {
	switch rec.Status {
	case state.StatusPaused, state.StatusError:
		return command.Resume(false, rec.ID)
	default:
		return command.Pause(rec.ID)
	}
}

// handlePrompt acts on a submitted input modal.
func (m Model) handlePrompt(msg promptMsg) (Model, tea.Cmd) {
	switch msg.kind {
	case promptAddSource:
		if msg.value == "" {
			return m, nil
		}
		input := newInputModal(promptAddDir, "Download directory", "Leave empty for the daemon's default", m.defaultDownloadDir())
		input.carry = msg.value
		m.modal = input
		return m, textinput.Blink

	case promptAddDir:
		dir := expandHome(msg.value)
		if dir != "" && dir != m.prefs.DownloadDir {
			m.prefs.DownloadDir = dir
			m.persist()
		}
		cmd := m.submit(command.Add(msg.carry, dir, false), filepath.Base(msg.carry))
		return m, cmd

	case promptMove:
		location := expandHome(msg.value)
		if location == "" {
			return m, nil
		}
		if !filepath.IsAbs(location) {
			m.setStatus("Location must be an absolute path: "+location, levelWarn)
			return m, nil
		}
		cmd := m.submit(command.Move(location, true, msg.ids...), m.nameOf(msg.ids))
		return m, cmd

	case promptLimit, promptGlobalLimit:
		if msg.value == "" {
			return m, nil
		}
		down, up, err := parseLimits(msg.value)
		if err != nil {
			m.setStatus(err.Error(), levelWarn)
			return m, nil
		}
		cmd := m.submit(command.SetSpeedLimit(down, up, msg.ids...), m.nameOf(msg.ids))
		return m, cmd

	case promptFilter:
		m.prefs.Filter.Text = msg.value
		m.persist()
		m.refreshRows()
	}
	return m, nil
}

func (m Model) defaultDownloadDir() string {
	if m.prefs.DownloadDir != "" {
		return m.prefs.DownloadDir
	}
	if m.downloadDir != "" {
		return m.downloadDir
	}
	if snap := m.view.Snapshot; snap != nil {
		return snap.Session.DownloadDir
	}
	return ""
}

func (m Model) nameOf(ids []int64) string {
	if len(ids) != 1 {
		return ""
	}
	if rec, ok := m.view.Snapshot.Torrent(ids[0]); ok {
		return rec.Name
	}
	return fmt.Sprintf("#%d", ids[0])
}

const limitHint = "KiB/s as \"DOWN UP\"; - keeps a value, 0 is unlimited"

func limitValue(kib int64, enabled bool) string {
	if !enabled {
		return "0"
	}
	return strconv.FormatInt(kib, 10)
}

var errLimitSyntax = errors.New(`enter limits as "DOWN [UP]" in KiB/s`)

// parseLimits reads "DOWN [UP]" in KiB/s. "-" leaves that direction alone
// and 0 removes the limit.
func parseLimits(input string) (down, up *int64, err error) {
	fields := strings.Fields(input)
	if len(fields) == 0 || len(fields) > 2 {
		return nil, nil, errLimitSyntax
	}
	parse := func(s string) (*int64, error) {
		if s == "-" {
			return nil, nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: %q is not a whole number", errLimitSyntax, s)
		}
		return &v, nil
	}
	if down, err = parse(fields[0]); err != nil {
		return nil, nil, err
	}
	if len(fields) == 2 {
		if up, err = parse(fields[1]); err != nil {
			return nil, nil, err
		}
	}
	if down == nil && up == nil {
		return nil, nil, errLimitSyntax
	}
	return down, up, nil
}

// describeOutcome turns a command outcome into a status line message.
func describeOutcome(o command.Outcome, label string) (string, statusLevel) {
	c := o.Command
	switch o.Status {
	case command.StatusApplied:
	case command.StatusRejected:
		return o.Err().Error(), levelWarn
	default:
		return o.Err().Error(), levelError
	}

	switch c.Kind {
	case command.KindPause:
		return "Paused " + label, levelSuccess
	case command.KindResume:
		if c.Now {
			return "Started " + label, levelSuccess
		}
		return "Resumed " + label, levelSuccess
	case command.KindDelete:
		if c.WithData {
			return "Deleted " + label + " and its data", levelSuccess
		}
		return "Removed " + label, levelSuccess
	case command.KindVerify:
		return "Verifying " + label, levelSuccess
	case command.KindMove:
		return "Moving " + label + " to " + c.Location, levelSuccess
	case command.KindSetPriority:
		return fmt.Sprintf("Priority %s for %s", c.Priority, label), levelSuccess
	case command.KindSetSpeedLimit:
		if c.Global() {
			return "Global speed limits updated", levelSuccess
		}
		return "Speed limits updated for " + label, levelSuccess
	case command.KindAdd:
		name := o.AddedName
		if name == "" {
			name = label
		}
		return "Added " + name, levelSuccess
	default:
		return c.Kind.String() + " applied", levelSuccess
	}
}
