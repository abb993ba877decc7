package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/torsh/internal/command"
	"github.com/five82/torsh/internal/session"
	"github.com/five82/torsh/internal/state"
)

// Syncer is the part of the sync engine the UI drives.
type Syncer interface {
	RequestResync()
	SetInterval(time.Duration)
}

// SessionStore persists the dashboard state.
type SessionStore interface {
	Save(session.State)
}

// Options configures the UI.
type Options struct {
	Context  context.Context
	Store    *state.Store
	Commands Submitter
	Syncer   Syncer
	Session  SessionStore
	State    session.State

	// Notices are one-line messages from the application, such as
	// connection changes, shown in the status line.
	Notices <-chan string

	DaemonLog   string
	Endpoint    string
	DownloadDir string // fallback for the add prompt
	Tick        time.Duration
	Now         func() time.Time
}

type pane int

const (
	paneTable pane = iota
	paneDetail
)

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx         context.Context
	store       *state.Store
	commands    Submitter
	syncer      Syncer
	session     SessionStore
	notices     <-chan string
	daemonLog   string
	endpoint    string
	downloadDir string
	tick        time.Duration
	now         func() time.Time

	// UI state
	keys    keyMap
	help    help.Model
	theme   Theme
	width   int
	height  int
	ready   bool
	focused pane

	// Data state
	prefs   session.State
	view    state.View
	rows    []state.TorrentRecord
	history speedHistory

	// Selection follows the torrent id across re-sorts.
	selectedID  int64
	selectedRow int
	fileCursor  int

	detail viewport.Model
	logs   viewport.Model

	status  statusLine
	pending int

	modal    Modal
	showHelp bool
	showLogs bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	store := opts.Store
	if store == nil {
		store = &state.Store{}
	}

	prefs := opts.State.Normalize()
	theme := GetTheme(prefs.Theme)
	m := Model{
		ctx:         ctx,
		store:       store,
		commands:    opts.Commands,
		syncer:      opts.Syncer,
		session:     opts.Session,
		notices:     opts.Notices,
		daemonLog:   opts.DaemonLog,
		endpoint:    opts.Endpoint,
		downloadDir: opts.DownloadDir,
		tick:        tick,
		now:         now,
		keys:        DefaultKeyMap(),
		help:        newHelp(theme),
		theme:       theme,
		prefs:       prefs,
	}
	m.applyView(store.Load())
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.tick), waitNotice(m.ctx, m.notices))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.detail = viewport.New(1, 1)
			m.initLogViewport()
		}
		m.ready = true
		m.resize()
		m.updateDetailViewport()
		return m, nil

	case tickMsg:
		m.applyView(m.store.Load())
		cmds := []tea.Cmd{tickCmd(m.tick)}
		if m.showLogs {
			cmds = append(cmds, loadLogCmd(m.daemonLog))
		}
		return m, tea.Batch(cmds...)

	case noticeMsg:
		m.setStatus(string(msg), levelInfo)
		return m, waitNotice(m.ctx, m.notices)

	case outcomeMsg:
		m.pending = max(m.pending-1, 0)
		text, level := describeOutcome(msg.outcome, msg.label)
		m.setStatus(text, level)
		return m, nil

	case promptMsg:
		next, cmd := m.handlePrompt(msg)
		return next, cmd

	case deleteMsg:
		cmd := m.submit(command.Delete(msg.withData, msg.ids...), msg.label)
		return m, cmd

	case logMsg:
		m.handleLogMsg(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	if m.showLogs {
		b.WriteString(m.renderLogs())
	} else {
		b.WriteString(m.renderMain())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	return b.String()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.modal != nil {
		next, cmd, done := m.modal.Update(msg)
		m.modal = next
		if done {
			m.modal = nil
		}
		return m, cmd
	}
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.showLogs {
		return m.handleLogsKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.help = newHelp(m.theme)
		m.prefs.Theme = m.theme.Name
		m.persist()
		m.updateDetailViewport()
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		if m.focused == paneTable {
			m.focused = paneDetail
		} else {
			m.focused = paneTable
		}
		m.updateDetailViewport()
		return m, nil
	case key.Matches(msg, m.keys.Logs):
		m.showLogs = true
		m.logs.GotoBottom()
		return m, loadLogCmd(m.daemonLog)
	case key.Matches(msg, m.keys.Resync):
		if m.syncer != nil {
			m.syncer.RequestResync()
		}
		m.setStatus("Resync requested", levelInfo)
		return m, nil
	case key.Matches(msg, m.keys.Faster):
		m.setRefresh(m.prefs.Refresh - refreshStep)
		return m, nil
	case key.Matches(msg, m.keys.Slower):
		m.setRefresh(m.prefs.Refresh + refreshStep)
		return m, nil
	case key.Matches(msg, m.keys.Filter):
		m.modal = newInputModal(promptFilter, "Filter", "Matches name, hash or directory; fuzzy on name. Empty clears.", m.prefs.Filter.Text)
		return m, textinput.Blink
	case key.Matches(msg, m.keys.StatusFilter):
		m.prefs.Filter.Status = m.prefs.Filter.Status.Next()
		m.changedView()
		return m, nil
	case key.Matches(msg, m.keys.ProgressFilter):
		m.prefs.Filter.Progress = m.prefs.Filter.Progress.Next()
		m.changedView()
		return m, nil
	case key.Matches(msg, m.keys.Sort):
		m.prefs.Sort = m.prefs.Sort.Next()
		m.changedView()
		return m, nil
	case key.Matches(msg, m.keys.SortDirection):
		m.prefs.SortDesc = !m.prefs.SortDesc
		m.changedView()
		return m, nil
	case key.Matches(msg, m.keys.Escape):
		if m.prefs.Filter.Text != "" {
			m.prefs.Filter.Text = ""
			m.changedView()
		}
		return m, nil
	}

	if next, cmd, ok := m.handleTorrentKey(msg); ok {
		return next, cmd
	}

	if m.focused == paneDetail {
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	m.moveSelection(msg)
	return m, nil
}

// moveSelection handles table navigation.
func (m *Model) moveSelection(msg tea.KeyMsg) {
	if len(m.rows) == 0 {
		return
	}
	row := m.selectedRow
	switch {
	case key.Matches(msg, m.keys.Down):
		row++
	case key.Matches(msg, m.keys.Up):
		row--
	case key.Matches(msg, m.keys.Top):
		row = 0
	case key.Matches(msg, m.keys.Bottom):
		row = len(m.rows) - 1
	default:
		return
	}
	m.selectRow(row)
}

func (m *Model) selectRow(row int) {
	row = min(max(row, 0), len(m.rows)-1)
	if m.rows[row].ID != m.selectedID {
		m.fileCursor = 0
	}
	m.selectedRow = row
	m.selectedID = m.rows[row].ID
	m.updateDetailViewport()
}

// selected returns the torrent under the cursor.
func (m Model) selected() (state.TorrentRecord, bool) {
	if m.selectedRow < 0 || m.selectedRow >= len(m.rows) {
		return state.TorrentRecord{}, false
	}
	return m.rows[m.selectedRow], true
}

// applyView installs a newly loaded view. A rate sample is recorded once
// per published revision, not once per tick.
func (m *Model) applyView(v state.View) {
	if v.Snapshot != nil && v.Revision() != m.view.Revision() {
		m.history.add(v.Snapshot.Stats.RateDown, v.Snapshot.Stats.RateUp)
	}
	unchanged := sameContent(m.view.Snapshot, v.Snapshot)
	m.view = v
	if !unchanged {
		m.refreshRows()
	}
}

// sameContent reports whether b renders exactly like a, so rows and the
// detail pane can be kept.
func sameContent(a, b *state.Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b || a.Digest == b.Digest
}

// refreshRows recomputes the filtered, sorted rows and keeps the cursor on
// the same torrent when it is still visible.
func (m *Model) refreshRows() {
	if m.view.Snapshot == nil {
		m.rows = nil
	} else {
		m.rows = m.prefs.Apply(m.view.Snapshot.Torrents)
	}
	if len(m.rows) == 0 {
		m.selectedRow = 0
		m.updateDetailViewport()
		return
	}
	for i, r := range m.rows {
		if r.ID == m.selectedID {
			m.selectedRow = i
			m.updateDetailViewport()
			return
		}
	}
	m.selectRow(m.selectedRow)
}

// changedView re-applies filter and sort after a preference change and
// persists it.
func (m *Model) changedView() {
	m.persist()
	m.refreshRows()
}

func (m *Model) setRefresh(d time.Duration) {
	// Stepping below the minimum pins to it rather than falling back to
	// the default.
	d = session.ClampRefresh(max(d, time.Millisecond))
	m.prefs.Refresh = d
	if m.syncer != nil {
		m.syncer.SetInterval(d)
	}
	m.persist()
	m.setStatus("Refresh every "+d.String(), levelInfo)
}

func (m *Model) persist() {
	if m.session != nil {
		m.session.Save(m.prefs)
	}
}

func (m *Model) setStatus(text string, level statusLevel) {
	m.status = statusLine{text: text, level: level, at: m.now()}
}

// resize lays out the panes for the current terminal size.
func (m *Model) resize() {
	_, _, dw, dh := m.paneSizes()
	m.detail.Width = max(dw-2, 1)
	m.detail.Height = max(dh-2, 1)
	m.logs.Width = max(m.width-2, 1)
	m.logs.Height = max(m.height-chromeHeight-2, 1)
}

// paneSizes splits the content area: side by side on very wide terminals,
// otherwise the table above the detail pane.
func (m Model) paneSizes() (tableW, tableH, detailW, detailH int) {
	contentH := max(m.height-chromeHeight, 4)
	if m.width >= LayoutSideBySideWidth {
		tableW = m.width * 65 / 100
		return tableW, contentH, m.width - tableW, contentH
	}
	tableH = max(contentH*55/100, 3)
	return m.width, tableH, m.width, contentH - tableH
}

// renderMain renders the table and detail panes.
func (m Model) renderMain() string {
	tw, th, dw, dh := m.paneSizes()

	tableFocused := m.focused == paneTable
	tableBg := m.theme.SurfaceAlt
	if tableFocused {
		tableBg = m.theme.FocusBg
	}
	table := m.renderTitledBox(m.tableTitle(), m.renderTorrentTable(tw-2, th-2, tableBg), tw, th, tableFocused)

	detailTitle := "Details"
	if rec, ok := m.selected(); ok {
		detailTitle = fmt.Sprintf("#%d %s", rec.ID, rec.Name)
	}
	detail := m.renderTitledBox(detailTitle, m.detail.View(), dw, dh, !tableFocused)

	if m.width >= LayoutSideBySideWidth {
		return lipgloss.JoinHorizontal(lipgloss.Top, table, detail)
	}
	return lipgloss.JoinVertical(lipgloss.Left, table, detail)
}

// Messages

type tickMsg time.Time

type noticeMsg string

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitNotice delivers the next application notice. It is re-armed after
// every notice.
func waitNotice(ctx context.Context, ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			return noticeMsg(n)
		case <-ctx.Done():
			return nil
		}
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or the
// context is cancelled.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if err != nil && m.ctx.Err() != nil {
		// Cancelled from outside, e.g. by a signal.
		return nil
	}
	return err
}
