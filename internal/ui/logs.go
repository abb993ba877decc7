package ui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/torsh/internal/logtail"
)

// logMsg carries a fresh tail of the daemon log.
type logMsg struct {
	content string
}

// loadLogCmd reads the end of the daemon log off the UI goroutine.
func loadLogCmd(path string) tea.Cmd {
	return func() tea.Msg {
		return logMsg{content: logtail.String(path, LogTailLines)}
	}
}

func (m *Model) initLogViewport() {
	m.logs = viewport.New(max(m.width-2, 1), max(m.height-chromeHeight-2, 1))
}

// handleLogMsg replaces the log content, staying pinned to the bottom when
// the reader was already there.
func (m *Model) handleLogMsg(msg logMsg) {
	atBottom := m.logs.AtBottom() || m.logs.TotalLineCount() == 0
	content := msg.content
	if content == "" {
		content = m.theme.Styles().MutedText.Render("No daemon output yet at " + m.daemonLog)
	}
	m.logs.SetContent(content)
	if atBottom {
		m.logs.GotoBottom()
	}
}

// handleLogsKey scrolls the log overlay; esc, q or l closes it.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "l":
		m.showLogs = false
		return m, nil
	case "g", "home":
		m.logs.GotoTop()
		return m, nil
	case "G", "end":
		m.logs.GotoBottom()
		return m, nil
	}
	var cmd tea.Cmd
	m.logs, cmd = m.logs.Update(msg)
	return m, cmd
}

func (m Model) renderLogs() string {
	title := "Daemon log " + truncateMiddle(m.daemonLog, max(m.width-20, 10))
	return m.renderTitledBox(title, m.logs.View(), m.width, m.height-chromeHeight, true)
}
