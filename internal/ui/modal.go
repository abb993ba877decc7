package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Modal is a dialog drawn over the dashboard. Update returns the updated
// modal, a command, and whether the modal should close.
type Modal interface {
	Update(msg tea.KeyMsg) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// promptKind identifies what an input modal's value is for.
type promptKind int

const (
	promptAddSource promptKind = iota + 1
	promptAddDir
	promptMove
	promptLimit
	promptGlobalLimit
	promptFilter
)

// promptMsg carries a submitted input modal value back to the model.
type promptMsg struct {
	kind  promptKind
	value string
	ids   []int64
	carry string // value from an earlier step of the same flow
}

// inputModal asks for one line of text.
type inputModal struct {
	kind  promptKind
	title string
	hint  string
	ids   []int64
	carry string
	input textinput.Model
}

func newInputModal(kind promptKind, title, hint, value string, ids ...int64) *inputModal {
	ti := textinput.New()
	ti.Prompt = "› "
	ti.CharLimit = 4096
	ti.SetValue(value)
	ti.CursorEnd()
	ti.Focus()
	return &inputModal{kind: kind, title: title, hint: hint, ids: ids, input: ti}
}

func (m *inputModal) Update(msg tea.KeyMsg) (Modal, tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		return m, nil, true
	case "enter":
		result := promptMsg{kind: m.kind, value: strings.TrimSpace(m.input.Value()), ids: m.ids, carry: m.carry}
		return m, func() tea.Msg { return result }, true
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd, false
}

func (m *inputModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	boxWidth := min(max(width*2/3, 40), width-4)
	m.input.Width = boxWidth - 8

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	if m.hint != "" {
		b.WriteString("\n\n")
		b.WriteString(styles.FaintText.Render(m.hint))
	}
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render("enter confirm · esc cancel"))
	return placeModal(theme, b.String(), boxWidth, width, height)
}

// confirmModal asks a yes/no question and emits onYes when accepted.
type confirmModal struct {
	title string
	body  string
	onYes tea.Msg
}

func (m *confirmModal) Update(msg tea.KeyMsg) (Modal, tea.Cmd, bool) {
	switch msg.String() {
	case "y", "Y", "enter":
		yes := m.onYes
		return m, func() tea.Msg { return yes }, true
	case "n", "N", "esc", "q":
		return m, nil, true
	}
	return m, nil, false
}

func (m *confirmModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	var b strings.Builder
	b.WriteString(styles.DangerText.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(styles.Text.Render(m.body))
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render("y confirm · n cancel"))
	return placeModal(theme, b.String(), min(60, width-4), width, height)
}

// placeModal draws content in a rounded box centered on the screen.
func placeModal(theme Theme, content string, boxWidth, width, height int) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(1, 2).
		Width(boxWidth).
		Render(content)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)),
	)
}
