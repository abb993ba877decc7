package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
)

// newHelp builds a help model styled for the theme.
func newHelp(theme Theme) help.Model {
	h := help.New()
	h.ShortSeparator = " · "
	h.FullSeparator = "    "
	key := lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Warning))
	desc := lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Muted))
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Faint))
	h.Styles = help.Styles{
		ShortKey:       key,
		ShortDesc:      desc,
		ShortSeparator: sep,
		FullKey:        key,
		FullDesc:       lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Text)),
		FullSeparator:  sep,
		Ellipsis:       sep,
	}
	return h
}

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")
	b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render("Limits are KiB/s as \"DOWN UP\"; - keeps a value, 0 removes it."))
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render("Press any key to close."))

	content := b.String()
	return placeModal(m.theme, content, min(lipgloss.Width(content)+6, m.width-4), m.width, m.height)
}
