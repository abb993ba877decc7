package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/torsh/internal/state"
)

// renderDetailContent builds the detail pane for one torrent. It returns
// the rendered lines and the index of the line holding the file cursor, or
// -1 when the torrent has no files.
func (m Model) renderDetailContent(rec state.TorrentRecord, width int, bgColor string) (string, int) {
	styles := m.theme.Styles()
	bg := NewBgStyle(bgColor)
	label := func(s string) string { return bg.Render(padRight(s, 9), styles.MutedText) }
	value := func(s string, st lipgloss.Style) string { return bg.Render(s, st) }

	var lines []string
	add := func(parts ...string) { lines = append(lines, strings.Join(parts, "")) }

	add(bg.Render(truncate(rec.Name, width), styles.Text.Bold(true)))
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(rec.Status)))
	barWidth := min(max(width-36, 8), 30)
	add(label("Status"), value(padRight(rec.Status.String(), 12), statusStyle),
		value(padLeft(formatPercent(rec.Progress), 7), styles.Text), bg.Space(),
		value(progressBar(rec.Progress, barWidth), statusStyle))
	add(label("Size"), value(formatSize(rec.Size), styles.Text),
		bg.Render("  left ", styles.MutedText), value(formatSize(rec.Left), styles.Text),
		bg.Render("  eta ", styles.MutedText), value(etaOrDash(rec), styles.Text))
	add(label("Rates"), value("↓ "+formatRate(rec.RateDown), styles.DownText),
		bg.Spaces(2), value("↑ "+formatRate(rec.RateUp), styles.UpText),
		bg.Render("  ratio ", styles.MutedText), value(formatRatio(rec.Ratio), styles.Text))
	add(label("Peers"), value(fmt.Sprintf("%d connected, %d sending, %d getting", rec.Peers, rec.PeersSending, rec.PeersGetting), styles.Text))
	add(label("Limits"), value("↓ "+formatLimit(rec.DownloadLimit, rec.DownloadLimited), styles.Text),
		bg.Spaces(2), value("↑ "+formatLimit(rec.UploadLimit, rec.UploadLimited), styles.Text))
	add(label("Dir"), value(truncateMiddle(rec.DownloadDir, max(width-9, 10)), styles.Text))
	if !rec.AddedAt.IsZero() {
		added := rec.AddedAt.Local().Format("2006-01-02 15:04")
		if !rec.DoneAt.IsZero() {
			added += "  done " + rec.DoneAt.Local().Format("2006-01-02 15:04")
		}
		add(label("Added"), value(added, styles.Text))
	}
	add(label("Hash"), value(rec.Hash, styles.FaintText))
	if rec.ErrorMessage != "" {
		add(label("Error"), value(truncate(rec.ErrorMessage, max(width-9, 10)), styles.DangerText))
	}

	cursorLine := -1
	add("")
	add(bg.Render(fmt.Sprintf("Files (%d)", len(rec.Files)), styles.AccentText.Bold(true)))
	cursor := m.clampedFileCursor(rec)
	nameWidth := max(width-30, 10)
	for i, f := range rec.Files {
		marker, style := "  ", styles.Text
		if i == cursor {
			marker, style = "› ", styles.Text.Bold(true)
			cursorLine = len(lines)
		}
		if f.Priority == state.PrioritySkip {
			style = styles.FaintText
		}
		add(bg.Render(marker, styles.AccentText),
			value(padRight(f.Priority.String(), 7), priorityStyle(f.Priority, styles)),
			value(padLeft(formatPercent(f.Completed), 7), styles.MutedText), bg.Space(),
			value(padLeft(formatSize(f.Size), 10), styles.MutedText), bg.Space(),
			value(truncateMiddle(f.Path, nameWidth), style))
	}

	add("")
	add(bg.Render(fmt.Sprintf("Trackers (%d)", len(rec.Trackers)), styles.AccentText.Bold(true)))
	for _, t := range rec.Trackers {
		resultStyle := styles.SuccessText
		if !t.LastAnnounceSucceeded {
			resultStyle = styles.WarningText
		}
		host := t.Host
		if host == "" {
			host = t.Announce
		}
		result := t.LastAnnounceResult
		if result == "" {
			result = "-"
		}
		add(bg.Space(), bg.Space(), value(padRight(truncateMiddle(host, 28), 29), styles.Text),
			value(fmt.Sprintf("S %-5d L %-5d ", t.Seeders, t.Leechers), styles.MutedText),
			value(truncate(result, max(width-46, 8)), resultStyle))
	}

	return strings.Join(lines, "\n"), cursorLine
}

func priorityStyle(p state.Priority, styles Styles) lipgloss.Style {
	switch p {
	case state.PriorityHigh:
		return styles.WarningText
	case state.PriorityLow:
		return styles.InfoText
	case state.PrioritySkip:
		return styles.FaintText
	default:
		return styles.Text
	}
}

func etaOrDash(rec state.TorrentRecord) string {
	if rec.Complete() {
		return "done"
	}
	return formatETA(rec.ETA)
}

// clampedFileCursor keeps the cursor inside the torrent's file list.
func (m Model) clampedFileCursor(rec state.TorrentRecord) int {
	if len(rec.Files) == 0 {
		return -1
	}
	return min(max(m.fileCursor, 0), len(rec.Files)-1)
}

// updateDetailViewport re-renders the detail content and scrolls the file
// cursor into view.
func (m *Model) updateDetailViewport() {
	if !m.ready {
		return
	}
	rec, ok := m.selected()
	if !ok {
		m.detail.SetContent(m.theme.Styles().MutedText.Render("Select a torrent"))
		m.detail.GotoTop()
		return
	}
	content, cursorLine := m.renderDetailContent(rec, m.detail.Width, m.detailBg())
	m.detail.SetContent(content)
	if cursorLine >= 0 && (cursorLine < m.detail.YOffset || cursorLine >= m.detail.YOffset+m.detail.Height) {
		m.detail.SetYOffset(max(cursorLine-m.detail.Height/2, 0))
	}
}

func (m Model) detailBg() string {
	if m.focused == paneDetail {
		return m.theme.FocusBg
	}
	return m.theme.SurfaceAlt
}
