package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/torsh/internal/session"
	"github.com/five82/torsh/internal/state"
)

// column is one fixed-width table column. The name column is the only
// flexible one and takes whatever width is left.
type column struct {
	title    string
	sort     session.SortKey
	width    int
	minWidth int // hidden below this terminal width
	right    bool
	cell     func(state.TorrentRecord) string
}

var torrentColumns = []column{
	{title: "ID", sort: session.SortID, width: 5, right: true,
		cell: func(r state.TorrentRecord) string { return fmt.Sprintf("%d", r.ID) }},
	{title: "Name", sort: session.SortName},
	{title: "Status", sort: session.SortStatus, width: 12,
		cell: func(r state.TorrentRecord) string { return r.Status.String() }},
	{title: "Done", sort: session.SortProgress, width: 7, right: true,
		cell: func(r state.TorrentRecord) string { return formatPercent(r.Progress) }},
	{title: "Size", sort: session.SortSize, width: 10, right: true, minWidth: LayoutCompactWidth,
		cell: func(r state.TorrentRecord) string { return formatSize(r.Size) }},
	{title: "Down", sort: session.SortDown, width: 11, right: true,
		cell: func(r state.TorrentRecord) string { return rateCell(r.RateDown) }},
	{title: "Up", sort: session.SortUp, width: 11, right: true, minWidth: LayoutCompactWidth,
		cell: func(r state.TorrentRecord) string { return rateCell(r.RateUp) }},
	{title: "ETA", sort: session.SortETA, width: 8, right: true,
		cell: func(r state.TorrentRecord) string { return etaCell(r) }},
	{title: "Ratio", sort: session.SortRatio, width: 6, right: true, minWidth: LayoutCompactWidth,
		cell: func(r state.TorrentRecord) string { return formatRatio(r.Ratio) }},
	{title: "Added", sort: session.SortAdded, width: 10, right: true, minWidth: LayoutWideWidth,
		cell: func(r state.TorrentRecord) string {
			if r.AddedAt.IsZero() {
				return "-"
			}
			return r.AddedAt.Local().Format("2006-01-02")
		}},
}

func rateCell(bps int64) string {
	if bps <= 0 {
		return ""
	}
	return formatRate(bps)
}

func etaCell(r state.TorrentRecord) string {
	if r.Complete() {
		return ""
	}
	if r.Status != state.StatusDownloading {
		return "-"
	}
	return formatETA(r.ETA)
}

// layoutColumns picks the columns that fit the terminal and sizes the name
// column from the remaining width.
func layoutColumns(termWidth, tableWidth int) []column {
	cols := make([]column, 0, len(torrentColumns))
	fixed := 0
	for _, c := range torrentColumns {
		if c.minWidth > termWidth {
			continue
		}
		cols = append(cols, c)
		fixed += c.width + 1
	}
	for i := range cols {
		if cols[i].sort == session.SortName {
			cols[i].width = max(tableWidth-fixed, 10)
		}
	}
	return cols
}

// renderTorrentTable renders the header row and the visible window of rows.
func (m Model) renderTorrentTable(width, height int, bgColor string) string {
	cols := layoutColumns(m.tableTermWidth(), width)
	bg := NewBgStyle(bgColor)
	styles := m.theme.Styles()

	var lines []string
	lines = append(lines, bg.FillLine(m.renderTableHeader(cols, bg, styles), width))

	visible := max(height-1, 1)
	if len(m.rows) == 0 {
		lines = append(lines, bg.FillLine(bg.Render(m.emptyTableMessage(), styles.MutedText), width))
		return strings.Join(lines, "\n")
	}

	start := 0
	if m.selectedRow >= visible {
		start = m.selectedRow - visible + 1
	}
	end := min(start+visible, len(m.rows))
	for i := start; i < end; i++ {
		rec := m.rows[i]
		if i == m.selectedRow {
			sel := NewBgStyle(m.theme.SelectionBg)
			text := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText))
			lines = append(lines, sel.FillLine(m.formatRow(rec, cols, sel, func(column) lipgloss.Style { return text }), width))
			continue
		}
		lines = append(lines, bg.FillLine(m.formatRow(rec, cols, bg, m.cellStyle(rec, styles)), width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTableHeader(cols []column, bg BgStyle, styles Styles) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		title := c.title
		style := styles.MutedText.Bold(true)
		if c.sort == m.prefs.Sort {
			title += sortArrow(m.prefs.SortDesc)
			style = styles.AccentText.Bold(true)
		}
		parts = append(parts, bg.Render(fit(title, c.width, c.right), style))
	}
	return strings.Join(parts, bg.Space())
}

func sortArrow(desc bool) string {
	if desc {
		return "▼"
	}
	return "▲"
}

func (m Model) formatRow(rec state.TorrentRecord, cols []column, bg BgStyle, style func(column) lipgloss.Style) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		var text string
		if c.cell != nil {
			text = c.cell(rec)
		} else {
			text = rec.Name
		}
		parts = append(parts, bg.Render(fit(text, c.width, c.right), style(c)))
	}
	return strings.Join(parts, bg.Space())
}

// cellStyle colors the status column by status and dims idle rates.
func (m Model) cellStyle(rec state.TorrentRecord, styles Styles) func(column) lipgloss.Style {
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(rec.Status)))
	return func(c column) lipgloss.Style {
		switch c.sort {
		case session.SortStatus:
			return statusStyle
		case session.SortID, session.SortAdded:
			return styles.MutedText
		case session.SortDown:
			return styles.DownText
		case session.SortUp:
			return styles.UpText
		default:
			return styles.Text
		}
	}
}

func (m Model) emptyTableMessage() string {
	switch {
	case m.view.Snapshot == nil:
		return "Waiting for the first sync…"
	case len(m.view.Snapshot.Torrents) == 0:
		return "No torrents. Press a to add one."
	default:
		return "No torrents match the filter. Press esc to clear it."
	}
}

// tableTitle returns the table pane title with the visible count.
func (m Model) tableTitle() string {
	total := 0
	if m.view.Snapshot != nil {
		total = len(m.view.Snapshot.Torrents)
	}
	if !m.prefs.Filter.Active() {
		return fmt.Sprintf("Torrents (%d)", total)
	}
	return fmt.Sprintf("Torrents (%d/%d)", len(m.rows), total)
}

func (m Model) tableTermWidth() int {
	if m.width >= LayoutSideBySideWidth {
		return m.width * 65 / 100
	}
	return m.width
}

// renderTitledBox renders content in a box with the title embedded in the
// top border: ┌─── Title ───┐
func (m Model) renderTitledBox(title, content string, width, height int, focused bool) string {
	borderColor, bgColor := m.theme.Border, m.theme.SurfaceAlt
	if focused {
		borderColor, bgColor = m.theme.BorderFocus, m.theme.FocusBg
	}
	bg := NewBgStyle(bgColor)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColor))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text))

	innerWidth := max(width-2, 0)
	title = truncate(title, max(innerWidth-4, 1))
	titleLen := lipgloss.Width(title)
	leftPad := max((innerWidth-titleLen-2)/2, 0)
	rightPad := max(innerWidth-titleLen-2-leftPad, 0)

	top := bg.Render("┌"+strings.Repeat("─", leftPad), borderStyle) +
		bg.Render(" "+title+" ", titleStyle) +
		bg.Render(strings.Repeat("─", rightPad)+"┐", borderStyle)
	bottom := bg.Render("└"+strings.Repeat("─", innerWidth)+"┘", borderStyle)

	contentStyle := lipgloss.NewStyle().Width(innerWidth).MaxWidth(innerWidth).Background(lipgloss.Color(bgColor))
	contentLines := strings.Split(content, "\n")
	boxHeight := max(height-2, 0)
	lines := make([]string, 0, boxHeight+2)
	lines = append(lines, top)
	for i := range boxHeight {
		var line string
		if i < len(contentLines) {
			line = contentLines[i]
		}
		lines = append(lines, bg.Render("│", borderStyle)+contentStyle.Render(line)+bg.Render("│", borderStyle))
	}
	lines = append(lines, bottom)
	return strings.Join(lines, "\n")
}
