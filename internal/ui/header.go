package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/torsh/internal/session"
)

// renderHeader renders the status bar: connection state, rates with their
// history, counts, free space, global limits and the revision.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth
	sep := "  "

	parts := []string{bg.Render("torsh", styles.Logo), m.connectionBadge(styles, bg)}

	snap := m.view.Snapshot
	if snap == nil {
		if err := m.view.Health.LastError; err != nil {
			parts = append(parts, bg.Render(truncate(err.Error(), max(m.width-40, 20)), styles.DangerText))
		} else {
			parts = append(parts, bg.Render("Connecting to "+m.endpoint+"…", styles.WarningText))
		}
		return styles.Header.Width(m.width).Render(bg.Join(parts, sep))
	}

	stats := snap.Stats
	down, up := m.history.samples()
	rates := bg.Render("↓ "+formatRate(stats.RateDown), styles.DownText) + bg.Space() +
		bg.Render("↑ "+formatRate(stats.RateUp), styles.UpText)
	parts = append(parts, rates)
	if !compact {
		parts = append(parts,
			bg.Render(sparkline(down, sparkWidth), styles.DownText)+bg.Space()+
				bg.Render(sparkline(up, sparkWidth/2), styles.UpText))
	}

	parts = append(parts,
		bg.Render("Active", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", stats.Active), styles.Text)+
			bg.Render(" · ", styles.FaintText)+
			bg.Render("Paused", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", stats.Paused), styles.Text)+
			bg.Render(" · ", styles.FaintText)+
			bg.Render("Total", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", stats.Total), styles.Text))

	if stats.FreeSpace >= 0 {
		parts = append(parts, bg.Render("Free", styles.MutedText)+bg.Space()+bg.Render(formatSize(stats.FreeSpace), styles.Text))
	}
	if !compact {
		s := snap.Session
		parts = append(parts, bg.Render("Limit", styles.MutedText)+bg.Space()+
			bg.Render("↓"+formatLimit(s.SpeedLimitDown, s.SpeedLimitDownEnabled)+" ↑"+formatLimit(s.SpeedLimitUp, s.SpeedLimitUpEnabled), styles.Text))
	}
	parts = append(parts,
		bg.Render(fmt.Sprintf("rev %d", snap.Revision), styles.FaintText),
		bg.Render(fmt.Sprintf("%.1fs", m.prefs.Refresh.Seconds()), styles.FaintText))

	if h := m.view.Health; h.Stale() && h.LastError != nil && !compact {
		parts = append(parts, bg.Render(truncate(h.LastError.Error(), 60), styles.DangerText))
	}

	return styles.Header.Width(m.width).MaxHeight(1).Render(bg.Join(parts, sep))
}

// connectionBadge shows ONLINE, STALE with the time of the last good sync,
// or OFFLINE once failures repeat.
func (m Model) connectionBadge(styles Styles, bg BgStyle) string {
	h := m.view.Health
	switch {
	case h.IsOffline():
		return bg.Render("● OFFLINE", styles.DangerText)
	case h.Stale():
		return bg.Render("● STALE", styles.WarningText.Bold(true)) + bg.Space() +
			bg.Render("since "+h.StaleSince.Local().Format("15:04:05"), styles.MutedText)
	case m.view.Snapshot == nil:
		return bg.Render("● …", styles.MutedText)
	default:
		return bg.Render("● ONLINE", styles.SuccessText)
	}
}

// renderCommandBar shows the active filter and sort on the left and the
// most used keys on the right.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Background)

	summary := bg.Render(filterSummary(m.prefs), styles.InfoText)
	hints := m.help.ShortHelpView(m.keys.ShortHelp())
	gap := max(m.width-lipgloss.Width(summary)-lipgloss.Width(hints)-2, 1)
	return bg.FillLine(bg.Space()+summary+bg.Spaces(gap)+hints, m.width)
}

// filterSummary describes the filter and sort, e.g.
// "sort name ▲ · status active · text \"ubu\"".
func filterSummary(st session.State) string {
	parts := []string{"sort " + string(st.Sort) + " " + sortArrow(st.SortDesc)}
	if st.Filter.Status != session.StatusAny {
		parts = append(parts, "status "+string(st.Filter.Status))
	}
	if st.Filter.Progress != session.ProgressAny {
		parts = append(parts, "progress "+string(st.Filter.Progress))
	}
	if st.Filter.Text != "" {
		parts = append(parts, fmt.Sprintf("text %q", st.Filter.Text))
	}
	return strings.Join(parts, " · ")
}

// statusLevel picks the status line color.
type statusLevel int

const (
	levelInfo statusLevel = iota
	levelSuccess
	levelWarn
	levelError
)

type statusLine struct {
	text  string
	level statusLevel
	at    time.Time
}

// renderStatusLine shows the latest command outcome or notice, and the
// number of commands still in flight.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	var parts []string
	if m.pending > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("⋯ %d pending", m.pending), styles.MutedText))
	}
	if m.status.text != "" && m.now().Sub(m.status.at) < statusTTL {
		style := styles.Text
		switch m.status.level {
		case levelSuccess:
			style = styles.SuccessText
		case levelWarn:
			style = styles.WarningText
		case levelError:
			style = styles.DangerText
		}
		parts = append(parts, bg.Render(truncate(m.status.text, max(m.width-20, 20)), style))
	}
	return styles.Footer.Width(m.width).MaxHeight(1).Render(bg.Join(parts, "  "))
}
