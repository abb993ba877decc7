package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// formatRate renders bytes per second.
func formatRate(bps int64) string {
	if bps <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bps)) + "/s"
}

// formatSize renders a byte count, or "-" when unknown.
func formatSize(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

// formatLimit renders a KiB/s limit; disabled or zero is unlimited.
func formatLimit(kib int64, enabled bool) string {
	if !enabled || kib <= 0 {
		return "∞"
	}
	return formatRate(kib * 1024)
}

// formatETA renders a remaining duration. Negative means unknown.
func formatETA(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		return fmt.Sprintf("%dd%dh", days, int(d.Hours())%24)
	}
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", clamp01(p)*100)
}

func formatRatio(r float64) string {
	if r < 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", r)
}

// progressBar draws p (0..1) in width cells.
func progressBar(p float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(clamp01(p) * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline scales samples against their maximum and keeps the newest
// width of them, left-padding with spaces when there are fewer.
func sparkline(samples []int64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	var peak int64
	for _, s := range samples {
		peak = max(peak, s)
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-len(samples)))
	top := int64(len(sparkLevels) - 1)
	for _, s := range samples {
		idx := int64(0)
		if peak > 0 && s > 0 {
			idx = s * top / peak
		}
		b.WriteRune(sparkLevels[idx])
	}
	return b.String()
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// historySize is the number of rate samples kept for the header sparkline.
const historySize = 60

// speedHistory is a fixed ring of session rate samples, one per published
// revision. It is a value type so Model copies never share it.
type speedHistory struct {
	down  [historySize]int64
	up    [historySize]int64
	next  int
	count int
}

func (h *speedHistory) add(down, up int64) {
	h.down[h.next] = down
	h.up[h.next] = up
	h.next = (h.next + 1) % historySize
	h.count = min(h.count+1, historySize)
}

// samples returns the recorded values oldest first.
func (h speedHistory) samples() (down, up []int64) {
	down = make([]int64, 0, h.count)
	up = make([]int64, 0, h.count)
	start := (h.next - h.count + historySize) % historySize
	for i := range h.count {
		j := (start + i) % historySize
		down = append(down, h.down[j])
		up = append(up, h.up[j])
	}
	return down, up
}
