package session

import (
	"cmp"
	"slices"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/five82/torsh/internal/state"
)

// doneThreshold matches the progress column, which shows 100% from 99.9%.
const doneThreshold = 0.999

// Match reports whether rec passes every part of the filter.
func (f Filter) Match(rec state.TorrentRecord) bool {
	return f.matchStatus(rec) && f.matchProgress(rec) && f.matchText(rec)
}

func (f Filter) matchStatus(rec state.TorrentRecord) bool {
	switch f.Status {
	case StatusActive:
		switch rec.Status {
		case state.StatusDownloading, state.StatusSeeding, state.StatusChecking:
			return true
		}
		return false
	case StatusPaused:
		return rec.Status == state.StatusPaused
	case StatusError:
		return rec.Status == state.StatusError
	case StatusDownloading:
		return rec.Status == state.StatusDownloading
	case StatusSeeding:
		return rec.Status == state.StatusSeeding
	case StatusQueued:
		return rec.Status == state.StatusQueued
	case StatusChecking:
		return rec.Status == state.StatusChecking
	default:
		return true
	}
}

func (f Filter) matchProgress(rec state.TorrentRecord) bool {
	switch f.Progress {
	case ProgressDone:
		return rec.Progress >= doneThreshold
	case ProgressUnder50:
		return rec.Progress < 0.5
	default:
		return true
	}
}

// matchText tries a plain substring first and falls back to a fuzzy match
// on the name, so "ubu2404" still finds "ubuntu-24.04-desktop".
func (f Filter) matchText(rec state.TorrentRecord) bool {
	query := strings.TrimSpace(f.Text)
	if query == "" {
		return true
	}
	lower := strings.ToLower(query)
	for _, field := range []string{rec.Name, rec.Hash, rec.DownloadDir} {
		if field != "" && strings.Contains(strings.ToLower(field), lower) {
			return true
		}
	}
	return fuzzy.MatchNormalizedFold(query, rec.Name)
}

// Active reports whether the filter hides anything.
func (f Filter) Active() bool {
	return strings.TrimSpace(f.Text) != "" ||
		(f.Status != "" && f.Status != StatusAny) ||
		(f.Progress != "" && f.Progress != ProgressAny)
}

// Apply returns the records that pass the filter, ordered by the sort key.
// Equal keys keep id order. records is not modified.
func (s State) Apply(records []state.TorrentRecord) []state.TorrentRecord {
	out := make([]state.TorrentRecord, 0, len(records))
	for _, rec := range records {
		if s.Filter.Match(rec) {
			out = append(out, rec)
		}
	}

	compare := comparator(s.Sort)
	slices.SortStableFunc(out, func(a, b state.TorrentRecord) int {
		c := compare(a, b)
		if s.SortDesc {
			c = -c
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		return c
	})
	return out
}

func comparator(key SortKey) func(a, b state.TorrentRecord) int {
	switch key {
	case SortID:
		return func(a, b state.TorrentRecord) int { return cmp.Compare(a.ID, b.ID) }
	case SortProgress:
		return func(a, b state.TorrentRecord) int { return cmp.Compare(a.Progress, b.Progress) }
	case SortETA:
		// An unknown ETA is longer than any known one.
		return func(a, b state.TorrentRecord) int {
			ea, eb := a.ETA, b.ETA
			switch {
			case ea < 0 && eb < 0:
				return 0
			case ea < 0:
				return 1
			case eb < 0:
				return -1
			}
			return cmp.Compare(ea, eb)
		}
	case SortDown:
		return func(a, b state.TorrentRecord) int { return cmp.Compare(a.RateDown, b.RateDown) }
	case SortUp:
		return func(a, b state.TorrentRecord) int { return cmp.Compare(a.RateUp, b.RateUp) }
	case SortRatio:
		return func(a, b state.TorrentRecord) int { return cmp.Compare(a.Ratio, b.Ratio) }
	case SortStatus:
		return func(a, b state.TorrentRecord) int { return cmp.Compare(a.Status.String(), b.Status.String()) }
	case SortSize:
		return func(a, b state.TorrentRecord) int { return cmp.Compare(a.Size, b.Size) }
	case SortAdded:
		return func(a, b state.TorrentRecord) int { return a.AddedAt.Compare(b.AddedAt) }
	default:
		return func(a, b state.TorrentRecord) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	}
}
