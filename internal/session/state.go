package session

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/five82/torsh/internal/config"
)

// Defaults for a missing or unreadable session file.
const (
	DefaultRefresh = 2500 * time.Millisecond
	DefaultTheme   = "Nightfox"
	DefaultSort    = SortName
)

// StatusFilter restricts the table to torrents in a given state.
type StatusFilter string

const (
	StatusAny         StatusFilter = "any"
	StatusActive      StatusFilter = "active"
	StatusPaused      StatusFilter = "paused"
	StatusError       StatusFilter = "error"
	StatusDownloading StatusFilter = "downloading"
	StatusSeeding     StatusFilter = "seeding"
	StatusQueued      StatusFilter = "queued"
	StatusChecking    StatusFilter = "checking"
)

var statusFilters = []StatusFilter{
	StatusAny, StatusActive, StatusPaused, StatusError,
	StatusDownloading, StatusSeeding, StatusQueued, StatusChecking,
}

// Next cycles through the status filters in display order.
func (f StatusFilter) Next() StatusFilter {
	return cycle(statusFilters, f)
}

// ProgressFilter restricts the table by completion.
type ProgressFilter string

const (
	ProgressAny     ProgressFilter = "any"
	ProgressDone    ProgressFilter = "done"
	ProgressUnder50 ProgressFilter = "under50"
)

var progressFilters = []ProgressFilter{ProgressAny, ProgressDone, ProgressUnder50}

func (f ProgressFilter) Next() ProgressFilter {
	return cycle(progressFilters, f)
}

// SortKey names the column the table is ordered by.
type SortKey string

const (
	SortID       SortKey = "id"
	SortName     SortKey = "name"
	SortProgress SortKey = "progress"
	SortETA      SortKey = "eta"
	SortDown     SortKey = "down"
	SortUp       SortKey = "up"
	SortRatio    SortKey = "ratio"
	SortStatus   SortKey = "status"
	SortSize     SortKey = "size"
	SortAdded    SortKey = "added"
)

var sortKeys = []SortKey{
	SortID, SortName, SortProgress, SortETA, SortDown,
	SortUp, SortRatio, SortStatus, SortSize, SortAdded,
}

func (k SortKey) Next() SortKey {
	return cycle(sortKeys, k)
}

// Filter is the table's row predicate.
type Filter struct {
	Text     string
	Status   StatusFilter
	Progress ProgressFilter
}

// State is the UI state that survives restarts.
type State struct {
	Filter      Filter
	Sort        SortKey
	SortDesc    bool
	Refresh     time.Duration
	DownloadDir string
	Theme       string
}

// Defaults returns the state used when nothing has been saved.
func Defaults() State {
	return State{
		Filter:  Filter{Status: StatusAny, Progress: ProgressAny},
		Sort:    DefaultSort,
		Refresh: DefaultRefresh,
		Theme:   DefaultTheme,
	}
}

// ClampRefresh bounds d to the allowed sync interval range. Zero or negative
// values select the default.
func ClampRefresh(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultRefresh
	}
	secs := config.ClampRefresh(d.Seconds())
	return time.Duration(math.Round(secs * float64(time.Second)))
}

// Normalize replaces unknown or out-of-range values with defaults.
func (s State) Normalize() State {
	if !slices.Contains(statusFilters, s.Filter.Status) {
		s.Filter.Status = StatusAny
	}
	if !slices.Contains(progressFilters, s.Filter.Progress) {
		s.Filter.Progress = ProgressAny
	}
	if !slices.Contains(sortKeys, s.Sort) {
		s.Sort = DefaultSort
	}
	s.Refresh = ClampRefresh(s.Refresh)
	s.DownloadDir = strings.TrimSpace(s.DownloadDir)
	if strings.TrimSpace(s.Theme) == "" {
		s.Theme = DefaultTheme
	}
	return s
}

// fileState is the on-disk TOML layout.
type fileState struct {
	FilterText     string  `toml:"filter_text"`
	StatusFilter   string  `toml:"status_filter"`
	ProgressFilter string  `toml:"progress_filter"`
	SortKey        string  `toml:"sort_key"`
	SortDesc       bool    `toml:"sort_desc"`
	Refresh        float64 `toml:"refresh"` // seconds
	DownloadDir    string  `toml:"download_dir"`
	Theme          string  `toml:"theme"`
}

func toFile(s State) fileState {
	return fileState{
		FilterText:     s.Filter.Text,
		StatusFilter:   string(s.Filter.Status),
		ProgressFilter: string(s.Filter.Progress),
		SortKey:        string(s.Sort),
		SortDesc:       s.SortDesc,
		Refresh:        s.Refresh.Seconds(),
		DownloadDir:    s.DownloadDir,
		Theme:          s.Theme,
	}
}

func fromFile(f fileState) State {
	return State{
		Filter: Filter{
			Text:     f.FilterText,
			Status:   StatusFilter(strings.ToLower(strings.TrimSpace(f.StatusFilter))),
			Progress: ProgressFilter(strings.ToLower(strings.TrimSpace(f.ProgressFilter))),
		},
		Sort:        SortKey(strings.ToLower(strings.TrimSpace(f.SortKey))),
		SortDesc:    f.SortDesc,
		Refresh:     time.Duration(f.Refresh * float64(time.Second)),
		DownloadDir: f.DownloadDir,
		Theme:       f.Theme,
	}.Normalize()
}

func cycle[T comparable](order []T, cur T) T {
	return order[(slices.Index(order, cur)+1)%len(order)]
}
