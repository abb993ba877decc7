package state

import (
	"sort"
	"strings"
	"time"
)

// CompleteThreshold is the progress at which a torrent counts as finished.
// Float rounding in the daemon's percentDone can leave it just under 1.
const CompleteThreshold = 0.9999

// Status is the dashboard's view of a torrent's activity.
type Status int

const (
	StatusQueued Status = iota
	StatusChecking
	StatusDownloading
	StatusSeeding
	StatusPaused
	StatusError
)

var statusNames = [...]string{"queued", "checking", "downloading", "seeding", "paused", "error"}

func (s Status) String() string {
	if int(s) < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// ParseStatus maps a status name back to its value.
func ParseStatus(name string) (Status, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range statusNames {
		if n == name {
			return Status(i), true
		}
	}
	return 0, false
}

// Priority is a file download priority.
type Priority int

const (
	PrioritySkip Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
)

var priorityNames = [...]string{"skip", "low", "normal", "high"}

func (p Priority) String() string {
	if !p.Valid() {
		return "invalid"
	}
	return priorityNames[p]
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p >= PrioritySkip && p <= PriorityHigh
}

// Next cycles skip → low → normal → high → skip.
func (p Priority) Next() Priority {
	return (p + 1) % Priority(len(priorityNames))
}

// FileRecord is one file inside a torrent.
type FileRecord struct {
	Index     int
	Path      string
	Size      int64
	Completed float64
	Priority  Priority
}

// TrackerRecord is one tracker's last announce.
type TrackerRecord struct {
	Announce              string
	Host                  string
	LastAnnounceResult    string
	LastAnnounceSucceeded bool
	LastAnnouncePeerCount int
	Seeders               int
	Leechers              int
}

// TorrentRecord is an immutable view of one torrent. It is replaced wholesale
// by the next snapshot.
type TorrentRecord struct {
	ID           int64
	Hash         string
	Name         string
	Status       Status
	Progress     float64
	RateDown     int64
	RateUp       int64
	Size         int64
	Left         int64
	ETA          time.Duration // negative when unknown
	Ratio        float64
	DownloadDir  string
	AddedAt      time.Time
	DoneAt       time.Time
	Peers        int
	PeersSending int
	PeersGetting int

	// Per-torrent limits in KiB/s, applied only when the Limited flag is set.
	DownloadLimit   int64
	DownloadLimited bool
	UploadLimit     int64
	UploadLimited   bool

	Files        []FileRecord
	Trackers     []TrackerRecord
	ErrorMessage string
}

// Complete reports whether the torrent has all wanted data. A torrent being
// re-verified is not complete until the check finishes.
func (r TorrentRecord) Complete() bool {
	return r.Progress >= CompleteThreshold && r.Status != StatusChecking
}

// Active reports whether data is moving or the torrent is busy.
func (r TorrentRecord) Active() bool {
	switch r.Status {
	case StatusDownloading, StatusChecking:
		return true
	case StatusSeeding:
		return r.RateUp > 0 || r.PeersGetting > 0
	default:
		return false
	}
}

// Stats aggregates session-wide numbers.
type Stats struct {
	RateDown  int64
	RateUp    int64
	Active    int
	Paused    int
	Total     int
	FreeSpace int64 // -1 when unknown
}

// SessionInfo carries daemon-wide settings.
type SessionInfo struct {
	Version               string
	RPCVersion            int
	DownloadDir           string
	SpeedLimitDown        int64
	SpeedLimitDownEnabled bool
	SpeedLimitUp          int64
	SpeedLimitUpEnabled   bool
}

// Snapshot is the published state of the daemon at one instant. Once
// published it is never modified.
type Snapshot struct {
	Revision  uint64
	Torrents  []TorrentRecord // ordered by ID
	Stats     Stats
	Session   SessionInfo
	FetchedAt time.Time
	Digest    uint64
}

// Torrent looks up a record by id.
func (s *Snapshot) Torrent(id int64) (TorrentRecord, bool) {
	if s == nil {
		return TorrentRecord{}, false
	}
	i := sort.Search(len(s.Torrents), func(i int) bool { return s.Torrents[i].ID >= id })
	if i < len(s.Torrents) && s.Torrents[i].ID == id {
		return s.Torrents[i], true
	}
	return TorrentRecord{}, false
}

// CompletionEvent fires once per transition into the complete state.
type CompletionEvent struct {
	ID          int64
	Name        string
	DownloadDir string
	Revision    uint64
	At          time.Time
}

// Health describes how fresh the current snapshot is.
type Health struct {
	StaleSince          time.Time
	LastError           error
	LastAttempt         time.Time
	ConsecutiveFailures int
}

// Stale reports whether the last sync attempt failed.
func (h Health) Stale() bool {
	return !h.StaleSince.IsZero()
}

// IsOffline returns true when the daemon has been unreachable for multiple cycles.
func (h Health) IsOffline() bool {
	return h.ConsecutiveFailures >= 2
}

// View pairs the current snapshot with its health. Snapshot is nil until the
// first successful sync.
type View struct {
	Snapshot *Snapshot
	Health   Health
}

// Revision returns the snapshot revision, or zero before the first publish.
func (v View) Revision() uint64 {
	if v.Snapshot == nil {
		return 0
	}
	return v.Snapshot.Revision
}
