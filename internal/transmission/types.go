package transmission

import "encoding/json"

type rpcRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
	Tag       uint64 `json:"tag,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
	Tag       uint64          `json:"tag"`
}

// Torrent status codes reported by the daemon.
const (
	StatusStopped      = 0
	StatusCheckWait    = 1
	StatusChecking     = 2
	StatusDownloadWait = 3
	StatusDownloading  = 4
	StatusSeedWait     = 5
	StatusSeeding      = 6
)

// Torrent error codes.
const (
	ErrorNone           = 0
	ErrorTrackerWarning = 1
	ErrorTrackerError   = 2
	ErrorLocal          = 3
)

// File priorities as encoded by the daemon.
const (
	PriorityLow    = -1
	PriorityNormal = 0
	PriorityHigh   = 1
)

// TorrentFields is the full field set used for a complete listing.
var TorrentFields = []string{
	"id", "hashString", "name", "status", "percentDone", "error", "errorString",
	"rateDownload", "rateUpload", "totalSize", "sizeWhenDone", "leftUntilDone",
	"eta", "uploadRatio", "downloadDir", "addedDate", "doneDate",
	"peersConnected", "peersSendingToUs", "peersGettingFromUs",
	"downloadLimit", "downloadLimited", "uploadLimit", "uploadLimited",
	"files", "fileStats", "trackerStats",
}

// SessionInfo mirrors the subset of session-get the dashboard uses.
type SessionInfo struct {
	Version               string `json:"version"`
	RPCVersion            int    `json:"rpc-version"`
	DownloadDir           string `json:"download-dir"`
	SpeedLimitDown        int64  `json:"speed-limit-down"`
	SpeedLimitDownEnabled bool   `json:"speed-limit-down-enabled"`
	SpeedLimitUp          int64  `json:"speed-limit-up"`
	SpeedLimitUpEnabled   bool   `json:"speed-limit-up-enabled"`
	AltSpeedEnabled       bool   `json:"alt-speed-enabled"`
}

// SessionStats mirrors session-stats.
type SessionStats struct {
	DownloadSpeed      int64 `json:"downloadSpeed"`
	UploadSpeed        int64 `json:"uploadSpeed"`
	ActiveTorrentCount int   `json:"activeTorrentCount"`
	PausedTorrentCount int   `json:"pausedTorrentCount"`
	TorrentCount       int   `json:"torrentCount"`
}

// Torrent mirrors one entry of torrent-get.
type Torrent struct {
	ID                 int64         `json:"id"`
	HashString         string        `json:"hashString"`
	Name               string        `json:"name"`
	Status             int           `json:"status"`
	PercentDone        float64       `json:"percentDone"`
	Error              int           `json:"error"`
	ErrorString        string        `json:"errorString"`
	RateDownload       int64         `json:"rateDownload"`
	RateUpload         int64         `json:"rateUpload"`
	TotalSize          int64         `json:"totalSize"`
	SizeWhenDone       int64         `json:"sizeWhenDone"`
	LeftUntilDone      int64         `json:"leftUntilDone"`
	ETA                int64         `json:"eta"`
	UploadRatio        float64       `json:"uploadRatio"`
	DownloadDir        string        `json:"downloadDir"`
	AddedDate          int64         `json:"addedDate"`
	DoneDate           int64         `json:"doneDate"`
	PeersConnected     int           `json:"peersConnected"`
	PeersSendingToUs   int           `json:"peersSendingToUs"`
	PeersGettingFromUs int           `json:"peersGettingFromUs"`
	DownloadLimit      int64         `json:"downloadLimit"`
	DownloadLimited    bool          `json:"downloadLimited"`
	UploadLimit        int64         `json:"uploadLimit"`
	UploadLimited      bool          `json:"uploadLimited"`
	Files              []File        `json:"files"`
	FileStats          []FileStat    `json:"fileStats"`
	TrackerStats       []TrackerStat `json:"trackerStats"`
}

// File is a static file entry of a torrent.
type File struct {
	Name           string `json:"name"`
	Length         int64  `json:"length"`
	BytesCompleted int64  `json:"bytesCompleted"`
}

// FileStat carries the mutable per-file state.
type FileStat struct {
	BytesCompleted int64 `json:"bytesCompleted"`
	Wanted         bool  `json:"wanted"`
	Priority       int   `json:"priority"`
}

// TrackerStat is one tracker's announce state.
type TrackerStat struct {
	Announce              string `json:"announce"`
	Host                  string `json:"host"`
	LastAnnounceResult    string `json:"lastAnnounceResult"`
	LastAnnounceSucceeded bool   `json:"lastAnnounceSucceeded"`
	LastAnnouncePeerCount int    `json:"lastAnnouncePeerCount"`
	SeederCount           int    `json:"seederCount"`
	LeecherCount          int    `json:"leecherCount"`
}

type torrentGetResponse struct {
	Torrents []Torrent `json:"torrents"`
	Removed  []int64   `json:"removed"`
}

// AddedTorrent identifies a torrent returned by torrent-add.
type AddedTorrent struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HashString string `json:"hashString"`
}

type torrentAddResponse struct {
	Added     *AddedTorrent `json:"torrent-added"`
	Duplicate *AddedTorrent `json:"torrent-duplicate"`
}

type freeSpaceResponse struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size-bytes"`
}
