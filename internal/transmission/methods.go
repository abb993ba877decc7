package transmission

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// SessionGet retrieves daemon settings and records its capabilities.
func (c *Client) SessionGet(ctx context.Context) (SessionInfo, error) {
	var info SessionInfo
	if err := c.Call(ctx, "session-get", nil, &info); err != nil {
		return SessionInfo{}, err
	}
	caps := CapabilitiesFor(info.Version)
	c.version.Store(&caps)
	return info, nil
}

// SessionSetArgs holds session-set fields. Nil fields are left unchanged.
type SessionSetArgs struct {
	SpeedLimitDown        *int64 `json:"speed-limit-down,omitempty"`
	SpeedLimitDownEnabled *bool  `json:"speed-limit-down-enabled,omitempty"`
	SpeedLimitUp          *int64 `json:"speed-limit-up,omitempty"`
	SpeedLimitUpEnabled   *bool  `json:"speed-limit-up-enabled,omitempty"`
}

// SessionSet updates daemon-wide settings.
func (c *Client) SessionSet(ctx context.Context, args SessionSetArgs) error {
	return c.Call(ctx, "session-set", args, nil)
}

// SessionStats retrieves aggregate transfer statistics.
func (c *Client) SessionStats(ctx context.Context) (SessionStats, error) {
	var stats SessionStats
	if err := c.Call(ctx, "session-stats", nil, &stats); err != nil {
		return SessionStats{}, err
	}
	return stats, nil
}

type torrentGetRequest struct {
	IDs    any      `json:"ids,omitempty"`
	Fields []string `json:"fields"`
}

// TorrentGet lists torrents. A nil ids slice lists every torrent.
func (c *Client) TorrentGet(ctx context.Context, ids []int64, fields []string) ([]Torrent, error) {
	req := torrentGetRequest{Fields: fields}
	if ids != nil {
		req.IDs = ids
	}
	var resp torrentGetResponse
	if err := c.Call(ctx, "torrent-get", req, &resp); err != nil {
		return nil, err
	}
	return resp.Torrents, nil
}

// RecentlyActive lists torrents changed since the daemon's last activity
// window together with ids removed in that window.
func (c *Client) RecentlyActive(ctx context.Context, fields []string) ([]Torrent, []int64, error) {
	var resp torrentGetResponse
	if err := c.Call(ctx, "torrent-get", torrentGetRequest{IDs: "recently-active", Fields: fields}, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Torrents, resp.Removed, nil
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

// TorrentStart resumes torrents. With now set the daemon's queue is bypassed
// when the daemon supports it.
func (c *Client) TorrentStart(ctx context.Context, ids []int64, now bool) error {
	method := "torrent-start"
	if now && c.Capabilities().StartNow {
		method = "torrent-start-now"
	}
	return c.Call(ctx, method, idsRequest{IDs: ids}, nil)
}

// TorrentStop pauses torrents.
func (c *Client) TorrentStop(ctx context.Context, ids []int64) error {
	return c.Call(ctx, "torrent-stop", idsRequest{IDs: ids}, nil)
}

// TorrentVerify queues torrents for a hash check.
func (c *Client) TorrentVerify(ctx context.Context, ids []int64) error {
	return c.Call(ctx, "torrent-verify", idsRequest{IDs: ids}, nil)
}

type removeRequest struct {
	IDs             []int64 `json:"ids"`
	DeleteLocalData bool    `json:"delete-local-data"`
}

// TorrentRemove removes torrents, optionally deleting their data.
func (c *Client) TorrentRemove(ctx context.Context, ids []int64, deleteData bool) error {
	return c.Call(ctx, "torrent-remove", removeRequest{IDs: ids, DeleteLocalData: deleteData}, nil)
}

type setLocationRequest struct {
	IDs      []int64 `json:"ids"`
	Location string  `json:"location"`
	Move     bool    `json:"move"`
}

// TorrentSetLocation changes the data location, moving files when move is set.
func (c *Client) TorrentSetLocation(ctx context.Context, ids []int64, location string, move bool) error {
	return c.Call(ctx, "torrent-set-location", setLocationRequest{IDs: ids, Location: location, Move: move}, nil)
}

// TorrentSetArgs holds torrent-set fields. Empty and nil fields are omitted.
type TorrentSetArgs struct {
	FilesWanted     []int  `json:"files-wanted,omitempty"`
	FilesUnwanted   []int  `json:"files-unwanted,omitempty"`
	PriorityHigh    []int  `json:"priority-high,omitempty"`
	PriorityNormal  []int  `json:"priority-normal,omitempty"`
	PriorityLow     []int  `json:"priority-low,omitempty"`
	DownloadLimit   *int64 `json:"downloadLimit,omitempty"`
	DownloadLimited *bool  `json:"downloadLimited,omitempty"`
	UploadLimit     *int64 `json:"uploadLimit,omitempty"`
	UploadLimited   *bool  `json:"uploadLimited,omitempty"`
}

type torrentSetRequest struct {
	IDs []int64 `json:"ids"`
	TorrentSetArgs
}

// TorrentSet updates per-torrent settings.
func (c *Client) TorrentSet(ctx context.Context, ids []int64, args TorrentSetArgs) error {
	return c.Call(ctx, "torrent-set", torrentSetRequest{IDs: ids, TorrentSetArgs: args}, nil)
}

// AddArgs describes a torrent to add.
type AddArgs struct {
	// Source is a magnet link, an http(s) URL, or a path to a .torrent file.
	Source      string
	DownloadDir string
	Paused      bool
}

type torrentAddRequest struct {
	Filename    string `json:"filename,omitempty"`
	Metainfo    string `json:"metainfo,omitempty"`
	DownloadDir string `json:"download-dir,omitempty"`
	Paused      bool   `json:"paused,omitempty"`
}

// AddResult reports the torrent the daemon created or already had.
type AddResult struct {
	Torrent   AddedTorrent
	Duplicate bool
}

// TorrentAdd adds a torrent. Local .torrent files are uploaded as metainfo
// so the daemon does not need access to the caller's filesystem.
func (c *Client) TorrentAdd(ctx context.Context, args AddArgs) (AddResult, error) {
	source := strings.TrimSpace(args.Source)
	if source == "" {
		return AddResult{}, fmt.Errorf("torrent source is empty")
	}
	req := torrentAddRequest{DownloadDir: args.DownloadDir, Paused: args.Paused}
	if isRemoteSource(source) {
		req.Filename = source
	} else {
		data, err := os.ReadFile(expandHome(source))
		if err != nil {
			return AddResult{}, fmt.Errorf("read torrent file: %w", err)
		}
		req.Metainfo = base64.StdEncoding.EncodeToString(data)
	}

	var resp torrentAddResponse
	if err := c.Call(ctx, "torrent-add", req, &resp); err != nil {
		return AddResult{}, err
	}
	switch {
	case resp.Added != nil:
		return AddResult{Torrent: *resp.Added}, nil
	case resp.Duplicate != nil:
		return AddResult{Torrent: *resp.Duplicate, Duplicate: true}, nil
	default:
		return AddResult{}, &Error{Kind: KindProtocol, Method: "torrent-add", Err: fmt.Errorf("response names no torrent")}
	}
}

// FreeSpace reports the bytes available at path on the daemon's host.
func (c *Client) FreeSpace(ctx context.Context, path string) (int64, error) {
	var resp freeSpaceResponse
	if err := c.Call(ctx, "free-space", map[string]string{"path": path}, &resp); err != nil {
		return 0, err
	}
	return resp.SizeBytes, nil
}

func isRemoteSource(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "magnet:") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://")
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + strings.TrimPrefix(path, "~")
}
