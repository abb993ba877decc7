package transmission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	mu    sync.Mutex
	calls []rpcCall
}

func (l *callLog) at(i int) rpcCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[i]
}

// recordingServer answers every method with the canned arguments and keeps
// the decoded requests.
func recordingServer(t *testing.T, replies map[string]any) (*httptest.Server, *callLog) {
	t.Helper()
	calls := &callLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		calls.mu.Lock()
		calls.calls = append(calls.calls, call)
		calls.mu.Unlock()
		reply, ok := replies[call.Method]
		if !ok {
			reply = map[string]any{}
		}
		writeSuccess(t, w, reply)
	}))
	t.Cleanup(server.Close)
	return server, calls
}

func TestTorrentGet_DecodesFilesAndTrackers(t *testing.T) {
	server, calls := recordingServer(t, map[string]any{
		"torrent-get": json.RawMessage(`{"torrents":[{"id":3,"name":"ubuntu.iso","status":4,"percentDone":0.5,
			"files":[{"name":"ubuntu/ubuntu.iso","length":100,"bytesCompleted":50}],
			"fileStats":[{"bytesCompleted":50,"wanted":true,"priority":1}],
			"trackerStats":[{"announce":"udp://tracker:80","host":"tracker","lastAnnounceResult":"Success","seederCount":9}]}]}`),
	})

	c := newTestClient(t, server.URL)
	torrents, err := c.TorrentGet(context.Background(), nil, TorrentFields)
	require.NoError(t, err)
	require.Len(t, torrents, 1)

	got := torrents[0]
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, StatusDownloading, got.Status)
	require.Len(t, got.Files, 1)
	assert.Equal(t, PriorityHigh, got.FileStats[0].Priority)
	assert.Equal(t, 9, got.TrackerStats[0].SeederCount)

	var args map[string]any
	require.NoError(t, json.Unmarshal(calls.at(0).Arguments, &args))
	assert.NotContains(t, args, "ids")
	assert.Len(t, args["fields"], len(TorrentFields))
}

func TestRecentlyActive_ReturnsRemovedIDs(t *testing.T) {
	server, calls := recordingServer(t, map[string]any{
		"torrent-get": map[string]any{"torrents": []Torrent{{ID: 2}}, "removed": []int64{5, 6}},
	})

	c := newTestClient(t, server.URL)
	torrents, removed, err := c.RecentlyActive(context.Background(), []string{"id"})
	require.NoError(t, err)
	assert.Len(t, torrents, 1)
	assert.Equal(t, []int64{5, 6}, removed)
	assert.Contains(t, string(calls.at(0).Arguments), `"ids":"recently-active"`)
}

func TestTorrentStart_UsesStartNowWhenSupported(t *testing.T) {
	server, calls := recordingServer(t, map[string]any{
		"session-get": SessionInfo{Version: "4.0.6 (38c164933e)"},
	})

	c := newTestClient(t, server.URL)
	_, err := c.SessionGet(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.TorrentStart(context.Background(), []int64{1}, true))
	require.NoError(t, c.TorrentStart(context.Background(), []int64{1}, false))

	assert.Equal(t, "torrent-start-now", calls.at(1).Method)
	assert.Equal(t, "torrent-start", calls.at(2).Method)
}

func TestTorrentSet_FlattensArguments(t *testing.T) {
	server, calls := recordingServer(t, nil)

	limit := int64(250)
	limited := true
	c := newTestClient(t, server.URL)
	err := c.TorrentSet(context.Background(), []int64{9}, TorrentSetArgs{
		FilesUnwanted: []int{0, 2},
		DownloadLimit: &limit, DownloadLimited: &limited,
	})
	require.NoError(t, err)

	var args map[string]any
	require.NoError(t, json.Unmarshal(calls.at(0).Arguments, &args))
	assert.Equal(t, []any{float64(9)}, args["ids"])
	assert.Equal(t, []any{float64(0), float64(2)}, args["files-unwanted"])
	assert.Equal(t, float64(250), args["downloadLimit"])
	assert.Equal(t, true, args["downloadLimited"])
	assert.NotContains(t, args, "priority-high")
	assert.NotContains(t, args, "uploadLimit")
}

func TestTorrentAdd_UploadsLocalFileAsMetainfo(t *testing.T) {
	server, calls := recordingServer(t, map[string]any{
		"torrent-add": map[string]any{"torrent-added": AddedTorrent{ID: 12, Name: "debian"}},
	})
	path := filepath.Join(t.TempDir(), "debian.torrent")
	require.NoError(t, os.WriteFile(path, []byte("d4:infoe"), 0o644))

	c := newTestClient(t, server.URL)
	res, err := c.TorrentAdd(context.Background(), AddArgs{Source: path, DownloadDir: "/data", Paused: true})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(12), res.Torrent.ID)

	var args torrentAddRequest
	require.NoError(t, json.Unmarshal(calls.at(0).Arguments, &args))
	assert.Empty(t, args.Filename)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("d4:infoe")), args.Metainfo)
	assert.Equal(t, "/data", args.DownloadDir)
	assert.True(t, args.Paused)
}

func TestTorrentAdd_ReportsDuplicate(t *testing.T) {
	server, calls := recordingServer(t, map[string]any{
		"torrent-add": map[string]any{"torrent-duplicate": AddedTorrent{ID: 4, Name: "arch"}},
	})

	c := newTestClient(t, server.URL)
	res, err := c.TorrentAdd(context.Background(), AddArgs{Source: "magnet:?xt=urn:btih:abc"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "arch", res.Torrent.Name)
	assert.Contains(t, string(calls.at(0).Arguments), `"filename":"magnet:?xt=urn:btih:abc"`)
}

func TestCapabilitiesFor(t *testing.T) {
	assert.True(t, CapabilitiesFor("4.0.6 (38c164933e)").FreeSpace)
	assert.False(t, CapabilitiesFor("2.52 (13304)").FreeSpace)
	assert.True(t, CapabilitiesFor("2.52 (13304)").StartNow)
	assert.False(t, CapabilitiesFor("1.93").StartNow)

	unknown := CapabilitiesFor("")
	assert.Nil(t, unknown.Version)
	assert.True(t, unknown.FreeSpace)
}
