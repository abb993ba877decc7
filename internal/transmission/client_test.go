package transmission

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments"`
	SessionID string          `json:"-"`
}

func writeSuccess(t *testing.T, w http.ResponseWriter, args any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	_ = json.NewEncoder(w).Encode(map[string]any{"result": "success", "arguments": json.RawMessage(raw)})
}

func decodeCall(t *testing.T, r *http.Request) rpcCall {
	t.Helper()
	var call rpcCall
	require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
	call.SessionID = r.Header.Get(sessionIDHeader)
	return call
}

func newTestClient(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetryDelay(time.Millisecond)}, opts...)
	c, err := NewClient(Config{Host: serverURL, Timeout: 2 * time.Second}, opts...)
	require.NoError(t, err)
	return c
}

func TestBuildEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"defaults", Config{}, "http://127.0.0.1:9091/transmission/rpc"},
		{"host and port", Config{Host: "nas.local", Port: 9191}, "http://nas.local:9191/transmission/rpc"},
		{"host with port wins", Config{Host: "nas.local:8080", Port: 9191}, "http://nas.local:8080/transmission/rpc"},
		{"url host", Config{Host: "https://seedbox:443"}, "https://seedbox:443/transmission/rpc"},
		{"tls and custom path", Config{Host: "box", UseTLS: true, Path: "rpc"}, "https://box:9091/rpc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := buildEndpoint(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestCall_RenewsSessionTokenOnce(t *testing.T) {
	t.Parallel()

	var calls []rpcCall
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		mu.Lock()
		calls = append(calls, call)
		mu.Unlock()
		if call.SessionID != "token-1" {
			w.Header().Set(sessionIDHeader, "token-1")
			w.WriteHeader(http.StatusConflict)
			return
		}
		writeSuccess(t, w, SessionInfo{Version: "4.0.6 (38c164933e)", RPCVersion: 17})
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server.URL)
	info, err := c.SessionGet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, info.RPCVersion)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	assert.Empty(t, calls[0].SessionID)
	assert.Equal(t, "token-1", calls[1].SessionID)
	assert.Equal(t, "token-1", c.currentSessionID())
}

func TestCall_TwoAuthRejectionsSurfaceAuth(t *testing.T) {
	t.Parallel()

	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		w.Header().Set(sessionIDHeader, "token-"+string(rune('0'+n)))
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server.URL)
	err := c.Call(context.Background(), "torrent-stop", idsRequest{IDs: []int64{1}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindAuth, kind)
	assert.Equal(t, int32(2), count.Load())
}

func TestCall_UnauthorizedThenSuccess(t *testing.T) {
	t.Parallel()

	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		if count.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeSuccess(t, w, SessionStats{TorrentCount: 3})
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(Config{Host: server.URL, User: "admin", Password: "secret"}, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	stats, err := c.SessionStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TorrentCount)
}

func TestCall_DaemonRefusalIsRPCError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "invalid or corrupt torrent file"})
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server.URL)
	_, err := c.TorrentAdd(context.Background(), AddArgs{Source: "magnet:?xt=urn:btih:abc"})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "invalid or corrupt torrent file", rpcErr.Result)
	_, isTransport := KindOf(err)
	assert.False(t, isTransport)
}

func TestCall_RetriesIdempotentReadAfterServerError(t *testing.T) {
	t.Parallel()

	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeSuccess(t, w, map[string]any{"torrents": []Torrent{{ID: 1, Name: "a"}}})
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server.URL)
	torrents, err := c.TorrentGet(context.Background(), nil, TorrentFields)
	require.NoError(t, err)
	require.Len(t, torrents, 1)
	assert.Equal(t, int32(3), count.Load())
}

func TestCall_ServerErrorOnMutationIsNotRetried(t *testing.T) {
	t.Parallel()

	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server.URL)
	err := c.TorrentRemove(context.Background(), []int64{4}, false)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, int32(1), count.Load())
}

func TestCall_MutationDroppedAfterSendIsAmbiguous(t *testing.T) {
	t.Parallel()

	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeCall(t, r)
		count.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server.URL)
	err := c.TorrentRemove(context.Background(), []int64{7}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.Equal(t, int32(1), count.Load())
}

type refusingTransport struct {
	attempts atomic.Int32
}

func (rt *refusingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	rt.attempts.Add(1)
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
}

func TestCall_MutationNeverSentIsRetried(t *testing.T) {
	t.Parallel()

	rt := &refusingTransport{}
	c := newTestClient(t, "127.0.0.1:1", WithHTTPClient(&http.Client{Transport: rt}))
	err := c.TorrentRemove(context.Background(), []int64{1}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.Equal(t, int32(maxAttempts), rt.attempts.Load())
}

func TestCall_CancelledContextStopsRetries(t *testing.T) {
	t.Parallel()

	rt := &refusingTransport{}
	c := newTestClient(t, "127.0.0.1:1", WithHTTPClient(&http.Client{Transport: rt}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Call(ctx, "session-get", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, rt.attempts.Load())
}
