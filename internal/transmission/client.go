package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
)

const (
	sessionIDHeader  = "X-Transmission-Session-Id"
	defaultHost      = "127.0.0.1"
	defaultPort      = 9091
	defaultRPCPath   = "/transmission/rpc"
	defaultUserAgent = "torsh/0.1"
	defaultTimeout   = 10 * time.Second

	maxAttempts   = 3
	retryDelay    = 150 * time.Millisecond
	maxRetryDelay = time.Second
)

// Caller is the single RPC entry point shared by the sync engine, the command
// router and the supervisor's handshake.
type Caller interface {
	Call(ctx context.Context, method string, args, dest any) error
}

// Ensure Client implements Caller at compile time.
var _ Caller = (*Client)(nil)

// Config describes how to reach the daemon.
type Config struct {
	Host     string
	Port     int
	Path     string
	User     string
	Password string
	UseTLS   bool
	Timeout  time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRetryDelay overrides the initial retry backoff.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// Client talks to the Transmission RPC endpoint. It owns the session token
// and is safe for concurrent use.
type Client struct {
	endpoint   *url.URL
	http       *http.Client
	user       string
	password   string
	userAgent  string
	retryDelay time.Duration
	log        zerolog.Logger

	mu        sync.Mutex
	sessionID string

	tag     atomic.Uint64
	version atomic.Pointer[Capabilities]
}

// NewClient builds a Client from cfg, filling defaults for empty fields.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	endpoint, err := buildEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
		user:       cfg.User,
		password:   cfg.Password,
		userAgent:  defaultUserAgent,
		retryDelay: retryDelay,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the resolved RPC URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Host returns the hostname part of the endpoint.
func (c *Client) Host() string {
	return c.endpoint.Hostname()
}

// Call performs one logical RPC call, decoding the response arguments into
// dest when dest is non-nil.
func (c *Client) Call(ctx context.Context, method string, args, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindTimeout, Method: method, Err: err}
	}
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args, Tag: c.tag.Add(1)})
	if err != nil {
		return &Error{Kind: KindProtocol, Method: method, Err: fmt.Errorf("marshal request: %w", err)}
	}
	idempotent := isIdempotent(method)

	var payload *rpcResponse
	err = retry.Do(
		func() error {
			var callErr error
			payload, callErr = c.exchange(ctx, method, body, idempotent)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(shouldRetry),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug().Err(err).Str("method", method).Uint("attempt", n+1).Msg("retrying rpc call")
		}),
	)
	if err != nil {
		var te *Error
		var re *RPCError
		if errors.As(err, &te) || errors.As(err, &re) {
			return err
		}
		// Only context errors reach here.
		return &Error{Kind: KindTimeout, Method: method, Err: err}
	}
	if dest == nil || len(payload.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload.Arguments, dest); err != nil {
		return &Error{Kind: KindProtocol, Method: method, Err: fmt.Errorf("decode arguments: %w", err)}
	}
	return nil
}

// exchange sends the request, renewing the session token at most once.
func (c *Client) exchange(ctx context.Context, method string, body []byte, idempotent bool) (*rpcResponse, error) {
	resp, err := c.send(ctx, method, body, idempotent)
	var te *Error
	if err == nil || !errors.As(err, &te) || te.Kind != KindAuth || !te.renewable {
		return resp, err
	}
	c.log.Debug().Str("method", method).Msg("session token rejected, retrying once")
	resp, err = c.send(ctx, method, body, idempotent)
	if errors.As(err, &te) && te.Kind == KindAuth {
		te.renewable = false
		te.Err = fmt.Errorf("rejected after token renewal: %w", te.Err)
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, method string, body []byte, idempotent bool) (*rpcResponse, error) {
	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { wrote.Store(true) },
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Method: method, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if id := c.currentSessionID(); id != "" {
		req.Header.Set(sessionIDHeader, id)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(method, err, wrote.Load(), idempotent)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusConflict:
		id := resp.Header.Get(sessionIDHeader)
		c.setSessionID(id)
		return nil, &Error{Kind: KindAuth, Method: method, Err: fmt.Errorf("session token rejected"), renewable: id != ""}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Kind: KindAuth, Method: method, Err: fmt.Errorf("unauthorized: check rpc user and password"), renewable: true}
	case resp.StatusCode >= 500:
		return nil, &Error{Kind: KindProtocol, Method: method, Err: fmt.Errorf("status %d", resp.StatusCode), sent: true, retryable: idempotent}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: KindProtocol, Method: method, Err: fmt.Errorf("status %d", resp.StatusCode), sent: true}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(method, fmt.Errorf("read response: %w", err), true, idempotent)
	}
	var payload rpcResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &Error{Kind: KindProtocol, Method: method, Err: fmt.Errorf("decode response: %w", err), sent: true}
	}
	if payload.Result != "success" {
		return nil, &RPCError{Method: method, Result: payload.Result}
	}
	return &payload, nil
}

func (c *Client) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// isIdempotent reports whether method only reads daemon state.
func isIdempotent(method string) bool {
	switch method {
	case "session-get", "session-stats", "torrent-get", "free-space", "port-test", "blocklist-size":
		return true
	default:
		return false
	}
}

func buildEndpoint(cfg Config) (*url.URL, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultHost
	}
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse host %q: %w", cfg.Host, err)
		}
		scheme = u.Scheme
		host = u.Host
	}
	if _, _, err := splitHostPort(host); err != nil {
		port := cfg.Port
		if port <= 0 {
			port = defaultPort
		}
		host = joinHostPort(host, port)
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultRPCPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := &url.URL{Scheme: scheme, Host: host, Path: path}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid rpc host %q", cfg.Host)
	}
	return u, nil
}

func splitHostPort(host string) (string, int, error) {
	u := &url.URL{Host: host}
	p := u.Port()
	if p == "" {
		return "", 0, fmt.Errorf("no port")
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, err
	}
	return u.Hostname(), port, nil
}

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(port)
}
