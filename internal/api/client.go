package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"sync"
	"time"

	"shopfront/internal/notify"
)

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
)

// TokenStore is where the short-lived access token lives between requests.
// Reads and writes are last-write-wins.
type TokenStore interface {
	AccessToken() string
	SetAccessToken(token string) error
	ClearAccessToken() error
}

// Client is the single HTTP boundary between the storefront and the
// backend. It attaches the bearer token to outgoing requests, carries the
// cross-origin session cookie (the refresh credential) in its jar, and
// translates transport failures into one notification plus a typed error.
//
// A 401 on a non-auth endpoint triggers exactly one refresh and one replay
// of the original request; a second 401 forces a full logout through the
// registered auth-expired handler.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenStore
	notifier notify.Notifier
	log      *slog.Logger

	mu            sync.Mutex
	onAuthExpired func()
}

func New(baseURL string, tokens TokenStore, notifier notify.Notifier, log *slog.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:  baseURL,
		tokens:   tokens,
		notifier: notifier,
		log:      log,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetAuthExpiredHandler registers the forced-logout hook. The session
// manager owns session state, so the boundary delegates instead of
// clearing anything beyond the stored token itself.
func (c *Client) SetAuthExpiredHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthExpired = fn
}

func (c *Client) authExpired() {
	c.mu.Lock()
	fn := c.onAuthExpired
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

// Do performs a JSON request against the backend. On success the response
// body is decoded into out (when out is non-nil). On failure the user has
// been notified exactly once and a taxonomy error is returned.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		c.notifier.Notify(notify.LevelError, "connection error, please check your network")
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrNetwork)
	}

	if resp.status == http.StatusUnauthorized && !isAuthPath(path) {
		if err := c.Refresh(ctx); err != nil {
			c.authExpired()
			return err
		}
		c.log.Debug("replaying request after refresh", "method", method, "path", path)
		resp, err = c.send(ctx, method, path, payload)
		if err != nil {
			c.notifier.Notify(notify.LevelError, "connection error, please check your network")
			return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrNetwork)
		}
		if resp.status == http.StatusUnauthorized {
			// Second 401 after a successful refresh is a hard failure.
			c.notifier.Notify(notify.LevelError, "your session has expired, please log in again")
			c.authExpired()
			return statusError(resp.status, "unauthorized after replay", ErrRefreshExpired)
		}
	}

	if resp.status < 200 || resp.status >= 300 {
		return c.classify(path, resp)
	}

	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// Refresh exchanges the session cookie for a new access token and stores
// it. The refresh credential never leaves the transport layer: the cookie
// jar sends it, the server rotates it.
func (c *Client) Refresh(ctx context.Context) error {
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.Do(ctx, http.MethodPost, refreshPath, nil, &body); err != nil {
		return err
	}
	if err := c.tokens.SetAccessToken(body.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}

func isAuthPath(path string) bool {
	return path == loginPath || path == refreshPath
}

func (c *Client) classify(path string, resp *response) error {
	msg := errorMessage(resp.body)

	switch {
	case resp.status == http.StatusUnauthorized && path == loginPath:
		c.notifier.Notify(notify.LevelError, "invalid email or password")
		return statusError(resp.status, "login rejected", ErrInvalidCredentials)

	case resp.status == http.StatusUnauthorized && path == refreshPath:
		c.notifier.Notify(notify.LevelError, "your session has expired, please log in again")
		c.authExpired()
		return statusError(resp.status, "refresh rejected", ErrRefreshExpired)

	case resp.status == http.StatusUnauthorized, resp.status == http.StatusForbidden:
		c.notifier.Notify(notify.LevelError, "access denied")
		return statusError(resp.status, orDefault(msg, "access denied"), ErrAuth)

	case resp.status == http.StatusNotFound:
		c.notifier.Notify(notify.LevelWarn, "not found")
		return statusError(resp.status, orDefault(msg, "not found"), ErrNotFound)

	case resp.status == http.StatusBadRequest:
		c.notifier.Notify(notify.LevelError, orDefault(msg, "invalid request"))
		return statusError(resp.status, orDefault(msg, "invalid request"), ErrValidation)

	case resp.status == http.StatusConflict:
		c.notifier.Notify(notify.LevelError, orDefault(msg, "conflict"))
		return statusError(resp.status, orDefault(msg, "conflict"), ErrValidation)

	case resp.status == http.StatusTooManyRequests:
		wait := retryAfter(resp.header)
		text := "too many requests, please slow down"
		if wait > 0 {
			text = fmt.Sprintf("too many requests, try again in %ds", int(wait.Seconds()))
		}
		c.notifier.Notify(notify.LevelWarn, text)
		return statusError(resp.status, text, ErrRateLimited)

	case resp.status >= 500:
		c.notifier.Notify(notify.LevelError, "something went wrong on our side, please try again later")
		return statusError(resp.status, orDefault(msg, "server error"), ErrServer)

	default:
		c.notifier.Notify(notify.LevelError, orDefault(msg, "request failed"))
		return statusError(resp.status, orDefault(msg, "request failed"), ErrServer)
	}
}

// retryAfter computes the wait from Retry-After (seconds) or a unix-epoch
// X-RateLimit-Reset header. Zero means no hint was present.
func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(unix, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
