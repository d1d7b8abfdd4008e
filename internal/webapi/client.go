package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/zmb3/spotify/v2"
)

var log = logging.Logger("webapi")

// TokenSource supplies bearer tokens. Token returns the current access token,
// refreshing first when it is known to be expired. Refresh forces a refresh
// exchange after the remote rejected a token; it returns ErrAuthInvalid when
// no refresh is possible.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Player is the subset of the remote API the sync client drives.
// It is implemented by *Client and can be faked in tests.
type Player interface {
	PlaybackState(ctx context.Context) (*spotify.PlayerState, error)
	Queue(ctx context.Context) (*QueueResponse, error)
	Play(ctx context.Context, opts PlayOptions) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	SetVolume(ctx context.Context, percent int) error
	SetShuffle(ctx context.Context, on bool) error
	SetRepeat(ctx context.Context, mode string) error
	AddToQueue(ctx context.Context, uri string) error
	Search(ctx context.Context, query string, types []string, limit int) (*spotify.SearchResult, error)
	Devices(ctx context.Context) ([]spotify.PlayerDevice, error)
	TransferPlayback(ctx context.Context, deviceID string, play bool) error
	CurrentUser(ctx context.Context) (*spotify.PrivateUser, error)
}

// Ensure Client implements Player at compile time.
var _ Player = (*Client)(nil)

// Observer is told about every completed exchange with the remote.
// status is 0 when the request never produced a response.
type Observer func(endpoint string, status int, elapsed time.Duration)

// Client talks to the Spotify Web API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	tokens    TokenSource
	userAgent string
	observe   Observer
}

const (
	defaultBaseURL   = "https://api.spotify.com/v1"
	defaultUserAgent = "flyover/0.1"
	requestTimeout   = 10 * time.Second
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithObserver installs a per-request observer, used for metrics.
func WithObserver(fn Observer) Option {
	return func(c *Client) { c.observe = fn }
}

// NewClient builds a Client for the API rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source required")
	}
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		tokens:    tokens,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PlaybackState fetches the full player state. ErrNoActiveDevice is returned
// when nothing is playing anywhere.
func (c *Client) PlaybackState(ctx context.Context) (*spotify.PlayerState, error) {
	var payload spotify.PlayerState
	if err := c.do(ctx, http.MethodGet, "/me/player", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Queue fetches the currently playing item and the user's queue.
func (c *Client) Queue(ctx context.Context) (*QueueResponse, error) {
	var payload QueueResponse
	if err := c.do(ctx, http.MethodGet, "/me/player/queue", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Play resumes playback, or starts the given context or tracks.
func (c *Client) Play(ctx context.Context, opts PlayOptions) error {
	rel := &url.URL{Path: "/me/player/play", RawQuery: deviceQuery(opts.DeviceID).Encode()}
	var body any
	if !opts.empty() {
		body = opts
	}
	return c.doURL(ctx, http.MethodPut, rel, body, nil)
}

func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/me/player/pause", nil, nil)
}

func (c *Client) Next(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/me/player/next", nil, nil)
}

func (c *Client) Previous(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/me/player/previous", nil, nil)
}

// Seek moves the playhead to positionMs.
func (c *Client) Seek(ctx context.Context, positionMs int) error {
	if positionMs < 0 {
		positionMs = 0
	}
	values := url.Values{}
	values.Set("position_ms", strconv.Itoa(positionMs))
	return c.doURL(ctx, http.MethodPut, &url.URL{Path: "/me/player/seek", RawQuery: values.Encode()}, nil, nil)
}

// SetVolume sets the active device volume, clamped to [0, 100].
func (c *Client) SetVolume(ctx context.Context, percent int) error {
	percent = min(max(percent, 0), 100)
	values := url.Values{}
	values.Set("volume_percent", strconv.Itoa(percent))
	return c.doURL(ctx, http.MethodPut, &url.URL{Path: "/me/player/volume", RawQuery: values.Encode()}, nil, nil)
}

func (c *Client) SetShuffle(ctx context.Context, on bool) error {
	values := url.Values{}
	values.Set("state", strconv.FormatBool(on))
	return c.doURL(ctx, http.MethodPut, &url.URL{Path: "/me/player/shuffle", RawQuery: values.Encode()}, nil, nil)
}

// SetRepeat sets the repeat mode: "off", "context" or "track".
func (c *Client) SetRepeat(ctx context.Context, mode string) error {
	switch mode {
	case "off", "context", "track":
	default:
		return fmt.Errorf("invalid repeat mode %q", mode)
	}
	values := url.Values{}
	values.Set("state", mode)
	return c.doURL(ctx, http.MethodPut, &url.URL{Path: "/me/player/repeat", RawQuery: values.Encode()}, nil, nil)
}

// AddToQueue appends a track URI to the user's queue.
func (c *Client) AddToQueue(ctx context.Context, uri string) error {
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("uri required")
	}
	values := url.Values{}
	values.Set("uri", uri)
	return c.doURL(ctx, http.MethodPost, &url.URL{Path: "/me/player/queue", RawQuery: values.Encode()}, nil, nil)
}

// Search queries the catalog for the given types.
func (c *Client) Search(ctx context.Context, query string, types []string, limit int) (*spotify.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return &spotify.SearchResult{}, nil
	}
	if len(types) == 0 {
		types = []string{SearchTrack}
	}
	values := url.Values{}
	values.Set("q", query)
	values.Set("type", strings.Join(types, ","))
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var payload spotify.SearchResult
	if err := c.doURL(ctx, http.MethodGet, &url.URL{Path: "/search", RawQuery: values.Encode()}, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Devices lists the user's available devices.
func (c *Client) Devices(ctx context.Context) ([]spotify.PlayerDevice, error) {
	var payload DevicesResponse
	if err := c.do(ctx, http.MethodGet, "/me/player/devices", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Devices, nil
}

// TransferPlayback moves playback to deviceID.
func (c *Client) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("device id required")
	}
	return c.do(ctx, http.MethodPut, "/me/player", transferBody{DeviceIDs: []string{deviceID}, Play: play}, nil)
}

// CurrentUser fetches the signed-in user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*spotify.PrivateUser, error) {
	var payload spotify.PrivateUser
	if err := c.do(ctx, http.MethodGet, "/me", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func deviceQuery(deviceID string) url.Values {
	values := url.Values{}
	if id := strings.TrimSpace(deviceID); id != "" {
		values.Set("device_id", id)
	}
	return values
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	return c.doURL(ctx, method, &url.URL{Path: path}, body, dest)
}

// doURL performs one API call. A 401 triggers exactly one token refresh and
// one retry; a second 401 is ErrAuthInvalid.
func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = encoded
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	status, err := c.send(ctx, method, rel, payload, token, dest)
	if status != http.StatusUnauthorized {
		return err
	}

	log.Debugf("%s %s unauthorized, refreshing token", method, rel.Path)
	token, err = c.tokens.Refresh(ctx)
	if err != nil {
		return err
	}
	status, err = c.send(ctx, method, rel, payload, token, dest)
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s rejected a refreshed token", ErrAuthInvalid, rel.Path)
	}
	return err
}

// send returns the response status alongside the mapped error so doURL can
// decide whether to retry.
func (c *Client) send(ctx context.Context, method string, rel *url.URL, payload []byte, token string, dest any) (int, error) {
	reqURL := c.resolve(rel)
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(rel.Path, 0, started)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.record(rel.Path, resp.StatusCode, started)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("%w: %s", ErrAuthExpired, rel.Path)
	case resp.StatusCode == http.StatusNoContent:
		if dest != nil {
			return resp.StatusCode, ErrNoActiveDevice
		}
		return resp.StatusCode, nil
	case resp.StatusCode >= 400:
		return resp.StatusCode, rejected(resp, rel.Path)
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, ErrNoActiveDevice
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode %s: %w", ErrMalformedResponse, rel.Path, err)
	}
	return resp.StatusCode, nil
}

func rejected(resp *http.Response, path string) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &body)

	if resp.StatusCode == http.StatusNotFound &&
		(body.Error.Reason == "NO_ACTIVE_DEVICE" || strings.HasPrefix(path, "/me/player")) {
		return ErrNoActiveDevice
	}

	rej := &RejectedError{
		Status:  resp.StatusCode,
		Path:    path,
		Message: body.Error.Message,
		Reason:  body.Error.Reason,
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		rej.RetryAfter = time.Duration(secs) * time.Second
	}
	return rej
}

func (c *Client) record(path string, status int, started time.Time) {
	if c.observe == nil {
		return
	}
	c.observe(endpointLabel(path), status, time.Since(started))
}

// endpointLabel keeps metric cardinality bounded.
func endpointLabel(path string) string {
	switch {
	case path == "/me/player" || path == "/me/player/queue" || path == "/search" || path == "/me" || path == "/me/player/devices":
		return path
	case strings.HasPrefix(path, "/me/player/"):
		return "/me/player/command"
	default:
		return "other"
	}
}

func (c *Client) resolve(rel *url.URL) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + rel.Path
	u.RawQuery = rel.RawQuery
	return &u
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, errors.New("api base url has no host")
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
