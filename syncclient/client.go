// Package syncclient pushes scene snapshots to the canvas API. Saves are
// debounced per project and always written to the local cache first.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"compass/debounce"
	"compass/localcache"
	"compass/scene"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "http://localhost:8081/api"
	DefaultDelay   = 500 * time.Millisecond
	DefaultTimeout = 30 * time.Second
)

// Source tells where a loaded snapshot came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
	SourceNone     Source = "none"
)

type saveRequest struct {
	CanvasState string `json:"canvasState"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

type saveResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type loadResponse struct {
	Success     bool    `json:"success"`
	CanvasState *string `json:"canvasState"`
	Source      Source  `json:"source"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("canvas api: %d %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL  string
	http     *http.Client
	token    func() string
	local    *localcache.Cache
	notifier Notifier
	delay    time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	mu      sync.Mutex
	senders map[string]*debounce.Debouncer[saveRequest]
	saving  atomic.Int32
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithToken sets a bearer token source consulted on every request.
func WithToken(fn func() string) Option { return func(c *Client) { c.token = fn } }

// WithLocalCache enables the synchronous local fast path.
func WithLocalCache(lc *localcache.Cache) Option { return func(c *Client) { c.local = lc } }

func WithNotifier(n Notifier) Option { return func(c *Client) { c.notifier = n } }

func WithDelay(d time.Duration) Option { return func(c *Client) { c.delay = d } }

func WithLogger(log logrus.FieldLogger) Option { return func(c *Client) { c.log = log } }

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		token:   func() string { return "" },
		delay:   DefaultDelay,
		log:     logrus.StandardLogger(),
		now:     time.Now,
		senders: make(map[string]*debounce.Debouncer[saveRequest]),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Log: c.log}
	}
	return c
}

// IsSaving reports whether a request is in flight.
func (c *Client) IsSaving() bool { return c.saving.Load() > 0 }

// SaveCanvasState stores snap locally and schedules a debounced upload.
// Calls within the debounce window coalesce into the last one.
func (c *Client) SaveCanvasState(projectID string, snap scene.Snapshot) {
	req, err := c.prepare(projectID, snap)
	if err != nil {
		c.log.WithError(err).WithField("project_id", projectID).Error("Failed to encode canvas state")
		return
	}
	c.sender(projectID).Schedule(req)
}

// SaveCanvasStateImmediate drops any pending debounced upload and sends
// snap now.
func (c *Client) SaveCanvasStateImmediate(ctx context.Context, projectID string, snap scene.Snapshot) error {
	req, err := c.prepare(projectID, snap)
	if err != nil {
		return err
	}
	c.sender(projectID).Cancel()
	return c.send(ctx, projectID, req)
}

// Flush sends any pending debounced upload for the project now.
func (c *Client) Flush(projectID string) {
	c.mu.Lock()
	s, ok := c.senders[projectID]
	c.mu.Unlock()
	if ok {
		s.FlushNow()
	}
}

// Close flushes pending uploads and stops all timers.
func (c *Client) Close() {
	c.mu.Lock()
	senders := c.senders
	c.senders = make(map[string]*debounce.Debouncer[saveRequest])
	c.mu.Unlock()
	for _, s := range senders {
		s.FlushNow()
		s.Stop()
	}
}

// LoadCanvasState fetches the latest server-side snapshot. A project with
// no canvas yields a nil snapshot and no error.
func (c *Client) LoadCanvasState(ctx context.Context, projectID string) (*scene.Snapshot, Source, error) {
	log := c.log.WithField("project_id", projectID)
	var resp loadResponse
	if err := c.do(ctx, http.MethodGet, c.canvasURL(projectID), nil, &resp); err != nil {
		log.WithError(err).Warn("Failed to load canvas state")
		return nil, SourceNone, err
	}
	if resp.CanvasState == nil || *resp.CanvasState == "" {
		return nil, SourceNone, nil
	}
	snap, err := scene.Decode([]byte(*resp.CanvasState))
	if err != nil {
		log.WithError(err).Warn("Ignoring malformed canvas state from server")
		return nil, SourceNone, nil
	}
	return &snap, resp.Source, nil
}

func (c *Client) prepare(projectID string, snap scene.Snapshot) (saveRequest, error) {
	if snap.Timestamp == 0 {
		snap.Timestamp = c.now().UnixMilli()
	}
	data, err := snap.Encode()
	if err != nil {
		return saveRequest{}, err
	}
	req := saveRequest{CanvasState: string(data), Timestamp: snap.Timestamp}
	if c.local != nil {
		if err := c.local.SavePending(projectID, req.CanvasState); err != nil {
			c.log.WithError(err).WithField("project_id", projectID).Warn("Failed to write canvas state locally")
		}
	}
	return req, nil
}

func (c *Client) sender(projectID string) *debounce.Debouncer[saveRequest] {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.senders[projectID]
	if !ok {
		s = debounce.New(c.delay, func(req saveRequest) {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
			defer cancel()
			_ = c.send(ctx, projectID, req)
		})
		c.senders[projectID] = s
	}
	return s
}

// send posts one save. Failures are reported through the notifier and
// leave the locally stored copy in place.
func (c *Client) send(ctx context.Context, projectID string, req saveRequest) error {
	c.saving.Add(1)
	defer c.saving.Add(-1)
	c.notifier.Notify(Notification{Kind: Saving, ProjectID: projectID, Message: "Saving canvas"})

	var resp saveResponse
	if err := c.do(ctx, http.MethodPost, c.canvasURL(projectID), req, &resp); err != nil {
		c.notifier.Notify(Notification{Kind: Failed, ProjectID: projectID, Message: "Failed to save canvas: " + err.Error()})
		return err
	}

	if c.local != nil {
		if err := c.local.ClearPending(projectID, req.CanvasState); err != nil {
			c.log.WithError(err).WithField("project_id", projectID).Warn("Failed to clear pending canvas state")
		}
	}
	c.notifier.Notify(Notification{Kind: Saved, ProjectID: projectID, Message: "Canvas saved"})
	return nil
}

func (c *Client) canvasURL(projectID string) string {
	return c.baseURL + "/canvas/" + url.PathEscape(projectID)
}

func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &e) == nil {
			if e.Message != "" {
				msg = e.Message
			} else if e.Error != "" {
				msg = e.Error
			}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
