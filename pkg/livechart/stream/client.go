// Package stream connects to a push server: it probes the readiness endpoint,
// opens a WebSocket and turns the server's named-event frames into validated
// samples for its subscribers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chosenoffset/livechart/pkg/livechart/metrics"
	"github.com/chosenoffset/livechart/pkg/livechart/sample"
)

// Well-known paths of a push server.
const (
	ProbePath  = "/api/chart-data"
	StreamPath = "/ws"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	maxFrameSize            = 64 << 10
	closeGracePeriod        = time.Second
)

var (
	// ErrServerUnavailable is matched by every probe failure.
	ErrServerUnavailable = errors.New("stream server unavailable")

	// ErrClosed is returned by Connect once the client has been closed.
	ErrClosed = errors.New("stream client closed")
)

// ProbeError describes a failed readiness probe. Either StatusCode is a
// non-2xx status or Err is the transport error.
type ProbeError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("probe %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Is makes every ProbeError match ErrServerUnavailable.
func (e *ProbeError) Is(target error) bool {
	return target == ErrServerUnavailable
}

// Envelope is the wire form of every server frame.
type Envelope struct {
	Type Event           `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Config configures a Client.
type Config struct {
	ProbeURL  string
	StreamURL string

	// HTTPClient is used for the probe; http.DefaultClient if nil.
	HTTPClient *http.Client
	// Dialer opens the WebSocket; a dialer with HandshakeTimeout if nil.
	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration

	Metrics *metrics.StreamMetrics
}

// NewConfig derives probe and stream URLs from the base URL of a push server,
// e.g. "http://localhost:3000".
func NewConfig(server string) (Config, error) {
	u, err := url.Parse(server)
	if err != nil {
		return Config{}, fmt.Errorf("parse server URL: %w", err)
	}

	ws := *u
	switch u.Scheme {
	case "http":
		ws.Scheme = "ws"
	case "https":
		ws.Scheme = "wss"
	default:
		return Config{}, fmt.Errorf("server URL %q: scheme must be http or https", server)
	}
	if u.Host == "" {
		return Config{}, fmt.Errorf("server URL %q: missing host", server)
	}

	probe := *u
	probe.Path = path.Join("/", u.Path, ProbePath)
	ws.Path = path.Join("/", u.Path, StreamPath)

	return Config{ProbeURL: probe.String(), StreamURL: ws.String()}, nil
}

// Handle is one open push channel.
type Handle struct {
	ID uuid.UUID

	conn    *websocket.Conn
	active  atomic.Bool
	closing atomic.Bool
	done    chan struct{}
}

// Active reports whether the channel is still delivering events.
func (h *Handle) Active() bool {
	return h != nil && h.active.Load()
}

// Done is closed once the read loop has exited and the disconnect event has
// been dispatched.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Client owns at most one push channel at a time.
type Client struct {
	cfg      Config
	l        *zap.Logger
	handlers *Registry

	// connMu serializes Connect calls
	connMu sync.Mutex

	mu     sync.Mutex
	handle *Handle
	closed bool
}

// NewClient returns a client that is not connected yet.
func NewClient(cfg Config, l *zap.Logger) *Client {
	if l == nil {
		l = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		l:        l,
		handlers: NewRegistry(),
	}
}

// On subscribes h to event.
func (c *Client) On(event Event, h HandlerFunc) {
	c.handlers.On(event, h)
}

// Handle returns the current handle, or nil.
func (c *Client) Handle() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Probe checks that the server is ready to accept a push channel. Any 2xx
// response succeeds; everything else returns a *ProbeError.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeURL, nil)
	if err != nil {
		return &ProbeError{URL: c.cfg.ProbeURL, Err: err}
	}

	hc := c.cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	resp, err := hc.Do(req)
	if err != nil {
		return &ProbeError{URL: c.cfg.ProbeURL, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxFrameSize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProbeError{URL: c.cfg.ProbeURL, StatusCode: resp.StatusCode}
	}

	c.l.Debug("Probe succeeded", zap.String("url", c.cfg.ProbeURL), zap.Int("status", resp.StatusCode))
	return nil
}

// Connect returns the active handle, or probes the server and opens a new
// push channel. ctx bounds the probe and the handshake only. A cancelled ctx
// observed after the probe prevents the dial.
func (c *Client) Connect(ctx context.Context) (*Handle, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.mu.Lock()
	closed, current := c.closed, c.handle
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if current.Active() {
		return current, nil
	}

	if err := c.Probe(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, _, err := c.dialer().DialContext(ctx, c.cfg.StreamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.StreamURL, err)
	}
	conn.SetReadLimit(maxFrameSize)

	h := &Handle{ID: uuid.New(), conn: conn, done: make(chan struct{})}
	h.active.Store(true)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	c.handle = h
	c.mu.Unlock()

	c.cfg.Metrics.Connected()
	c.l.Info("Stream connected", zap.Stringer("handle", h.ID), zap.String("url", c.cfg.StreamURL))

	go c.readLoop(h)

	return h, nil
}

// Disconnect closes h (the current handle if nil), unsubscribes all handlers
// and waits for the read loop to exit. It is safe to call repeatedly but must
// not be called from a handler.
func (c *Client) Disconnect(h *Handle) {
	c.mu.Lock()
	if h == nil {
		h = c.handle
	}
	c.mu.Unlock()

	c.handlers.Clear()

	if h == nil {
		return
	}

	if h.closing.CompareAndSwap(false, true) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		_ = h.conn.Close()
	}

	<-h.done
}

// Close disconnects and makes every later Connect fail with ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Disconnect(nil)
}

func (c *Client) dialer() *websocket.Dialer {
	if c.cfg.Dialer != nil {
		return c.cfg.Dialer
	}
	timeout := c.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
}

// readLoop is the only goroutine that dispatches events for h.
func (c *Client) readLoop(h *Handle) {
	defer close(h.done)

	c.dispatch(Message{Event: EventConnect, Handle: h.ID})

	var err error
	for {
		var data []byte
		if _, data, err = h.conn.ReadMessage(); err != nil {
			break
		}
		c.handleFrame(h, data)
	}

	h.active.Store(false)
	_ = h.conn.Close()
	c.cfg.Metrics.Disconnected()

	msg := Message{Event: EventDisconnect, Handle: h.ID}
	switch {
	case h.closing.Load():
		c.l.Info("Stream disconnected", zap.Stringer("handle", h.ID))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.l.Info("Stream closed by server", zap.Stringer("handle", h.ID))
	default:
		msg.Err = err
		c.l.Warn("Stream lost", zap.Stringer("handle", h.ID), zap.Error(err))
	}

	c.dispatch(msg)
}

func (c *Client) handleFrame(h *Handle, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.l.Warn("Dropping malformed frame", zap.Stringer("handle", h.ID), zap.Error(err))
		return
	}

	switch env.Type {
	case EventDataUpdate:
		s, err := sample.Parse(env.Data)
		if err != nil {
			field := "payload"
			var ise *sample.InvalidSampleError
			if errors.As(err, &ise) {
				field = ise.Field
			}
			c.cfg.Metrics.SampleRejected(field)
			c.l.Warn("Dropping invalid sample", zap.Stringer("handle", h.ID), zap.Error(err))
			return
		}
		c.cfg.Metrics.SampleReceived()
		c.dispatch(Message{Event: EventDataUpdate, Handle: h.ID, Sample: s})

	case EventConnect, EventDisconnect:
		// the local connect and disconnect events follow the socket itself
		c.l.Debug("Server event", zap.Stringer("handle", h.ID), zap.String("type", string(env.Type)))

	default:
		c.l.Debug("Ignoring unknown event", zap.Stringer("handle", h.ID), zap.String("type", string(env.Type)))
	}
}

func (c *Client) dispatch(msg Message) {
	if err := c.handlers.Dispatch(msg); err != nil {
		c.l.Warn("Event handler failed", zap.Stringer("handle", msg.Handle), zap.Error(err))
	}
}
