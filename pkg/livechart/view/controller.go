// Package view drives one live chart: it connects a stream client, owns the
// series buffer and the retained scene, and re-renders on every sample and
// viewport change.
//
// All buffer and scene mutation happens on a single event-loop goroutine.
// The stream read loop and callers of Resize only post events to it.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chosenoffset/livechart/pkg/livechart/metrics"
	"github.com/chosenoffset/livechart/pkg/livechart/sample"
	"github.com/chosenoffset/livechart/pkg/livechart/scale"
	"github.com/chosenoffset/livechart/pkg/livechart/scene"
	"github.com/chosenoffset/livechart/pkg/livechart/series"
	"github.com/chosenoffset/livechart/pkg/livechart/stream"
)

var (
	ErrAlreadyMounted = errors.New("controller already mounted")
	ErrUnmounted      = errors.New("controller unmounted")
)

// State is the lifecycle state of a controller.
type State int

const (
	Idle State = iota
	Connecting
	Loading
	Live
	// Unavailable means the server failed the readiness probe or refused the
	// push channel. It is terminal like Live.
	Unavailable
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Loading:
		return "loading"
	case Live:
		return "live"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config configures a Controller.
type Config struct {
	Stream   stream.Config
	Viewport scale.Viewport

	// Window bounds the buffer to the most recent samples; 0 keeps all.
	Window int
	// Style defaults to scene.DefaultStyle.
	Style *scene.Style

	Logger        *zap.Logger
	RenderMetrics *metrics.RenderMetrics
}

type eventKind int

const (
	evConnect eventKind = iota
	evSample
	evResize
	evDisconnect
)

type event struct {
	kind     eventKind
	sample   sample.Sample
	viewport scale.Viewport
	err      error
}

// Controller is a single-use session: Mount once, Unmount once.
type Controller struct {
	cfg Config
	l   *zap.Logger

	events   chan event
	quit     chan struct{}
	loopDone chan struct{}
	// inHooks is set while the loop runs render hooks.
	inHooks atomic.Bool

	mu        sync.RWMutex
	state     State
	mounted   bool
	unmounted bool
	viewport  scale.Viewport
	cancel    context.CancelFunc
	client    *stream.Client
	svg       string
	snapshot  []sample.Sample
	onRender  []func(scene.Pass)
}

// NewController returns an Idle controller.
func NewController(cfg Config) *Controller {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Controller{
		cfg:      cfg,
		l:        l,
		events:   make(chan event, 64),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		viewport: cfg.Viewport,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SVG returns the document of the last successful render pass, or "".
func (c *Controller) SVG() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.svg
}

// Snapshot returns the samples drawn by the last successful render pass.
func (c *Controller) Snapshot() []sample.Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]sample.Sample, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

// Viewport returns the latest requested viewport.
func (c *Controller) Viewport() scale.Viewport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewport
}

// OnRender registers fn to run on the event loop after each successful pass.
// fn must not block. It may call Unmount, in which case the remaining hooks of
// that pass are skipped.
func (c *Controller) OnRender(fn func(scene.Pass)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRender = append(c.onRender, fn)
}

// Mount starts the session: Idle → Connecting, then probe and connect in the
// background. It returns without waiting for the server.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.unmounted:
		c.mu.Unlock()
		return ErrUnmounted
	case c.mounted:
		c.mu.Unlock()
		return ErrAlreadyMounted
	}

	sessCtx, cancel := context.WithCancel(ctx)
	client := stream.NewClient(c.cfg.Stream, c.l.Named("stream"))
	client.On(stream.EventConnect, func(stream.Message) error {
		c.post(event{kind: evConnect})
		return nil
	})
	client.On(stream.EventDataUpdate, func(msg stream.Message) error {
		c.post(event{kind: evSample, sample: msg.Sample})
		return nil
	})
	client.On(stream.EventDisconnect, func(msg stream.Message) error {
		c.post(event{kind: evDisconnect, err: msg.Err})
		return nil
	})

	c.mounted = true
	c.state = Connecting
	c.cancel = cancel
	c.client = client
	vp := c.viewport
	c.mu.Unlock()

	c.l.Info("Mounted", zap.String("server", c.cfg.Stream.ProbeURL))

	var buf *series.Buffer
	if c.cfg.Window > 0 {
		buf = series.NewWindow(c.cfg.Window)
	} else {
		buf = series.New()
	}
	style := scene.DefaultStyle
	if c.cfg.Style != nil {
		style = *c.cfg.Style
	}

	go c.loop(buf, scene.NewWithStyle(style), vp)
	go c.connect(sessCtx, client)

	return nil
}

// Unmount ends the session. It is legal in every state and safe to call
// repeatedly. When it returns the push channel is closed and no state of c
// changes any more. The event loop has exited too, unless render hooks were
// running at the time; then it exits once the current hook returns.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	mounted, cancel, client := c.mounted, c.cancel, c.client
	c.mu.Unlock()

	if !mounted {
		return
	}

	cancel()
	close(c.quit)
	client.Close()
	if !c.inHooks.Load() {
		<-c.loopDone
	}

	c.l.Info("Unmounted")
}

// Resize requests a render pass into vp.
func (c *Controller) Resize(vp scale.Viewport) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.viewport = vp
	mounted := c.mounted
	c.mu.Unlock()

	if mounted {
		c.post(event{kind: evResize, viewport: vp})
	}
}

// post hands ev to the event loop unless the session is over.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// connect runs probe then dial. The session context is the cancellation
// token: once cancelled the outcome is ignored.
func (c *Controller) connect(ctx context.Context, client *stream.Client) {
	_, err := client.Connect(ctx)
	if err == nil || ctx.Err() != nil || errors.Is(err, stream.ErrClosed) {
		return
	}

	if errors.Is(err, stream.ErrServerUnavailable) {
		c.l.Warn("Server unavailable", zap.Error(err))
	} else {
		c.l.Error("Failed to open push channel", zap.Error(err))
	}
	c.transition(Connecting, Unavailable)
}

// transition moves from one state to another, unless the controller has been
// unmounted or is not in from.
func (c *Controller) transition(from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || c.state != from {
		return false
	}
	c.state = to
	c.l.Debug("State changed", zap.Stringer("from", from), zap.Stringer("to", to))
	return true
}

func (c *Controller) isUnmounted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unmounted
}

func (c *Controller) loop(buf *series.Buffer, sc *scene.Scene, vp scale.Viewport) {
	defer close(c.loopDone)

	for {
		select {
		case <-c.quit:
			return

		case ev := <-c.events:
			switch ev.kind {
			case evConnect:
				c.transition(Connecting, Loading)

			case evSample:
				buf.Append(ev.sample)
				c.transition(Loading, Live)
				c.render(buf, sc, vp)

			case evResize:
				vp = ev.viewport
				c.render(buf, sc, vp)

			case evDisconnect:
				// the last frame stays on screen
				if ev.err != nil {
					c.l.Warn("Updates stopped", zap.Int("samples", buf.Len()), zap.Error(ev.err))
				} else {
					c.l.Info("Updates stopped", zap.Int("samples", buf.Len()))
				}
			}
		}
	}
}

func (c *Controller) render(buf *series.Buffer, sc *scene.Scene, vp scale.Viewport) {
	start := time.Now()

	pass, err := sc.Render(buf, vp)
	switch {
	case errors.Is(err, scene.ErrEmptySeries):
		c.cfg.RenderMetrics.ObserveSkip("empty")
		return
	case errors.Is(err, scale.ErrDegenerateViewport):
		c.cfg.RenderMetrics.ObserveSkip("degenerate-viewport")
		c.l.Debug("Skipping render pass", zap.Error(err))
		return
	case err != nil:
		c.cfg.RenderMetrics.ObserveSkip("error")
		c.l.Error("Render pass failed", zap.Error(err))
		return
	}

	c.cfg.RenderMetrics.ObservePass(time.Since(start), len(pass.Updated))

	svg := sc.SVG()
	snapshot := buf.Samples()

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.svg = svg
	c.snapshot = snapshot
	hooks := c.onRender
	c.mu.Unlock()

	c.inHooks.Store(true)
	defer c.inHooks.Store(false)
	for _, fn := range hooks {
		if c.isUnmounted() {
			return
		}
		fn(pass)
	}
}
