package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chosenoffset/livechart/pkg/livechart/metrics"
)

// pushServer is a minimal push server whose frames are fed by the test.
type pushServer struct {
	*httptest.Server
	probeStatus int
	frames      chan string
	wsHits      atomic.Int32
	finishOnce  sync.Once
}

func newPushServer(t *testing.T, probeStatus int) *pushServer {
	t.Helper()

	ps := &pushServer{probeStatus: probeStatus, frames: make(chan string, 16)}
	upgrader := websocket.Upgrader{}

	r := mux.NewRouter()
	r.HandleFunc(ProbePath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(ps.probeStatus)
	}).Methods("GET")
	r.HandleFunc(StreamPath, func(w http.ResponseWriter, r *http.Request) {
		ps.wsHits.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for frame := range ps.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = conn.ReadMessage()
	})

	ps.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		ps.finish()
		ps.Close()
	})
	return ps
}

// finish closes the socket from the server side once queued frames are sent.
func (ps *pushServer) finish() {
	ps.finishOnce.Do(func() { close(ps.frames) })
}

func newTestClient(t *testing.T, ps *pushServer, sm *metrics.StreamMetrics) *Client {
	t.Helper()
	cfg, err := NewConfig(ps.URL)
	require.NoError(t, err)
	cfg.Metrics = sm
	c := NewClient(cfg, zaptest.NewLogger(t))
	t.Cleanup(c.Close)
	return c
}

func collect(c *Client) <-chan Message {
	ch := make(chan Message, 32)
	for _, ev := range []Event{EventConnect, EventDataUpdate, EventDisconnect} {
		c.On(ev, func(msg Message) error {
			ch <- msg
			return nil
		})
	}
	return ch
}

func next(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
		return Message{}
	}
}

func TestClient(t *testing.T) {
	t.Run("Events", testClientEvents)
	t.Run("ProbeRejected", testClientProbeRejected)
	t.Run("ProbeUnreachable", testClientProbeUnreachable)
	t.Run("CancelledBeforeDial", testClientCancelled)
	t.Run("Idempotent", testClientIdempotent)
	t.Run("Disconnect", testClientDisconnect)
	t.Run("Closed", testClientClosed)
}

func testClientEvents(t *testing.T) {
	ps := newPushServer(t, http.StatusOK)
	sm := metrics.NewStreamMetrics()
	c := newTestClient(t, ps, sm)
	msgs := collect(c)

	ps.frames <- `{"type":"connect"}`
	ps.frames <- `{"type":"data-update","data":{"timestamp":"2024-03-01T10:00:00Z","value":10}}`
	ps.frames <- `{"type":"data-update","data":{"timestamp":"2024-03-01T10:00:04Z","value":"abc"}}`
	ps.frames <- `not json`
	ps.frames <- `{"type":"something-else"}`
	ps.frames <- `{"type":"data-update","data":{"timestamp":"2024-03-01T10:00:08Z","value":20.5}}`
	ps.finish()

	h, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, h.ID)

	msg := next(t, msgs)
	assert.Equal(t, EventConnect, msg.Event)
	assert.Equal(t, h.ID, msg.Handle)

	msg = next(t, msgs)
	assert.Equal(t, EventDataUpdate, msg.Event)
	assert.Equal(t, 10.0, msg.Sample.Value)

	msg = next(t, msgs)
	assert.Equal(t, EventDataUpdate, msg.Event)
	assert.Equal(t, 20.5, msg.Sample.Value)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 8, 0, time.UTC), msg.Sample.Timestamp.UTC())

	msg = next(t, msgs)
	assert.Equal(t, EventDisconnect, msg.Event)
	assert.NoError(t, msg.Err, "a normal close is not an error")

	<-h.Done()
	assert.False(t, h.Active())

	assert.Equal(t, 2.0, testutil.ToFloat64(sm.Received))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.Rejected.WithLabelValues("value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.Connects))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.Disconnects))
}

func testClientProbeRejected(t *testing.T) {
	ps := newPushServer(t, http.StatusServiceUnavailable)
	c := newTestClient(t, ps, nil)

	h, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrServerUnavailable)

	var pe *ProbeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
	assert.Equal(t, int32(0), ps.wsHits.Load(), "a failed probe aborts the connect")
}

func testClientProbeUnreachable(t *testing.T) {
	ps := newPushServer(t, http.StatusOK)
	cfg, err := NewConfig(ps.URL)
	require.NoError(t, err)
	ps.Close()

	c := NewClient(cfg, zaptest.NewLogger(t))
	t.Cleanup(c.Close)

	err = c.Probe(context.Background())
	assert.ErrorIs(t, err, ErrServerUnavailable)

	var pe *ProbeError
	require.ErrorAs(t, err, &pe)
	assert.Error(t, pe.Err)
}

func testClientCancelled(t *testing.T) {
	ps := newPushServer(t, http.StatusOK)
	c := newTestClient(t, ps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), ps.wsHits.Load())
	assert.Nil(t, c.Handle())
}

func testClientIdempotent(t *testing.T) {
	ps := newPushServer(t, http.StatusOK)
	c := newTestClient(t, ps, nil)

	h1, err := c.Connect(context.Background())
	require.NoError(t, err)
	h2, err := c.Connect(context.Background())
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, int32(1), ps.wsHits.Load())
}

func testClientDisconnect(t *testing.T) {
	ps := newPushServer(t, http.StatusOK)
	c := newTestClient(t, ps, nil)
	msgs := collect(c)

	h, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventConnect, next(t, msgs).Event)

	c.Disconnect(h)
	assert.False(t, h.Active())
	assert.Equal(t, 0, c.handlers.Len(EventDataUpdate), "handlers are unsubscribed")

	select {
	case <-h.Done():
	default:
		t.Fatal("read loop still running after Disconnect")
	}

	assert.NotPanics(t, func() {
		c.Disconnect(h)
		c.Disconnect(nil)
	})

	select {
	case msg := <-msgs:
		t.Fatalf("unexpected %s after Disconnect", msg.Event)
	default:
	}
}

func testClientClosed(t *testing.T) {
	ps := newPushServer(t, http.StatusOK)
	c := newTestClient(t, ps, nil)

	c.Close()
	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int32(0), ps.wsHits.Load())
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig("http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/api/chart-data", cfg.ProbeURL)
	assert.Equal(t, "ws://localhost:3000/ws", cfg.StreamURL)

	cfg, err = NewConfig("https://example.com/chart/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/chart/api/chart-data", cfg.ProbeURL)
	assert.Equal(t, "wss://example.com/chart/ws", cfg.StreamURL)

	for _, bad := range []string{"ftp://x", "localhost:3000", "http://", "://"} {
		_, err = NewConfig(bad)
		assert.Error(t, err, bad)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var calls []string

	r.On(EventDataUpdate, HandlerFunc(func(Message) error { calls = append(calls, "a"); return nil }))
	r.On(EventDataUpdate, HandlerFunc(func(Message) error { return errors.New("boom") }))
	r.On(EventDataUpdate, HandlerFunc(func(Message) error { calls = append(calls, "c"); return nil }))

	assert.NoError(t, r.Dispatch(Message{Event: EventConnect}), "no handlers is fine")

	err := r.Dispatch(Message{Event: EventDataUpdate})
	assert.ErrorContains(t, err, "data-update handler: boom")
	assert.Equal(t, []string{"a"}, calls)

	r.Clear()
	assert.Equal(t, 0, r.Len(EventDataUpdate))
}
