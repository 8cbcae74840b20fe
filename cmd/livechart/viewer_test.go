package main

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chosenoffset/livechart/pkg/livechart/feed"
	"github.com/chosenoffset/livechart/pkg/livechart/metrics"
	"github.com/chosenoffset/livechart/pkg/livechart/scale"
	"github.com/chosenoffset/livechart/pkg/livechart/stream"
	"github.com/chosenoffset/livechart/pkg/livechart/view"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestViewerIdle(t *testing.T) {
	c := view.NewController(view.Config{Viewport: scale.NewViewport(800, 500)})
	v := &viewer{c: c, width: 800, refresh: 2, l: zaptest.NewLogger(t)}
	r := newRouter(v, metrics.NewHTTPMetrics("viewer"), nil)

	rec := get(t, r, "/chart.svg")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "idle", rec.Header().Get("X-Chart-State"))

	rec = get(t, r, "/snapshot.png")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = get(t, r, "/?size=xl")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, r, "/?size=lg")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `height="600"`)
	assert.Contains(t, rec.Body.String(), `content="2"`)
	assert.Equal(t, 600.0, c.Viewport().Height)

	rec = get(t, r, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string `json:"status"`
		Data   struct {
			State   string  `json:"state"`
			Samples int     `json:"samples"`
			Height  float64 `json:"height"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "idle", body.Data.State)
	assert.Equal(t, 600.0, body.Data.Height)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/debug/metrics").Code)
}

func TestViewerLive(t *testing.T) {
	fs := feed.NewServer(feed.Config{
		Source: &feed.RandomSource{Interval: 5 * time.Millisecond},
		Logger: zaptest.NewLogger(t),
	})
	ts := httptest.NewServer(fs.Handler())
	t.Cleanup(func() {
		_ = fs.Stop()
		require.Eventually(t, func() bool { return fs.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
		ts.Close()
	})

	cfg, err := stream.NewConfig(ts.URL)
	require.NoError(t, err)

	c := view.NewController(view.Config{
		Stream:   cfg,
		Viewport: scale.NewViewport(400, 300),
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, c.Mount(context.Background()))
	t.Cleanup(c.Unmount)

	v := &viewer{c: c, width: 400, refresh: 1, l: zaptest.NewLogger(t)}
	r := newRouter(v, nil, nil)

	require.Eventually(t, func() bool { return get(t, r, "/chart.svg").Code == http.StatusOK }, 5*time.Second, 10*time.Millisecond)

	rec := get(t, r, "/chart.svg")
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "live", rec.Header().Get("X-Chart-State"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<svg "))

	rec = get(t, r, "/snapshot.png")
	require.Equal(t, http.StatusOK, rec.Code)
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
}
