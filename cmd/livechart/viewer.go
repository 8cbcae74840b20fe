package main

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chosenoffset/livechart/pkg/livechart/metrics"
	"github.com/chosenoffset/livechart/pkg/livechart/scale"
	"github.com/chosenoffset/livechart/pkg/livechart/snapshot"
	"github.com/chosenoffset/livechart/pkg/livechart/view"
)

// sizes are the responsive chart heights: small, medium and large screens.
var sizes = map[string]float64{
	"sm": 384,
	"md": 500,
	"lg": 600,
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>Live chart</title>
</head>
<body style="background:#000;margin:0">
<img src="/chart.svg" width="{{.Width}}" height="{{.Height}}" alt="live chart">
</body>
</html>
`))

// viewer serves the controller's latest frame.
type viewer struct {
	c       *view.Controller
	width   float64
	refresh int
	l       *zap.Logger
}

func newRouter(v *viewer, hm *metrics.HTTPMetrics, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	if hm != nil {
		r.Use(hm.Middleware)
	}
	r.HandleFunc("/", v.handleIndex).Methods("GET")
	r.HandleFunc("/chart.svg", v.handleSVG).Methods("GET")
	r.HandleFunc("/snapshot.png", v.handleSnapshot).Methods("GET")
	r.HandleFunc("/api/state", v.handleState).Methods("GET")
	if gatherer != nil {
		r.Handle("/debug/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return r
}

// handleIndex resizes the chart to the requested size and serves a page that
// reloads it.
func (v *viewer) handleIndex(w http.ResponseWriter, r *http.Request) {
	vp := v.c.Viewport()
	if size := r.URL.Query().Get("size"); size != "" {
		h, ok := sizes[size]
		if !ok {
			http.Error(w, "size must be sm, md or lg", http.StatusBadRequest)
			return
		}
		vp = scale.NewViewport(v.width, h)
		v.c.Resize(vp)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTemplate.Execute(w, map[string]any{
		"Refresh": v.refresh,
		"Width":   vp.Width,
		"Height":  vp.Height,
	})
	if err != nil {
		v.l.Warn("Failed to write page", zap.Error(err))
	}
}

func (v *viewer) handleSVG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Chart-State", v.c.State().String())
	w.Header().Set("Cache-Control", "no-store")

	svg := v.c.SVG()
	if svg == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write([]byte(svg))
}

func (v *viewer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	vp := v.c.Viewport()
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "image/png")

	err := snapshot.PNG(w, v.c.Snapshot(), snapshot.Options{Width: int(vp.Width), Height: int(vp.Height)})
	switch {
	case errors.Is(err, snapshot.ErrEmpty):
		w.Header().Del("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		v.l.Error("Snapshot failed", zap.Error(err))
		w.Header().Del("Content-Type")
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
	}
}

func (v *viewer) handleState(w http.ResponseWriter, r *http.Request) {
	vp := v.c.Viewport()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"data": map[string]any{
			"state":   v.c.State().String(),
			"samples": len(v.c.Snapshot()),
			"width":   vp.Width,
			"height":  vp.Height,
		},
	})
}
