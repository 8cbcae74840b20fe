// Package metrics provides Prometheus collectors for the stream client, the
// render loop and HTTP servers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livechart"

// StreamMetrics counts what arrives over a push channel.
type StreamMetrics struct {
	Received    prometheus.Counter
	Rejected    *prometheus.CounterVec
	Connects    prometheus.Counter
	Disconnects prometheus.Counter
}

// NewStreamMetrics creates stream metrics.
func NewStreamMetrics() *StreamMetrics {
	return &StreamMetrics{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "samples_received_total",
			Help:      "Total number of valid samples received.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "samples_rejected_total",
			Help:      "Total number of malformed samples dropped, by offending field.",
		}, []string{"field"}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connects_total",
			Help:      "Total number of established push channels.",
		}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "disconnects_total",
			Help:      "Total number of closed push channels.",
		}),
	}
}

// SampleReceived records one accepted sample.
func (sm *StreamMetrics) SampleReceived() {
	if sm == nil {
		return
	}
	sm.Received.Inc()
}

// SampleRejected records one dropped sample.
func (sm *StreamMetrics) SampleRejected(field string) {
	if sm == nil {
		return
	}
	sm.Rejected.WithLabelValues(field).Inc()
}

// Connected records an established channel.
func (sm *StreamMetrics) Connected() {
	if sm == nil {
		return
	}
	sm.Connects.Inc()
}

// Disconnected records a closed channel.
func (sm *StreamMetrics) Disconnected() {
	if sm == nil {
		return
	}
	sm.Disconnects.Inc()
}

// Describe implements prometheus.Collector.
func (sm *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	sm.Received.Describe(ch)
	sm.Rejected.Describe(ch)
	sm.Connects.Describe(ch)
	sm.Disconnects.Describe(ch)
}

// Collect implements prometheus.Collector.
func (sm *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	sm.Received.Collect(ch)
	sm.Rejected.Collect(ch)
	sm.Connects.Collect(ch)
	sm.Disconnects.Collect(ch)
}

// RenderMetrics describes render passes of a view controller.
type RenderMetrics struct {
	Passes   prometheus.Counter
	Skipped  *prometheus.CounterVec
	Duration prometheus.Histogram
	Updated  prometheus.Counter
}

// NewRenderMetrics creates render metrics.
func NewRenderMetrics() *RenderMetrics {
	return &RenderMetrics{
		Passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "passes_total",
			Help:      "Total number of completed render passes.",
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "skipped_total",
			Help:      "Total number of skipped render passes, by reason.",
		}, []string{"reason"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Render pass duration.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		Updated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "elements_updated_total",
			Help:      "Total number of element updates applied in place.",
		}),
	}
}

// ObservePass records a completed pass.
func (rm *RenderMetrics) ObservePass(d time.Duration, updated int) {
	if rm == nil {
		return
	}
	rm.Passes.Inc()
	rm.Duration.Observe(d.Seconds())
	rm.Updated.Add(float64(updated))
}

// ObserveSkip records a skipped pass.
func (rm *RenderMetrics) ObserveSkip(reason string) {
	if rm == nil {
		return
	}
	rm.Skipped.WithLabelValues(reason).Inc()
}

// Describe implements prometheus.Collector.
func (rm *RenderMetrics) Describe(ch chan<- *prometheus.Desc) {
	rm.Passes.Describe(ch)
	rm.Skipped.Describe(ch)
	rm.Duration.Describe(ch)
	rm.Updated.Describe(ch)
}

// Collect implements prometheus.Collector.
func (rm *RenderMetrics) Collect(ch chan<- prometheus.Metric) {
	rm.Passes.Collect(ch)
	rm.Skipped.Collect(ch)
	rm.Duration.Collect(ch)
	rm.Updated.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*StreamMetrics)(nil)
	_ prometheus.Collector = (*RenderMetrics)(nil)
	_ prometheus.Collector = (*HTTPMetrics)(nil)
)
