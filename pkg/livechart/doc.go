// Package livechart is the root of a live streaming time-series chart: a
// client that follows a push server over WebSocket and keeps a retained SVG
// scene of the received samples up to date.
//
// # Overview
//
// A chart is driven by a view.Controller. Mounting it probes the push
// server's readiness endpoint, opens the stream and renders one frame per
// received sample. Unmounting closes the stream and stops all updates.
//
//	cfg, err := stream.NewConfig("http://localhost:3000")
//	if err != nil {
//		return err
//	}
//
//	c := view.NewController(view.Config{
//		Stream:   cfg,
//		Viewport: scale.NewViewport(800, 500),
//		Logger:   logger,
//	})
//	if err := c.Mount(ctx); err != nil {
//		return err
//	}
//	defer c.Unmount()
//
//	svg := c.SVG() // latest frame
//
// # Architecture
//
// The packages below build on each other:
//
//   - sample: the (time, value) record and its wire decoding
//   - series: the ordered, optionally bounded sample buffer
//   - scale: linear and time scales, nice domains and ticks, viewports
//   - scene: the retained element registry, axes and SVG output
//   - stream: readiness probe and WebSocket client with event handlers
//   - view: the controller state machine tying the above together
//   - feed: a reference push server with random and Kafka sources
//   - snapshot: PNG export of a series
//   - metrics, logging: Prometheus collectors and zap setup
//
// # Wire format
//
// The push server sends JSON envelopes:
//
//	{"type": "connect"}
//	{"type": "data-update", "data": {"timestamp": "2024-01-01T00:00:00Z", "value": 42.5}}
//	{"type": "disconnect"}
//
// Samples with an unparsable timestamp or a non-numeric value are dropped.
package livechart
