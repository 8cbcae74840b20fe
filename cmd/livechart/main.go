// Command livechart connects to a push server, keeps a live chart of the
// received samples and serves it over HTTP:
//
//   - GET /               page that reloads the chart (?size=sm|md|lg)
//   - GET /chart.svg      the current frame as SVG
//   - GET /snapshot.png   the current samples as PNG
//   - GET /api/state      controller state
//   - GET /debug/metrics  Prometheus metrics
//
// Usage:
//
//	go run ./cmd/livechart --server=http://localhost:3000 --listen-addr=:8080
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/chosenoffset/livechart/pkg/livechart/logging"
	"github.com/chosenoffset/livechart/pkg/livechart/metrics"
	"github.com/chosenoffset/livechart/pkg/livechart/scale"
	"github.com/chosenoffset/livechart/pkg/livechart/stream"
	"github.com/chosenoffset/livechart/pkg/livechart/view"
)

// The cli struct represents all command-line flags.
var cli struct {
	Server     string  `default:"http://localhost:3000" help:"Base URL of the push server."`
	ListenAddr string  `default:":8080"                 help:"Listen address of the chart server."`
	Width      float64 `default:"800"                   help:"Chart width in pixels."`
	Height     float64 `default:"500"                   help:"Chart height in pixels."`
	Window     int     `default:"0"                     help:"Keep only the most recent samples; 0 keeps all."`
	Refresh    int     `default:"2"                     help:"Page reload period in seconds."`

	Log struct {
		Level  string `default:"info"    help:"Log level: '${help_log_level}'."`
		Format string `default:"console" help:"Log format: '${enum_log_format}'." enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`
}

var (
	logFormats = []string{"console", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}

	kongOptions = []kong.Option{
		kong.Vars{
			"enum_log_format": strings.Join(logFormats, ","),
			"help_log_level":  strings.Join(logLevels, "', '"),
		},
		kong.DefaultEnvars("LIVECHART"),
	}
)

func main() {
	kong.Parse(&cli, kongOptions...)

	logger, err := logging.Setup(cli.Log.Level, cli.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(logger); err != nil {
		logger.Fatal("Chart server failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamCfg, err := stream.NewConfig(cli.Server)
	if err != nil {
		return err
	}

	vp := scale.NewViewport(cli.Width, cli.Height)
	if err := vp.Validate(); err != nil {
		return err
	}

	streamMetrics := metrics.NewStreamMetrics()
	renderMetrics := metrics.NewRenderMetrics()
	httpMetrics := metrics.NewHTTPMetrics("viewer")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		streamMetrics,
		renderMetrics,
		httpMetrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	streamCfg.Metrics = streamMetrics

	controller := view.NewController(view.Config{
		Stream:        streamCfg,
		Viewport:      vp,
		Window:        cli.Window,
		Logger:        logger.Named("view"),
		RenderMetrics: renderMetrics,
	})
	if err := controller.Mount(ctx); err != nil {
		return err
	}
	defer controller.Unmount()

	v := &viewer{c: controller, width: cli.Width, refresh: cli.Refresh, l: logger.Named("viewer")}
	access := zap.NewStdLog(logger.Named("http")).Writer()
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(logger.Named("recovery"))))

	srv := &http.Server{
		Addr:              cli.ListenAddr,
		Handler:           recovery(handlers.LoggingHandler(access, newRouter(v, httpMetrics, registry))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving chart", zap.String("addr", cli.ListenAddr), zap.String("server", cli.Server))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
