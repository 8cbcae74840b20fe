// Command feed is a reference push server for the live chart. It serves the
// readiness probe at /api/chart-data and broadcasts samples over the WebSocket
// at /ws, either random values or values read from a Kafka topic.
//
// Usage:
//
//	go run ./cmd/feed --listen-addr=:3000
//	go run ./cmd/feed --source=kafka --kafka-brokers=localhost:9092 --kafka-topic=samples
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/chosenoffset/livechart/pkg/livechart/feed"
	"github.com/chosenoffset/livechart/pkg/livechart/logging"
	"github.com/chosenoffset/livechart/pkg/livechart/metrics"
)

// The cli struct represents all command-line flags.
var cli struct {
	ListenAddr string        `default:":3000" help:"Listen address."`
	Interval   time.Duration `default:"4s"    help:"Emission interval of the random source."`
	Source     string        `default:"random" help:"Sample source: '${enum_source}'." enum:"${enum_source}"`
	MaxClients int           `default:"100"   help:"Maximum concurrent WebSocket clients."`
	History    int           `default:"50"    help:"Recent samples reported by the readiness endpoint."`

	Kafka struct {
		Brokers []string `default:"localhost:9092" help:"Kafka brokers."`
		Topic   string   `default:"samples"        help:"Kafka topic with JSON samples."`
		GroupID string   `default:""               help:"Kafka consumer group; empty reads the topic directly." name:"group-id"`
	} `embed:"" prefix:"kafka-"`

	Log struct {
		Level  string `default:"info"    help:"Log level: '${help_log_level}'."`
		Format string `default:"console" help:"Log format: '${enum_log_format}'." enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`
}

var (
	sources    = []string{"random", "kafka"}
	logFormats = []string{"console", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}

	kongOptions = []kong.Option{
		kong.Vars{
			"enum_source":     strings.Join(sources, ","),
			"enum_log_format": strings.Join(logFormats, ","),
			"help_log_level":  strings.Join(logLevels, "', '"),
		},
		kong.DefaultEnvars("LIVECHART_FEED"),
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
		logger.Fatal("Feed failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var source feed.Source
	switch cli.Source {
	case "kafka":
		source = &feed.KafkaSource{
			Brokers: cli.Kafka.Brokers,
			Topic:   cli.Kafka.Topic,
			GroupID: cli.Kafka.GroupID,
			Logger:  logger.Named("kafka"),
		}
	default:
		source = &feed.RandomSource{Interval: cli.Interval}
	}

	registry := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics("feed")
	registry.MustRegister(
		httpMetrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := feed.NewServer(feed.Config{
		Addr:        cli.ListenAddr,
		Source:      source,
		MaxClients:  cli.MaxClients,
		History:     cli.History,
		Logger:      logger.Named("feed"),
		HTTPMetrics: httpMetrics,
		Gatherer:    registry,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		return server.Stop()
	}
}
