package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/chosenoffset/livechart/pkg/livechart/sample"
)

// DefaultInterval is the emission period of RandomSource.
const DefaultInterval = 4 * time.Second

// Source produces samples until ctx is done. Run must return when ctx is
// cancelled; a nil or context error return is a clean stop.
type Source interface {
	Run(ctx context.Context, out chan<- sample.Sample) error
}

// RandomSource emits the current time with a uniform value in [0, 100) every
// Interval.
type RandomSource struct {
	Interval time.Duration

	// Value and Now default to rand.Float64()*100 and time.Now.
	Value func() float64
	Now   func() time.Time
}

// Run implements Source.
func (rs *RandomSource) Run(ctx context.Context, out chan<- sample.Sample) error {
	interval := rs.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	value := rs.Value
	if value == nil {
		value = func() float64 { return rand.Float64() * 100 }
	}
	now := rs.Now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := sample.Sample{Timestamp: now().UTC(), Value: value()}
			select {
			case out <- s:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// KafkaSource reads samples encoded as {"timestamp","value"} JSON from a
// Kafka topic. Invalid messages are logged and skipped.
type KafkaSource struct {
	Brokers []string
	Topic   string
	GroupID string
	Logger  *zap.Logger
}

// ErrNoBrokers is returned by KafkaSource.Run without brokers or topic.
var ErrNoBrokers = errors.New("kafka source: brokers and topic are required")

// Run implements Source.
func (ks *KafkaSource) Run(ctx context.Context, out chan<- sample.Sample) error {
	if len(ks.Brokers) == 0 || ks.Topic == "" {
		return ErrNoBrokers
	}
	l := ks.Logger
	if l == nil {
		l = zap.NewNop()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  ks.Brokers,
		GroupID:  ks.GroupID,
		Topic:    ks.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	defer reader.Close()

	l.Info("Reading samples from Kafka", zap.Strings("brokers", ks.Brokers), zap.String("topic", ks.Topic))

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka source: %w", err)
		}

		s, err := decodeMessage(m)
		if err != nil {
			l.Warn("Skipping invalid message", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}

		select {
		case out <- s:
		case <-ctx.Done():
			return nil
		}
	}
}

func decodeMessage(m kafka.Message) (sample.Sample, error) {
	s, err := sample.Parse(m.Value)
	if err != nil {
		return sample.Sample{}, fmt.Errorf("%s/%d@%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	return s, nil
}
