package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"qrgate/internal/config"
	"qrgate/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka forwards access events to a topic, keyed by plate.
type Kafka struct {
	w       messageWriter
	timeout time.Duration
	logger  *slog.Logger
}

func NewKafka(cfg config.KafkaConfig, logger *slog.Logger) *Kafka {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka event publishing disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("kafka event publishing enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	return &Kafka{w: w, timeout: 2 * time.Second, logger: logger}
}

func (k *Kafka) SaveEvent(ctx context.Context, ev model.AccessEvent) error {
	if k == nil || k.w == nil {
		return nil
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Plate), Value: value})
}

func (k *Kafka) Close() error {
	if k == nil || k.w == nil {
		return nil
	}
	return k.w.Close()
}
