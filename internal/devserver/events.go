package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes user and cart events. A nil Producer is valid and
// drops everything, so the server runs without a broker.
type Producer struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewProducer(address string, log *slog.Logger) *Producer {
	if address == "" {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(address),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		log: log,
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, event map[string]any) {
	if p == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("event_encode_failed", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		// Events are best-effort telemetry, never fatal to a request.
		p.log.Warn("event_publish_failed", "topic", topic, "error", err)
	}
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

func eventKey(userID uint) string { return fmt.Sprint(userID) }
