package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hireloop/interview-capture/internal/events"
	"github.com/hireloop/interview-capture/internal/observability"
)

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
}

// KafkaPublisher writes transcript events to two topics, one for interim
// updates and one for finalized text. When disabled it degrades to debug
// logging so session code never has to branch on configuration.
type KafkaPublisher struct {
	writerPartial *kafka.Writer
	writerFinal   *kafka.Writer
	enabled       bool
	metrics       *observability.Metrics
}

func NewKafkaPublisher(cfg KafkaConfig, metrics *observability.Metrics) events.Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		slog.Info("kafka publisher disabled, transcript events are log-only")
		return &KafkaPublisher{enabled: false, metrics: metrics}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	slog.Info("kafka publisher initialized",
		"brokers", cfg.Brokers, "topic_partial", cfg.TopicPartial, "topic_final", cfg.TopicFinal)
	return &KafkaPublisher{
		writerPartial: newWriter(cfg.TopicPartial),
		writerFinal:   newWriter(cfg.TopicFinal),
		enabled:       true,
		metrics:       metrics,
	}
}

func (p *KafkaPublisher) PublishPartial(ctx context.Context, event events.TranscriptEvent) error {
	event.EventType = "transcript.partial"
	return p.publish(ctx, p.writerPartial, event)
}

func (p *KafkaPublisher) PublishFinal(ctx context.Context, event events.TranscriptEvent) error {
	event.EventType = "transcript.final"
	return p.publish(ctx, p.writerFinal, event)
}

func (p *KafkaPublisher) publish(ctx context.Context, writer *kafka.Writer, event events.TranscriptEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}

	if !p.enabled || writer == nil {
		slog.Debug("transcript event (log-only)", "event_type", event.EventType, "session_id", event.SessionID)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(event.EventType)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.EventPublishErrors.Inc()
		return fmt.Errorf("write to %s: %w", writer.Topic, err)
	}
	p.metrics.EventsPublished.WithLabelValues(event.EventType).Inc()
	return nil
}

func (p *KafkaPublisher) Close() error {
	var err error
	if p.writerPartial != nil {
		if e := p.writerPartial.Close(); e != nil {
			err = e
		}
	}
	if p.writerFinal != nil {
		if e := p.writerFinal.Close(); e != nil {
			err = e
		}
	}
	return err
}
