// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/observability/metrics"
	"voice-search-assistant/internal/schema"
)

// Publisher publishes assistant events to separate Kafka topics.
type Publisher struct {
	writerMessages    *kafka.Writer
	writerTranscripts *kafka.Writer
	writerSubmissions *kafka.Writer
	principal         string
	topicMessages     string
	topicTranscripts  string
	topicSubmissions  string
	enabled           bool
	validator         *schema.Validator
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicMessages    string
	TopicTranscripts string
	TopicSubmissions string
	Principal        string
	Enabled          bool
}

// New creates a new Kafka event publisher with one topic per event kind.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: v,
			metrics:   m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicMessages:    cfg.TopicMessages,
			topicTranscripts: cfg.TopicTranscripts,
			topicSubmissions: cfg.TopicSubmissions,
			enabled:          false,
			validator:        v,
			metrics:          m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicMessages", cfg.TopicMessages).
		Str("topicTranscripts", cfg.TopicTranscripts).
		Str("topicSubmissions", cfg.TopicSubmissions).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerMessages:    newWriter(cfg.TopicMessages),
		writerTranscripts: newWriter(cfg.TopicTranscripts),
		writerSubmissions: newWriter(cfg.TopicSubmissions),
		principal:         cfg.Principal,
		topicMessages:     cfg.TopicMessages,
		topicTranscripts:  cfg.TopicTranscripts,
		topicSubmissions:  cfg.TopicSubmissions,
		enabled:           true,
		validator:         v,
		metrics:           m,
	}
}

// PublishMessage publishes a completed chat message. Keyed by session so a
// conversation stays ordered within one partition.
func (p *Publisher) PublishMessage(ctx context.Context, ev models.MessageCompleted) error {
	return p.publish(ctx, p.writerMessages, p.topicMessages, ev.EventType, ev.SessionID, ev)
}

// PublishTranscript publishes a confirmed transcript.
func (p *Publisher) PublishTranscript(ctx context.Context, ev models.TranscriptFinal) error {
	return p.publish(ctx, p.writerTranscripts, p.topicTranscripts, ev.EventType, ev.SessionID, ev)
}

// PublishSubmission publishes a resolver decision.
func (p *Publisher) PublishSubmission(ctx context.Context, ev models.SubmissionResolved) error {
	return p.publish(ctx, p.writerSubmissions, p.topicSubmissions, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Rejected invalid event")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return fmt.Errorf("validate %s: %w", eventType, err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{
		"messages":    p.writerMessages,
		"transcripts": p.writerTranscripts,
		"submissions": p.writerSubmissions,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
