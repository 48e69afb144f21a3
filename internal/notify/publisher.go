package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Publisher writes a JSON document to a topic.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error)
	Close() error
}

// ProducerMetrics counts publish attempts per topic and outcome.
type ProducerMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency prometheus.Histogram
}

// NewProducerMetrics registers the publish collectors with reg.
func NewProducerMetrics(reg prometheus.Registerer) *ProducerMetrics {
	m := &ProducerMetrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_publish_total",
				Help: "Broker publish attempts by topic and status.",
			},
			[]string{"topic", "status"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "notify_publish_latency_seconds",
				Help:    "Broker publish latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

func (m *ProducerMetrics) observe(topic string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.PublishTotal.WithLabelValues(topic, status).Inc()
	m.PublishLatency.Observe(time.Since(start).Seconds())
}

// KafkaProducer publishes synchronously through sarama.
type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
	metrics  *ProducerMetrics
}

// NewKafkaProducer dials the brokers with idempotent, acks=all settings.
func NewKafkaProducer(brokers []string, clientID string, logger *zap.Logger, metrics *ProducerMetrics) (*KafkaProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newKafkaProducer(producer, logger, metrics), nil
}

func newKafkaProducer(producer sarama.SyncProducer, logger *zap.Logger, metrics *ProducerMetrics) *KafkaProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaProducer{producer: producer, logger: logger, metrics: metrics}
}

func (p *KafkaProducer) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal kafka payload: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	p.metrics.observe(topic, start, err)
	if err != nil {
		p.logger.Error("kafka publish failed", zap.String("topic", topic), zap.Error(err))
		return 0, 0, fmt.Errorf("kafka publish failed: %w", err)
	}
	return partition, offset, nil
}

func (p *KafkaProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// LogPublisher stands in for the broker when none is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	eventType := ""
	if m, ok := value.(Message); ok {
		eventType = m.EventType
	}
	logger.Info("notification not delivered: no broker configured",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.String("event_type", eventType),
	)
	return 0, 0, nil
}

func (LogPublisher) Close() error { return nil }
