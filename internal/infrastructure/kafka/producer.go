// Package kafka publishes transfer task lifecycle events for external
// collaborators (notification bots, billing, audit).
package kafka

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
)

// maxStoredErrors bounds the in-memory error list during long runs
const maxStoredErrors = 100

// ProducerConfig holds configuration for the task event producer
type ProducerConfig struct {
	Brokers         []string
	Topic           string
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	MaxMessageBytes int // default 1MB
	MaxRetries      int // default 5
}

// TaskEventProducer sends task events to Kafka using an asynchronous producer.
// Messages are keyed by task ID so one task's events stay ordered within a
// partition.
type TaskEventProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	closed    bool
	closeMu   sync.Mutex
	errors    []error
	errorsMu  sync.Mutex
}

// NewTaskEventProducer creates a Kafka producer with async configuration:
// snappy compression, idempotent mode for at-least-once delivery with
// deduplication, hash partitioner keyed by task_id.
func NewTaskEventProducer(cfg ProducerConfig) (*TaskEventProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers specified")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1000000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy

	// Idempotent mode: at-least-once delivery with automatic deduplication
	config.Producer.Idempotent = true
	config.Producer.RequiredAcks = sarama.WaitForAll // Required for idempotent producer
	config.Net.MaxOpenRequests = 1                   // Required for idempotent producer
	config.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	config.Producer.Retry.Max = cfg.MaxRetries

	// Hash by task_id so events for one task stay ordered
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.ClientID = "televault-producer"
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cfg.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka producer initialized successfully")

	return newWithProducer(producer, cfg.Topic, cfg.Logger, cfg.Metrics), nil
}

// newWithProducer wires an existing async producer; tests inject a mock here
func newWithProducer(producer sarama.AsyncProducer, topic string, logger zerolog.Logger, m *metrics.Metrics) *TaskEventProducer {
	p := &TaskEventProducer{
		producer: producer,
		topic:    topic,
		logger:   logger.With().Str("component", "kafka_producer").Logger(),
		metrics:  m,
		errors:   make([]error, 0),
	}
	p.wg.Add(2)
	go p.handleSuccesses()
	go p.handleErrors()
	return p
}

// PublishTaskEvent queues one task event. The producer's input buffer absorbs
// bursts; when it is full the event is dropped with a warning rather than
// blocking the transfer loop.
func (p *TaskEventProducer) PublishTaskEvent(event domain.TaskEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("task_id", event.TaskID).Msg("failed to marshal task event")
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.TaskID),
		Value:     sarama.ByteEncoder(value),
		Timestamp: event.OccurredAt,
	}

	select {
	case p.producer.Input() <- msg:
		p.logger.Debug().
			Str("task_id", event.TaskID).
			Str("status", string(event.Status)).
			Msg("task event queued for Kafka")
	default:
		if p.metrics != nil {
			p.metrics.KafkaProduceErrors.WithLabelValues("input_full").Inc()
		}
		p.logger.Warn().
			Str("task_id", event.TaskID).
			Msg("kafka input buffer full, task event dropped")
	}
}

func (p *TaskEventProducer) handleSuccesses() {
	defer p.wg.Done()

	for msg := range p.producer.Successes() {
		if p.metrics != nil {
			p.metrics.KafkaMessagesProduced.Inc()
		}
		p.logger.Debug().
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("Message sent to Kafka successfully")
	}
}

func (p *TaskEventProducer) handleErrors() {
	defer p.wg.Done()

	for producerErr := range p.producer.Errors() {
		if p.metrics != nil {
			p.metrics.KafkaProduceErrors.WithLabelValues("send_failed").Inc()
		}
		p.logger.Error().
			Err(producerErr.Err).
			Str("topic", producerErr.Msg.Topic).
			Msg("Failed to send message to Kafka")

		p.errorsMu.Lock()
		if len(p.errors) < maxStoredErrors {
			p.errors = append(p.errors, producerErr.Err)
		}
		p.errorsMu.Unlock()
	}
}

// IsHealthy returns true while the producer is open and below the error bound
func (p *TaskEventProducer) IsHealthy() bool {
	if p.producer == nil {
		return false
	}

	p.closeMu.Lock()
	isClosed := p.closed
	p.closeMu.Unlock()
	if isClosed {
		return false
	}

	p.errorsMu.Lock()
	errorCount := len(p.errors)
	p.errorsMu.Unlock()
	return errorCount < maxStoredErrors
}

// Close gracefully shuts down the producer with a 10-second flush timeout.
// Idempotent.
func (p *TaskEventProducer) Close() error {
	return p.CloseWithTimeout(10 * time.Second)
}

// CloseWithTimeout flushes pending messages and waits for the handler
// goroutines, up to the given timeout
func (p *TaskEventProducer) CloseWithTimeout(timeout time.Duration) error {
	p.closeOnce.Do(func() {
		p.logger.Info().Dur("timeout", timeout).Msg("Closing Kafka producer")

		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()

		var errs []error
		if err := p.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close failed: %w", err))
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			errs = append(errs, fmt.Errorf("close timeout after %s: handlers did not finish in time", timeout))
		}

		p.errorsMu.Lock()
		errorCount := len(p.errors)
		p.errorsMu.Unlock()
		if errorCount > 0 {
			errs = append(errs, fmt.Errorf("producer had %d send errors during operation", errorCount))
		}

		p.closeMu.Lock()
		if len(errs) == 1 {
			p.closeErr = errs[0]
		} else if len(errs) > 1 {
			msg := "multiple errors during close:"
			for i, err := range errs {
				msg += fmt.Sprintf(" [%d] %v;", i+1, err)
			}
			p.closeErr = fmt.Errorf("%s", msg)
		}
		p.closeMu.Unlock()
	})

	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closeErr
}

// Ensure TaskEventProducer implements domain.EventPublisher interface
var _ domain.EventPublisher = (*TaskEventProducer)(nil)
