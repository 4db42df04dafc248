package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/cfpminer/internal/config"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// EventHandler processes one decoded event.
type EventHandler func(ctx context.Context, topic string, env *EventEnvelope) error

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topics       []string
	FromLatest   bool
	MaxRetries   int
	RetryBackoff time.Duration
}

// ConsumerConfigFrom maps the kafka config section onto a consumer of both
// event topics.
func ConsumerConfigFrom(cfg config.KafkaConfig) ConsumerConfig {
	return ConsumerConfig{
		Brokers:    cfg.Brokers,
		GroupID:    cfg.GroupID,
		Topics:     []string{cfg.TopicMined, cfg.TopicFiltered},
		MaxRetries: cfg.MaxRetries,
	}
}

// ConsumerStats counts processed messages.
type ConsumerStats struct {
	Consumed int64
	Handled  int64
	Failed   int64
	Retried  int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads mining events for one consumer group.
type Consumer struct {
	reader  ReaderInterface
	config  ConsumerConfig
	handler EventHandler
	logger  logging.Logger

	running  atomic.Bool
	consumed atomic.Int64
	handled  atomic.Int64
	failed   atomic.Int64
	retried  atomic.Int64
}

// NewConsumer creates a Consumer backed by a kafka.Reader.
func NewConsumer(cfg ConsumerConfig, handler EventHandler, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	start := kafka.FirstOffset
	if cfg.FromLatest {
		start = kafka.LastOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MinBytes:       1,
		MaxBytes:       10 * 1024 * 1024,
		MaxWait:        time.Second,
		CommitInterval: 0,
		StartOffset:    start,
		Dialer:         &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	})
	return newConsumer(reader, cfg, handler, logger), nil
}

func newConsumer(r ReaderInterface, cfg ConsumerConfig, handler EventHandler, logger logging.Logger) *Consumer {
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Consumer{reader: r, config: cfg, handler: handler, logger: logger.Named("kafka.consumer")}
}

// Run consumes until ctx is cancelled.  Every fetched message is committed
// once its handler succeeds, its retries are exhausted or it fails to decode,
// so a poison message never blocks the group.
func (c *Consumer) Run(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)
	c.logger.Info("Kafka consumer started",
		logging.String("group", c.config.GroupID),
		logging.Strings("topics", c.config.Topics))

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("FetchMessage error", logging.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.config.RetryBackoff):
			}
			continue
		}
		c.consumed.Add(1)

		if err := c.process(ctx, m); err != nil {
			c.failed.Add(1)
			c.logger.Error("event dropped",
				logging.String("topic", m.Topic),
				logging.Int64("offset", m.Offset),
				logging.Err(err))
		} else {
			c.handled.Add(1)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("CommitMessages failed", logging.Err(err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, m kafka.Message) error {
	env, err := MessageToEventEnvelope(m)
	if err != nil {
		return err
	}
	err = c.handler(ctx, m.Topic, env)
	backoff := c.config.RetryBackoff
	for i := 0; err != nil && i < c.config.MaxRetries; i++ {
		c.retried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		err = c.handler(ctx, m.Topic, env)
		backoff *= 2
	}
	return err
}

// Stats returns the message counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed: c.consumed.Load(),
		Handled:  c.handled.Load(),
		Failed:   c.failed.Load(),
		Retried:  c.retried.Load(),
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "group id required")
	}
	if len(cfg.Topics) == 0 {
		return errors.New(errors.ErrCodeValidation, "topics required")
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "max retries must be >= 0")
	}
	return nil
}
