package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// BatchHandler processes a batch of messages. Returning an error leaves the
// batch uncommitted so it is redelivered.
type BatchHandler func(ctx context.Context, batch []*IncomingMessage) error

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// BatchSize and FlushInterval bound how many records are reconciled together
	BatchSize     int
	FlushInterval time.Duration
}

// Consumer reads raw records in batches so both sides of a contest published
// close together are reconciled in the same pass
type Consumer struct {
	reader  *kafka.Reader
	logger  ectologger.Logger
	handler BatchHandler
	config  ConsumerConfig
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler BatchHandler) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:  reader,
		logger:  logger,
		handler: handler,
		config:  cfg,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.config.Topic,
		"group": c.config.ConsumerGroup,
	}).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		batch, err := c.fetchBatch(ctx)
		if len(batch) > 0 {
			c.processBatch(ctx, batch)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
		}
	}
}

// fetchBatch collects up to BatchSize messages or whatever arrived within FlushInterval
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	flushCtx, cancel := context.WithTimeout(ctx, c.config.FlushInterval)
	defer cancel()

	var batch []kafka.Message
	for len(batch) < c.config.BatchSize {
		msg, err := c.reader.FetchMessage(flushCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

func (c *Consumer) processBatch(ctx context.Context, batch []kafka.Message) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processBatch")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      c.config.Topic,
		"batch_size": len(batch),
		"first":      batch[0].Offset,
		"last":       batch[len(batch)-1].Offset,
	})

	incoming := make([]*IncomingMessage, len(batch))
	for i, msg := range batch {
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		incoming[i] = &IncomingMessage{
			Key:       string(msg.Key),
			Value:     msg.Value,
			Headers:   headers,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Timestamp: msg.Time,
			Topic:     msg.Topic,
		}
	}

	if err := c.handler(ctx, incoming); err != nil {
		// not committed: the batch is redelivered and reconciliation is idempotent
		log.WithError(err).Error("Failed to process batch (not committing)")
		return
	}

	if err := c.reader.CommitMessages(ctx, batch...); err != nil {
		log.WithError(err).Error("Failed to commit messages")
	}
}
