package queue

import (
	"context"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"mailroom/internal/pipeline/metrics"
	dErrors "mailroom/pkg/domain-errors"
)

// Handler processes one delivery to a terminal outcome. A nil return means
// the message is fully recorded; the consumer maps errors to release or
// quarantine via Disposition.
type Handler func(ctx context.Context, delivery *Delivery) error

// Consumer runs the inbound consume loop: poll, fan out to the worker pool,
// settle every delivery in the batch, then commit. A commit is a per-partition
// watermark, so each partition advances only through its contiguous settled
// prefix; a crash redelivers instead of losing mail.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics

	inboundTopic    string
	quarantineTopic string
	maxRedeliveries int
	workers         int
	messageTimeout  timeoutFunc
}

type timeoutFunc func(ctx context.Context) (context.Context, context.CancelFunc)

type ConsumerConfig struct {
	Brokers         []string
	ConsumerGroup   string
	InboundTopic    string
	QuarantineTopic string
	MaxRedeliveries int
	Workers         int
}

type ConsumerOption func(*Consumer)

func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

// WithMessageTimeout bounds the context handed to the handler per delivery.
func WithMessageTimeout(fn func(ctx context.Context) (context.Context, context.CancelFunc)) ConsumerOption {
	return func(c *Consumer) { c.messageTimeout = fn }
}

func NewConsumer(cfg ConsumerConfig, handler Handler, opts ...ConsumerOption) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.InboundTopic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}

	c := &Consumer{
		client:          client,
		handler:         handler,
		logger:          slog.Default(),
		inboundTopic:    cfg.InboundTopic,
		quarantineTopic: cfg.QuarantineTopic,
		maxRedeliveries: cfg.MaxRedeliveries,
		workers:         cfg.Workers,
		messageTimeout: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithCancel(ctx)
		},
	}
	if c.workers <= 0 {
		c.workers = 4
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var records []*kgo.Record
		fetches.EachRecord(func(record *kgo.Record) {
			records = append(records, record)
		})

		settled := make([]bool, len(records))
		var group errgroup.Group
		group.SetLimit(c.workers)
		for i, record := range records {
			group.Go(func() error {
				settled[i] = c.process(ctx, record)
				return nil
			})
		}
		_ = group.Wait()

		c.commitSettled(ctx, records, settled)
	}
}

// process settles one record and reports whether its offset may be committed.
func (c *Consumer) process(ctx context.Context, record *kgo.Record) bool {
	delivery, err := deliveryFrom(record)
	if err != nil {
		// A notice that does not even decode goes straight to quarantine.
		c.logger.ErrorContext(ctx, "quarantining undecodable notice", "error", err)
		c.quarantine(ctx, record, Notice{}, err)
		return true
	}

	msgCtx, cancel := c.messageTimeout(ctx)
	handleErr := c.handler(msgCtx, delivery)
	cancel()

	switch Disposition(handleErr, delivery.Redeliveries, c.maxRedeliveries) {
	case OutcomeAck:

	case OutcomeRelease:
		if err := c.release(ctx, delivery); err != nil {
			// Leave the offset uncommitted; the broker will redeliver.
			c.logger.ErrorContext(ctx, "release failed, leaving delivery uncommitted",
				"delivery_id", delivery.ID,
				"error", err,
			)
			return false
		}
		if c.metrics != nil {
			c.metrics.Redeliveries.Inc()
		}
		c.logger.WarnContext(ctx, "released message for redelivery",
			"message_id", delivery.Notice.MessageID,
			"redeliveries", delivery.Redeliveries+1,
			"error", handleErr,
		)

	case OutcomeQuarantine:
		c.quarantine(ctx, record, delivery.Notice, handleErr)
		if c.metrics != nil {
			c.metrics.Quarantined.Inc()
		}
		c.logger.ErrorContext(ctx, "quarantined message",
			"message_id", delivery.Notice.MessageID,
			"redeliveries", delivery.Redeliveries,
			"error", handleErr,
		)
	}

	return true
}

func (c *Consumer) release(ctx context.Context, delivery *Delivery) error {
	record, err := noticeRecord(c.inboundTopic, delivery.Notice, delivery.Redeliveries+1)
	if err != nil {
		return err
	}
	return c.client.ProduceSync(ctx, record).FirstErr()
}

func (c *Consumer) quarantine(ctx context.Context, original *kgo.Record, notice Notice, cause error) {
	record := &kgo.Record{
		Key:   original.Key,
		Topic: c.quarantineTopic,
		Value: original.Value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderErrorKind, Value: []byte(dErrors.CodeOf(cause))},
		},
	}
	if err := c.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		c.logger.ErrorContext(ctx, "quarantine produce failed",
			"message_id", notice.MessageID,
			"error", err,
		)
	}
}

func (c *Consumer) commitSettled(ctx context.Context, records []*kgo.Record, settled []bool) {
	commits := settledPrefix(records, settled)
	if len(commits) == 0 {
		return
	}
	if err := c.client.CommitRecords(ctx, commits...); err != nil {
		c.logger.ErrorContext(ctx, "offset commit failed", "error", err)
	}
}

type topicPartition struct {
	topic     string
	partition int32
}

// settledPrefix returns, per partition, the records up to but not including
// the first unsettled one. Committing past an unsettled record would move the
// partition watermark over it and skip the message on restart. Records in a
// fetch arrive offset-ordered within each partition.
func settledPrefix(records []*kgo.Record, settled []bool) []*kgo.Record {
	blocked := make(map[topicPartition]bool)
	var out []*kgo.Record
	for i, record := range records {
		tp := topicPartition{topic: record.Topic, partition: record.Partition}
		if blocked[tp] {
			continue
		}
		if !settled[i] {
			blocked[tp] = true
			continue
		}
		out = append(out, record)
	}
	return out
}
