// Package consumer hosts the sink on a Kafka consumer group. Partition
// grants and revocations from the group rebalance protocol drive the sink's
// Open and Close; each polled batch drives Put; offsets are committed only
// after the sink accepts the batch, giving at-least-once delivery.
//
// franz-go serializes group callbacks with PollFetches, so every call into
// the sink happens on the polling goroutine: the sink never sees two
// lifecycle calls concurrently.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/northgatelabs/streamsink/internal/stream"
)

const defaultCommitMaxElapsed = 30 * time.Second

// Sink is the lifecycle contract the consumer drives.
type Sink interface {
	Open(partitions []stream.TopicPartition) error
	Put(ctx context.Context, records []stream.Record) error
	Close(ctx context.Context, revoked []stream.TopicPartition) error
}

// kafkaClient is the subset of kgo.Client methods the consumer uses. Tests
// inject a double implementing it.
type kafkaClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitUncommittedOffsets(ctx context.Context) error
	Close()
}

type Config struct {
	Logger  *slog.Logger
	Sink    Sink
	Metrics *Metrics

	Brokers []string
	Topics  []string
	Group   string

	// Optional SCRAM credentials; TLS is dialed unless disabled.
	User       string
	Password   string
	DisableTLS bool

	// CommitMaxElapsed caps the retry window around offset commits. A
	// commit lost past this window fails the task; the redelivered batch is
	// absorbed by the sink's overwrite-by-path object naming.
	CommitMaxElapsed time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Sink == nil {
		return errors.New("sink is required")
	}
	if len(c.Brokers) == 0 {
		return errors.New("brokers are required")
	}
	if len(c.Topics) == 0 {
		return errors.New("topics are required")
	}
	if c.Group == "" {
		return errors.New("consumer group is required")
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	if c.CommitMaxElapsed == 0 {
		c.CommitMaxElapsed = defaultCommitMaxElapsed
	}
	return nil
}

// Consumer drives a Sink from a Kafka consumer group.
type Consumer struct {
	log     *slog.Logger
	cfg     *Config
	metrics *Metrics
	client  kafkaClient
}

func New(cfg *Config) (*Consumer, error) {
	c, err := newWithClient(cfg, nil)
	if err != nil {
		return nil, err
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(c.onAssigned),
		kgo.OnPartitionsRevoked(c.onRevoked),
		kgo.OnPartitionsLost(c.onRevoked),
	}
	if cfg.User != "" {
		opts = append(opts, kgo.SASL(scram.Auth{
			User: cfg.User,
			Pass: cfg.Password,
		}.AsSha256Mechanism()))
	}
	if !cfg.DisableTLS {
		opts = append(opts, kgo.DialTLS())
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	c.client = client
	return c, nil
}

// newWithClient is used by tests to inject a client double.
func newWithClient(cfg *Config, client kafkaClient) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Consumer{
		log:     cfg.Logger,
		cfg:     cfg,
		metrics: cfg.Metrics,
		client:  client,
	}, nil
}

// Run polls batches and drives the sink until the context is cancelled or
// the client is closed. Routing and remote-store failures from the sink are
// task failures: they are surfaced to the caller, which decides whether to
// restart the task.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("starting consumer",
		"brokers", c.cfg.Brokers,
		"topics", c.cfg.Topics,
		"group", c.cfg.Group,
	)

	for {
		if ctx.Err() != nil {
			c.log.Info("consumer shutting down")
			return nil
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			c.log.Info("kafka client closed, shutting down")
			return nil
		}
		if ctx.Err() != nil {
			c.log.Info("consumer shutting down")
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.metrics.FetchErrors.Inc()
			c.log.Error("fetch error", "topic", topic, "partition", partition, "error", err)
		})

		records := collect(fetches)
		if len(records) == 0 {
			continue
		}

		if err := c.cfg.Sink.Put(ctx, records); err != nil {
			return fmt.Errorf("sink put: %w", err)
		}
		c.metrics.RecordsConsumed.Add(float64(len(records)))

		if err := c.commit(ctx); err != nil {
			c.metrics.CommitErrors.Inc()
			return fmt.Errorf("commit offsets: %w", err)
		}
	}
}

// Close closes the Kafka client, triggering a final revoke of all assigned
// partitions.
func (c *Consumer) Close() {
	c.client.Close()
}

func (c *Consumer) onAssigned(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
	partitions := flatten(assigned)
	c.metrics.Rebalances.WithLabelValues("assigned").Inc()
	if err := c.cfg.Sink.Open(partitions); err != nil {
		// The sink refusing a grant means assignment tracking is broken;
		// records for these partitions will fail routing and surface there.
		c.metrics.RebalanceErrors.WithLabelValues("assigned").Inc()
		c.log.Error("failed to open partitions", "count", len(partitions), "error", err)
		return
	}
	c.log.Info("partitions assigned", "count", len(partitions))
}

func (c *Consumer) onRevoked(ctx context.Context, _ *kgo.Client, revoked map[string][]int32) {
	partitions := flatten(revoked)
	c.metrics.Rebalances.WithLabelValues("revoked").Inc()
	if err := c.cfg.Sink.Close(ctx, partitions); err != nil {
		c.metrics.RebalanceErrors.WithLabelValues("revoked").Inc()
		c.log.Error("failed to close partitions", "count", len(partitions), "error", err)
		return
	}
	c.log.Info("partitions revoked", "count", len(partitions))
}

// commit retries transient offset-commit failures with exponential backoff.
func (c *Consumer) commit(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.CommitMaxElapsed
	return backoff.Retry(func() error {
		return c.client.CommitUncommittedOffsets(ctx)
	}, backoff.WithContext(bo, ctx))
}

func collect(fetches kgo.Fetches) []stream.Record {
	var records []stream.Record
	fetches.EachRecord(func(r *kgo.Record) {
		records = append(records, stream.Record{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Key:       r.Key,
			Value:     r.Value,
			Timestamp: r.Timestamp,
		})
	})
	return records
}

// flatten converts a rebalance callback map to a sorted partition list.
func flatten(m map[string][]int32) []stream.TopicPartition {
	var partitions []stream.TopicPartition
	for topic, parts := range m {
		for _, p := range parts {
			partitions = append(partitions, stream.TopicPartition{Topic: topic, Partition: p})
		}
	}
	sort.Slice(partitions, func(i, j int) bool {
		if partitions[i].Topic != partitions[j].Topic {
			return partitions[i].Topic < partitions[j].Topic
		}
		return partitions[i].Partition < partitions[j].Partition
	})
	return partitions
}
