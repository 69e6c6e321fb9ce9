// Package sink implements the partition writer lifecycle: it owns the set
// of currently assigned partitions, keeps exactly one writer per partition,
// routes delivered records to their writer's buffer, and drives rotation.
//
// The sink is driven by a single logical worker. The surrounding runtime
// serializes Start, Open, Put, Close, and Stop; the sink performs no
// internal locking and is not re-entrant. Delivery is at-least-once:
// object names embed the partition and first buffered offset, so a
// redelivered batch overwrites the same object rather than duplicating it.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/northgatelabs/streamsink/internal/format"
	"github.com/northgatelabs/streamsink/internal/partition"
	"github.com/northgatelabs/streamsink/internal/storage"
	"github.com/northgatelabs/streamsink/internal/stream"
)

// Sink is the single authoritative owner of which partitions are assigned
// and which writer serves each one.
type Sink struct {
	log     *slog.Logger
	cfg     *Config
	clock   clockwork.Clock
	metrics *Metrics

	storage     storage.Storage
	provider    format.Provider
	partitioner partition.Partitioner

	assignment map[stream.TopicPartition]struct{}
	writers    map[stream.TopicPartition]*partitionWriter
	started    bool
}

func New(cfg *Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Sink{
		log:        cfg.Logger,
		cfg:        cfg,
		clock:      cfg.Clock,
		metrics:    cfg.Metrics,
		storage:    cfg.Storage,
		assignment: make(map[stream.TopicPartition]struct{}),
		writers:    make(map[stream.TopicPartition]*partitionWriter),
	}, nil
}

// Start verifies the bucket precondition and resolves the pluggable format
// and partitioner. Failures here are configuration errors: the wrong bucket
// or a bad component name will not self-heal, so nothing is retried.
func (s *Sink) Start(ctx context.Context) error {
	if s.started {
		return errors.New("sink already started")
	}

	ok, err := s.storage.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if !ok {
		return errors.New("configured bucket does not exist")
	}

	provider, err := format.New(s.cfg.Format, s.storage, s.cfg.FormatConfig)
	if err != nil {
		return fmt.Errorf("resolve format: %w", err)
	}
	s.provider = provider

	p, err := partition.New(s.cfg.Partitioner, s.cfg.PartitionerConfig)
	if err != nil {
		return fmt.Errorf("resolve partitioner: %w", err)
	}
	s.partitioner = p

	s.started = true
	s.log.Info("sink started",
		"format", s.cfg.Format,
		"partitioner", s.cfg.Partitioner,
		"prefix", s.cfg.Prefix,
		"flushCount", s.cfg.FlushCount,
		"rotateInterval", s.cfg.RotateInterval,
	)
	return nil
}

// Open adds the given partitions to the assignment and allocates a writer
// for each. The assignment starts empty or follows a prior Close; a
// partition that is already assigned indicates a rebalance-tracking bug in
// the caller and is rejected before any state changes.
func (s *Sink) Open(partitions []stream.TopicPartition) error {
	if !s.started {
		return errors.New("sink not started")
	}

	seen := make(map[stream.TopicPartition]struct{}, len(partitions))
	for _, tp := range partitions {
		if _, ok := s.assignment[tp]; ok {
			return fmt.Errorf("partition %s already assigned", tp)
		}
		if _, ok := seen[tp]; ok {
			return fmt.Errorf("partition %s granted twice in one call", tp)
		}
		seen[tp] = struct{}{}
	}

	for _, tp := range partitions {
		s.assignment[tp] = struct{}{}
		s.writers[tp] = newPartitionWriter(s, tp)
	}
	s.metrics.PartitionsAssigned.Set(float64(len(s.assignment)))
	s.log.Info("opened partitions", "granted", len(partitions), "assigned", len(s.assignment))
	return nil
}

// Put routes every record of the batch to its partition's buffer, in
// arrival order, then drives one flush pass over the whole assignment.
// Routing the complete batch before any rotation decision means a rotation
// always sees the full batch, never a partial one.
//
// A record for a partition not currently assigned is a delivery bug in the
// caller and fails the batch rather than being dropped.
func (s *Sink) Put(ctx context.Context, records []stream.Record) error {
	if !s.started {
		return errors.New("sink not started")
	}

	for _, rec := range records {
		tp := rec.TopicPartition()
		w, ok := s.writers[tp]
		if !ok {
			s.metrics.RouteErrors.Inc()
			return fmt.Errorf("record at offset %d routed to unassigned partition %s", rec.Offset, tp)
		}
		w.buffer(rec)
		s.metrics.RecordsRouted.Inc()
	}

	for tp, w := range s.writers {
		if err := w.maybeFlush(ctx); err != nil {
			s.metrics.FlushErrors.Inc()
			return fmt.Errorf("flush partition %s: %w", tp, err)
		}
	}
	return nil
}

// Close force-flushes and tears down every writer in the current
// assignment, not only the named ones: revocation affects the whole set. A
// writer that fails to close is logged and skipped so the remaining writers
// still close, and the assignment and writer maps are emptied regardless of
// individual outcomes.
func (s *Sink) Close(ctx context.Context, revoked []stream.TopicPartition) error {
	for tp, w := range s.writers {
		if err := w.close(ctx); err != nil {
			s.metrics.WriterCloseErrors.Inc()
			s.log.Error("failed to close partition writer", "partition", tp.String(), "error", err)
		}
	}

	s.writers = make(map[stream.TopicPartition]*partitionWriter)
	s.assignment = make(map[stream.TopicPartition]struct{})
	s.metrics.PartitionsAssigned.Set(0)
	s.log.Info("closed partition writers", "revoked", len(revoked))
	return nil
}

// Stop releases the storage client. The sink cannot continue without its
// storage handle, so a failure here is surfaced to the caller as fatal.
func (s *Sink) Stop() error {
	if err := s.storage.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	s.started = false
	return nil
}

// Assigned returns the partitions currently owned by the sink, sorted.
func (s *Sink) Assigned() []stream.TopicPartition {
	partitions := make([]stream.TopicPartition, 0, len(s.assignment))
	for tp := range s.assignment {
		partitions = append(partitions, tp)
	}
	sort.Slice(partitions, func(i, j int) bool {
		if partitions[i].Topic != partitions[j].Topic {
			return partitions[i].Topic < partitions[j].Topic
		}
		return partitions[i].Partition < partitions[j].Partition
	})
	return partitions
}
