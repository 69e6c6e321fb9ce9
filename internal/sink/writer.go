package sink

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/northgatelabs/streamsink/internal/stream"
)

// partitionWriter buffers pending records for exactly one assigned
// partition and writes them out as one object per rotation. It is created
// on assignment and destroyed on revocation; only its partition's routing
// and flush sequence ever touches its buffer.
type partitionWriter struct {
	sink *Sink
	log  *slog.Logger
	tp   stream.TopicPartition

	buf        []stream.Record
	baseOffset int64
	firstAt    time.Time
}

func newPartitionWriter(s *Sink, tp stream.TopicPartition) *partitionWriter {
	return &partitionWriter{
		sink: s,
		log:  s.log.With("partition", tp.String()),
		tp:   tp,
	}
}

func (w *partitionWriter) buffer(rec stream.Record) {
	if len(w.buf) == 0 {
		w.baseOffset = rec.Offset
		w.firstAt = w.sink.clock.Now()
	}
	w.buf = append(w.buf, rec)
}

// shouldRotate evaluates the rotation policy against the complete current
// buffer. Time-based rotation is checked here, synchronously with the
// flush pass.
func (w *partitionWriter) shouldRotate() bool {
	if len(w.buf) == 0 {
		return false
	}
	if len(w.buf) >= w.sink.cfg.FlushCount {
		return true
	}
	return w.sink.cfg.RotateInterval > 0 &&
		w.sink.clock.Since(w.firstAt) >= w.sink.cfg.RotateInterval
}

func (w *partitionWriter) maybeFlush(ctx context.Context) error {
	if !w.shouldRotate() {
		return nil
	}
	return w.flush(ctx)
}

// flush serializes the buffered records into one streamed object and
// commits it. The object name embeds the partition and the first buffered
// offset, so a redelivered batch lands on the same name and overwrites
// instead of duplicating.
func (w *partitionWriter) flush(ctx context.Context) error {
	name := w.objectName()

	fw, err := w.sink.provider.NewWriter(ctx, name)
	if err != nil {
		return err
	}
	for _, rec := range w.buf {
		if err := fw.Write(rec); err != nil {
			if derr := fw.Discard(ctx); derr != nil {
				w.log.Error("failed to discard object after write error", "object", name, "error", derr)
			}
			return fmt.Errorf("serialize record at offset %d: %w", rec.Offset, err)
		}
	}
	if err := fw.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}

	w.sink.metrics.ObjectsCommitted.Inc()
	w.sink.metrics.RecordsWritten.Add(float64(len(w.buf)))
	w.log.Debug("committed object", "object", name, "records", len(w.buf))

	w.buf = w.buf[:0]
	return nil
}

func (w *partitionWriter) objectName() string {
	dir := w.sink.partitioner.Path(w.buf[0])
	file := fmt.Sprintf("%s+%d+%d%s", w.tp.Topic, w.tp.Partition, w.baseOffset, w.sink.provider.Extension())
	return path.Join(w.sink.cfg.Prefix, dir, file)
}

// close performs the final forced flush for this partition, regardless of
// the rotation policy.
func (w *partitionWriter) close(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	return w.flush(ctx)
}
