package sink

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/northgatelabs/streamsink/internal/storage"
)

const defaultFlushCount = 1000

// Config configures the sink. Storage is constructed by the caller; the
// format and partitioner are resolved from their registries at Start.
type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Storage storage.Storage
	Metrics *Metrics

	Format            string
	FormatConfig      map[string]string
	Partitioner       string
	PartitionerConfig map[string]string

	// Prefix is prepended to every object name.
	Prefix string

	// Rotation policy. A partition writer rotates when its buffered record
	// count reaches FlushCount, or when RotateInterval has elapsed since the
	// first record of the current buffer was accepted. Time-based rotation
	// is evaluated synchronously during the flush pass against Clock; there
	// is no background timer, so a partition that receives no flush passes
	// will not rotate on its own.
	FlushCount     int
	RotateInterval time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Storage == nil {
		return errors.New("storage is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	if c.Format == "" {
		c.Format = "jsonl"
	}
	if c.Partitioner == "" {
		c.Partitioner = "default"
	}
	if c.FlushCount == 0 {
		c.FlushCount = defaultFlushCount
	}
	if c.FlushCount < 0 {
		return errors.New("flush count must be > 0")
	}
	if c.RotateInterval < 0 {
		return errors.New("rotate interval must be >= 0")
	}
	return nil
}
