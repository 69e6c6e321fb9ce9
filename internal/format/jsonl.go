package format

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/northgatelabs/streamsink/internal/storage"
	"github.com/northgatelabs/streamsink/internal/stream"
)

func init() {
	Register("jsonl", newJSONLines)
	Register("raw", newRawLines)
}

// envelope is the JSON line written per record. The record value is embedded
// verbatim when it is itself valid JSON, and as a JSON string otherwise.
type envelope struct {
	Topic     string          `json:"topic"`
	Partition int32           `json:"partition"`
	Offset    int64           `json:"offset"`
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// jsonLines writes one JSON envelope per record, optionally gzipped.
type jsonLines struct {
	store storage.Storage
	gzip  bool
}

func newJSONLines(st storage.Storage, cfg map[string]string) (Provider, error) {
	gz, err := compressionEnabled(cfg)
	if err != nil {
		return nil, err
	}
	return &jsonLines{store: st, gzip: gz}, nil
}

func (p *jsonLines) Extension() string {
	if p.gzip {
		return ".jsonl.gz"
	}
	return ".jsonl"
}

func (p *jsonLines) NewWriter(ctx context.Context, path string) (Writer, error) {
	obj, err := p.store.Create(ctx, path, true)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := &jsonLineWriter{obj: obj, out: obj}
	if p.gzip {
		w.gz = gzip.NewWriter(obj)
		w.out = w.gz
	}
	w.enc = json.NewEncoder(w.out)
	return w, nil
}

type jsonLineWriter struct {
	obj storage.ObjectWriter
	gz  *gzip.Writer
	out io.Writer
	enc *json.Encoder
}

func (w *jsonLineWriter) Write(rec stream.Record) error {
	env := envelope{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Timestamp: rec.Timestamp,
	}
	if len(rec.Key) > 0 {
		env.Key = string(rec.Key)
	}
	if json.Valid(rec.Value) {
		env.Value = json.RawMessage(rec.Value)
	} else {
		quoted, err := json.Marshal(string(rec.Value))
		if err != nil {
			return fmt.Errorf("encode record value: %w", err)
		}
		env.Value = quoted
	}
	if err := w.enc.Encode(env); err != nil {
		return fmt.Errorf("encode record at offset %d: %w", rec.Offset, err)
	}
	return nil
}

func (w *jsonLineWriter) Commit(ctx context.Context) error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			_ = w.obj.Discard(ctx)
			return fmt.Errorf("close gzip stream: %w", err)
		}
	}
	return w.obj.Commit(ctx)
}

func (w *jsonLineWriter) Discard(ctx context.Context) error {
	return w.obj.Discard(ctx)
}

// rawLines writes each record's value verbatim, newline-delimited. Useful
// when the values are already a line-oriented text format.
type rawLines struct {
	store storage.Storage
	gzip  bool
}

func newRawLines(st storage.Storage, cfg map[string]string) (Provider, error) {
	gz, err := compressionEnabled(cfg)
	if err != nil {
		return nil, err
	}
	return &rawLines{store: st, gzip: gz}, nil
}

func (p *rawLines) Extension() string {
	if p.gzip {
		return ".bin.gz"
	}
	return ".bin"
}

func (p *rawLines) NewWriter(ctx context.Context, path string) (Writer, error) {
	obj, err := p.store.Create(ctx, path, true)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := &rawLineWriter{obj: obj, out: obj}
	if p.gzip {
		w.gz = gzip.NewWriter(obj)
		w.out = w.gz
	}
	return w, nil
}

type rawLineWriter struct {
	obj storage.ObjectWriter
	gz  *gzip.Writer
	out io.Writer
}

func (w *rawLineWriter) Write(rec stream.Record) error {
	if _, err := w.out.Write(rec.Value); err != nil {
		return fmt.Errorf("write record at offset %d: %w", rec.Offset, err)
	}
	if _, err := w.out.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("write record delimiter: %w", err)
	}
	return nil
}

func (w *rawLineWriter) Commit(ctx context.Context) error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			_ = w.obj.Discard(ctx)
			return fmt.Errorf("close gzip stream: %w", err)
		}
	}
	return w.obj.Commit(ctx)
}

func (w *rawLineWriter) Discard(ctx context.Context) error {
	return w.obj.Discard(ctx)
}
