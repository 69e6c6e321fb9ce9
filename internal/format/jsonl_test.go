package format

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/northgatelabs/streamsink/internal/storage"
	"github.com/northgatelabs/streamsink/internal/stream"
)

// memStore keeps committed objects in a map; tests read them back to verify
// serialized output.
type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Exists(_ context.Context, name string) (bool, error) {
	_, ok := m.objects[name]
	return ok, nil
}

func (m *memStore) BucketExists(context.Context) (bool, error) { return true, nil }

func (m *memStore) List(context.Context, string, string) (*storage.Listing, error) {
	return &storage.Listing{}, nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	delete(m.objects, name)
	return nil
}

func (m *memStore) Create(_ context.Context, name string, _ bool) (storage.ObjectWriter, error) {
	return &memObjectWriter{store: m, name: name}, nil
}

func (m *memStore) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrUnsupported
}

func (m *memStore) Append(context.Context, string) (storage.ObjectWriter, error) {
	return nil, storage.ErrUnsupported
}

func (m *memStore) Close() error { return nil }

type memObjectWriter struct {
	store *memStore
	name  string
	buf   bytes.Buffer
}

func (w *memObjectWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memObjectWriter) Commit(context.Context) error {
	w.store.objects[w.name] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

func (w *memObjectWriter) Discard(context.Context) error {
	w.buf.Reset()
	return nil
}

func testRecord(offset int64, key, value string) stream.Record {
	return stream.Record{
		Topic:     "logs",
		Partition: 2,
		Offset:    offset,
		Key:       []byte(key),
		Value:     []byte(value),
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFormat_New_Unknown(t *testing.T) {
	t.Parallel()

	_, err := New("parquet", newMemStore(), nil)
	require.ErrorContains(t, err, `unknown format "parquet"`)
}

func TestFormat_Names(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"jsonl", "raw"}, Names())
}

func TestFormat_UnsupportedCompression(t *testing.T) {
	t.Parallel()

	_, err := New("jsonl", newMemStore(), map[string]string{"compression": "zstd"})
	require.ErrorContains(t, err, `unsupported compression "zstd"`)
}

func TestFormat_JSONLines_Envelope(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p, err := New("jsonl", store, nil)
	require.NoError(t, err)
	require.Equal(t, ".jsonl", p.Extension())

	w, err := p.NewWriter(context.Background(), "logs/a.jsonl")
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecord(7, "k1", `{"level":"info"}`)))
	require.NoError(t, w.Commit(context.Background()))

	var env struct {
		Topic     string          `json:"topic"`
		Partition int32           `json:"partition"`
		Offset    int64           `json:"offset"`
		Key       string          `json:"key"`
		Value     json.RawMessage `json:"value"`
		Timestamp time.Time       `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(store.objects["logs/a.jsonl"], &env))
	require.Equal(t, "logs", env.Topic)
	require.Equal(t, int32(2), env.Partition)
	require.Equal(t, int64(7), env.Offset)
	require.Equal(t, "k1", env.Key)
	require.JSONEq(t, `{"level":"info"}`, string(env.Value))
	require.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), env.Timestamp)
}

func TestFormat_JSONLines_NonJSONValueQuoted(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p, err := New("jsonl", store, nil)
	require.NoError(t, err)

	w, err := p.NewWriter(context.Background(), "logs/a.jsonl")
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecord(1, "", `not json at all`)))
	require.NoError(t, w.Commit(context.Background()))

	var env struct {
		Value string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(store.objects["logs/a.jsonl"], &env))
	require.Equal(t, "not json at all", env.Value)
}

func TestFormat_JSONLines_Gzip(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p, err := New("jsonl", store, map[string]string{"compression": "gzip"})
	require.NoError(t, err)
	require.Equal(t, ".jsonl.gz", p.Extension())

	w, err := p.NewWriter(context.Background(), "logs/a.jsonl.gz")
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecord(1, "", `{"n":1}`)))
	require.NoError(t, w.Write(testRecord(2, "", `{"n":2}`)))
	require.NoError(t, w.Commit(context.Background()))

	gr, err := gzip.NewReader(bytes.NewReader(store.objects["logs/a.jsonl.gz"]))
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.NoError(t, gr.Close())

	lines := bytes.Split(bytes.TrimSpace(body), []byte{'\n'})
	require.Len(t, lines, 2)
}

func TestFormat_RawLines(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p, err := New("raw", store, nil)
	require.NoError(t, err)
	require.Equal(t, ".bin", p.Extension())

	w, err := p.NewWriter(context.Background(), "logs/a.bin")
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecord(1, "", "first line")))
	require.NoError(t, w.Write(testRecord(2, "", "second line")))
	require.NoError(t, w.Commit(context.Background()))

	require.Equal(t, []byte("first line\nsecond line\n"), store.objects["logs/a.bin"])
}

func TestFormat_RawLines_Gzip(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p, err := New("raw", store, map[string]string{"compression": "gzip"})
	require.NoError(t, err)
	require.Equal(t, ".bin.gz", p.Extension())

	w, err := p.NewWriter(context.Background(), "logs/a.bin.gz")
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecord(1, "", "payload")))
	require.NoError(t, w.Commit(context.Background()))

	gr, err := gzip.NewReader(bytes.NewReader(store.objects["logs/a.bin.gz"]))
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.Equal(t, []byte("payload\n"), body)
}
