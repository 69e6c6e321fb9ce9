// Package format defines the pluggable record-serialization surface of the
// sink and a registry mapping configuration names to format constructors,
// resolved once at sink start.
package format

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/northgatelabs/streamsink/internal/storage"
	"github.com/northgatelabs/streamsink/internal/stream"
)

// Writer serializes records into one in-flight object. Commit makes the
// object visible; Discard abandons it.
type Writer interface {
	Write(rec stream.Record) error
	Commit(ctx context.Context) error
	Discard(ctx context.Context) error
}

// Provider creates record writers keyed by output path.
type Provider interface {
	// Extension is the object name suffix for this format, including the
	// compression suffix when enabled, e.g. ".jsonl.gz".
	Extension() string

	// NewWriter opens a streamed object at path and returns a writer that
	// serializes records into it.
	NewWriter(ctx context.Context, path string) (Writer, error)
}

// Factory builds a configured Provider over the given storage from a flat
// key-value configuration map.
type Factory func(st storage.Storage, cfg map[string]string) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a format available under name. It is intended to be called
// from package init; registering the same name twice panics.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("format %q registered twice", name))
	}
	factories[name] = f
}

// New resolves a registered format by name and configures it.
func New(name string, st storage.Storage, cfg map[string]string) (Provider, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown format %q (registered: %v)", name, Names())
	}
	return f(st, cfg)
}

// Names returns the registered format names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func compressionEnabled(cfg map[string]string) (bool, error) {
	switch cfg["compression"] {
	case "", "none":
		return false, nil
	case "gzip":
		return true, nil
	default:
		return false, fmt.Errorf("unsupported compression %q", cfg["compression"])
	}
}
