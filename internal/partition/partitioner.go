// Package partition maps records to the output path fragment their objects
// are written under. Partitioners are looked up by name in a registry and
// configured once at sink start from a flat key-value map.
package partition

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/northgatelabs/streamsink/internal/stream"
)

// Partitioner maps a record to the directory fragment its object is written
// under. Configure is called exactly once, before any Path call.
type Partitioner interface {
	Configure(cfg map[string]string) error
	Path(rec stream.Record) string
}

// Factory returns a new, unconfigured partitioner.
type Factory func() Partitioner

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

func init() {
	Register("default", func() Partitioner { return &Default{} })
	Register("time", func() Partitioner { return &Time{} })
	Register("field", func() Partitioner { return &Field{} })
}

// Register makes a partitioner available under name. Registering the same
// name twice panics.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("partitioner %q registered twice", name))
	}
	factories[name] = f
}

// New resolves a registered partitioner by name and configures it.
func New(name string, cfg map[string]string) (Partitioner, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown partitioner %q (registered: %v)", name, Names())
	}
	p := f()
	if err := p.Configure(cfg); err != nil {
		return nil, fmt.Errorf("configure partitioner %q: %w", name, err)
	}
	return p, nil
}

// Names returns the registered partitioner names, sorted.
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

// Default lays objects out by stream partition: <topic>/partition=<n>.
type Default struct{}

func (*Default) Configure(map[string]string) error { return nil }

func (*Default) Path(rec stream.Record) string {
	return fmt.Sprintf("%s/partition=%d", rec.Topic, rec.Partition)
}

const defaultTimeLayout = "2006/01/02/15"

// Time lays objects out by the record timestamp in UTC, using a Go time
// layout configured under "path.format".
type Time struct {
	layout string
}

func (p *Time) Configure(cfg map[string]string) error {
	p.layout = cfg["path.format"]
	if p.layout == "" {
		p.layout = defaultTimeLayout
	}
	return nil
}

func (p *Time) Path(rec stream.Record) string {
	return rec.Topic + "/" + rec.Timestamp.UTC().Format(p.layout)
}

// Field lays objects out by a top-level field of the record's JSON value:
// <topic>/<field>=<value>. Records whose value is not JSON or lacks the
// field land under <field>=unknown rather than failing the batch.
type Field struct {
	field string
}

func (p *Field) Configure(cfg map[string]string) error {
	p.field = cfg["field.name"]
	if p.field == "" {
		return errors.New("field partitioner requires field.name")
	}
	return nil
}

func (p *Field) Path(rec stream.Record) string {
	var value map[string]any
	if err := json.Unmarshal(rec.Value, &value); err == nil {
		if v, ok := value[p.field]; ok {
			return fmt.Sprintf("%s/%s=%v", rec.Topic, p.field, v)
		}
	}
	return fmt.Sprintf("%s/%s=unknown", rec.Topic, p.field)
}
