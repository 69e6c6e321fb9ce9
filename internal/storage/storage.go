// Package storage exposes the object-store capability surface the sink is
// written against. The backing store offers whole-object, overwrite-only
// writes: there is no append, no random-access read, and no partial update.
// Operations the store cannot honor fail loudly instead of being emulated,
// so that the atomic-commit guarantee of written objects is never silently
// broken.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrUnsupported is returned for operations the underlying store cannot
	// honor. It is never transient; retrying does not help.
	ErrUnsupported = errors.New("operation not supported by object storage")

	// ErrInvalidName is returned when a caller passes a blank object name to
	// an operation that requires one.
	ErrInvalidName = errors.New("object name must not be empty")
)

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	Name string
	Size int64
}

// Listing is one page of objects under a prefix. Truncated indicates the
// store has more results; callers must not assume completeness without
// checking it and continuing from NextToken.
type Listing struct {
	Objects   []ObjectInfo
	Truncated bool
	NextToken string
}

// Storage is a deliberately narrow subset of a general file-storage
// interface. Callers above it must be written against exactly this subset.
// Implementations must be safe for concurrent use across partitions.
type Storage interface {
	// Exists reports whether the named object exists. A blank name reports
	// false without making a remote call.
	Exists(ctx context.Context, name string) (bool, error)

	// BucketExists reports whether the configured bucket exists, with the
	// same blank-name short circuit. Used once at startup as a precondition
	// check.
	BucketExists(ctx context.Context) (bool, error)

	// List returns one page of objects under the prefix, continuing from
	// token when it is non-empty.
	List(ctx context.Context, prefix, token string) (*Listing, error)

	// Delete removes the named object. Deleting the bucket identity itself
	// is deliberately not performed and is a documented no-op.
	Delete(ctx context.Context, name string) error

	// Create opens a streamed writer for the named object. Only
	// overwrite=true is supported: this store's objects can only be fully
	// replaced, never created-if-absent. A blank name fails with
	// ErrInvalidName.
	Create(ctx context.Context, name string, overwrite bool) (ObjectWriter, error)

	// Open would read back a stored object. Read-back is not part of this
	// pipeline's contract; it always fails with ErrUnsupported.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Append would extend a stored object. The store has no append
	// semantic; it always fails with ErrUnsupported.
	Append(ctx context.Context, name string) (ObjectWriter, error)

	// Close releases the underlying client. Idempotent.
	Close() error
}

// ObjectWriter accepts sequential byte content for one in-flight remote
// object. Nothing written is visible to readers until Commit returns; a
// failure before commit leaves either no object or the previous object at
// the path, never a partially visible one.
type ObjectWriter interface {
	io.Writer

	// Commit makes the object atomically visible in full. It may succeed at
	// most once; the writer is unusable afterwards.
	Commit(ctx context.Context) error

	// Discard abandons the in-flight object and releases any remote state
	// the writer has accumulated. Safe to call after a failed Commit.
	Discard(ctx context.Context) error
}
