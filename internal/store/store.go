// Package store is the content store: key-addressed binary objects grouped
// into namespaces, each carrying a small map of string metadata.
//
// Three backends share the same contract. S3Store is the production backend,
// FSStore serves local development and the operator CLI, and MemoryStore
// backs tests and the single-process mode.
//
// Every backend writes whole objects: a Put either fully replaces the object
// at a key or leaves the previous one untouched.
package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/fpang/media-pipeline/internal/request"
)

// ErrNotFound is returned by Get, GetMetadata and SetMetadata for a missing
// object. It is the pipeline's SourceNotFound.
var ErrNotFound = request.ErrSourceNotFound

// ErrMetadataLimit is returned by SetMetadata when the backend cannot hold
// that many metadata keys. Retrying never helps.
var ErrMetadataLimit = errors.New("metadata limit exceeded")

// Store is the contract the pipeline worker consumes. Put replaces the whole
// object: metadata set on an earlier version is cleared, as S3 does.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, data []byte, contentType string) error
	GetMetadata(ctx context.Context, namespace, key string) (map[string]string, error)
	SetMetadata(ctx context.Context, namespace, key string, md map[string]string) error
}

// Object describes a stored object as returned by List.
type Object struct {
	Namespace    string
	Key          string
	Size         int64
	LastModified time.Time
}

// Manager adds the listing and deletion used by intake and the temp cleanup.
type Manager interface {
	Store
	List(ctx context.Context, namespace, prefix string) ([]Object, error)
	Delete(ctx context.Context, namespace, key string) error
}

// Merge reads the object's metadata, overlays kv, and writes the result back.
// Read and write are separate calls; concurrent merges on the same object
// may lose one side's keys, which is acceptable for advisory tags.
func Merge(ctx context.Context, s Store, namespace, key string, kv map[string]string) error {
	current, err := s.GetMetadata(ctx, namespace, key)
	if err != nil {
		return err
	}
	merged := make(map[string]string, len(current)+len(kv))
	maps.Copy(merged, current)
	maps.Copy(merged, kv)
	return s.SetMetadata(ctx, namespace, key, merged)
}

// unavailable wraps a transport error so the worker abandons the message.
func unavailable(op, namespace, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s/%s: %w", op, namespace, key, err)
	}
	return fmt.Errorf("%s %s/%s: %w: %w", op, namespace, key, request.ErrStoreUnavailable, err)
}

func notFound(namespace, key string) error {
	return fmt.Errorf("%s/%s: %w", namespace, key, ErrNotFound)
}
