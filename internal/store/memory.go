package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// MemoryStore is an in-process Manager. Stored bytes are copied on the way in
// and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memObject
	now     func() time.Time

	// Fail, when set, is consulted before every operation; a non-nil return
	// is surfaced as a store-unavailable error. Tests use it to inject faults.
	Fail func(op, namespace, key string) error

	// MaxMetadata caps the keys SetMetadata accepts. Zero means no cap.
	MaxMetadata int
}

var _ Manager = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memObject), now: time.Now}
}

// SetClock overrides the modification-time source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func memKey(namespace, key string) string { return namespace + "\x00" + key }

func (m *MemoryStore) fail(op, namespace, key string) error {
	if m.Fail == nil {
		return nil
	}
	if err := m.Fail(op, namespace, key); err != nil {
		return unavailable(op, namespace, key, err)
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := m.fail("get", namespace, key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memKey(namespace, key)]
	if !ok {
		return nil, notFound(namespace, key)
	}
	return slices.Clone(obj.data), nil
}

func (m *MemoryStore) Put(ctx context.Context, namespace, key string, data []byte, contentType string) error {
	if err := m.fail("put", namespace, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(namespace, key)] = &memObject{data: slices.Clone(data), contentType: contentType, metadata: map[string]string{}, modified: m.now()}
	return nil
}

func (m *MemoryStore) GetMetadata(ctx context.Context, namespace, key string) (map[string]string, error) {
	if err := m.fail("getMetadata", namespace, key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memKey(namespace, key)]
	if !ok {
		return nil, notFound(namespace, key)
	}
	return maps.Clone(obj.metadata), nil
}

func (m *MemoryStore) SetMetadata(ctx context.Context, namespace, key string, md map[string]string) error {
	if err := m.fail("setMetadata", namespace, key); err != nil {
		return err
	}
	if m.MaxMetadata > 0 && len(md) > m.MaxMetadata {
		return fmt.Errorf("set metadata %s/%s: %d keys exceeds %d: %w", namespace, key, len(md), m.MaxMetadata, ErrMetadataLimit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memKey(namespace, key)]
	if !ok {
		return notFound(namespace, key)
	}
	obj.metadata = maps.Clone(md)
	if obj.metadata == nil {
		obj.metadata = map[string]string{}
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, namespace, prefix string) ([]Object, error) {
	if err := m.fail("list", namespace, prefix); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Object
	for k, obj := range m.objects {
		ns, key, _ := strings.Cut(k, "\x00")
		if ns != namespace || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Object{Namespace: ns, Key: key, Size: int64(len(obj.data)), LastModified: obj.modified})
	}
	slices.SortFunc(out, func(a, b Object) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, namespace, key string) error {
	if err := m.fail("delete", namespace, key); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, memKey(namespace, key))
	m.mu.Unlock()
	return nil
}

// ContentType returns the content type an object was written with.
func (m *MemoryStore) ContentType(namespace, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memKey(namespace, key)]
	if !ok {
		return "", false
	}
	return obj.contentType, true
}

// Snapshot returns every object's bytes keyed by "namespace/key".
func (m *MemoryStore) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.objects))
	for k, obj := range m.objects {
		ns, key, _ := strings.Cut(k, "\x00")
		out[ns+"/"+key] = slices.Clone(obj.data)
	}
	return out
}
