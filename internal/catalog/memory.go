package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// MemoryCatalog keeps items in a map. Items are deep-copied on every call.
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[string]*MediaItem
}

var _ Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{items: make(map[string]*MediaItem)}
}

func clone(item *MediaItem) *MediaItem {
	data, err := json.Marshal(item)
	if err != nil {
		panic(fmt.Sprintf("catalog: clone item %s: %v", item.ID, err))
	}
	var out MediaItem
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("catalog: clone item %s: %v", item.ID, err))
	}
	out.OriginalURL, out.ThumbnailURL = "", ""
	return &out
}

func (c *MemoryCatalog) Put(ctx context.Context, item *MediaItem) error {
	if item.ID == "" {
		return fmt.Errorf("put item: empty id")
	}
	c.mu.Lock()
	c.items[item.ID] = clone(item)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCatalog) Get(ctx context.Context, id string) (*MediaItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return nil, fmt.Errorf("get item %s: %w", id, ErrNotFound)
	}
	return clone(item), nil
}

func (c *MemoryCatalog) List(ctx context.Context) ([]*MediaItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*MediaItem, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, clone(item))
	}
	sortByUpload(out)
	return out, nil
}

func (c *MemoryCatalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return fmt.Errorf("delete item %s: %w", id, ErrNotFound)
	}
	delete(c.items, id)
	return nil
}

func (c *MemoryCatalog) AddDerived(ctx context.Context, id, ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return fmt.Errorf("add derived %s: %w", id, ErrNotFound)
	}
	if !item.HasDerived(ref) {
		item.Derived = append(item.Derived, ref)
		slices.Sort(item.Derived)
	}
	return nil
}

// sortByUpload orders newest first, ties broken by id.
func sortByUpload(items []*MediaItem) {
	slices.SortFunc(items, func(a, b *MediaItem) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
