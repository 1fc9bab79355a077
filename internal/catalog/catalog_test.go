package catalog

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo stores items keyed by PK and pages Scan results one at a time.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	order []string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func pkOf(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := pkOf(in.Item)
	if _, ok := f.items[pk]; !ok {
		f.order = append(f.order, pk)
	}
	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := pkOf(in.Key)
	if _, ok := f.items[pk]; !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(f.items, pk)
	f.order = slices.DeleteFunc(f.order, func(s string) bool { return s == pk })
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[pkOf(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	add := in.ExpressionAttributeValues[":ref"].(*types.AttributeValueMemberSS).Value
	var set []string
	if cur, ok := item["derived"].(*types.AttributeValueMemberSS); ok {
		set = slices.Clone(cur.Value)
	}
	for _, v := range add {
		if !slices.Contains(set, v) {
			set = append(set, v)
		}
	}
	item["derived"] = &types.AttributeValueMemberSS{Value: set}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := 0
	if in.ExclusiveStartKey != nil {
		start = slices.Index(f.order, pkOf(in.ExclusiveStartKey)) + 1
	}
	if start >= len(f.order) {
		return &dynamodb.ScanOutput{}, nil
	}
	pk := f.order[start]
	out := &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{f.items[pk]}}
	if start+1 < len(f.order) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: pk}}
	}
	return out, nil
}

func sampleItem(id string, uploaded time.Time) *MediaItem {
	return &MediaItem{
		ID:          id,
		Name:        "cat.jpg",
		Namespace:   "originals",
		SourceKey:   id + "-cat.jpg",
		Type:        TypeImage,
		Size:        1234,
		ContentType: "image/jpeg",
		UploadedAt:  uploaded,
		Metadata:    map[string]string{"width": "640"},
	}
}

func catalogs(t *testing.T) map[string]Catalog {
	t.Helper()
	return map[string]Catalog{
		"memory": NewMemoryCatalog(),
		"dynamo": NewDynamoCatalog(newFakeDynamo(), "media"),
	}
}

func TestCatalog_PutGet(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			if err := c.Put(ctx, sampleItem("a1", now)); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, err := c.Get(ctx, "a1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ID != "a1" || got.SourceKey != "a1-cat.jpg" || got.Type != TypeImage {
				t.Errorf("unexpected item: %+v", got)
			}
			if !got.UploadedAt.Equal(now) {
				t.Errorf("uploadedAt %v, want %v", got.UploadedAt, now)
			}
			if got.Metadata["width"] != "640" {
				t.Errorf("metadata lost: %v", got.Metadata)
			}
		})
	}
}

func TestCatalog_NotFound(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("get: expected ErrNotFound, got %v", err)
			}
			if err := c.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("delete: expected ErrNotFound, got %v", err)
			}
			if err := c.AddDerived(ctx, "missing", "processed/x"); !errors.Is(err, ErrNotFound) {
				t.Errorf("add derived: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestCatalog_AddDerivedIsIdempotent(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c.Put(ctx, sampleItem("a1", time.Now()))
			for i := 0; i < 3; i++ {
				if err := c.AddDerived(ctx, "a1", "processed/thumb-a1-cat.jpg"); err != nil {
					t.Fatalf("add derived: %v", err)
				}
			}
			c.AddDerived(ctx, "a1", "processed/resize-a1-cat.jpg")
			got, _ := c.Get(ctx, "a1")
			if len(got.Derived) != 2 {
				t.Errorf("expected 2 derived refs, got %v", got.Derived)
			}
		})
	}
}

func TestCatalog_ListNewestFirst(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			c.Put(ctx, sampleItem("old", base))
			c.Put(ctx, sampleItem("new", base.Add(time.Hour)))
			c.Put(ctx, sampleItem("mid", base.Add(time.Minute)))

			items, err := c.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var ids []string
			for _, it := range items {
				ids = append(ids, it.ID)
			}
			if !slices.Equal(ids, []string{"new", "mid", "old"}) {
				t.Errorf("order %v", ids)
			}

			if err := c.Delete(ctx, "mid"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			items, _ = c.List(ctx)
			if len(items) != 2 {
				t.Errorf("expected 2 items after delete, got %d", len(items))
			}
		})
	}
}

func TestTypeFromContentType(t *testing.T) {
	tests := []struct {
		in   string
		want MediaType
		ok   bool
	}{
		{"image/png", TypeImage, true},
		{"Video/MP4", TypeVideo, true},
		{"audio/mpeg", TypeAudio, true},
		{"application/pdf", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := TypeFromContentType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("TypeFromContentType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
