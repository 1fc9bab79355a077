// Package catalog records uploaded media items for the intake API. The
// pipeline worker never touches it: worker results reach an item only when
// intake re-reads the content store (see intake.Service.Refresh).
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when no item has the requested id.
var ErrNotFound = errors.New("media item not found")

// MediaType tags an item by the broad kind of its content.
type MediaType string

const (
	TypeImage MediaType = "IMAGE"
	TypeVideo MediaType = "VIDEO"
	TypeAudio MediaType = "AUDIO"
)

// TypeFromContentType maps a content type prefix to a MediaType. ok is false
// for anything that is not image, video or audio.
func TypeFromContentType(contentType string) (MediaType, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return TypeImage, true
	case strings.HasPrefix(ct, "video/"):
		return TypeVideo, true
	case strings.HasPrefix(ct, "audio/"):
		return TypeAudio, true
	}
	return "", false
}

// MediaItem is one uploaded asset. Derived holds "namespace/key" references
// to artifacts queued or produced from the source.
type MediaItem struct {
	ID           string            `json:"id" dynamodbav:"-"`
	Name         string            `json:"name" dynamodbav:"name"`
	Namespace    string            `json:"namespace" dynamodbav:"namespace"`
	SourceKey    string            `json:"sourceKey" dynamodbav:"sourceKey"`
	ThumbnailKey string            `json:"thumbnailKey,omitempty" dynamodbav:"thumbnailKey,omitempty"`
	Type         MediaType         `json:"type" dynamodbav:"type"`
	Size         int64             `json:"size" dynamodbav:"size"`
	ContentType  string            `json:"contentType" dynamodbav:"contentType"`
	UploadedAt   time.Time         `json:"uploadedAt" dynamodbav:"uploadedAt"`
	Derived      []string          `json:"derived,omitempty" dynamodbav:"derived,stringset,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	Analysis     map[string]any    `json:"analysis,omitempty" dynamodbav:"analysis,omitempty"`

	// Filled per response by the API, never persisted.
	OriginalURL  string `json:"originalUrl,omitempty" dynamodbav:"-"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty" dynamodbav:"-"`
}

// HasDerived reports whether ref is already recorded on the item.
func (m *MediaItem) HasDerived(ref string) bool {
	for _, d := range m.Derived {
		if d == ref {
			return true
		}
	}
	return false
}

// Catalog persists media items.
type Catalog interface {
	Put(ctx context.Context, item *MediaItem) error
	Get(ctx context.Context, id string) (*MediaItem, error)
	List(ctx context.Context) ([]*MediaItem, error)
	Delete(ctx context.Context, id string) error
	AddDerived(ctx context.Context, id, ref string) error
}
