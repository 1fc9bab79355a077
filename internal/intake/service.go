// Package intake is the front door of the pipeline: it stores uploads,
// records them in the media catalog and turns user requests into processing
// requests, either run inline or placed on the work queue.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/catalog"
	"github.com/fpang/media-pipeline/internal/engine"
	"github.com/fpang/media-pipeline/internal/imageproc"
	"github.com/fpang/media-pipeline/internal/queue"
	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
	"github.com/fpang/media-pipeline/internal/store"
	"github.com/fpang/media-pipeline/internal/worker"
)

// Source metadata keys written by synchronous analysis.
const (
	MetaAIProcessed      = "aiProcessed"
	MetaAIProcessingType = "aiProcessingType"
)

// ErrInvalidUpload marks an upload rejected for its name or content type.
var ErrInvalidUpload = errors.New("invalid upload")

// URLSigner issues time-limited download links.
type URLSigner interface {
	URL(ctx context.Context, namespace, key string, expiry time.Duration) (string, error)
}

// Service implements the intake operations.
type Service struct {
	Store   store.Manager
	Queue   queue.Queue
	Catalog catalog.Catalog
	// Worker runs synchronous submissions. When nil every submission is queued.
	Worker *worker.Worker
	// Images produces the upload thumbnail and reads image metadata.
	Images engine.Engine
	// URLs is optional; without it items carry no download links.
	URLs URLSigner

	Now   func() time.Time
	NewID func() string
}

// NewService wires a Service with the default clock and id source.
func NewService(s store.Manager, q queue.Queue, c catalog.Catalog, w *worker.Worker) *Service {
	return &Service{
		Store:   s,
		Queue:   q,
		Catalog: c,
		Worker:  w,
		Images:  imageproc.New(),
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func ref(namespace, key string) string { return namespace + "/" + key }

func splitRef(r string) (namespace, key string, ok bool) {
	return strings.Cut(r, "/")
}

// Upload stores data as a new original and records a media item. Images get
// a thumbnail right away; videos get a VIDEO_THUMBNAIL request queued. A
// failed thumbnail never fails the upload.
func (s *Service) Upload(ctx context.Context, name, contentType string, data []byte) (*catalog.MediaItem, error) {
	name, err := cleanFilename(name)
	if err != nil {
		return nil, err
	}
	mediaType, ok := catalog.TypeFromContentType(contentType)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidUpload, contentType)
	}

	id := s.newID()
	key := id + "-" + name
	if err := s.Store.Put(ctx, router.NamespaceOriginals, key, data, contentType); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	item := &catalog.MediaItem{
		ID:          id,
		Name:        name,
		Namespace:   router.NamespaceOriginals,
		SourceKey:   key,
		Type:        mediaType,
		Size:        int64(len(data)),
		ContentType: contentType,
		UploadedAt:  s.now(),
		Metadata:    map[string]string{},
	}

	switch mediaType {
	case catalog.TypeImage:
		s.imageExtras(ctx, item, data)
	case catalog.TypeVideo:
		req := request.New(router.NamespaceOriginals, key, request.VideoThumbnail, nil).WithMediaID(id)
		if err := queue.EnqueueRequest(ctx, s.Queue, req); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to queue video thumbnail")
		} else if dk, err := router.DerivedKey(key, request.VideoThumbnail, nil); err == nil {
			item.Derived = append(item.Derived, ref(router.NamespaceProcessed, dk))
		}
	}

	if err := s.Catalog.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("record media item: %w", err)
	}
	log.Info().
		Str("mediaId", id).
		Str("key", key).
		Str("type", string(mediaType)).
		Int64("size", item.Size).
		Msg("Media uploaded")
	return item, nil
}

func (s *Service) imageExtras(ctx context.Context, item *catalog.MediaItem, data []byte) {
	if info, err := imageproc.Inspect(data); err == nil {
		maps.Copy(item.Metadata, info.Fields())
	} else {
		log.Debug().Err(err).Str("key", item.SourceKey).Msg("Could not read image metadata")
	}

	plan, err := router.Resolve(request.Thumbnail, nil)
	if err != nil {
		log.Error().Err(err).Msg("Thumbnail route unavailable")
		return
	}
	thumb, err := s.Images.Apply(ctx, data, plan)
	if err != nil {
		log.Warn().Err(err).Str("key", item.SourceKey).Msg("Upload thumbnail failed")
		return
	}
	tk := router.ThumbnailKey(item.SourceKey)
	if err := s.Store.Put(ctx, router.NamespaceThumbnails, tk, thumb, plan.ContentType); err != nil {
		log.Warn().Err(err).Str("key", tk).Msg("Failed to store upload thumbnail")
		return
	}
	item.ThumbnailKey = ref(router.NamespaceThumbnails, tk)
}

// Get returns one item with download links filled in.
func (s *Service) Get(ctx context.Context, id string) (*catalog.MediaItem, error) {
	item, err := s.Catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sign(ctx, item)
	return item, nil
}

// List returns every item, newest first.
func (s *Service) List(ctx context.Context) ([]*catalog.MediaItem, error) {
	items, err := s.Catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		s.sign(ctx, item)
	}
	return items, nil
}

const urlExpiry = time.Hour

func (s *Service) sign(ctx context.Context, item *catalog.MediaItem) {
	if s.URLs == nil {
		return
	}
	if u, err := s.URLs.URL(ctx, item.Namespace, item.SourceKey, urlExpiry); err == nil {
		item.OriginalURL = u
	}
	if ns, key, ok := splitRef(item.ThumbnailKey); ok {
		if u, err := s.URLs.URL(ctx, ns, key, urlExpiry); err == nil {
			item.ThumbnailURL = u
		}
	}
}

// QueueResult is the acceptance returned for queued work.
type QueueResult struct {
	Status         string `json:"status"`
	MediaID        string `json:"mediaId,omitempty"`
	ProcessingType string `json:"processingType"`
	Artifact       string `json:"artifact"`
}

// StatusQueued is the status of an accepted, queued request.
const StatusQueued = "Processing request queued"

// Queue enqueues follow-up work for an existing item and records the
// artifact it will produce.
func (s *Service) Queue(ctx context.Context, id, processingType string, params map[string]string) (*QueueResult, error) {
	t, err := request.ParseType(processingType)
	if err != nil {
		return nil, err
	}
	item, err := s.Catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	req := request.New(item.Namespace, item.SourceKey, t, params).WithMediaID(id)
	plan, err := router.ResolveRequest(req)
	if err != nil {
		return nil, err
	}
	if err := queue.EnqueueRequest(ctx, s.Queue, req); err != nil {
		return nil, err
	}
	artifact := ref(plan.Namespace, plan.DerivedKey(req.SourceKey))
	if err := s.Catalog.AddDerived(ctx, id, artifact); err != nil {
		log.Warn().Err(err).Str("mediaId", id).Msg("Failed to record queued artifact")
	}
	log.Info().Str("mediaId", id).Str("processingType", t.String()).Str("artifact", artifact).Msg("Processing request queued")
	return &QueueResult{Status: StatusQueued, MediaID: id, ProcessingType: t.String(), Artifact: artifact}, nil
}

// SubmitResult is the response to a submission. Completed submissions carry
// the artifact; queued ones only the acceptance.
type SubmitResult struct {
	Status         string         `json:"status"`
	Queued         bool           `json:"-"`
	MediaID        string         `json:"mediaId,omitempty"`
	ProcessingType string         `json:"processingType"`
	BlobName       string         `json:"blobName,omitempty"`
	Namespace      string         `json:"namespace,omitempty"`
	ContentType    string         `json:"contentType,omitempty"`
	ProcessedURL   string         `json:"processedUrl,omitempty"`
	Results        map[string]any `json:"results,omitempty"`
}

// StatusSuccess is the status of a submission that completed inline.
const StatusSuccess = "success"

// Submit accepts a wire-format processing request. With sync set, image and
// analysis requests run inline; video requests are always queued.
func (s *Service) Submit(ctx context.Context, req request.Request, sync bool) (*SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	plan, err := router.ResolveRequest(req)
	if err != nil {
		return nil, err
	}

	if !sync || s.Worker == nil || plan.Engine == router.EngineVideo {
		if err := queue.EnqueueRequest(ctx, s.Queue, req); err != nil {
			return nil, err
		}
		s.recordDerived(ctx, req.MediaID, ref(plan.Namespace, plan.DerivedKey(req.SourceKey)))
		return &SubmitResult{
			Status:         StatusQueued,
			Queued:         true,
			MediaID:        req.MediaID,
			ProcessingType: req.Type.String(),
		}, nil
	}

	o, err := s.Worker.Process(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recordDerived(ctx, req.MediaID, o.Ref())
	res := &SubmitResult{
		Status:         StatusSuccess,
		MediaID:        req.MediaID,
		ProcessingType: req.Type.String(),
		BlobName:       o.DerivedKey,
		Namespace:      o.Namespace,
		ContentType:    o.ContentType,
	}
	if s.URLs != nil {
		if u, err := s.URLs.URL(ctx, o.Namespace, o.DerivedKey, urlExpiry); err == nil {
			res.ProcessedURL = u
		}
	}
	if plan.Engine == router.EngineAnalysis {
		res.Results = s.analysisResult(ctx, o)
		if err := store.Merge(ctx, s.Store, req.Namespace, req.SourceKey, map[string]string{
			MetaAIProcessed:      "true",
			MetaAIProcessingType: req.Type.String(),
		}); err != nil {
			log.Warn().Err(err).Str("key", req.SourceKey).Msg("Failed to tag analysed source")
		}
	}
	return res, nil
}

func (s *Service) analysisResult(ctx context.Context, o worker.Outcome) map[string]any {
	data, err := s.Store.Get(ctx, o.Namespace, o.DerivedKey)
	if err != nil {
		log.Warn().Err(err).Str("artifact", o.Ref()).Msg("Failed to read analysis result")
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		log.Warn().Err(err).Str("artifact", o.Ref()).Msg("Analysis result is not JSON")
		return nil
	}
	return out
}

func (s *Service) recordDerived(ctx context.Context, mediaID, artifact string) {
	if mediaID == "" {
		return
	}
	if err := s.Catalog.AddDerived(ctx, mediaID, artifact); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		log.Warn().Err(err).Str("mediaId", mediaID).Msg("Failed to record artifact")
	}
}

// Refresh pulls worker results back into the catalog: source metadata tags,
// analysis artifacts, and a video thumbnail once it exists.
func (s *Service) Refresh(ctx context.Context, id string) (*catalog.MediaItem, error) {
	item, err := s.Catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	md, err := s.Store.GetMetadata(ctx, item.Namespace, item.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("read source metadata: %w", err)
	}
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}
	maps.Copy(item.Metadata, md)

	for _, r := range item.Derived {
		ns, key, ok := splitRef(r)
		if !ok {
			continue
		}
		t, isAnalysis := analysisTypeFor(key, item.SourceKey)
		isThumb := item.Type == catalog.TypeVideo && ns == router.NamespaceProcessed && key == router.ThumbnailKey(item.SourceKey)
		if !isAnalysis && !isThumb {
			continue
		}
		data, err := s.Store.Get(ctx, ns, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r, err)
		}
		if !isAnalysis {
			item.ThumbnailKey = r
			continue
		}
		var result map[string]any
		if err := json.Unmarshal(data, &result); err != nil {
			log.Warn().Err(err).Str("artifact", r).Msg("Skipping unreadable analysis result")
			continue
		}
		if item.Analysis == nil {
			item.Analysis = map[string]any{}
		}
		item.Analysis[t.String()] = result
	}

	if err := s.Catalog.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("update media item: %w", err)
	}
	s.sign(ctx, item)
	return item, nil
}

// analysisTypeFor reports which analysis type names key as its artifact.
func analysisTypeFor(key, sourceKey string) (request.ProcessingType, bool) {
	for _, t := range request.AllTypes() {
		route, err := router.Lookup(t)
		if err != nil || route.Engine != router.EngineAnalysis {
			continue
		}
		if dk, err := router.DerivedKey(sourceKey, t, nil); err == nil && dk == key {
			return t, true
		}
	}
	return "", false
}

// Delete removes the item, its original, its thumbnail and every recorded
// artifact. Objects already gone are ignored.
func (s *Service) Delete(ctx context.Context, id string) error {
	item, err := s.Catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	refs := append([]string{ref(item.Namespace, item.SourceKey)}, item.Derived...)
	if item.ThumbnailKey != "" {
		refs = append(refs, item.ThumbnailKey)
	}
	var errs []error
	for _, r := range refs {
		ns, key, ok := splitRef(r)
		if !ok {
			continue
		}
		if err := s.Store.Delete(ctx, ns, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("delete objects for %s: %w", id, err)
	}
	if err := s.Catalog.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("mediaId", id).Int("objects", len(refs)).Msg("Media deleted")
	return nil
}
