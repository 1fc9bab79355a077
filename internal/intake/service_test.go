package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/fpang/media-pipeline/internal/analysis"
	"github.com/fpang/media-pipeline/internal/catalog"
	"github.com/fpang/media-pipeline/internal/engine"
	"github.com/fpang/media-pipeline/internal/imageproc"
	"github.com/fpang/media-pipeline/internal/queue"
	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
	"github.com/fpang/media-pipeline/internal/store"
	"github.com/fpang/media-pipeline/internal/worker"
)

type stubModel struct{}

func (stubModel) Generate(ctx context.Context, system, prompt string, data []byte, mimeType string) (string, error) {
	switch {
	case strings.Contains(prompt, "human face"):
		return `{"faces":[{"box":{"x":1,"y":1,"width":5,"height":5},"confidence":0.9}]}`, nil
	case strings.Contains(prompt, "legible text"):
		return `{"text":"hello","lines":["hello"]}`, nil
	}
	return "", errors.New("unexpected prompt")
}

type signer struct{}

func (signer) URL(ctx context.Context, namespace, key string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + namespace + "/" + key, nil
}

type env struct {
	svc     *Service
	store   *store.MemoryStore
	queue   *queue.MemoryQueue
	catalog *catalog.MemoryCatalog
	worker  *worker.Worker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:   store.NewMemoryStore(),
		queue:   queue.NewMemoryQueue(time.Minute, 10*time.Millisecond),
		catalog: catalog.NewMemoryCatalog(),
	}
	e.worker = &worker.Worker{
		Store: e.store,
		Engines: engine.Registry{
			router.EngineImage:    imageproc.New(),
			router.EngineAnalysis: analysis.New(stubModel{}, false),
		},
	}
	e.svc = NewService(e.store, e.queue, e.catalog, e.worker)
	ids := 0
	e.svc.NewID = func() string { ids++; return fmt.Sprintf("id-%d", ids) }
	e.svc.Now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	return e
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{uint8(x * 3), uint8(y * 3), 200, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decodeQueued(t *testing.T, q *queue.MemoryQueue) []request.Request {
	t.Helper()
	var out []request.Request
	for _, b := range q.Bodies() {
		r, err := request.Decode([]byte(b))
		if err != nil {
			t.Fatalf("queued body %q: %v", b, err)
		}
		out = append(out, r)
	}
	return out
}

func TestUploadImage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	item, err := e.svc.Upload(ctx, "../../cat.png", "image/png", pngBytes(t, 400, 100))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if item.ID != "id-1" || item.SourceKey != "id-1-cat.png" || item.Name != "cat.png" {
		t.Errorf("item = %+v", item)
	}
	if item.Type != catalog.TypeImage || item.Size == 0 {
		t.Errorf("type/size = %s/%d", item.Type, item.Size)
	}
	if item.ThumbnailKey != "thumbnails/thumb-id-1-cat.png" {
		t.Errorf("thumbnail = %q", item.ThumbnailKey)
	}
	if item.Metadata["width"] != "400" || item.Metadata["format"] != "png" {
		t.Errorf("metadata = %v", item.Metadata)
	}
	if _, err := e.store.Get(ctx, router.NamespaceOriginals, "id-1-cat.png"); err != nil {
		t.Errorf("original missing: %v", err)
	}
	if ct, _ := e.store.ContentType(router.NamespaceThumbnails, "thumb-id-1-cat.png"); ct != "image/jpeg" {
		t.Errorf("thumbnail content type = %q", ct)
	}
	if e.queue.Len() != 0 {
		t.Error("image upload should not queue work")
	}
	if _, err := e.catalog.Get(ctx, "id-1"); err != nil {
		t.Errorf("item not recorded: %v", err)
	}
}

func TestUploadCorruptImageStillSucceeds(t *testing.T) {
	e := newEnv(t)
	item, err := e.svc.Upload(context.Background(), "broken.jpg", "image/jpeg", []byte("not really a jpeg"))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if item.ThumbnailKey != "" {
		t.Errorf("no thumbnail expected, got %q", item.ThumbnailKey)
	}
}

func TestUploadVideoQueuesThumbnail(t *testing.T) {
	e := newEnv(t)
	item, err := e.svc.Upload(context.Background(), "clip.mp4", "video/mp4", []byte("video"))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	reqs := decodeQueued(t, e.queue)
	if len(reqs) != 1 {
		t.Fatalf("queued %d requests, want 1", len(reqs))
	}
	r := reqs[0]
	if r.Type != request.VideoThumbnail || r.SourceKey != "id-1-clip.mp4" || r.MediaID != "id-1" || r.Namespace != router.NamespaceOriginals {
		t.Errorf("queued = %+v", r)
	}
	if len(item.Derived) != 1 || item.Derived[0] != "processed/thumb-id-1-clip.mp4" {
		t.Errorf("derived = %v", item.Derived)
	}
}

func TestUploadRejects(t *testing.T) {
	e := newEnv(t)
	tests := []struct{ name, file, ct string }{
		{"document", "notes.txt", "text/plain"},
		{"empty name", "", "image/png"},
		{"hidden traversal", "..", "image/png"},
		{"odd characters", "cat$.png", "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Upload(context.Background(), tt.file, tt.ct, []byte("x"))
			if !errors.Is(err, ErrInvalidUpload) {
				t.Errorf("err = %v, want ErrInvalidUpload", err)
			}
		})
	}
	if snap := e.store.Snapshot(); len(snap) != 0 {
		t.Errorf("rejected uploads left objects: %v", snap)
	}
}

func TestQueueForItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item, _ := e.svc.Upload(ctx, "cat.png", "image/png", pngBytes(t, 20, 20))

	res, err := e.svc.Queue(ctx, item.ID, "filter", map[string]string{"type": "sepia"})
	if err != nil {
		t.Fatalf("Queue error: %v", err)
	}
	if res.Status != StatusQueued || res.ProcessingType != "FILTER" || res.MediaID != item.ID {
		t.Errorf("result = %+v", res)
	}
	if res.Artifact != "processed/filter-sepia-id-1-cat.png" {
		t.Errorf("artifact = %q", res.Artifact)
	}
	got, _ := e.catalog.Get(ctx, item.ID)
	if !got.HasDerived(res.Artifact) {
		t.Errorf("derived = %v", got.Derived)
	}

	if _, err := e.svc.Queue(ctx, item.ID, "POSTERIZE", nil); !errors.Is(err, request.ErrUnsupportedType) {
		t.Errorf("unknown type err = %v", err)
	}
	if _, err := e.svc.Queue(ctx, item.ID, "FILTER", map[string]string{"type": "posterize"}); !errors.Is(err, request.ErrMalformedRequest) {
		t.Errorf("bad param err = %v", err)
	}
	if _, err := e.svc.Queue(ctx, "nope", "FILTER", nil); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing item err = %v", err)
	}
	if e.queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1", e.queue.Len())
	}
}

func TestSubmitSyncImage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.store.Put(ctx, router.NamespaceOriginals, "cat.png", pngBytes(t, 60, 40), "image/png"); err != nil {
		t.Fatal(err)
	}
	e.svc.URLs = signer{}

	res, err := e.svc.Submit(ctx, request.New(router.NamespaceOriginals, "cat.png", request.Resize, map[string]string{"width": "30", "height": "30"}), true)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if res.Status != StatusSuccess || res.Queued || res.BlobName != "resize-cat.png" {
		t.Errorf("result = %+v", res)
	}
	if res.ProcessedURL != "https://signed.example/processed/resize-cat.png" {
		t.Errorf("url = %q", res.ProcessedURL)
	}
	if e.queue.Len() != 0 {
		t.Error("sync submission should not queue")
	}
}

func TestSubmitSyncAnalysisTagsSource(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.Put(ctx, router.NamespaceOriginals, "doc.png", pngBytes(t, 10, 10), "image/png")

	res, err := e.svc.Submit(ctx, request.New(router.NamespaceOriginals, "doc.png", request.TextExtraction, nil), true)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if res.Results["text"] != "hello" {
		t.Errorf("results = %v", res.Results)
	}
	md, _ := e.store.GetMetadata(ctx, router.NamespaceOriginals, "doc.png")
	for k, want := range map[string]string{
		worker.MetaProcessed:      "true",
		worker.MetaProcessingType: "TEXT_EXTRACTION",
		MetaAIProcessed:           "true",
		MetaAIProcessingType:      "TEXT_EXTRACTION",
	} {
		if md[k] != want {
			t.Errorf("metadata[%s] = %q, want %q", k, md[k], want)
		}
	}
}

func TestSubmitQueuesVideoAndAsync(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Submit(ctx, request.New(router.NamespaceOriginals, "clip.mp4", request.AudioExtract, nil), true)
	if err != nil || !res.Queued || res.Status != StatusQueued {
		t.Fatalf("video submit = %+v, %v", res, err)
	}
	res, err = e.svc.Submit(ctx, request.New(router.NamespaceOriginals, "cat.jpg", request.Thumbnail, nil), false)
	if err != nil || !res.Queued {
		t.Fatalf("async submit = %+v, %v", res, err)
	}
	if e.queue.Len() != 2 {
		t.Errorf("queue length = %d, want 2", e.queue.Len())
	}
}

func TestSubmitErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Submit(ctx, request.Request{Namespace: "originals", Type: request.Thumbnail}, true)
	if !errors.Is(err, request.ErrMalformedRequest) {
		t.Errorf("missing key err = %v", err)
	}
	_, err = e.svc.Submit(ctx, request.New(router.NamespaceOriginals, "ghost.jpg", request.Thumbnail, nil), true)
	if !errors.Is(err, request.ErrSourceNotFound) {
		t.Errorf("missing source err = %v", err)
	}
	e.store.Fail = func(op, ns, key string) error { return errors.New("down") }
	_, err = e.svc.Submit(ctx, request.New(router.NamespaceOriginals, "cat.jpg", request.Thumbnail, nil), true)
	if !errors.Is(err, request.ErrStoreUnavailable) {
		t.Errorf("store down err = %v", err)
	}
}

func TestRefreshPullsWorkerResults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item, _ := e.svc.Upload(ctx, "face.png", "image/png", pngBytes(t, 30, 30))
	if _, err := e.svc.Queue(ctx, item.ID, "FACE_DETECTION", nil); err != nil {
		t.Fatal(err)
	}

	// Drain the queue with the worker.
	m, err := e.queue.Receive(ctx)
	if err != nil || m == nil {
		t.Fatalf("receive: %v, %v", m, err)
	}
	if d := e.worker.Handle(ctx, m.ID, []byte(m.Body)); d != worker.Ack {
		t.Fatalf("worker disposition = %s", d)
	}

	got, err := e.svc.Refresh(ctx, item.ID)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if got.Metadata[worker.MetaProcessed] != "true" || got.Metadata["width"] != "30" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	faces, ok := got.Analysis["FACE_DETECTION"].(map[string]any)
	if !ok || faces["faceCount"] != float64(1) {
		t.Errorf("analysis = %v", got.Analysis)
	}
	stored, _ := e.catalog.Get(ctx, item.ID)
	if stored.Analysis == nil {
		t.Error("refresh did not persist the item")
	}
}

func TestRefreshVideoThumbnail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item, _ := e.svc.Upload(ctx, "clip.mp4", "video/mp4", []byte("video"))

	got, _ := e.svc.Refresh(ctx, item.ID)
	if got.ThumbnailKey != "" {
		t.Errorf("thumbnail before processing = %q", got.ThumbnailKey)
	}
	e.store.Put(ctx, router.NamespaceProcessed, "thumb-id-1-clip.mp4", []byte("jpeg"), "image/jpeg")
	got, _ = e.svc.Refresh(ctx, item.ID)
	if got.ThumbnailKey != "processed/thumb-id-1-clip.mp4" {
		t.Errorf("thumbnail = %q", got.ThumbnailKey)
	}
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item, _ := e.svc.Upload(ctx, "cat.png", "image/png", pngBytes(t, 20, 20))
	if _, err := e.svc.Submit(ctx, request.New(router.NamespaceOriginals, item.SourceKey, request.Thumbnail, nil).WithMediaID(item.ID), true); err != nil {
		t.Fatal(err)
	}
	e.store.Put(ctx, router.NamespaceOriginals, "other.png", []byte("keep"), "image/png")

	if err := e.svc.Delete(ctx, item.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	snap := e.store.Snapshot()
	if len(snap) != 1 {
		t.Errorf("remaining objects = %v, want only originals/other.png", snap)
	}
	if _, err := e.catalog.Get(ctx, item.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("item still in catalog: %v", err)
	}
	if err := e.svc.Delete(ctx, item.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestGetSignsURLs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item, _ := e.svc.Upload(ctx, "cat.png", "image/png", pngBytes(t, 20, 20))
	e.svc.URLs = signer{}

	got, err := e.svc.Get(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OriginalURL != "https://signed.example/originals/id-1-cat.png" {
		t.Errorf("original url = %q", got.OriginalURL)
	}
	if got.ThumbnailURL != "https://signed.example/thumbnails/thumb-id-1-cat.png" {
		t.Errorf("thumbnail url = %q", got.ThumbnailURL)
	}
}
