package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/fpang/media-pipeline/internal/request"
)

type fakeObject struct {
	data        []byte
	contentType string
	tags        []s3types.Tag
	modified    time.Time
}

// fakeS3 is an in-memory stand-in for the S3 calls in s3util.API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	err     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]*fakeObject)}
}

func noSuchKey() error {
	return &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.data))),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	key := aws.ToString(in.Key)
	f.objects[key] = &fakeObject{data: data, contentType: aws.ToString(in.ContentType), modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) GetObjectTagging(_ context.Context, in *s3.GetObjectTaggingInput, _ ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, noSuchKey()
	}
	return &s3.GetObjectTaggingOutput{TagSet: obj.tags}, nil
}

func (f *fakeS3) PutObjectTagging(_ context.Context, in *s3.PutObjectTaggingInput, _ ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, noSuchKey()
	}
	obj.tags = in.Tagging.TagSet
	return &s3.PutObjectTaggingOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		obj := f.objects[k]
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func TestS3Store_KeyLayout(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, nil, "media")
	ctx := context.Background()
	if err := s.Put(ctx, "processed", "thumb-cat.jpg", []byte("x"), "image/jpeg"); err != nil {
		t.Fatal(err)
	}
	obj, ok := fake.objects["processed/thumb-cat.jpg"]
	if !ok {
		t.Fatalf("expected object at processed/thumb-cat.jpg, have %v", fake.objects)
	}
	if obj.contentType != "image/jpeg" {
		t.Errorf("content type %q", obj.contentType)
	}
	if s.Bucket() != "media" {
		t.Errorf("bucket %q", s.Bucket())
	}
}

func TestS3Store_TransportErrorIsUnavailable(t *testing.T) {
	fake := newFakeS3()
	fake.err = errors.New("dial tcp: i/o timeout")
	s := NewS3Store(fake, nil, "media")
	_, err := s.Get(context.Background(), "originals", "cat.jpg")
	if !errors.Is(err, request.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("transport error must not look like not-found")
	}
}

func TestS3Store_TagLimit(t *testing.T) {
	s := NewS3Store(newFakeS3(), nil, "media")
	ctx := context.Background()
	s.Put(ctx, "originals", "cat.jpg", []byte("x"), "image/jpeg")
	md := map[string]string{}
	for _, k := range strings.Split("a b c d e f g h i j k", " ") {
		md[k] = "1"
	}
	err := s.SetMetadata(ctx, "originals", "cat.jpg", md)
	if !errors.Is(err, ErrMetadataLimit) {
		t.Errorf("err = %v, want ErrMetadataLimit", err)
	}
	if errors.Is(err, request.ErrStoreUnavailable) {
		t.Error("tag limit must not look transient")
	}
}

func TestS3Store_URLWithoutPresigner(t *testing.T) {
	s := NewS3Store(newFakeS3(), nil, "media")
	if _, err := s.URL(context.Background(), "originals", "cat.jpg", time.Minute); err == nil {
		t.Error("expected error without presigner")
	}
}
