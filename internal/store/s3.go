package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/s3util"
)

// S3Store keeps every namespace under its own key prefix in a single bucket:
// object "cat.jpg" in namespace "originals" lives at "originals/cat.jpg".
// Metadata is stored as S3 object tags, so at most ten keys fit per object.
type S3Store struct {
	client    s3util.API
	presigner *s3.PresignClient
	bucket    string
}

var _ Manager = (*S3Store)(nil)

// NewS3Store creates an S3-backed store. presigner may be nil, in which case
// URL returns an error.
func NewS3Store(client s3util.API, presigner *s3.PresignClient, bucket string) *S3Store {
	return &S3Store{client: client, presigner: presigner, bucket: bucket}
}

// Bucket returns the bucket this store writes to.
func (s *S3Store) Bucket() string { return s.bucket }

func objectKey(namespace, key string) string {
	return namespace + "/" + key
}

func (s *S3Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	data, _, err := s3util.ReadObject(ctx, s.client, s.bucket, objectKey(namespace, key))
	if err != nil {
		if s3util.IsNotFound(err) {
			return nil, notFound(namespace, key)
		}
		return nil, unavailable("get", namespace, key, err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, namespace, key string, data []byte, contentType string) error {
	if err := s3util.WriteObject(ctx, s.client, s.bucket, objectKey(namespace, key), data, contentType); err != nil {
		return unavailable("put", namespace, key, err)
	}
	return nil
}

func (s *S3Store) GetMetadata(ctx context.Context, namespace, key string) (map[string]string, error) {
	tags, err := s3util.GetTags(ctx, s.client, s.bucket, objectKey(namespace, key))
	if err != nil {
		if s3util.IsNotFound(err) {
			return nil, notFound(namespace, key)
		}
		return nil, unavailable("get metadata", namespace, key, err)
	}
	return tags, nil
}

func (s *S3Store) SetMetadata(ctx context.Context, namespace, key string, md map[string]string) error {
	if len(md) > s3util.MaxTags {
		return fmt.Errorf("set metadata %s/%s: %d keys exceeds the %d tag limit: %w", namespace, key, len(md), s3util.MaxTags, ErrMetadataLimit)
	}
	if err := s3util.PutTags(ctx, s.client, s.bucket, objectKey(namespace, key), md); err != nil {
		if s3util.IsNotFound(err) {
			return notFound(namespace, key)
		}
		return unavailable("set metadata", namespace, key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, namespace, prefix string) ([]Object, error) {
	nsPrefix := namespace + "/"
	infos, err := s3util.ListPrefix(ctx, s.client, s.bucket, nsPrefix+prefix)
	if err != nil {
		return nil, unavailable("list", namespace, prefix, err)
	}
	out := make([]Object, 0, len(infos))
	for _, info := range infos {
		out = append(out, Object{
			Namespace:    namespace,
			Key:          strings.TrimPrefix(info.Key, nsPrefix),
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, namespace, key string) error {
	if err := s3util.DeleteObject(ctx, s.client, s.bucket, objectKey(namespace, key)); err != nil {
		return unavailable("delete", namespace, key, err)
	}
	log.Debug().Str("namespace", namespace).Str("key", key).Msg("Object deleted")
	return nil
}

// URL returns a presigned GET URL valid for expiry.
func (s *S3Store) URL(ctx context.Context, namespace, key string, expiry time.Duration) (string, error) {
	if s.presigner == nil {
		return "", fmt.Errorf("presigning not configured")
	}
	return s3util.GeneratePresignedURL(ctx, s.presigner, s.bucket, objectKey(namespace, key), expiry)
}
