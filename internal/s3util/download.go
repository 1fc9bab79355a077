package s3util

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ReadObject downloads an object fully into memory. Callers use IsNotFound on
// the returned error to tell a missing key from a transport failure.
func ReadObject(ctx context.Context, client API, bucket, key string) ([]byte, string, error) {
	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Downloading from S3")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	})
	if err != nil {
		return nil, "", fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if result.ContentLength != nil && *result.ContentLength > 0 {
		buf.Grow(int(*result.ContentLength))
	}
	if _, err := io.Copy(&buf, result.Body); err != nil {
		return nil, "", fmt.Errorf("read S3 body %s: %w", key, err)
	}

	contentType := ""
	if result.ContentType != nil {
		contentType = *result.ContentType
	}
	log.Debug().Str("key", key).Int("bytes", buf.Len()).Msg("S3 download complete")
	return buf.Bytes(), contentType, nil
}
