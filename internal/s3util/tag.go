package s3util

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MaxTags is the S3 per-object tag limit.
const MaxTags = 10

// GetTags returns an object's tag set as a map.
func GetTags(ctx context.Context, client API, bucket, key string) (map[string]string, error) {
	out, err := client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("GetObjectTagging %s: %w", key, err)
	}
	tags := make(map[string]string, len(out.TagSet))
	for _, t := range out.TagSet {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

// PutTags replaces an object's tag set with tags.
func PutTags(ctx context.Context, client API, bucket, key string, tags map[string]string) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("object %s: %d tags exceeds S3 limit of %d", key, len(tags), MaxTags)
	}
	_, err := client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  &bucket,
		Key:     &key,
		Tagging: &s3types.Tagging{TagSet: TagSet(tags)},
	})
	if err != nil {
		return fmt.Errorf("PutObjectTagging %s: %w", key, err)
	}
	return nil
}

// TagSet converts a map to an S3 tag set ordered by key.
func TagSet(tags map[string]string) []s3types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	set := make([]s3types.Tag, 0, len(keys))
	for _, k := range keys {
		set = append(set, s3types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return set
}
