package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key layout: one item per media, PK=MEDIA#<id>, SK=META.
const (
	pkPrefix = "MEDIA#"
	skMeta   = "META"
)

// DynamoAPI is the subset of *dynamodb.Client the catalog uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// DynamoCatalog implements Catalog on a DynamoDB table.
type DynamoCatalog struct {
	client    DynamoAPI
	tableName string
}

var _ Catalog = (*DynamoCatalog)(nil)

// NewDynamoCatalog creates a catalog for the given table.
func NewDynamoCatalog(client DynamoAPI, tableName string) *DynamoCatalog {
	return &DynamoCatalog{client: client, tableName: tableName}
}

func mediaPK(id string) string { return pkPrefix + id }

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: mediaPK(id)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

func (c *DynamoCatalog) Put(ctx context.Context, item *MediaItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", item.ID, err)
	}
	for k, v := range itemKey(item.ID) {
		av[k] = v
	}
	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &c.tableName,
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("PutItem %s: %w", mediaPK(item.ID), err)
	}
	log.Debug().Str("mediaId", item.ID).Str("sourceKey", item.SourceKey).Msg("Media item persisted to DynamoDB")
	return nil
}

func (c *DynamoCatalog) Get(ctx context.Context, id string) (*MediaItem, error) {
	result, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &c.tableName,
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem %s: %w", mediaPK(id), err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("get item %s: %w", id, ErrNotFound)
	}
	return unmarshalItem(result.Item)
}

func (c *DynamoCatalog) List(ctx context.Context) ([]*MediaItem, error) {
	input := &dynamodb.ScanInput{
		TableName:        &c.tableName,
		FilterExpression: aws.String("SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": &types.AttributeValueMemberS{Value: skMeta},
		},
	}

	var items []*MediaItem
	// Scan returns up to 1MB per call.
	for {
		result, err := c.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Scan %s: %w", c.tableName, err)
		}
		for _, raw := range result.Items {
			item, err := unmarshalItem(raw)
			if err != nil {
				log.Warn().Err(err).Msg("Skipping unreadable media item")
				continue
			}
			items = append(items, item)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	sortByUpload(items)
	return items, nil
}

func (c *DynamoCatalog) Delete(ctx context.Context, id string) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &c.tableName,
		Key:                 itemKey(id),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("delete item %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("DeleteItem %s: %w", mediaPK(id), err)
	}
	return nil
}

// AddDerived adds ref to the item's derived string set. The set makes
// repeated calls for the same ref a no-op.
func (c *DynamoCatalog) AddDerived(ctx context.Context, id, ref string) error {
	_, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &c.tableName,
		Key:                 itemKey(id),
		UpdateExpression:    aws.String("ADD derived :ref"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ref": &types.AttributeValueMemberSS{Value: []string{ref}},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("add derived %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("UpdateItem %s: %w", mediaPK(id), err)
	}
	log.Debug().Str("mediaId", id).Str("ref", ref).Msg("Derived artifact recorded")
	return nil
}

func unmarshalItem(raw map[string]types.AttributeValue) (*MediaItem, error) {
	var item MediaItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("unmarshal media item: %w", err)
	}
	if pk, ok := raw["PK"].(*types.AttributeValueMemberS); ok {
		item.ID = strings.TrimPrefix(pk.Value, pkPrefix)
	}
	return &item, nil
}
