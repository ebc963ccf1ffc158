package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-notify/internal/domain"
)

// ProcessedKeyRepo stores the idempotency keys of minted notifications.
// PK: user_id, SK: notification_key
type ProcessedKeyRepo struct {
	client    API
	tableName string
}

func NewProcessedKeyRepo(client API, tableName string) *ProcessedKeyRepo {
	return &ProcessedKeyRepo{client: client, tableName: tableName}
}

// Exists is a strongly consistent point read.
func (r *ProcessedKeyRepo) Exists(ctx context.Context, userID, key string) (bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(r.tableName),
		Key:                  compositeKey(fieldUserID, userID, fieldNotificationKey, key),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("#k"),
		ExpressionAttributeNames: map[string]string{
			"#k": fieldNotificationKey,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get processed key: %w", err)
	}
	return out.Item != nil, nil
}

// Put writes the key unconditionally; writing the same key twice only moves processed_at.
func (r *ProcessedKeyRepo) Put(ctx context.Context, k *domain.ProcessedEventKey) error {
	item, err := attributevalue.MarshalMap(k)
	if err != nil {
		return fmt.Errorf("marshal processed key: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// DeleteOlderThan removes the user's keys processed before cutoff and returns how many went.
func (r *ProcessedKeyRepo) DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("#uid = :uid"),
		FilterExpression:       aws.String("#pa < :cutoff"),
		ProjectionExpression:   aws.String("#uid, #k"),
		ExpressionAttributeNames: map[string]string{
			"#uid": fieldUserID,
			"#k":   fieldNotificationKey,
			"#pa":  fieldProcessedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":    strValue(userID),
			":cutoff": numValue(cutoff.UnixMilli()),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("query stale processed keys: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := batchDelete(ctx, r.client, r.tableName, items); err != nil {
		return 0, err
	}
	return len(items), nil
}
