package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-notify/internal/domain"
)

// NotificationRepo provides typed DynamoDB operations for the notifications table.
type NotificationRepo struct {
	client    API
	tableName string
}

func NewNotificationRepo(client API, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

// Put creates a notification. Ids are never reused, so an existing item is a conflict.
func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldNotificationID},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("notification %s exists: %w", n.NotificationID, domain.ErrConflict)
	}
	return err
}

// Page returns up to limit notifications for userID, newest first. When before
// is set only notifications strictly older than it are returned.
func (r *NotificationRepo) Page(ctx context.Context, userID string, limit int, before *int64) ([]domain.Notification, error) {
	cond := "#uid = :uid"
	names := map[string]string{"#uid": fieldUserID}
	values := map[string]types.AttributeValue{":uid": strValue(userID)}
	if before != nil {
		cond += " AND #ts < :before"
		names["#ts"] = fieldTimestamp
		values[":before"] = numValue(*before)
	}
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexUserTimestamp),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("query notifications page: %w", err)
	}
	notifications := make([]domain.Notification, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, fmt.Errorf("unmarshal notifications: %w", err)
	}
	return notifications, nil
}

// CountUnread counts the user's notifications with read=false.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexUserTimestamp),
		KeyConditionExpression: aws.String("#uid = :uid"),
		FilterExpression:       aws.String("#rd = :false"),
		ExpressionAttributeNames: map[string]string{
			"#uid": fieldUserID,
			"#rd":  fieldRead,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   strValue(userID),
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
		Select: types.SelectCount,
	}
	total := 0
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("count unread: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// MarkRead sets read=true on each id owned by userID. Every id is attempted;
// the first failure is returned.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID string, ids []string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldRead: true})
	if err != nil {
		return err
	}
	ue.Names["#owner"] = fieldUserID
	ue.Values[":owner"] = strValue(userID)

	var firstErr error
	for _, id := range ids {
		_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(r.tableName),
			Key:                       strKey(fieldNotificationID, id),
			UpdateExpression:          aws.String(ue.Expr),
			ConditionExpression:       aws.String("#owner = :owner"),
			ExpressionAttributeNames:  ue.Names,
			ExpressionAttributeValues: ue.Values,
		})
		if err != nil && firstErr == nil {
			firstErr = ownerError(id, err)
		}
	}
	return firstErr
}

// MarkAllRead marks every unread notification of userID as read, including
// ones no client has paged in yet.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) error {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexUserTimestamp),
		KeyConditionExpression: aws.String("#uid = :uid"),
		FilterExpression:       aws.String("#rd = :false"),
		ProjectionExpression:   aws.String("#id"),
		ExpressionAttributeNames: map[string]string{
			"#uid": fieldUserID,
			"#rd":  fieldRead,
			"#id":  fieldNotificationID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   strValue(userID),
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return fmt.Errorf("query unread notifications: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item[fieldNotificationID].(*types.AttributeValueMemberS); ok {
			ids = append(ids, s.Value)
		}
	}
	return r.MarkRead(ctx, userID, ids)
}

// Delete removes a notification owned by userID.
func (r *NotificationRepo) Delete(ctx context.Context, userID, notificationID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldNotificationID, notificationID),
		ConditionExpression:       aws.String("#owner = :owner"),
		ExpressionAttributeNames:  map[string]string{"#owner": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":owner": strValue(userID)},
	})
	if err != nil {
		return ownerError(notificationID, err)
	}
	return nil
}

// ListPrunable returns the user's notifications created before cutoff or whose
// expiry lies before now.
func (r *NotificationRepo) ListPrunable(ctx context.Context, userID string, cutoff, now time.Time) ([]domain.Notification, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexUserTimestamp),
		KeyConditionExpression: aws.String("#uid = :uid"),
		FilterExpression:       aws.String("#ts < :cutoff OR (attribute_exists(#exp) AND #exp < :now)"),
		ExpressionAttributeNames: map[string]string{
			"#uid": fieldUserID,
			"#ts":  fieldTimestamp,
			"#exp": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":    strValue(userID),
			":cutoff": numValue(cutoff.UnixMilli()),
			":now":    numValue(now.UnixMilli()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query prunable notifications: %w", err)
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(items, &notifications); err != nil {
		return nil, fmt.Errorf("unmarshal notifications: %w", err)
	}
	return notifications, nil
}

// DeleteByIDs removes notifications in batches without an owner check; only
// the cleanup path calls it, with ids it listed for the owner itself.
func (r *NotificationRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, strKey(fieldNotificationID, id))
	}
	return batchDelete(ctx, r.client, r.tableName, keys)
}

// ownerError maps a failed owner condition onto ErrNotFound so callers cannot
// probe for other users' notification ids.
func ownerError(id string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("notification %s: %w", id, err)
}
