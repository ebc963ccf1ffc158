package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/care-notify/internal/config"
	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/pkg/id"
)

// PutObjectAPI is the part of the S3 client the archive needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// Archive keeps a copy of pruned notifications as JSON lines.
type Archive struct {
	client PutObjectAPI
	bucket string
}

func NewArchive(client PutObjectAPI, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// Store writes notifications to notifications/{userID}/{yyyy-mm-dd}/{ulid}.jsonl
// and returns the object URL.
func (a *Archive) Store(ctx context.Context, userID string, notifications []domain.Notification, at time.Time) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range notifications {
		if err := enc.Encode(&notifications[i]); err != nil {
			return "", fmt.Errorf("encode notification: %w", err)
		}
	}

	key := fmt.Sprintf("notifications/%s/%s/%s.jsonl", userID, at.UTC().Format("2006-01-02"), id.At(at))
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
