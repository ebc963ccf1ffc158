package stream

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/care-notify/internal/config"
)

// NewStreamsClient creates a DynamoDB Streams client, honouring the LocalStack
// endpoint override like the table client does.
func NewStreamsClient(awsCfg aws.Config, cfg *config.Config) *dynamodbstreams.Client {
	var opts []func(*dynamodbstreams.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *dynamodbstreams.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return dynamodbstreams.NewFromConfig(awsCfg, opts...)
}
