package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/care-notify/internal/config"
	"github.com/care-notify/internal/domain"
)

// PublishAPI is the part of the SNS client the publisher needs.
type PublishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func NewClient(awsCfg aws.Config, cfg *config.Config) *sns.Client {
	clientOpts := []func(*sns.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return sns.NewFromConfig(awsCfg, clientOpts...)
}

// Publisher fans minted notifications out to a topic for push delivery.
type Publisher struct {
	client   PublishAPI
	topicARN string
}

func NewPublisher(client PublishAPI, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

// Publish sends n as JSON with user_id and type message attributes so
// subscriptions can filter.
func (p *Publisher) Publish(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(n.Title),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"user_id": {DataType: aws.String("String"), StringValue: aws.String(n.UserID)},
			"type":    {DataType: aws.String("String"), StringValue: aws.String(string(n.Type))},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
