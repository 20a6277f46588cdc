package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// ResultPublisher publishes outcome messages to the results topic.
type ResultPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewResultPublisher creates a publisher bound to one topic.
func NewResultPublisher(ctx context.Context, projectID, topicID string) (*ResultPublisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("NewResultPublisher: projectID and topicID cannot be empty")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	return &ResultPublisher{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

// Publish sends one message and blocks until the server acknowledges it.
func (p *ResultPublisher) Publish(ctx context.Context, data []byte) error {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish result message: %w", err)
	}
	return nil
}

func (p *ResultPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
