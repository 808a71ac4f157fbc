package queue

import (
	"context"

	"cloud.google.com/go/pubsub"

	"classroom/internal/applog"
)

const typeAttribute = "type"

// PubSubQueue publishes to a Cloud Pub/Sub topic and consumes from a
// subscription on it.
type PubSubQueue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
}

// NewPubSubQueue connects to projectID. subscriptionID may be empty for
// publish-only use.
func NewPubSubQueue(ctx context.Context, projectID, topicID, subscriptionID string) (*PubSubQueue, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	q := &PubSubQueue{client: client, topic: client.Topic(topicID)}
	if subscriptionID != "" {
		q.sub = client.Subscription(subscriptionID)
	}
	return q, nil
}

// Publish sends msg and waits for the server to accept it.
func (q *PubSubQueue) Publish(ctx context.Context, msg Message) error {
	res := q.topic.Publish(ctx, &pubsub.Message{
		Data:       msg.Body,
		Attributes: map[string]string{typeAttribute: msg.Type},
	})
	_, err := res.Get(ctx)
	return err
}

// Consume acknowledges each message once a worker has taken it.
func (q *PubSubQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	if q.sub == nil {
		close(out)
		return out, nil
	}
	go func() {
		defer close(out)
		err := q.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
			select {
			case out <- Message{Type: m.Attributes[typeAttribute], Body: m.Data}:
				m.Ack()
			case <-ctx.Done():
				m.Nack()
			}
		})
		if err != nil && ctx.Err() == nil {
			applog.Printf("queue: pubsub receive: %v", err)
		}
	}()
	return out, nil
}

// Close flushes pending publishes and closes the client.
func (q *PubSubQueue) Close() error {
	q.topic.Stop()
	return q.client.Close()
}
