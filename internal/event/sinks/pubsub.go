package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/voyago/leadharvest/internal/event"
)

// PubSubSink publishes events to a Google Cloud Pub/Sub topic so downstream
// consumers (persistence, reporting) can subscribe to the crawl stream.
type PubSubSink struct {
	publisher *pubsub.Publisher
}

// NewPubSubSink wraps an existing topic publisher.
func NewPubSubSink(publisher *pubsub.Publisher) (*PubSubSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher is required")
	}
	return &PubSubSink{publisher: publisher}, nil
}

// Consume publishes each event as a JSON message with a stage attribute.
func (s *PubSubSink) Consume(ctx context.Context, batch []event.Event) error {
	var results []*pubsub.PublishResult
	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msg := &pubsub.Message{
			Data:       data,
			Attributes: map[string]string{"stage": string(evt.Stage)},
		}
		results = append(results, s.publisher.Publish(ctx, msg))
	}
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}
	return nil
}

// Close stops the publisher's background goroutines.
func (s *PubSubSink) Close(context.Context) error {
	s.publisher.Stop()
	return nil
}
