// Package kafka ships audit events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/breederhq/identity/pkg/platform/audit"
)

// Sink writes audit events as JSON records keyed by tenant, so one tenant's
// event stream stays ordered within a partition.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New connects to the given seed brokers.
func New(brokers []string, topic string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// Write produces one event synchronously.
func (s *Sink) Write(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.TenantID.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and releases the client.
func (s *Sink) Close() {
	s.client.Close()
}
