package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"mnemosyne/internal/config"
)

// KafkaTransitionEmitter publishes Transition events to a Kafka topic,
// one JSON-encoded message per transition, keyed by chunk ID so a
// consumer partitioned on key sees every transition for a given chunk
// in order. Grounded as the event-source analogue the teacher's repo
// never implements itself — segmentio/kafka-go is carried in the
// teacher's go.mod as a domain dependency with no committed caller, so
// this is its one wired use in this module (spec's out-of-scope
// curation UI notification path).
type KafkaTransitionEmitter struct {
	writer *kafka.Writer
}

// NewKafkaTransitionEmitter constructs a writer-backed emitter. Returns
// nil (a valid no-op TransitionEmitter value per the caller's own nil
// check) when cfg.Enabled is false.
func NewKafkaTransitionEmitter(cfg config.KafkaConfig) *KafkaTransitionEmitter {
	if !cfg.Enabled {
		return nil
	}
	return &KafkaTransitionEmitter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Emit publishes one transition event.
func (e *KafkaTransitionEmitter) Emit(ctx context.Context, t Transition) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.ChunkID),
		Value: payload,
	})
}

// Close releases the underlying writer's connections.
func (e *KafkaTransitionEmitter) Close() error {
	if e == nil {
		return nil
	}
	return e.writer.Close()
}
