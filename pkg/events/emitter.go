package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/kafka"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// Publisher writes JSON messages to a broker
type Publisher interface {
	Publish(ctx context.Context, messages ...kafka.OutgoingMessage) error
}

// Emitter publishes events to Kafka keyed by entity id
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) Emit(ctx context.Context, events ...Event) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Emit")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.OutgoingMessage, len(events))
	for i, event := range events {
		messages[i] = kafka.OutgoingMessage{
			Key:   event.EntityID,
			Value: event,
			Headers: map[string]string{
				"event_type":     string(event.EventType),
				"entity_type":    event.EntityType,
				"schema_version": event.SchemaVersion,
			},
		}
	}

	if err := e.publisher.Publish(ctx, messages...); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_count": len(events),
		}).Error("Failed to emit events")
		return err
	}
	return nil
}
