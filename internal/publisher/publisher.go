package publisher

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"

	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/pubsub"
	"github.com/vidinfra/subflow/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventPublisher raises named lifecycle events for external collaborators
// (emails, reports, analytics). Publishing failures are logged, never fatal:
// lifecycle events are advisory, state changes are not rolled back for them.
type EventPublisher interface {
	Publish(ctx context.Context, eventName string, payload any) error
	Close() error
}

type eventPublisher struct {
	pubSub pubsub.PubSub
	topic  string
	logger *logger.Logger
}

func NewEventPublisher(pubSub pubsub.PubSub, topic string, logger *logger.Logger) EventPublisher {
	return &eventPublisher{
		pubSub: pubSub,
		topic:  topic,
		logger: logger,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, eventName string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &types.LifecycleEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LIFECYCLE_EVENT),
		EventName: eventName,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, encoded)
	msg.Metadata.Set("event_name", eventName)

	if err := p.pubSub.Publish(ctx, p.topic, msg); err != nil {
		p.logger.Errorw("failed to publish lifecycle event",
			"error", err,
			"event_id", event.ID,
			"event_name", eventName,
		)
		return err
	}

	p.logger.Debugw("published lifecycle event",
		"event_id", event.ID,
		"event_name", eventName,
	)
	return nil
}

// Close closes the publisher
func (p *eventPublisher) Close() error {
	return p.pubSub.Close()
}
