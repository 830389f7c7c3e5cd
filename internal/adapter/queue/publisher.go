package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

// InteractionPublisher writes interaction events as JSON to one subject.
type InteractionPublisher struct {
	queue   MessageQueue
	subject string
}

func NewInteractionPublisher(q MessageQueue, subject string) *InteractionPublisher {
	return &InteractionPublisher{queue: q, subject: subject}
}

func (p *InteractionPublisher) PublishInteraction(ctx context.Context, event domain.InteractionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal interaction event: %w", err)
	}
	return p.queue.Publish(p.subject, data)
}

// ConsumeInteractions subscribes to subject and hands every decoded event to
// handle. Undecodable messages are logged and skipped.
func ConsumeInteractions(q MessageQueue, subject string, log *zap.Logger, handle func(domain.InteractionEvent) error) error {
	return q.Subscribe(subject, func(data []byte) error {
		var event domain.InteractionEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Warn("Dropping undecodable interaction event", zap.Error(err))
			return nil
		}
		return handle(event)
	})
}

// FanOut publishes every event to all publishers and joins their errors.
type FanOut []ports.EventPublisher

func (f FanOut) PublishInteraction(ctx context.Context, event domain.InteractionEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishInteraction(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ ports.EventPublisher = (*InteractionPublisher)(nil)
	_ ports.EventPublisher = FanOut(nil)
	_ MessageQueue         = (*NATSQueue)(nil)
	_ MessageQueue         = (*RabbitMQQueue)(nil)
)
