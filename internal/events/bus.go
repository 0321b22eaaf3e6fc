package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// Publisher raises domain events.
type Publisher interface {
	Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error
}

// HandlerFunc consumes one envelope.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Bus is an in-process typed event bus. Publish dispatches synchronously,
// Handle dispatches entries drained from the outbox.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	logger   *logging.Logger
}

func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{handlers: make(map[string][]HandlerFunc), logger: logger}
}

// SubscribeEnvelope registers fn for raw envelopes of eventType.
func (b *Bus) SubscribeEnvelope(eventType string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], fn)
}

// Subscribe registers a typed handler; the event type comes from T's zero value.
func Subscribe[T CanonicalEvent](b *Bus, fn func(ctx context.Context, evt T) error) {
	var zero T
	b.SubscribeEnvelope(zero.EventType(), func(ctx context.Context, env Envelope) error {
		var evt T
		if err := env.Decode(&evt); err != nil {
			return err
		}
		return fn(ctx, evt)
	})
}

// Publish wraps evt in an envelope and dispatches it immediately.
// Handler failures are logged, never returned to the publisher.
func (b *Bus) Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error {
	env, err := NewEnvelope(aggregate, correlationFrom(ctx), evt)
	if err != nil {
		return err
	}
	if err := b.dispatch(ctx, env); err != nil {
		b.logger.Warn("event handler failed", "type", env.EventType, "aggregate", env.Aggregate, "error", err)
	}
	return nil
}

// Handle implements DeliveryHandler. Errors are returned so the outbox retries.
func (b *Bus) Handle(ctx context.Context, entry OutboxEntry) error {
	env, err := entry.Envelope()
	if err != nil {
		return err
	}
	return b.dispatch(ctx, env)
}

type envelopeKey struct{}

// EnvelopeFromContext returns the envelope currently being dispatched. Typed
// handlers use its EventID to make side effects idempotent across redeliveries.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

func (b *Bus) dispatch(ctx context.Context, env Envelope) error {
	ctx = context.WithValue(ctx, envelopeKey{}, env)
	b.mu.RLock()
	handlers := append([]HandlerFunc(nil), b.handlers[env.EventType]...)
	b.mu.RUnlock()

	var errs []error
	for _, fn := range handlers {
		if err := fn(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", env.EventType, err))
		}
	}
	return errors.Join(errs...)
}
