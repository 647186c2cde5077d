package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// registry holds subscriptions shared by both dispatchers.
type registry struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func newRegistry() registry {
	return registry{listeners: make(map[EventType][]EventHandler)}
}

func (r *registry) Subscribe(eventType EventType, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

func (r *registry) handlers(eventType EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventHandler{}, r.listeners[eventType]...)
}

// deliver runs every handler, logging failures without stopping the others.
func (r *registry) deliver(ctx context.Context, event Event, logger *zap.Logger) {
	for _, handler := range r.handlers(event.Type) {
		if err := handler(ctx, event); err != nil {
			logger.Warn("event handler failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	registry
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher that runs handlers on the publishing goroutine.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{registry: newRegistry(), logger: logger}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.deliver(ctx, event, d.logger)
	return nil
}
