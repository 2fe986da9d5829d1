// Package event provides the in-process domain event bus.
package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/emissor/backend/internal/domain/shared"
)

// InProcessBus dispatches domain events synchronously to subscribed
// handlers. Handler failures are logged, never propagated to the
// publisher: a metrics or notification failure must not fail a lifecycle
// transition.
type InProcessBus struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	all      []shared.EventHandler
	logger   *zap.Logger
	started  bool
}

// NewInProcessBus creates a new event bus
func NewInProcessBus(logger *zap.Logger) *InProcessBus {
	return &InProcessBus{
		handlers: make(map[string][]shared.EventHandler),
		logger:   logger.Named("eventbus"),
	}
}

// Publish delivers events to all matching handlers
func (b *InProcessBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, evt := range events {
		for _, h := range b.all {
			b.dispatch(ctx, h, evt)
		}
		for _, h := range b.handlers[evt.EventType()] {
			b.dispatch(ctx, h, evt)
		}
	}
	return nil
}

func (b *InProcessBus) dispatch(ctx context.Context, h shared.EventHandler, evt shared.DomainEvent) {
	if err := h.Handle(ctx, evt); err != nil {
		b.logger.Warn("event handler failed",
			zap.String("event_type", evt.EventType()),
			zap.String("aggregate_id", evt.AggregateID().String()),
			zap.Error(err))
	}
}

// Subscribe registers a handler; without event types it receives all
// events
func (b *InProcessBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	if len(eventTypes) == 0 {
		b.all = append(b.all, handler)
		return
	}
	for _, t := range eventTypes {
		b.handlers[t] = append(b.handlers[t], handler)
	}
}

// Unsubscribe removes a handler from every subscription list
func (b *InProcessBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, hs := range b.handlers {
		b.handlers[t] = removeHandler(hs, handler)
	}
	b.all = removeHandler(b.all, handler)
}

// Start marks the bus as running
func (b *InProcessBus) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	return nil
}

// Stop marks the bus as stopped
func (b *InProcessBus) Stop(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = false
	return nil
}

func removeHandler(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	out := handlers[:0]
	for _, h := range handlers {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}
