package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emissor/backend/internal/domain/shared"
)

type capturingHandler struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
	err    error
}

func (h *capturingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *capturingHandler) EventTypes() []string {
	return h.types
}

func (h *capturingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func testEvent(eventType string) shared.DomainEvent {
	e := shared.NewBaseDomainEvent(eventType, "FiscalDocument", uuid.New(), uuid.New())
	return &e
}

func TestInProcessBus_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("routes by event type", func(t *testing.T) {
		bus := NewInProcessBus(zap.NewNop())
		authorized := &capturingHandler{types: []string{"fiscal.document.authorized"}}
		rejected := &capturingHandler{types: []string{"fiscal.document.rejected"}}
		bus.Subscribe(authorized)
		bus.Subscribe(rejected)

		require.NoError(t, bus.Publish(ctx, testEvent("fiscal.document.authorized")))

		assert.Equal(t, 1, authorized.count())
		assert.Equal(t, 0, rejected.count())
	})

	t.Run("a handler without types receives everything", func(t *testing.T) {
		bus := NewInProcessBus(zap.NewNop())
		all := &capturingHandler{}
		bus.Subscribe(all)

		require.NoError(t, bus.Publish(ctx,
			testEvent("fiscal.document.created"),
			testEvent("fiscal.document.authorized")))

		assert.Equal(t, 2, all.count())
	})

	t.Run("handler failures never reach the publisher", func(t *testing.T) {
		bus := NewInProcessBus(zap.NewNop())
		failing := &capturingHandler{types: []string{"fiscal.document.created"}, err: errors.New("boom")}
		healthy := &capturingHandler{types: []string{"fiscal.document.created"}}
		bus.Subscribe(failing)
		bus.Subscribe(healthy)

		err := bus.Publish(ctx, testEvent("fiscal.document.created"))
		require.NoError(t, err)
		assert.Equal(t, 1, healthy.count(), "later handlers still run")
	})

	t.Run("unsubscribed handlers stop receiving", func(t *testing.T) {
		bus := NewInProcessBus(zap.NewNop())
		handler := &capturingHandler{types: []string{"fiscal.document.created"}}
		bus.Subscribe(handler)

		require.NoError(t, bus.Publish(ctx, testEvent("fiscal.document.created")))
		bus.Unsubscribe(handler)
		require.NoError(t, bus.Publish(ctx, testEvent("fiscal.document.created")))

		assert.Equal(t, 1, handler.count())
	})
}
