package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"swimnotify/pkg/whatsapp/types"
)

// ErrNoHandler is returned for webhook events nobody subscribed to
var ErrNoHandler = errors.New("no handler registered for webhook event")

// EventHandlerFunc handles one webhook event
type EventHandlerFunc func(ctx context.Context, event *types.WebhookEvent) error

// WebhookRouter dispatches WAHA webhook events by name
type WebhookRouter struct {
	handlers map[string]EventHandlerFunc
	mu       sync.RWMutex
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{handlers: make(map[string]EventHandlerFunc)}
}

func (wr *WebhookRouter) Register(eventType string, handler EventHandlerFunc) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.handlers[eventType] = handler
}

func (wr *WebhookRouter) Handle(ctx context.Context, event *types.WebhookEvent) error {
	if event == nil {
		return fmt.Errorf("nil webhook event")
	}

	wr.mu.RLock()
	handler, ok := wr.handlers[event.Event]
	wr.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, event.Event)
	}
	return handler(ctx, event)
}
