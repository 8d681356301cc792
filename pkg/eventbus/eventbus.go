// Package eventbus provides the event-driven communication layer between the
// engine and external consumers.
package eventbus

import (
	"context"

	"github.com/driptide/driptide/pkg/events"
)

// Event is anything publishable on the bus.
type Event interface {
	GetType() events.EventType
}

// EventHandler consumes one decoded event.
type EventHandler func(ctx context.Context, event any) error

// EventBus publishes and subscribes lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
	Close() error
	GenerateID() string
}
