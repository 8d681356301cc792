// Package delivery defines the pluggable adapter interface action nodes use
// to hand rendered payloads to external channels (email, SMS, CRM, webhook).
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Adapter delivers a resolved action payload to an external channel. The
// engine treats adapters as opaque: transport, authentication and provider
// retries live behind this interface.
type Adapter interface {
	// ID returns the channel identifier actions reference ("email", "sms"...).
	ID() string

	// Send delivers the rendered fields and returns provider output.
	Send(ctx context.Context, fields map[string]any, logger *slog.Logger) (map[string]any, error)
}

// Error is a delivery failure. Recoverable marks transient provider faults
// (rate limits, 5xx) that the scheduler may retry; permanent faults (invalid
// address, rejected payload) are not retried regardless of remaining
// attempts.
type Error struct {
	Channel     string
	Message     string
	Recoverable bool
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Recoverable {
		kind = "transient"
	}

	return fmt.Sprintf("%s delivery failed (%s): %s", e.Channel, kind, e.Message)
}

// NewTransientError marks a retriable delivery failure.
func NewTransientError(channel, message string) *Error {
	return &Error{Channel: channel, Message: message, Recoverable: true}
}

// NewPermanentError marks a delivery failure that must not be retried.
func NewPermanentError(channel, message string) *Error {
	return &Error{Channel: channel, Message: message}
}

// IsRecoverable reports whether the error is a transient delivery failure.
// Unknown error types default to recoverable so unexpected transport faults
// stay eligible for retry.
func IsRecoverable(err error) bool {
	var deliveryErr *Error
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Recoverable
	}

	return true
}

// Registry maps channel ids to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its channel id, replacing any previous one.
func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.ID()] = adapter
}

// Adapter returns the adapter for the channel.
func (r *Registry) Adapter(channel string) (Adapter, error) {
	adapter, ok := r.adapters[channel]
	if !ok {
		return nil, fmt.Errorf("delivery channel %q not registered", channel)
	}

	return adapter, nil
}
