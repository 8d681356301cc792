package delivery

import (
	"context"
	"log/slog"
)

// LogAdapter writes the rendered payload to the logger instead of an external
// provider. Used in development and as the deterministic stub in tests.
type LogAdapter struct {
	channel string
}

// NewLogAdapter creates a log-only adapter for the channel.
func NewLogAdapter(channel string) *LogAdapter {
	return &LogAdapter{channel: channel}
}

// ID returns the channel identifier.
func (a *LogAdapter) ID() string {
	return a.channel
}

// Send logs the fields and reports success.
func (a *LogAdapter) Send(ctx context.Context, fields map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger.InfoContext(ctx, "Delivering payload", "channel", a.channel, "fields", fields)

	return map[string]any{"delivered": true, "channel": a.channel}, nil
}
