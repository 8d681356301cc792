package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeoutSeconds = 30

// HTTPAdapter delivers payloads by POSTing them as JSON to a provider
// endpoint. It backs API-based channels: transactional email providers, SMS
// gateways and CRM webhooks all speak this shape.
type HTTPAdapter struct {
	channel  string
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewHTTPAdapter creates an adapter for the channel posting to the endpoint.
func NewHTTPAdapter(channel, endpoint string, headers map[string]string) *HTTPAdapter {
	return &HTTPAdapter{
		channel:  channel,
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
	}
}

// ID returns the channel identifier.
func (a *HTTPAdapter) ID() string {
	return a.channel
}

// Send posts the fields to the provider. 429 and 5xx responses map to
// transient errors, other non-2xx responses to permanent ones.
func (a *HTTPAdapter) Send(ctx context.Context, fields map[string]any, logger *slog.Logger) (map[string]any, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, NewPermanentError(a.channel, fmt.Sprintf("payload not serializable: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, NewPermanentError(a.channel, fmt.Sprintf("invalid request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, NewTransientError(a.channel, fmt.Sprintf("provider unreachable: %v", err))
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close provider response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewTransientError(a.channel, fmt.Sprintf("failed to read provider response: %v", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Provider accepted the payload.
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, NewTransientError(a.channel, fmt.Sprintf("provider returned %d", resp.StatusCode))
	default:
		return nil, NewPermanentError(a.channel, fmt.Sprintf("provider rejected payload with %d", resp.StatusCode))
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err == nil {
		output["response"] = decoded
	} else if len(body) > 0 {
		output["response"] = string(body)
	}

	return output, nil
}
