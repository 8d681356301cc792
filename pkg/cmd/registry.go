package cmd

import (
	"log/slog"
	"os"

	"github.com/driptide/driptide/pkg/delivery"
	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/executors/action"
	"github.com/driptide/driptide/pkg/executors/condition"
	"github.com/driptide/driptide/pkg/executors/delay"
	"github.com/driptide/driptide/pkg/executors/loop"
	"github.com/driptide/driptide/pkg/executors/merge"
	"github.com/driptide/driptide/pkg/models"
)

// Delivery endpoint environment variables, one per channel. A channel with
// no endpoint configured gets the log adapter, which only records sends.
var channelEndpoints = map[string]string{
	models.ActionSubtypeEmail:   "EMAIL_DELIVERY_URL",
	models.ActionSubtypeSMS:     "SMS_DELIVERY_URL",
	models.ActionSubtypeWebhook: "WEBHOOK_DELIVERY_URL",
	models.ActionSubtypeCRM:     "CRM_DELIVERY_URL",
}

// NewDeliveryRegistry builds the delivery adapter set from the environment.
func NewDeliveryRegistry(logger *slog.Logger) *delivery.Registry {
	adapters := delivery.NewRegistry()

	for channel, envVar := range channelEndpoints {
		endpoint := os.Getenv(envVar)
		if endpoint == "" {
			adapters.Register(delivery.NewLogAdapter(channel))

			continue
		}

		adapters.Register(delivery.NewHTTPAdapter(channel, endpoint, nil))
		logger.Info("delivery channel configured", "channel", channel, "endpoint", endpoint)
	}

	return adapters
}

// NewExecutorRegistry registers every node executor over the given delivery
// adapters.
func NewExecutorRegistry(logger *slog.Logger, adapters *delivery.Registry) *executors.Registry {
	registry := executors.NewRegistry(logger)

	registry.Register(delay.NewExecutor())
	registry.Register(action.NewExecutor(adapters))
	registry.Register(condition.NewExecutor())
	registry.Register(merge.NewExecutor())
	registry.Register(loop.NewExecutor())

	return registry
}
