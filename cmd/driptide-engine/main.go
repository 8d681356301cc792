package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/driptide/driptide/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "driptide-engine",
		EnableShellCompletion: true,
		Usage:                 "Run the workflow engine: scheduler, trigger router and ingest sources",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Storage URL: postgres://... or a filesystem root",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the queue event source (disabled if empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-queue",
				Usage:   "Redis list name the queue source consumes",
				Value:   "",
				Sources: cli.EnvVars("EVENT_QUEUE"),
			},
			&cli.IntFlag{
				Name:    "webhook-port",
				Usage:   "Port for the webhook/event receiver",
				Value:   8081,
				Sources: cli.EnvVars("WEBHOOK_PORT"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Scheduler worker pool size",
				Value:   4,
				Sources: cli.EnvVars("WORKERS"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "Wake queue sweep period (capped at 1s)",
				Value:   time.Second,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "node-timeout",
				Usage:   "Per-node execution timeout",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("NODE_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "enable-tracing",
				Usage:   "Export OTLP traces",
				Value:   false,
				Sources: cli.EnvVars("ENABLE_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("driptide-engine").With("engine_id", engineID)
			logger.InfoContext(ctx, "Initializing Driptide Engine")

			engine := NewEngine(engineID, logger, EngineConfig{
				DatabaseURL:   command.String("database-url"),
				EventBus:      command.String("event-bus"),
				RedisURL:      command.String("redis-url"),
				EventQueue:    command.String("event-queue"),
				WebhookPort:   int(command.Int("webhook-port")),
				Workers:       int(command.Int("workers")),
				SweepInterval: command.Duration("sweep-interval"),
				NodeTimeout:   command.Duration("node-timeout"),
				EnableTracing: command.Bool("enable-tracing"),
			})

			return engine.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
