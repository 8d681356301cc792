package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/driptide/driptide/pkg/cmd"
	"github.com/driptide/driptide/pkg/log"
	"github.com/driptide/driptide/pkg/router"
	"github.com/driptide/driptide/pkg/scheduler"
)

const defaultPort = 9090

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "driptide-api",
		Usage:                 "Create and manage workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Driptide API")

			st, err := cmd.NewStore(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := st.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close store", "error", err)
				}
			}()

			bus, err := cmd.NewEventBus(command.String("event-bus"), "driptide-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			// The API embeds a scheduler and router so ingested events and
			// cancellations are served in-process.
			adapters := cmd.NewDeliveryRegistry(logger)
			registry := cmd.NewExecutorRegistry(logger, adapters)

			sched := scheduler.NewScheduler(logger, st, registry, scheduler.Config{}, scheduler.WithEventBus(bus))
			sched.Start(ctx)

			defer sched.Stop()

			rt := router.NewRouter(logger, st, sched, router.WithEventBus(bus))

			api := NewAPI(logger, st, rt, sched)

			err = api.Start(int(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
