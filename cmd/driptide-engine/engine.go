package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/driptide/driptide/pkg/cmd"
	"github.com/driptide/driptide/pkg/ingest/queue"
	"github.com/driptide/driptide/pkg/ingest/schedule"
	"github.com/driptide/driptide/pkg/ingest/webhook"
	"github.com/driptide/driptide/pkg/otelhelper"
	"github.com/driptide/driptide/pkg/router"
	"github.com/driptide/driptide/pkg/scheduler"
)

const shutdownTimeout = 10 * time.Second

// EngineConfig carries the command-line configuration for the engine
// process.
type EngineConfig struct {
	DatabaseURL   string
	EventBus      string
	RedisURL      string
	EventQueue    string
	WebhookPort   int
	Workers       int
	SweepInterval time.Duration
	NodeTimeout   time.Duration
	EnableTracing bool
}

// Engine wires the scheduler, the trigger router and every ingest source
// into a single long-running process.
type Engine struct {
	id     string
	logger *slog.Logger
	config EngineConfig
}

// NewEngine creates a new Engine instance.
func NewEngine(id string, logger *slog.Logger, config EngineConfig) *Engine {
	return &Engine{
		id:     id,
		logger: logger,
		config: config,
	}
}

// Run starts every component and blocks until the process receives an
// interrupt or termination signal.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := cmd.NewStore(runCtx, e.logger, e.config.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(runCtx); err != nil {
			e.logger.Error("Failed to close store", "error", err)
		}
	}()

	bus, err := cmd.NewEventBus(e.config.EventBus, "driptide-engine", e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			e.logger.Error("Failed to close event bus", "error", err)
		}
	}()

	if err := e.setupEventSubscriptions(bus); err != nil {
		return err
	}

	if err := bus.Subscribe(runCtx); err != nil {
		return err
	}

	var tracer trace.Tracer

	if e.config.EnableTracing {
		tracer, err = otelhelper.NewTracer(runCtx, "driptide-engine")
		if err != nil {
			return err
		}
	}

	adapters := cmd.NewDeliveryRegistry(e.logger)
	registry := cmd.NewExecutorRegistry(e.logger, adapters)

	schedOpts := []scheduler.Option{scheduler.WithEventBus(bus)}
	routerOpts := []router.Option{router.WithEventBus(bus)}

	if tracer != nil {
		schedOpts = append(schedOpts, scheduler.WithTracer(tracer))
		routerOpts = append(routerOpts, router.WithTracer(tracer))
	}

	sched := scheduler.NewScheduler(e.logger, st, registry, scheduler.Config{
		Workers:       e.config.Workers,
		SweepInterval: e.config.SweepInterval,
		NodeTimeout:   e.config.NodeTimeout,
	}, schedOpts...)
	sched.Start(runCtx)

	defer sched.Stop()

	rt := router.NewRouter(e.logger, st, sched, routerOpts...)

	receiver := webhook.NewReceiver(e.logger, rt, e.config.WebhookPort)

	go func() {
		if err := receiver.Start(runCtx); err != nil {
			e.logger.Error("Webhook receiver stopped", "error", err)
			cancel()
		}
	}()

	scheduleSource := schedule.NewSource(e.logger, st, rt)
	if err := scheduleSource.Start(runCtx); err != nil {
		return err
	}

	var queueConsumer *queue.Consumer

	if e.config.RedisURL != "" {
		queueConsumer = queue.NewConsumer(e.logger, rt, e.config.RedisURL, e.config.EventQueue)
		if err := queueConsumer.Start(runCtx); err != nil {
			return err
		}
	}

	e.logger.InfoContext(runCtx, "Engine started",
		"webhook_port", e.config.WebhookPort,
		"workers", e.config.Workers,
		"queue_source", queueConsumer != nil)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		e.logger.Info("Received signal, shutting down gracefully...", "signal", sig)
	case <-runCtx.Done():
		e.logger.Info("Context cancelled, shutting down...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownTimeout)
	defer stopCancel()

	if queueConsumer != nil {
		if err := queueConsumer.Stop(stopCtx); err != nil {
			e.logger.Error("Failed to stop queue consumer", "error", err)
		}
	}

	if err := scheduleSource.Stop(stopCtx); err != nil {
		e.logger.Error("Failed to stop schedule source", "error", err)
	}

	if err := receiver.Stop(stopCtx); err != nil {
		e.logger.Error("Failed to stop webhook receiver", "error", err)
	}

	return nil
}
