// Package schedule turns cron expressions on schedule triggers into inbound
// events. One cron entry is kept per active definition with a schedule
// trigger; entries are re-synced against the store periodically so edits are
// picked up without a restart.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/driptide/driptide/pkg/ingest"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/store"
)

const resyncInterval = 30 * time.Second

// DefaultEventType is used when a schedule trigger does not name its own
// event type.
const DefaultEventType = "schedule.tick"

type entry struct {
	id   cron.EntryID
	expr string
}

// Source drives schedule triggers off a single cron runner.
type Source struct {
	logger *slog.Logger
	store  store.DefinitionStore
	sink   ingest.Sink
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]entry // workflow id -> cron entry
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewSource creates a schedule source delivering into the sink.
func NewSource(logger *slog.Logger, st store.DefinitionStore, sink ingest.Sink) *Source {
	return &Source{
		logger:  logger.With("module", "schedule_source"),
		store:   st,
		sink:    sink,
		cron:    cron.New(),
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
}

// Start syncs entries, starts the cron runner and begins periodic re-syncs.
func (s *Source) Start(ctx context.Context) error {
	if err := s.sync(ctx); err != nil {
		return err
	}

	s.cron.Start()

	s.wg.Add(1)

	go s.resyncLoop(ctx)

	return nil
}

// Stop halts the cron runner and the re-sync loop.
func (s *Source) Stop(ctx context.Context) error {
	close(s.stop)
	s.wg.Wait()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	return nil
}

func (s *Source) resyncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sync(ctx); err != nil {
				s.logger.Error("schedule re-sync failed", "error", err)
			}
		}
	}
}

// sync reconciles cron entries with the active schedule-trigger definitions.
func (s *Source) sync(ctx context.Context) error {
	definitions, err := s.store.Definitions(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]string) // workflow id -> cron expression

	for _, def := range definitions {
		if def.Status != models.WorkflowStatusActive {
			continue
		}

		trigger := def.TriggerNode()
		if trigger == nil || trigger.Subtype != models.TriggerSubtypeSchedule {
			continue
		}

		expr, _ := trigger.Config["cron"].(string)
		if expr == "" {
			continue
		}

		wanted[def.ID] = expr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for workflowID, existing := range s.entries {
		if expr, keep := wanted[workflowID]; keep && expr == existing.expr {
			delete(wanted, workflowID)

			continue
		}

		s.cron.Remove(existing.id)
		delete(s.entries, workflowID)
	}

	for workflowID, expr := range wanted {
		id, err := s.cron.AddFunc(expr, s.tickFunc(ctx, workflowID))
		if err != nil {
			s.logger.Error("invalid cron expression",
				"workflow_id", workflowID, "cron", expr, "error", err)

			continue
		}

		s.entries[workflowID] = entry{id: id, expr: expr}
		s.logger.Info("schedule registered", "workflow_id", workflowID, "cron", expr)
	}

	return nil
}

func (s *Source) tickFunc(ctx context.Context, workflowID string) func() {
	return func() {
		now := time.Now().UTC()

		event := ingest.Event{
			Type:         DefaultEventType,
			WorkflowHint: workflowID,
			Payload: map[string]any{
				"fired_at": now.Format(time.RFC3339),
			},
			Timestamp: now,
		}

		if err := s.sink.Deliver(ctx, event); err != nil {
			s.logger.Error("failed to deliver schedule tick", "workflow_id", workflowID, "error", err)
		}
	}
}
