// Package delay implements the delay node executor: fixed, dynamic and
// schedule subtypes, all of which suspend the execution rather than block.
package delay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/models"
)

const (
	businessDayStartHour = 9
	businessDayEndHour   = 17
)

// Executor computes wake times for delay nodes.
type Executor struct{}

// NewExecutor creates the delay executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Kind returns the node kind this executor serves.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindDelay
}

// Execute resolves the wake time for the node's subtype and suspends. A wake
// time already in the past wakes immediately (the scheduler's sweep picks it
// up on its next pass).
func (e *Executor) Execute(ctx context.Context, req executors.Request, logger *slog.Logger) executors.Result {
	var cfg models.DelayConfig
	if err := models.DecodeConfig(req.Node, &cfg); err != nil {
		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error()))
	}

	var (
		wakeAt time.Time
		result *models.ExecutionError
	)

	switch req.Node.Subtype {
	case models.DelaySubtypeFixed:
		wakeAt, result = fixedWake(req.Node.ID, cfg, req.Now)
	case models.DelaySubtypeDynamic:
		wakeAt, result = dynamicWake(req.Node.ID, cfg, req.Context, req.Now)
	case models.DelaySubtypeSchedule:
		wakeAt, result = scheduleWake(req.Node.ID, cfg, req.Now)
	default:
		result = models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID,
			fmt.Sprintf("unknown delay subtype %q", req.Node.Subtype))
	}

	if result != nil {
		return executors.Failed(result)
	}

	if cfg.BusinessHoursOnly || cfg.SkipWeekends {
		wakeAt = adjustForward(wakeAt, cfg)
	}

	logger.DebugContext(ctx, "Delay node suspending execution",
		"node_id", req.Node.ID, "subtype", req.Node.Subtype, "wake_at", wakeAt)

	return executors.Suspend(wakeAt)
}

func fixedWake(nodeID string, cfg models.DelayConfig, now time.Time) (time.Time, *models.ExecutionError) {
	seconds, err := normalizeSeconds(cfg.Duration, cfg.Unit)
	if err != nil {
		return time.Time{}, models.NewExecutionError(models.ErrCodeInvalidConfig, nodeID, err.Error())
	}

	return now.Add(time.Duration(seconds * float64(time.Second))), nil
}

func dynamicWake(nodeID string, cfg models.DelayConfig, execCtx *models.ExecutionContext, now time.Time) (time.Time, *models.ExecutionError) {
	if cfg.DurationField == "" {
		return time.Time{}, models.NewExecutionError(models.ErrCodeInvalidDelayField, nodeID, "dynamic delay has no duration_field")
	}

	raw, found := execCtx.Field(cfg.DurationField)
	if !found {
		return time.Time{}, models.NewExecutionError(models.ErrCodeInvalidDelayField, nodeID,
			fmt.Sprintf("field %q not present in execution context", cfg.DurationField))
	}

	duration, ok := numeric(raw)
	if !ok {
		return time.Time{}, models.NewExecutionError(models.ErrCodeInvalidDelayField, nodeID,
			fmt.Sprintf("field %q is not numeric", cfg.DurationField))
	}

	seconds, err := normalizeSeconds(duration, cfg.Unit)
	if err != nil {
		return time.Time{}, models.NewExecutionError(models.ErrCodeInvalidConfig, nodeID, err.Error())
	}

	return now.Add(time.Duration(seconds * float64(time.Second))), nil
}

func scheduleWake(nodeID string, cfg models.DelayConfig, now time.Time) (time.Time, *models.ExecutionError) {
	if cfg.ScheduleAt == "" {
		return time.Time{}, models.NewExecutionError(models.ErrCodeInvalidConfig, nodeID, "schedule delay has no schedule_at")
	}

	location := time.UTC

	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return time.Time{}, models.NewExecutionError(models.ErrCodeInvalidConfig, nodeID,
				fmt.Sprintf("unknown timezone %q", cfg.Timezone))
		}

		location = loc
	}

	wakeAt, err := time.ParseInLocation(time.RFC3339, cfg.ScheduleAt, location)
	if err != nil {
		return time.Time{}, models.NewExecutionError(models.ErrCodeInvalidConfig, nodeID,
			fmt.Sprintf("schedule_at %q is not RFC3339", cfg.ScheduleAt))
	}

	// A schedule already in the past wakes immediately.
	if wakeAt.Before(now) {
		return now, nil
	}

	return wakeAt, nil
}

// normalizeSeconds converts a duration in the configured unit to seconds.
// Missing unit defaults to seconds.
func normalizeSeconds(duration float64, unit string) (float64, error) {
	if duration < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %v", duration)
	}

	switch unit {
	case "", "seconds":
		return duration, nil
	case "minutes":
		return duration * 60, nil
	case "hours":
		return duration * 3600, nil
	case "days":
		return duration * 86400, nil
	default:
		return 0, fmt.Errorf("unknown duration unit %q", unit)
	}
}

// adjustForward pushes a wake time forward until it lands inside the
// configured delivery window. Skipping a weekend keeps the time of day;
// only the business-hours window moves the wake to the next opening.
func adjustForward(wakeAt time.Time, cfg models.DelayConfig) time.Time {
	for {
		if cfg.SkipWeekends || cfg.BusinessHoursOnly {
			switch wakeAt.Weekday() {
			case time.Saturday:
				wakeAt = nextWeekday(wakeAt.AddDate(0, 0, 2), cfg)

				continue
			case time.Sunday:
				wakeAt = nextWeekday(wakeAt.AddDate(0, 0, 1), cfg)

				continue
			case time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday:
			}
		}

		if cfg.BusinessHoursOnly {
			if wakeAt.Hour() < businessDayStartHour {
				wakeAt = startOfBusinessDay(wakeAt)

				continue
			}

			if wakeAt.Hour() >= businessDayEndHour {
				wakeAt = startOfBusinessDay(wakeAt.AddDate(0, 0, 1))

				continue
			}
		}

		return wakeAt
	}
}

// nextWeekday lands a weekend-skipped wake on the following weekday: at the
// window opening when business hours are enforced, otherwise at the original
// time of day.
func nextWeekday(t time.Time, cfg models.DelayConfig) time.Time {
	if cfg.BusinessHoursOnly {
		return startOfBusinessDay(t)
	}

	return t
}

func startOfBusinessDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), businessDayStartHour, 0, 0, 0, t.Location())
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
