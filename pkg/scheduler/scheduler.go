// Package scheduler owns the execution state machine: it walks workflow
// graphs node by node, parks time-based suspensions on a wake heap, applies
// retry policy and performs every terminal transition.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/driptide/driptide/pkg/eventbus"
	"github.com/driptide/driptide/pkg/events"
	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/graph"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/otelhelper"
	"github.com/driptide/driptide/pkg/store"
)

const (
	defaultWorkers       = 4
	defaultSweepInterval = time.Second
	defaultNodeTimeout   = 30 * time.Second

	readyBuffer = 1024
)

// Config tunes the scheduler. Zero values fall back to defaults; the sweep
// interval is clamped to at most one second so elapsed wake times are
// observed promptly.
type Config struct {
	Workers       int
	SweepInterval time.Duration
	NodeTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}

	if c.SweepInterval <= 0 || c.SweepInterval > defaultSweepInterval {
		c.SweepInterval = defaultSweepInterval
	}

	if c.NodeTimeout <= 0 {
		c.NodeTimeout = defaultNodeTimeout
	}

	return c
}

// Scheduler runs executions over a worker pool. Tasks for the same execution
// run strictly one at a time, so the execution context has a single owner;
// distinct executions run in parallel.
type Scheduler struct {
	logger   *slog.Logger
	store    store.Store
	bus      eventbus.EventBus
	registry *executors.Registry
	tracer   trace.Tracer
	cfg      Config
	now      func() time.Time

	mu         sync.Mutex
	executions map[string]*executionState
	wake       wakeQueue
	ready      chan task
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// Option customizes a scheduler.
type Option func(*Scheduler)

// WithClock injects the time source, keeping delay and retry math
// deterministic under test.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithTracer enables tracing spans around node execution.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}

// WithEventBus enables lifecycle event publishing.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Scheduler) {
		s.bus = bus
	}
}

// NewScheduler creates a scheduler over the given store and executor
// registry. Call Start before submitting executions.
func NewScheduler(logger *slog.Logger, st store.Store, registry *executors.Registry, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:     logger.With("module", "scheduler"),
		store:      st,
		registry:   registry,
		cfg:        cfg.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
		executions: make(map[string]*executionState),
		ready:      make(chan task, readyBuffer),
		stop:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start launches the worker pool and the wake sweeper.
func (s *Scheduler) Start(ctx context.Context) {
	for range s.cfg.Workers {
		s.wg.Add(1)

		go s.worker(ctx)
	}

	s.wg.Add(1)

	go s.sweeper(ctx)
}

// Stop shuts the scheduler down. In-flight node attempts finish; queued and
// parked work is abandoned.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

// Submit registers a pending execution and enqueues its first nodes. The
// definition must already have passed graph validation.
func (s *Scheduler) Submit(ctx context.Context, def *models.WorkflowDefinition, execution *models.WorkflowExecution) error {
	g := graph.New(def)

	trigger := def.TriggerNode()
	if trigger == nil {
		return models.NewExecutionError(models.ErrCodeGraphInvalid, "", "definition has no trigger node")
	}

	now := s.now()

	if execution.StartTime.IsZero() {
		execution.StartTime = now
	}

	execution.Status = models.ExecutionStatusPending
	ensureContext(def, execution)

	state := newExecutionState(g, execution, now)

	// The trigger itself is matched by the router, not executed; record it
	// as an already-completed step so the audit trail starts at the top.
	end := now
	execution.Steps = append(execution.Steps, &models.ExecutionStep{
		NodeID:    trigger.ID,
		NodeKind:  models.NodeKindTrigger,
		Status:    models.StepStatusCompleted,
		StartTime: now,
		EndTime:   &end,
		Output:    execution.TriggerData,
	})
	execution.Context.NodeOutputs[trigger.ID] = execution.TriggerData

	if err := s.store.SaveExecution(ctx, execution); err != nil {
		return err
	}

	s.mu.Lock()
	s.executions[execution.ID] = state

	for _, edge := range g.OutgoingEdges(trigger.ID) {
		s.addTask(state, task{executionID: execution.ID, nodeID: edge.Target})
	}

	noWork := state.outstanding == 0
	s.mu.Unlock()

	if noWork {
		// Trigger with no successors: nothing to run.
		s.finish(ctx, execution.ID, models.ExecutionStatusCompleted, nil)
	}

	return nil
}

// Cancel requests cancellation. The transition happens at the execution's
// next tick; in-flight node output is discarded.
func (s *Scheduler) Cancel(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.executions[executionID]
	if !ok {
		return store.ErrExecutionNotFound
	}

	state.cancelled = true

	return nil
}

// WaitUntilTerminal blocks until the execution reaches a terminal status or
// the context expires. Unknown executions are treated as already terminal.
func (s *Scheduler) WaitUntilTerminal(ctx context.Context, executionID string) error {
	s.mu.Lock()
	state, ok := s.executions[executionID]
	s.mu.Unlock()

	if !ok {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-state.done:
		return nil
	}
}

// addTask enqueues a task for the execution. Caller holds the mutex.
func (s *Scheduler) addTask(state *executionState, t task) {
	state.outstanding++
	state.queue = append(state.queue, t)
	s.maybeDispatch(state)
}

// resumeTask re-enqueues a previously parked unit; outstanding was already
// counted when the unit parked. Caller holds the mutex.
func (s *Scheduler) resumeTask(state *executionState, t task) {
	state.queue = append(state.queue, t)
	s.maybeDispatch(state)
}

// maybeDispatch hands the execution's next queued task to the worker pool if
// no task for it is currently running. Caller holds the mutex.
func (s *Scheduler) maybeDispatch(state *executionState) {
	if state.running || len(state.queue) == 0 {
		return
	}

	next := state.queue[0]
	state.queue = state.queue[1:]
	state.running = true

	select {
	case s.ready <- next:
	default:
		// Buffer full; hand off without blocking the caller.
		go func() {
			select {
			case s.ready <- next:
			case <-s.stop:
			}
		}()
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case t := <-s.ready:
			s.runTask(ctx, t)
		}
	}
}

func (s *Scheduler) sweeper(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep promotes elapsed wake entries to ready and finalizes parked
// executions that were cancelled or ran out of wall-clock budget. This is
// the engine's only polling point.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()

	type terminalReq struct {
		executionID string
		status      models.ExecutionStatus
		err         *models.ExecutionError
	}

	var terminals []terminalReq

	s.mu.Lock()

	for s.wake.Len() > 0 && !s.wake[0].at.After(now) {
		item, ok := heap.Pop(&s.wake).(*wakeItem)
		if !ok {
			continue
		}

		state, live := s.executions[item.task.executionID]
		if !live {
			continue
		}

		s.resumeTask(state, item.task)
	}

	for id, state := range s.executions {
		if state.running || len(state.queue) > 0 {
			continue // the running task observes cancellation and timeout itself
		}

		if state.cancelled {
			execErr := models.NewExecutionError(models.ErrCodeCancelled, "", "execution cancelled by request")
			terminals = append(terminals, terminalReq{id, models.ExecutionStatusCancelled, execErr})

			continue
		}

		if !state.deadline.IsZero() && now.After(state.deadline) {
			execErr := models.NewExecutionError(models.ErrCodeTimeout, "", "execution exceeded max execution time")
			terminals = append(terminals, terminalReq{id, models.ExecutionStatusTimeout, execErr})
		}
	}

	s.mu.Unlock()

	for _, req := range terminals {
		s.finish(ctx, req.executionID, req.status, req.err)
	}
}

//nolint:cyclop // The tick algorithm is one state machine; splitting it obscures the transitions.
func (s *Scheduler) runTask(ctx context.Context, t task) {
	s.mu.Lock()

	state, ok := s.executions[t.executionID]
	if !ok {
		s.mu.Unlock()

		return
	}

	now := s.now()

	if state.cancelled {
		s.mu.Unlock()
		s.finish(ctx, t.executionID, models.ExecutionStatusCancelled,
			models.NewExecutionError(models.ErrCodeCancelled, t.nodeID, "execution cancelled by request"))

		return
	}

	if !state.deadline.IsZero() && now.After(state.deadline) {
		s.mu.Unlock()
		s.finish(ctx, t.executionID, models.ExecutionStatusTimeout,
			models.NewExecutionError(models.ErrCodeTimeout, t.nodeID, "execution exceeded max execution time"))

		return
	}

	if state.execution.Status == models.ExecutionStatusPending {
		state.execution.Status = models.ExecutionStatusRunning
	}

	node := state.graph.Node(t.nodeID)
	s.mu.Unlock()

	if node == nil {
		s.finish(ctx, t.executionID, models.ExecutionStatusFailed,
			models.NewExecutionError(models.ErrCodeGraphInvalid, t.nodeID, "edge targets unknown node"))

		return
	}

	if t.resume {
		s.completeWokenStep(ctx, state, node, t)

		return
	}

	started := s.now()
	result := s.invoke(ctx, state, node, t)

	s.handleResult(ctx, state, node, t, started, result)
}

// invoke runs one node attempt with per-node timeout and panic recovery.
// End nodes have no executor: they complete with the branch's last output.
func (s *Scheduler) invoke(ctx context.Context, state *executionState, node *models.WorkflowNode, t task) (result executors.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("node executor panicked",
				"execution_id", t.executionID, "node_id", node.ID, "panic", r)
			result = executors.Failed(models.NewRecoverableError(
				models.ErrCodeNodePanic, node.ID, fmt.Sprintf("node executor panicked: %v", r)))
		}
	}()

	switch node.Kind {
	case models.NodeKindEnd:
		return executors.Completed(state.lastOutput)
	case models.NodeKindTrigger:
		return executors.Failed(models.NewExecutionError(
			models.ErrCodeGraphInvalid, node.ID, "trigger node reached mid-graph"))
	}

	executor, err := s.registry.ExecutorFor(node.Kind)
	if err != nil {
		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, node.ID, err.Error()))
	}

	nodeCtx, cancel := context.WithTimeout(ctx, s.cfg.NodeTimeout)
	defer cancel()

	if s.tracer != nil {
		var span trace.Span

		nodeCtx, span = otelhelper.StartSpan(nodeCtx, s.tracer, "scheduler.execute_node",
			attribute.String(otelhelper.WorkflowIDKey, state.execution.WorkflowID),
			attribute.String(otelhelper.ExecutionIDKey, t.executionID),
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeKindKey, string(node.Kind)),
		)
		defer span.End()
	}

	return executor.Execute(nodeCtx, executors.Request{
		Node:    node,
		Context: state.execution.Context,
		Inbound: state.graph.IncomingEdges(node.ID),
		Now:     s.now(),
	}, s.logger)
}

//nolint:cyclop,funlen // One transition table; see runTask.
func (s *Scheduler) handleResult(ctx context.Context, state *executionState, node *models.WorkflowNode, t task, started time.Time, result executors.Result) {
	now := s.now()

	step := &models.ExecutionStep{
		NodeID:       node.ID,
		NodeKind:     node.Kind,
		StartTime:    started,
		Output:       result.Output,
		RetryAttempt: t.attempt,
	}

	s.mu.Lock()

	state.execution.Steps = append(state.execution.Steps, step)

	switch {
	case result.Suspended():
		step.Status = models.StepStatusRunning
		step.WakeAt = result.WakeAt

		heap.Push(&s.wake, &wakeItem{
			at:   *result.WakeAt,
			task: task{executionID: t.executionID, nodeID: node.ID, resume: true},
		})

		// The parked unit keeps the execution outstanding. The running flag
		// stays up until the persist returns: the sweeper must not finalize
		// an execution whose record is still being written.
		s.mu.Unlock()
		s.persist(ctx, state.execution)

		s.mu.Lock()
		s.settleTask(state, false)
		s.mu.Unlock()

		return

	case result.Failure():
		step.Status = models.StepStatusFailed
		step.EndTime = &now
		step.Error = result.Err

		mode := node.ErrorHandling
		if mode == "" {
			mode = state.settings.ErrorHandling
		}

		if mode == "" {
			mode = models.ErrorHandlingStop
		}

		stepEv := stepEvent(state.execution, step, started, now)

		if mode == models.ErrorHandlingRetry && result.Err.Recoverable && t.attempt < state.settings.RetryAttempts {
			heap.Push(&s.wake, &wakeItem{
				at:   now.Add(state.settings.RetryDelayDuration()),
				task: task{executionID: t.executionID, nodeID: node.ID, attempt: t.attempt + 1},
			})

			s.settleTask(state, false)
			s.mu.Unlock()
			s.publish(ctx, state.execution.WorkflowID, stepEv)

			return
		}

		if mode == models.ErrorHandlingContinue {
			s.logger.Warn("node failed, continuing per error handling policy",
				"execution_id", t.executionID, "node_id", node.ID, "error", result.Err.Message)
			state.execution.Context.NodeOutputs[node.ID] = nil
			s.enqueueSuccessors(state, node, "")
			finished := s.settleTask(state, true)
			s.mu.Unlock()
			s.publish(ctx, state.execution.WorkflowID, stepEv)

			if finished {
				s.finish(ctx, t.executionID, models.ExecutionStatusCompleted, nil)
			}

			return
		}

		execErr := result.Err
		s.mu.Unlock()
		s.publish(ctx, state.execution.WorkflowID, stepEv)
		s.finish(ctx, t.executionID, models.ExecutionStatusFailed, execErr)

		return

	default: // completed
		step.Status = models.StepStatusCompleted
		step.EndTime = &now

		state.execution.Context.NodeOutputs[node.ID] = result.Output
		if result.Output != nil {
			state.lastOutput = result.Output
		}

		if node.Kind == models.NodeKindMerge {
			// A later loop iteration may gate on this merge again.
			state.mergeDispatched[node.ID] = false
		}

		stepEv := stepEvent(state.execution, step, started, now)
		s.enqueueSuccessors(state, node, result.Branch)
		finished := s.settleTask(state, true)
		s.mu.Unlock()
		s.publish(ctx, state.execution.WorkflowID, stepEv)

		if finished {
			s.finish(ctx, t.executionID, models.ExecutionStatusCompleted, nil)
		}
	}
}

// completeWokenStep finishes a suspended delay step whose wake time elapsed
// and releases its successors.
func (s *Scheduler) completeWokenStep(ctx context.Context, state *executionState, node *models.WorkflowNode, t task) {
	now := s.now()

	s.mu.Lock()

	var stepEv eventbus.Event

	step := state.lastRunningStep(node.ID)
	if step != nil {
		step.Status = models.StepStatusCompleted
		step.EndTime = &now

		stepEv = stepEvent(state.execution, step, step.StartTime, now)
	}

	state.execution.Context.NodeOutputs[node.ID] = nil
	s.enqueueSuccessors(state, node, "")
	finished := s.settleTask(state, true)
	s.mu.Unlock()

	if stepEv != nil {
		s.publish(ctx, state.execution.WorkflowID, stepEv)
	}

	if finished {
		s.finish(ctx, t.executionID, models.ExecutionStatusCompleted, nil)
	}
}

// enqueueSuccessors fans out along the node's outgoing edges in declaration
// order, honoring the selected branch handle and merge gating. Caller holds
// the mutex.
func (s *Scheduler) enqueueSuccessors(state *executionState, node *models.WorkflowNode, branch string) {
	for _, edge := range state.graph.OutgoingEdges(node.ID) {
		if branch != "" && edge.SourceHandle != branch {
			continue
		}

		target := state.graph.Node(edge.Target)
		if target != nil && target.Kind == models.NodeKindMerge {
			if !state.mergeReady(target, edge.ID) {
				continue
			}
		}

		s.addTask(state, task{executionID: state.execution.ID, nodeID: edge.Target})
	}
}

// settleTask marks the current task finished and dispatches the execution's
// next queued task. It reports whether nothing remains outstanding, in which
// case the caller completes the execution after releasing the mutex. Caller
// holds the mutex; decrement is false when the unit parked on the wake heap
// instead of finishing.
func (s *Scheduler) settleTask(state *executionState, decrement bool) bool {
	if decrement {
		state.outstanding--
	}

	state.running = false

	if state.outstanding == 0 {
		return true
	}

	s.maybeDispatch(state)

	return false
}

// finish performs a terminal transition exactly once: persists the record,
// publishes the lifecycle event and forgets the execution.
func (s *Scheduler) finish(ctx context.Context, executionID string, status models.ExecutionStatus, execErr *models.ExecutionError) {
	now := s.now()

	s.mu.Lock()

	state, ok := s.executions[executionID]
	if !ok {
		s.mu.Unlock()

		return
	}

	delete(s.executions, executionID)

	execution := state.execution
	execution.Status = status
	execution.EndTime = &now
	execution.Error = execErr

	if status == models.ExecutionStatusCompleted {
		execution.Result = state.lastOutput
	}

	timeoutLimit := state.settings.MaxExecutionDuration()

	s.mu.Unlock()

	s.persist(ctx, execution)
	s.publishTerminal(ctx, execution, now, timeoutLimit)

	// Waiters observe the persisted terminal record.
	close(state.done)

	s.logger.Info("execution finished",
		"execution_id", executionID,
		"workflow_id", execution.WorkflowID,
		"status", status,
		"steps", len(execution.Steps))
}

func (s *Scheduler) persist(ctx context.Context, execution *models.WorkflowExecution) {
	if err := s.store.SaveExecution(ctx, execution); err != nil {
		s.logger.Error("failed to persist execution", "execution_id", execution.ID, "error", err)
	}
}

// stepEvent builds the StepCompleted lifecycle event for a finished attempt.
// Construction is cheap and safe under the mutex; publishing is not.
func stepEvent(execution *models.WorkflowExecution, step *models.ExecutionStep, started, ended time.Time) eventbus.Event {
	return events.StepCompleted{
		BaseEvent:    events.NewBaseEvent(events.StepCompletedEvent, execution.WorkflowID),
		ExecutionID:  execution.ID,
		NodeID:       step.NodeID,
		NodeKind:     step.NodeKind,
		Status:       step.Status,
		RetryAttempt: step.RetryAttempt,
		DurationMs:   ended.Sub(started).Milliseconds(),
	}
}

// publish sends an event on the bus, if one is configured. Never called with
// the mutex held.
func (s *Scheduler) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(ctx, key, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (s *Scheduler) publishTerminal(ctx context.Context, execution *models.WorkflowExecution, ended time.Time, timeoutLimit time.Duration) {
	if s.bus == nil {
		return
	}

	duration := ended.Sub(execution.StartTime).Milliseconds()

	var event eventbus.Event

	switch execution.Status {
	case models.ExecutionStatusCompleted:
		event = events.ExecutionCompleted{
			BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
			ExecutionID:   execution.ID,
			DurationMs:    duration,
			StepsRecorded: len(execution.Steps),
			Result:        execution.Result,
		}
	case models.ExecutionStatusFailed:
		event = events.ExecutionFailed{
			BaseEvent:     events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
			ExecutionID:   execution.ID,
			DurationMs:    duration,
			Error:         execution.Error,
			StepsRecorded: len(execution.Steps),
		}
	case models.ExecutionStatusCancelled:
		event = events.ExecutionCancelled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			DurationMs:  duration,
		}
	case models.ExecutionStatusTimeout:
		stuck := ""
		if execution.Error != nil {
			stuck = execution.Error.NodeID
		}

		event = events.ExecutionTimeout{
			BaseEvent:      events.NewBaseEvent(events.ExecutionTimeoutEvent, execution.WorkflowID),
			ExecutionID:    execution.ID,
			DurationMs:     duration,
			TimeoutLimitMs: timeoutLimit.Milliseconds(),
			StuckNode:      stuck,
		}
	default:
		return
	}

	if err := s.bus.Publish(ctx, execution.WorkflowID, event); err != nil {
		s.logger.Error("failed to publish terminal event", "execution_id", execution.ID, "error", err)
	}
}

// ensureContext initializes the execution context, resolving definition
// variables into it.
func ensureContext(def *models.WorkflowDefinition, execution *models.WorkflowExecution) {
	if execution.Context == nil {
		execution.Context = &models.ExecutionContext{
			ExecutionID: execution.ID,
			WorkflowID:  execution.WorkflowID,
		}
	}

	if execution.Context.TriggerData == nil {
		execution.Context.TriggerData = execution.TriggerData
	}

	if execution.Context.Variables == nil {
		execution.Context.Variables = make(map[string]any)
	}

	if execution.Context.NodeOutputs == nil {
		execution.Context.NodeOutputs = make(map[string]any)
	}

	for _, variable := range def.Variables {
		if _, set := execution.Context.Variables[variable.Name]; set {
			continue
		}

		value := variable.Value
		if value == nil {
			value = variable.DefaultValue
		}

		execution.Context.Variables[variable.Name] = value
	}
}
