package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driptide/driptide/pkg/delivery"
	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/executors/action"
	"github.com/driptide/driptide/pkg/executors/condition"
	delayexec "github.com/driptide/driptide/pkg/executors/delay"
	loopexec "github.com/driptide/driptide/pkg/executors/loop"
	mergeexec "github.com/driptide/driptide/pkg/executors/merge"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/store/file"
	"github.com/driptide/driptide/pkg/testutil"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

// fakeClock is a mutable time source shared by the scheduler and the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// countingAdapter delivers successfully after a configurable number of
// transient failures.
type countingAdapter struct {
	mu       sync.Mutex
	channel  string
	failures int // remaining failures before success; -1 fails forever
	calls    int
}

func (a *countingAdapter) ID() string { return a.channel }

func (a *countingAdapter) Send(ctx context.Context, fields map[string]any, logger *slog.Logger) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++

	if a.failures != 0 {
		if a.failures > 0 {
			a.failures--
		}

		return nil, delivery.NewTransientError(a.channel, "provider unavailable")
	}

	return map[string]any{"status": "sent"}, nil
}

func (a *countingAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.calls
}

type testEnv struct {
	scheduler *Scheduler
	store     *file.Store
	clock     *fakeClock
	adapter   *countingAdapter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock()
	st := file.NewStore(t.TempDir())
	adapter := &countingAdapter{channel: "email"}

	adapters := delivery.NewRegistry()
	adapters.Register(adapter)

	registry := executors.NewRegistry(testLogger)
	registry.Register(delayexec.NewExecutor())
	registry.Register(action.NewExecutor(adapters))
	registry.Register(condition.NewExecutor())
	registry.Register(mergeexec.NewExecutor())
	registry.Register(loopexec.NewExecutor())

	scheduler := NewScheduler(testLogger, st, registry, Config{
		Workers:       2,
		SweepInterval: 5 * time.Millisecond,
	}, WithClock(clock.Now))

	scheduler.Start(context.Background())
	t.Cleanup(scheduler.Stop)

	return &testEnv{scheduler: scheduler, store: st, clock: clock, adapter: adapter}
}

func (e *testEnv) run(t *testing.T, def *models.WorkflowDefinition, triggerData map[string]any) *models.WorkflowExecution {
	t.Helper()

	execution := testutil.CreateTestExecution(def, triggerData)
	execution.StartTime = e.clock.Now()

	require.NoError(t, e.scheduler.Submit(context.Background(), def, execution))

	return execution
}

func (e *testEnv) waitTerminal(t *testing.T, executionID string) *models.WorkflowExecution {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, e.scheduler.WaitUntilTerminal(ctx, executionID))

	execution, err := e.store.ExecutionByID(context.Background(), executionID)
	require.NoError(t, err)

	return execution
}

func emailNode(id string) *models.WorkflowNode {
	return testutil.CreateTestNode(testutil.WithID(id))
}

func endNode(id string) *models.WorkflowNode {
	return testutil.CreateTestNode(
		testutil.WithID(id),
		testutil.WithKind(models.NodeKindEnd, ""),
		testutil.WithConfig(map[string]any{}),
	)
}

func TestScheduler_LinearWorkflowCompletes(t *testing.T) {
	env := newTestEnv(t)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(emailNode("send"), endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "send"),
			testutil.Edge("e2", "send", "end"),
		),
	)

	execution := env.run(t, def, map[string]any{"contact": map[string]any{"email": "ada@example.com"}})
	final := env.waitTerminal(t, execution.ID)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	require.NotNil(t, final.EndTime)
	assert.Equal(t, 1, env.adapter.Calls())

	// Trigger, action and end each record one step.
	require.Len(t, final.Steps, 3)
	assert.Equal(t, "trigger", final.Steps[0].NodeID)
	assert.Equal(t, models.NodeKindTrigger, final.Steps[0].NodeKind)
	assert.Equal(t, "send", final.Steps[1].NodeID)
	assert.Equal(t, "end", final.Steps[2].NodeID)

	for _, step := range final.Steps {
		assert.Equal(t, models.StepStatusCompleted, step.Status)
	}

	// The end node passes through the last produced output.
	result, ok := final.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sent", result["status"])
}

func TestScheduler_ConditionFollowsSelectedBranch(t *testing.T) {
	env := newTestEnv(t)

	conditionNode := testutil.CreateTestNode(
		testutil.WithID("check-plan"),
		testutil.WithKind(models.NodeKindCondition, models.ConditionSubtypeIfThenElse),
		testutil.WithConfig(map[string]any{
			"branches": []any{
				map[string]any{
					"id": models.BranchTrue,
					"rules": []any{
						map[string]any{"field": "plan", "operator": "eq", "value": "pro"},
					},
				},
				map[string]any{"id": models.BranchFalse, "is_default": true},
			},
		}),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(conditionNode, emailNode("pro-mail"), emailNode("free-mail"), endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "check-plan"),
			testutil.BranchEdge("e2", "check-plan", models.BranchTrue, "pro-mail"),
			testutil.BranchEdge("e3", "check-plan", models.BranchFalse, "free-mail"),
			testutil.Edge("e4", "pro-mail", "end"),
			testutil.Edge("e5", "free-mail", "end"),
		),
	)

	execution := env.run(t, def, map[string]any{
		"plan":    "pro",
		"contact": map[string]any{"email": "ada@example.com"},
	})
	final := env.waitTerminal(t, execution.ID)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Len(t, final.StepsForNode("pro-mail"), 1)
	assert.Empty(t, final.StepsForNode("free-mail"), "untaken branch must not execute")
	assert.Equal(t, 1, env.adapter.Calls())
}

func TestScheduler_DelaySuspendsUntilWake(t *testing.T) {
	env := newTestEnv(t)

	delayNode := testutil.CreateTestNode(
		testutil.WithID("wait"),
		testutil.WithKind(models.NodeKindDelay, models.DelaySubtypeFixed),
		testutil.WithConfig(map[string]any{"duration": 30, "unit": "minutes"}),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(delayNode, emailNode("send"), endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "wait"),
			testutil.Edge("e2", "wait", "send"),
			testutil.Edge("e3", "send", "end"),
		),
	)

	execution := env.run(t, def, map[string]any{"contact": map[string]any{"email": "ada@example.com"}})

	// Give the delay node time to run and suspend; the clock has not moved,
	// so the action must not have fired.
	assert.Eventually(t, func() bool {
		stored, err := env.store.ExecutionByID(context.Background(), execution.ID)
		if err != nil {
			return false
		}

		steps := stored.StepsForNode("wait")

		return len(steps) == 1 && steps[0].Status == models.StepStatusRunning && steps[0].WakeAt != nil
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, env.adapter.Calls())

	env.clock.Advance(31 * time.Minute)

	final := env.waitTerminal(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, 1, env.adapter.Calls())

	waitSteps := final.StepsForNode("wait")
	require.Len(t, waitSteps, 1)
	assert.Equal(t, models.StepStatusCompleted, waitSteps[0].Status)
}

func TestScheduler_RetryExhaustionFailsExecution(t *testing.T) {
	env := newTestEnv(t)
	env.adapter.failures = -1 // every attempt fails transiently

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(emailNode("send"), endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "send"),
			testutil.Edge("e2", "send", "end"),
		),
		testutil.WithSettings(models.WorkflowSettings{
			RetryAttempts: 2,
			RetryDelay:    0,
			ErrorHandling: models.ErrorHandlingRetry,
		}),
	)

	execution := env.run(t, def, map[string]any{"contact": map[string]any{"email": "ada@example.com"}})
	final := env.waitTerminal(t, execution.ID)

	assert.Equal(t, models.ExecutionStatusFailed, final.Status)

	// retry_attempts = 2 means the initial attempt plus two retries.
	steps := final.StepsForNode("send")
	require.Len(t, steps, 3)
	assert.Equal(t, 0, steps[0].RetryAttempt)
	assert.Equal(t, 1, steps[1].RetryAttempt)
	assert.Equal(t, 2, steps[2].RetryAttempt)
	assert.Equal(t, 3, env.adapter.Calls())

	require.NotNil(t, final.Error)
	assert.Equal(t, models.ErrCodeDeliveryFailed, final.Error.Code)
	assert.Empty(t, final.StepsForNode("end"), "failed node must not release successors")
}

func TestScheduler_RetrySucceedsMidway(t *testing.T) {
	env := newTestEnv(t)
	env.adapter.failures = 1 // first attempt fails, second succeeds

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(emailNode("send"), endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "send"),
			testutil.Edge("e2", "send", "end"),
		),
		testutil.WithSettings(models.WorkflowSettings{
			RetryAttempts: 3,
			RetryDelay:    0,
			ErrorHandling: models.ErrorHandlingRetry,
		}),
	)

	execution := env.run(t, def, map[string]any{"contact": map[string]any{"email": "ada@example.com"}})
	final := env.waitTerminal(t, execution.ID)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)

	steps := final.StepsForNode("send")
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
	assert.Equal(t, models.StepStatusCompleted, steps[1].Status)
}

func TestScheduler_NodeOverrideBeatsWorkflowPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.adapter.failures = -1

	failing := testutil.CreateTestNode(
		testutil.WithID("send"),
		testutil.WithErrorHandling(models.ErrorHandlingContinue),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(failing, endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "send"),
			testutil.Edge("e2", "send", "end"),
		),
		testutil.WithSettings(models.WorkflowSettings{
			RetryAttempts: 3,
			ErrorHandling: models.ErrorHandlingRetry,
		}),
	)

	execution := env.run(t, def, map[string]any{"contact": map[string]any{"email": "ada@example.com"}})
	final := env.waitTerminal(t, execution.ID)

	// Continue on the node overrides the workflow's retry policy: one failed
	// attempt, then the graph proceeds to the end node.
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Len(t, final.StepsForNode("send"), 1)
	assert.Len(t, final.StepsForNode("end"), 1)
	assert.Equal(t, 1, env.adapter.Calls())
}

func TestScheduler_MergeWaitsForAllBranches(t *testing.T) {
	env := newTestEnv(t)

	mergeNode := testutil.CreateTestNode(
		testutil.WithID("join"),
		testutil.WithKind(models.NodeKindMerge, ""),
		testutil.WithConfig(map[string]any{"inbound_edges": []any{"e3", "e4"}}),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(emailNode("a"), emailNode("b"), mergeNode, endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "a"),
			testutil.Edge("e2", "trigger", "b"),
			testutil.Edge("e3", "a", "join"),
			testutil.Edge("e4", "b", "join"),
			testutil.Edge("e5", "join", "end"),
		),
	)

	execution := env.run(t, def, map[string]any{"contact": map[string]any{"email": "ada@example.com"}})
	final := env.waitTerminal(t, execution.ID)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Len(t, final.StepsForNode("join"), 1, "merge must run exactly once")

	joinStep := final.StepsForNode("join")[0]
	merged, ok := joinStep.Output.(map[string]any)
	require.True(t, ok)
	assert.Len(t, merged, 2)
}

func TestScheduler_LoopRunsBodyPerIteration(t *testing.T) {
	env := newTestEnv(t)

	loopNode := testutil.CreateTestNode(
		testutil.WithID("each-contact"),
		testutil.WithKind(models.NodeKindLoop, models.LoopSubtypeForEach),
		testutil.WithConfig(map[string]any{"items_field": "contacts"}),
	)

	body := testutil.CreateTestNode(
		testutil.WithID("send"),
		testutil.WithConfig(map[string]any{
			"channel": "email",
			"fields": map[string]any{
				"recipient": "{{.vars.loop_item}}",
				"subject":   "Hello",
			},
		}),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(loopNode, body, endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "each-contact"),
			testutil.BranchEdge("e2", "each-contact", models.BranchBody, "send"),
			testutil.Edge("e3", "send", "each-contact"),
			testutil.BranchEdge("e4", "each-contact", models.BranchDone, "end"),
		),
	)

	execution := env.run(t, def, map[string]any{
		"contacts": []any{"a@example.com", "b@example.com", "c@example.com"},
	})
	final := env.waitTerminal(t, execution.ID)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Len(t, final.StepsForNode("send"), 3)
	assert.Len(t, final.StepsForNode("each-contact"), 4, "three body passes plus the exit pass")
	assert.Equal(t, 3, env.adapter.Calls())
}

func TestScheduler_CancelParkedExecution(t *testing.T) {
	env := newTestEnv(t)

	delayNode := testutil.CreateTestNode(
		testutil.WithID("wait"),
		testutil.WithKind(models.NodeKindDelay, models.DelaySubtypeFixed),
		testutil.WithConfig(map[string]any{"duration": 1, "unit": "hours"}),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(delayNode, emailNode("send")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "wait"),
			testutil.Edge("e2", "wait", "send"),
		),
	)

	execution := env.run(t, def, map[string]any{"contact": map[string]any{"email": "ada@example.com"}})

	assert.Eventually(t, func() bool {
		stored, err := env.store.ExecutionByID(context.Background(), execution.ID)

		return err == nil && len(stored.StepsForNode("wait")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.scheduler.Cancel(execution.ID))

	final := env.waitTerminal(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCancelled, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, models.ErrCodeCancelled, final.Error.Code)
	assert.Equal(t, 0, env.adapter.Calls(), "cancelled execution must not run further nodes")
}

// gatedStore blocks the second execution save (the suspend-path persist of a
// parked execution) until the test releases it.
type gatedStore struct {
	*file.Store

	mu      sync.Mutex
	saves   int
	parked  chan struct{}
	release chan struct{}
}

func (s *gatedStore) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	s.mu.Lock()
	s.saves++
	gate := s.saves == 2
	s.mu.Unlock()

	if gate {
		close(s.parked)
		<-s.release
	}

	return s.Store.SaveExecution(ctx, execution)
}

func TestScheduler_CancelWhileSuspendPersistInFlight(t *testing.T) {
	clock := newFakeClock()
	st := &gatedStore{
		Store:   file.NewStore(t.TempDir()),
		parked:  make(chan struct{}),
		release: make(chan struct{}),
	}

	registry := executors.NewRegistry(testLogger)
	registry.Register(delayexec.NewExecutor())

	sched := NewScheduler(testLogger, st, registry, Config{
		Workers:       2,
		SweepInterval: 5 * time.Millisecond,
	}, WithClock(clock.Now))

	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	delayNode := testutil.CreateTestNode(
		testutil.WithID("wait"),
		testutil.WithKind(models.NodeKindDelay, models.DelaySubtypeFixed),
		testutil.WithConfig(map[string]any{"duration": 1, "unit": "hours"}),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(delayNode),
		testutil.WithEdges(testutil.Edge("e1", "trigger", "wait")),
	)

	execution := testutil.CreateTestExecution(def, nil)
	execution.StartTime = clock.Now()
	require.NoError(t, sched.Submit(context.Background(), def, execution))

	select {
	case <-st.parked:
	case <-time.After(2 * time.Second):
		t.Fatal("suspend persist never started")
	}

	// Cancel lands while the parked execution's record is mid-write. The
	// sweeper must wait for the write to finish before finalizing, so the
	// terminal record is always the last one stored.
	require.NoError(t, sched.Cancel(execution.ID))
	time.Sleep(50 * time.Millisecond)
	close(st.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.WaitUntilTerminal(ctx, execution.ID))

	final, err := st.ExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, final.Status)
	require.NotNil(t, final.EndTime)
	require.NotNil(t, final.Error)
	assert.Equal(t, models.ErrCodeCancelled, final.Error.Code)
}

func TestScheduler_CancelUnknownExecution(t *testing.T) {
	env := newTestEnv(t)

	err := env.scheduler.Cancel("exec-missing")
	assert.Error(t, err)
}

func TestScheduler_TimeoutWhileParked(t *testing.T) {
	env := newTestEnv(t)

	delayNode := testutil.CreateTestNode(
		testutil.WithID("wait"),
		testutil.WithKind(models.NodeKindDelay, models.DelaySubtypeFixed),
		testutil.WithConfig(map[string]any{"duration": 2, "unit": "hours"}),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(delayNode, emailNode("send")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "wait"),
			testutil.Edge("e2", "wait", "send"),
		),
		testutil.WithSettings(models.WorkflowSettings{
			MaxExecutionTime: 1800, // 30 minutes, shorter than the delay
			ErrorHandling:    models.ErrorHandlingStop,
		}),
	)

	execution := env.run(t, def, map[string]any{"contact": map[string]any{"email": "ada@example.com"}})

	assert.Eventually(t, func() bool {
		stored, err := env.store.ExecutionByID(context.Background(), execution.ID)

		return err == nil && len(stored.StepsForNode("wait")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	env.clock.Advance(time.Hour)

	final := env.waitTerminal(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusTimeout, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, models.ErrCodeTimeout, final.Error.Code)
	assert.Equal(t, 0, env.adapter.Calls())
}

func TestScheduler_TriggerWithoutSuccessorsCompletes(t *testing.T) {
	env := newTestEnv(t)

	def := testutil.CreateTestDefinition()

	execution := env.run(t, def, map[string]any{"plan": "pro"})
	final := env.waitTerminal(t, execution.ID)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	require.Len(t, final.Steps, 1)
	assert.Equal(t, models.NodeKindTrigger, final.Steps[0].NodeKind)
}

func TestScheduler_VariablesResolvedIntoContext(t *testing.T) {
	env := newTestEnv(t)

	send := testutil.CreateTestNode(
		testutil.WithID("send"),
		testutil.WithConfig(map[string]any{
			"channel": "email",
			"fields": map[string]any{
				"recipient": "ada@example.com",
				"subject":   "{{.vars.greeting}}",
			},
		}),
	)

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(send, endNode("end")),
		testutil.WithEdges(
			testutil.Edge("e1", "trigger", "send"),
			testutil.Edge("e2", "send", "end"),
		),
		testutil.WithVariables(
			&models.WorkflowVariable{ID: "v1", Name: "greeting", Type: "string", Scope: models.VariableScopeGlobal, Value: "Welcome aboard"},
			&models.WorkflowVariable{ID: "v2", Name: "fallback", Type: "string", Scope: models.VariableScopeLocal, DefaultValue: "none"},
		),
	)

	execution := env.run(t, def, nil)
	final := env.waitTerminal(t, execution.ID)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, "Welcome aboard", final.Context.Variables["greeting"])
	assert.Equal(t, "none", final.Context.Variables["fallback"])
}

func TestScheduler_SubmitWithoutTriggerRejected(t *testing.T) {
	env := newTestEnv(t)

	def := testutil.CreateTestDefinition()
	def.Nodes = []*models.WorkflowNode{emailNode("send")}

	execution := testutil.CreateTestExecution(def, nil)
	err := env.scheduler.Submit(context.Background(), def, execution)

	require.Error(t, err)

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ErrCodeGraphInvalid, execErr.Code)
}
