package loop

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/testutil"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

func loopRequest(subtype string, config map[string]any, ctx *models.ExecutionContext) executors.Request {
	return executors.Request{
		Node: testutil.CreateTestNode(
			testutil.WithID("iterate"),
			testutil.WithKind(models.NodeKindLoop, subtype),
			testutil.WithConfig(config),
		),
		Context: ctx,
	}
}

func TestExecute_ForEachWalksItems(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{
		"items": []any{"a", "b", "c"},
	}, nil)

	executor := NewExecutor()
	config := map[string]any{"items_field": "items"}

	for i, want := range []string{"a", "b", "c"} {
		result := executor.Execute(context.Background(), loopRequest(models.LoopSubtypeForEach, config, ctx), testLogger)

		require.False(t, result.Failure())
		assert.Equal(t, models.BranchBody, result.Branch)
		assert.Equal(t, i, ctx.Variables["loop_index"])
		assert.Equal(t, want, ctx.Variables["loop_item"])
	}

	// Items exhausted: loop exits on the done branch and clears its state.
	result := executor.Execute(context.Background(), loopRequest(models.LoopSubtypeForEach, config, ctx), testLogger)
	require.False(t, result.Failure())
	assert.Equal(t, models.BranchDone, result.Branch)
	assert.Equal(t, map[string]any{"iterations": 3}, result.Output)
	assert.NotContains(t, ctx.Variables, "__loop__iterate")
}

func TestExecute_ForEachCustomIndexVariable(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{"items": []any{"x"}}, nil)

	result := NewExecutor().Execute(context.Background(), loopRequest(models.LoopSubtypeForEach, map[string]any{
		"items_field":    "items",
		"index_variable": "i",
	}, ctx), testLogger)

	require.False(t, result.Failure())
	assert.Equal(t, 0, ctx.Variables["i"])
}

func TestExecute_ForEachErrors(t *testing.T) {
	tests := []struct {
		name        string
		triggerData map[string]any
	}{
		{"missing items field", map[string]any{}},
		{"items not an array", map[string]any{"items": "oops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testutil.CreateTestContext(tt.triggerData, nil)

			result := NewExecutor().Execute(context.Background(), loopRequest(models.LoopSubtypeForEach, map[string]any{
				"items_field": "items",
			}, ctx), testLogger)

			require.True(t, result.Failure())
			assert.Equal(t, models.ErrCodeInvalidConfig, result.Err.Code)
			assert.Equal(t, "iterate", result.Err.NodeID)
		})
	}
}

func TestExecute_ForCountedIterations(t *testing.T) {
	ctx := testutil.CreateTestContext(nil, nil)
	executor := NewExecutor()
	config := map[string]any{"count": 2}

	for i := range 2 {
		result := executor.Execute(context.Background(), loopRequest(models.LoopSubtypeFor, config, ctx), testLogger)
		require.False(t, result.Failure())
		assert.Equal(t, models.BranchBody, result.Branch)
		assert.Equal(t, map[string]any{"iteration": i}, result.Output)
	}

	result := executor.Execute(context.Background(), loopRequest(models.LoopSubtypeFor, config, ctx), testLogger)
	assert.Equal(t, models.BranchDone, result.Branch)
}

func TestExecute_WhileStopsWhenConditionFalsifies(t *testing.T) {
	ctx := testutil.CreateTestContext(nil, map[string]any{"pending": true})
	executor := NewExecutor()

	config := map[string]any{
		"condition": []any{
			map[string]any{"field": "pending", "operator": "eq", "value": true},
		},
		"max_iterations": 10,
	}

	result := executor.Execute(context.Background(), loopRequest(models.LoopSubtypeWhile, config, ctx), testLogger)
	assert.Equal(t, models.BranchBody, result.Branch)

	// Body work flips the flag; the next pass exits.
	ctx.Variables["pending"] = false

	result = executor.Execute(context.Background(), loopRequest(models.LoopSubtypeWhile, config, ctx), testLogger)
	assert.Equal(t, models.BranchDone, result.Branch)
}

func TestExecute_MaxIterationsCapsAllSubtypes(t *testing.T) {
	ctx := testutil.CreateTestContext(nil, map[string]any{"pending": true})
	executor := NewExecutor()

	config := map[string]any{
		"condition": []any{
			map[string]any{"field": "pending", "operator": "eq", "value": true},
		},
		"max_iterations": 2,
	}

	iterations := 0

	for range 5 {
		result := executor.Execute(context.Background(), loopRequest(models.LoopSubtypeWhile, config, ctx), testLogger)
		require.False(t, result.Failure())

		if result.Branch == models.BranchDone {
			break
		}

		iterations++
	}

	assert.Equal(t, 2, iterations)
}

func TestExecute_UnknownSubtype(t *testing.T) {
	ctx := testutil.CreateTestContext(nil, nil)

	result := NewExecutor().Execute(context.Background(), loopRequest("until", map[string]any{}, ctx), testLogger)
	require.True(t, result.Failure())
	assert.Equal(t, models.ErrCodeInvalidConfig, result.Err.Code)
}
