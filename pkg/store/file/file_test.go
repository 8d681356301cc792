package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/store"
	"github.com/driptide/driptide/pkg/testutil"
)

func TestStore_DefinitionRoundTrip(t *testing.T) {
	st := NewStore(t.TempDir())
	ctx := context.Background()

	def := testutil.CreateTestDefinition(
		testutil.WithNodes(testutil.CreateTestNode(testutil.WithID("send"))),
		testutil.WithEdges(testutil.Edge("e1", "trigger", "send")),
	)
	def.CreatedAt = time.Time{}

	require.NoError(t, st.SaveDefinition(ctx, def))
	assert.False(t, def.CreatedAt.IsZero(), "save stamps created_at")

	loaded, err := st.DefinitionByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, loaded.ID)
	assert.Equal(t, def.Name, loaded.Name)
	assert.Len(t, loaded.Nodes, 2)
	assert.Len(t, loaded.Edges, 1)
	assert.Equal(t, models.WorkflowStatusActive, loaded.Status)
}

func TestStore_DefinitionNotFound(t *testing.T) {
	st := NewStore(t.TempDir())

	_, err := st.DefinitionByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDefinitionNotFound)
	assert.True(t, store.IsDefinitionNotFound(err))
}

func TestStore_DefinitionsNewestFirst(t *testing.T) {
	st := NewStore(t.TempDir())
	ctx := context.Background()

	older := testutil.CreateTestDefinition()
	older.CreatedAt = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	newer := testutil.CreateTestDefinition()
	newer.CreatedAt = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveDefinition(ctx, older))
	require.NoError(t, st.SaveDefinition(ctx, newer))

	definitions, err := st.Definitions(ctx)
	require.NoError(t, err)
	require.Len(t, definitions, 2)
	assert.Equal(t, newer.ID, definitions[0].ID)
	assert.Equal(t, older.ID, definitions[1].ID)
}

func TestStore_DefinitionsEmptyRoot(t *testing.T) {
	st := NewStore(t.TempDir())

	definitions, err := st.Definitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, definitions)
}

func TestStore_DeleteDefinition(t *testing.T) {
	st := NewStore(t.TempDir())
	ctx := context.Background()

	def := testutil.CreateTestDefinition()
	require.NoError(t, st.SaveDefinition(ctx, def))

	require.NoError(t, st.DeleteDefinition(ctx, def.ID))

	_, err := st.DefinitionByID(ctx, def.ID)
	assert.True(t, store.IsDefinitionNotFound(err))

	// Deleting a missing definition is not an error.
	assert.NoError(t, st.DeleteDefinition(ctx, "missing"))
}

func TestStore_ExecutionRoundTrip(t *testing.T) {
	st := NewStore(t.TempDir())
	ctx := context.Background()

	def := testutil.CreateTestDefinition()
	execution := testutil.CreateTestExecution(def, map[string]any{"plan": "pro"})

	ended := execution.StartTime.Add(time.Second)
	execution.Status = models.ExecutionStatusCompleted
	execution.EndTime = &ended
	execution.Steps = []*models.ExecutionStep{
		{NodeID: "trigger", NodeKind: models.NodeKindTrigger, Status: models.StepStatusCompleted, StartTime: execution.StartTime},
	}
	execution.Error = nil
	execution.Result = map[string]any{"status": "sent"}

	require.NoError(t, st.SaveExecution(ctx, execution))

	loaded, err := st.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, loaded.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, loaded.Status)
	assert.Equal(t, map[string]any{"plan": "pro"}, loaded.TriggerData)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "trigger", loaded.Steps[0].NodeID)
	require.NotNil(t, loaded.EndTime)
}

func TestStore_ExecutionNotFound(t *testing.T) {
	st := NewStore(t.TempDir())

	_, err := st.ExecutionByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrExecutionNotFound)
	assert.True(t, store.IsExecutionNotFound(err))
}

func TestStore_ExecutionsFilteredByWorkflow(t *testing.T) {
	st := NewStore(t.TempDir())
	ctx := context.Background()

	first := testutil.CreateTestDefinition()
	second := testutil.CreateTestDefinition()

	early := testutil.CreateTestExecution(first, nil)
	early.StartTime = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	late := testutil.CreateTestExecution(first, nil)
	late.StartTime = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

	other := testutil.CreateTestExecution(second, nil)

	for _, execution := range []*models.WorkflowExecution{early, late, other} {
		require.NoError(t, st.SaveExecution(ctx, execution))
	}

	executions, err := st.Executions(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, late.ID, executions[0].ID, "newest first")
	assert.Equal(t, early.ID, executions[1].ID)

	all, err := st.Executions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_HealthCheck(t *testing.T) {
	st := NewStore(t.TempDir())
	assert.NoError(t, st.HealthCheck(context.Background()))
	assert.NoError(t, st.Close(context.Background()))
}
