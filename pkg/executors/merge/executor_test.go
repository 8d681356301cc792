package merge

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

func TestExecute_JoinsConfiguredBranches(t *testing.T) {
	ctx := testutil.CreateTestContext(nil, nil)
	ctx.NodeOutputs = map[string]any{
		"email-branch": map[string]any{"status": "sent"},
		"sms-branch":   map[string]any{"status": "sent"},
		"unrelated":    map[string]any{"status": "ignored"},
	}

	req := executors.Request{
		Node: testutil.CreateTestNode(
			testutil.WithID("join"),
			testutil.WithKind(models.NodeKindMerge, ""),
			testutil.WithConfig(map[string]any{"inbound_edges": []any{"e1", "e2"}}),
		),
		Context: ctx,
		Inbound: []*models.WorkflowEdge{
			testutil.Edge("e1", "email-branch", "join"),
			testutil.Edge("e2", "sms-branch", "join"),
			testutil.Edge("e3", "unrelated", "join"),
		},
	}

	result := NewExecutor().Execute(context.Background(), req, testLogger)

	require.False(t, result.Failure())

	merged, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Len(t, merged, 2)
	assert.Equal(t, map[string]any{"status": "sent"}, merged["email-branch"])
	assert.Equal(t, map[string]any{"status": "sent"}, merged["sms-branch"])
	assert.NotContains(t, merged, "unrelated")
}

func TestExecute_MissingBranchOutputSkipped(t *testing.T) {
	ctx := testutil.CreateTestContext(nil, nil)
	ctx.NodeOutputs = map[string]any{
		"email-branch": map[string]any{"status": "sent"},
	}

	req := executors.Request{
		Node: testutil.CreateTestNode(
			testutil.WithID("join"),
			testutil.WithKind(models.NodeKindMerge, ""),
			testutil.WithConfig(map[string]any{"inbound_edges": []any{"e1", "e2"}}),
		),
		Context: ctx,
		Inbound: []*models.WorkflowEdge{
			testutil.Edge("e1", "email-branch", "join"),
			testutil.Edge("e2", "sms-branch", "join"),
		},
	}

	result := NewExecutor().Execute(context.Background(), req, testLogger)

	require.False(t, result.Failure())

	merged, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Len(t, merged, 1)
}
