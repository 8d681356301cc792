package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/testutil"
)

func TestEvaluateRuleSet_Operators(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{
		"plan":  "pro",
		"score": 42.0,
		"tags":  []any{"beta", "vip"},
		"contact": map[string]any{
			"email": "ada@example.com",
		},
		"signed_up_at": "2026-03-01T12:00:00Z",
	}, nil)

	tests := []struct {
		name string
		rule models.Rule
		want bool
	}{
		{"eq matches", models.Rule{Field: "plan", Operator: OpEquals, Value: "pro"}, true},
		{"eq mismatch", models.Rule{Field: "plan", Operator: OpEquals, Value: "free"}, false},
		{"eq numeric normalization", models.Rule{Field: "score", Operator: OpEquals, Value: 42}, true},
		{"neq", models.Rule{Field: "plan", Operator: OpNotEquals, Value: "free"}, true},
		{"gt", models.Rule{Field: "score", Operator: OpGreater, Value: 40}, true},
		{"gte boundary", models.Rule{Field: "score", Operator: OpGreaterEq, Value: 42}, true},
		{"lt", models.Rule{Field: "score", Operator: OpLess, Value: 40}, false},
		{"lte boundary", models.Rule{Field: "score", Operator: OpLessEq, Value: 42}, true},
		{"contains string", models.Rule{Field: "contact.email", Operator: OpContains, Value: "@example"}, true},
		{"contains array element", models.Rule{Field: "tags", Operator: OpContains, Value: "vip"}, true},
		{"not_contains", models.Rule{Field: "tags", Operator: OpNotContains, Value: "spam"}, true},
		{"in", models.Rule{Field: "plan", Operator: OpIn, Value: []any{"pro", "enterprise"}}, true},
		{"not_in", models.Rule{Field: "plan", Operator: OpNotIn, Value: []any{"free"}}, true},
		{"before", models.Rule{Field: "signed_up_at", Operator: OpBefore, Value: "2026-04-01T00:00:00Z"}, true},
		{"after", models.Rule{Field: "signed_up_at", Operator: OpAfter, Value: "2026-04-01T00:00:00Z"}, false},
		{"between", models.Rule{
			Field:    "signed_up_at",
			Operator: OpBetween,
			Value:    []any{"2026-02-01T00:00:00Z", "2026-04-01T00:00:00Z"},
		}, true},
		{"exists", models.Rule{Field: "contact.email", Operator: OpExists}, true},
		{"not_exists", models.Rule{Field: "contact.phone", Operator: OpNotExists}, true},
		{"nested dotted path", models.Rule{Field: "contact.email", Operator: OpEquals, Value: "ada@example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateRuleSet([]models.Rule{tt.rule}, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateRuleSet_UndefinedFieldFailsNotErrors(t *testing.T) {
	ctx := testutil.CreateTestContext(nil, nil)

	got, err := EvaluateRuleSet([]models.Rule{
		{Field: "missing", Operator: OpEquals, Value: "x"},
	}, ctx)

	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateRuleSet_UnsupportedOperatorIsHardError(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{"plan": "pro"}, nil)

	_, err := EvaluateRuleSet([]models.Rule{
		{Field: "plan", Operator: "regex", Value: ".*"},
	}, ctx)

	require.Error(t, err)

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ErrCodeUnsupportedOperator, execErr.Code)
}

func TestEvaluateRuleSet_LogicalCombination(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{"plan": "pro", "score": 10.0}, nil)

	tests := []struct {
		name  string
		rules []models.Rule
		want  bool
	}{
		{
			name: "and both pass",
			rules: []models.Rule{
				{Field: "plan", Operator: OpEquals, Value: "pro"},
				{Field: "score", Operator: OpGreater, Value: 5},
			},
			want: true,
		},
		{
			name: "implicit and second fails",
			rules: []models.Rule{
				{Field: "plan", Operator: OpEquals, Value: "pro"},
				{Field: "score", Operator: OpGreater, Value: 50},
			},
			want: false,
		},
		{
			name: "or rescues failed first",
			rules: []models.Rule{
				{Field: "plan", Operator: OpEquals, Value: "free"},
				{Field: "score", Operator: OpGreater, Value: 5, LogicalOperator: "or"},
			},
			want: true,
		},
		{
			name:  "empty rule set passes",
			rules: nil,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateRuleSet(tt.rules, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// A short-circuited rule must never be evaluated, even when it would error:
// false AND <unsupported operator> is false, not an error.
func TestEvaluateRuleSet_ShortCircuitSkipsEvaluation(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{"plan": "pro"}, nil)

	got, err := EvaluateRuleSet([]models.Rule{
		{Field: "plan", Operator: OpEquals, Value: "free"},
		{Field: "plan", Operator: "bogus_operator"},
	}, ctx)

	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvaluateRuleSet([]models.Rule{
		{Field: "plan", Operator: OpEquals, Value: "pro"},
		{Field: "plan", Operator: "bogus_operator", LogicalOperator: "or"},
	}, ctx)

	require.NoError(t, err)
	assert.True(t, got)
}

func TestSelectBranch_DeclaredOrder(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{"score": 80.0}, nil)

	branches := []models.ConditionBranch{
		{ID: "high", Rules: []models.Rule{{Field: "score", Operator: OpGreater, Value: 50}}},
		{ID: "also_high", Rules: []models.Rule{{Field: "score", Operator: OpGreater, Value: 10}}},
		{ID: "fallback", IsDefault: true},
	}

	branch, err := SelectBranch(branches, ctx)
	require.NoError(t, err)
	assert.Equal(t, "high", branch)
}

func TestSelectBranch_DefaultOnlyWhenNothingMatched(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{"score": 5.0}, nil)

	branches := []models.ConditionBranch{
		{ID: "fallback", IsDefault: true},
		{ID: "high", Rules: []models.Rule{{Field: "score", Operator: OpGreater, Value: 50}}},
	}

	branch, err := SelectBranch(branches, ctx)
	require.NoError(t, err)
	assert.Equal(t, "fallback", branch)
}

func TestSelectBranch_NoMatchNoDefault(t *testing.T) {
	ctx := testutil.CreateTestContext(map[string]any{"score": 5.0}, nil)

	branches := []models.ConditionBranch{
		{ID: "high", Rules: []models.Rule{{Field: "score", Operator: OpGreater, Value: 50}}},
	}

	_, err := SelectBranch(branches, ctx)
	require.Error(t, err)

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ErrCodeNoBranchMatched, execErr.Code)
}
