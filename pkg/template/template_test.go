package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driptide/driptide/pkg/testutil"
)

func TestRenderWithContext(t *testing.T) {
	ctx := testutil.CreateTestContext(
		map[string]any{
			"contact": map[string]any{"first_name": "Ada", "email": "ada@example.com"},
		},
		map[string]any{"discount": 15},
	)

	tests := []struct {
		name     string
		template string
		want     any
	}{
		{
			name:     "trigger data field",
			template: "Hi {{.trigger_data.contact.first_name}}!",
			want:     "Hi Ada!",
		},
		{
			name:     "variable through vars alias",
			template: "{{.vars.discount}}",
			want:     15.0, // numeric output coerces to float64
		},
		{
			name:     "execution identity",
			template: "{{.execution.id}}",
			want:     "exec-test",
		},
		{
			name:     "plain text passes through",
			template: "no placeholders here",
			want:     "no placeholders here",
		},
		{
			name:     "boolean coercion",
			template: "true",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderWithContext(tt.template, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_JSONOutputDecodes(t *testing.T) {
	got, err := Render(`{"plan": "{{.plan}}"}`, map[string]any{"plan": "pro"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"plan": "pro"}, got)
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{.unclosed", nil)
	assert.Error(t, err)
}

func TestRenderFields(t *testing.T) {
	ctx := testutil.CreateTestContext(
		map[string]any{"contact": map[string]any{"first_name": "Ada"}},
		nil,
	)

	rendered, err := RenderFields(map[string]any{
		"subject":  "Welcome {{.trigger_data.contact.first_name}}",
		"attempts": 3, // non-strings untouched
	}, ctx)

	require.NoError(t, err)
	assert.Equal(t, "Welcome Ada", rendered["subject"])
	assert.Equal(t, 3, rendered["attempts"])
}

func TestRenderFields_TemplateErrorNamesField(t *testing.T) {
	ctx := testutil.CreateTestContext(nil, nil)

	_, err := RenderFields(map[string]any{"body": "{{.broken"}, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "body"`)
}
