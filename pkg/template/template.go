// Package template renders personalization expressions in node configuration
// against the execution context.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/driptide/driptide/pkg/models"
)

// RenderWithContext renders a template string against the execution context.
// Exposed data mirrors what condition rules can reach: trigger data,
// variables and per-node outputs, plus execution identity.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	data := map[string]any{
		"trigger_data": executionCtx.TriggerData,
		"variables":    executionCtx.Variables,
		"vars":         executionCtx.Variables,
		"node_outputs": executionCtx.NodeOutputs,
		"execution": map[string]any{
			"id":          executionCtx.ExecutionID,
			"workflow_id": executionCtx.WorkflowID,
		},
	}

	return Render(input, data)
}

// RenderFields renders every string value of an action's field map, leaving
// non-string values untouched. Used by the action executor before the
// delivery adapter call.
func RenderFields(fields map[string]any, executionCtx *models.ExecutionContext) (map[string]any, error) {
	rendered := make(map[string]any, len(fields))

	for key, value := range fields {
		str, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		out, err := RenderWithContext(str, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}

		rendered[key] = out
	}

	return rendered, nil
}

// Render parses and executes a template, then coerces the output: JSON-shaped
// results decode to structured values, numeric and boolean strings to their
// native types, everything else stays a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("personalization").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
