package graph

import (
	"github.com/driptide/driptide/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// Per-kind JSON schemas for raw node config objects. These gate the shape of
// a config before it is decoded into its typed variant; kind-specific rules
// (loop bounds, merge edge references) run afterwards on the decoded struct.
var configSchemas = map[models.NodeKind]map[string]any{
	models.NodeKindTrigger: {
		"type": "object",
		"properties": map[string]any{
			"event_type": map[string]any{"type": "string", "minLength": 1},
			"rules":      ruleArraySchema,
		},
		"required": []string{"event_type"},
	},
	models.NodeKindCondition: {
		"type": "object",
		"properties": map[string]any{
			"branches": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "string", "minLength": 1},
						"rules":      ruleArraySchema,
						"is_default": map[string]any{"type": "boolean"},
					},
					"required": []string{"id"},
				},
			},
		},
		"required": []string{"branches"},
	},
	models.NodeKindDelay: {
		"type": "object",
		"properties": map[string]any{
			"duration":            map[string]any{"type": "number", "minimum": 0},
			"unit":                map[string]any{"type": "string", "enum": []string{"seconds", "minutes", "hours", "days"}},
			"duration_field":      map[string]any{"type": "string"},
			"schedule_at":         map[string]any{"type": "string"},
			"timezone":            map[string]any{"type": "string"},
			"business_hours_only": map[string]any{"type": "boolean"},
			"skip_weekends":       map[string]any{"type": "boolean"},
		},
	},
	models.NodeKindAction: {
		"type": "object",
		"properties": map[string]any{
			"channel": map[string]any{"type": "string", "minLength": 1},
			"fields":  map[string]any{"type": "object"},
			"mapping": map[string]any{"type": "object"},
		},
		"required": []string{"channel", "fields"},
	},
	models.NodeKindLoop: {
		"type": "object",
		"properties": map[string]any{
			"items_field":    map[string]any{"type": "string"},
			"index_variable": map[string]any{"type": "string"},
			"condition":      ruleArraySchema,
			"count":          map[string]any{"type": "integer", "minimum": 0},
			"max_iterations": map[string]any{"type": "integer", "minimum": 0},
		},
	},
	models.NodeKindMerge: {
		"type": "object",
		"properties": map[string]any{
			"inbound_edges": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string", "minLength": 1},
				"minItems": 1,
			},
		},
		"required": []string{"inbound_edges"},
	},
	models.NodeKindEnd: {
		"type": "object",
	},
}

var ruleArraySchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field":            map[string]any{"type": "string", "minLength": 1},
			"operator":         map[string]any{"type": "string", "minLength": 1},
			"value":            map[string]any{},
			"logical_operator": map[string]any{"type": "string", "enum": []string{"and", "or"}},
		},
		"required": []string{"field", "operator"},
	},
}

// validateConfigSchema checks the raw config against the kind's schema and
// returns one message per schema violation.
func validateConfigSchema(node *models.WorkflowNode) []string {
	schema, ok := configSchemas[node.Kind]
	if !ok {
		// Unknown kinds are reported by validateTriggerShape.
		return nil
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return []string{err.Error()}
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return messages
}
