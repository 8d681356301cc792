package graph

import (
	"fmt"
	"strings"

	"github.com/driptide/driptide/pkg/models"
)

// Violation is one structural problem found in a definition. Validation
// collects every violation rather than stopping at the first so the editor
// can surface all of them at once.
type Violation struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

// Violation codes.
const (
	ViolationDuplicateNodeID  = "duplicate_node_id"
	ViolationDuplicateEdgeID  = "duplicate_edge_id"
	ViolationDanglingEdge     = "dangling_edge"
	ViolationTriggerCount     = "trigger_count"
	ViolationTriggerInbound   = "trigger_has_inbound_edge"
	ViolationOrphanNode       = "orphan_node"
	ViolationCycle            = "cycle_outside_loop"
	ViolationUnboundedLoop    = "unbounded_loop"
	ViolationUnknownKind      = "unknown_node_kind"
	ViolationInvalidConfig    = "invalid_config"
	ViolationMergeEdgeMissing = "merge_edge_missing"
)

// ValidationResult holds every violation found in a definition.
type ValidationResult struct {
	Violations []Violation `json:"violations"`
}

// Valid reports whether the definition passed validation.
func (r *ValidationResult) Valid() bool {
	return len(r.Violations) == 0
}

// Err converts the result into a GraphInvalid execution error, or nil when
// the definition is valid.
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}

	messages := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		messages = append(messages, v.Message)
	}

	return models.NewExecutionError(models.ErrCodeGraphInvalid, "", strings.Join(messages, "; "))
}

func (r *ValidationResult) add(code, nodeID, edgeID, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Code:    code,
		NodeID:  nodeID,
		EdgeID:  edgeID,
		Message: fmt.Sprintf(format, args...),
	})
}

// Validate checks the definition against the structural invariants: unique
// ids, referential integrity, exactly one trigger with no inbound edge,
// acyclicity outside loop nodes, bounded loops, and per-kind config shape.
func Validate(def *models.WorkflowDefinition) *ValidationResult {
	result := &ValidationResult{}

	nodeIDs := make(map[string]bool, len(def.Nodes))
	for _, node := range def.Nodes {
		if nodeIDs[node.ID] {
			result.add(ViolationDuplicateNodeID, node.ID, "", "duplicate node id %q", node.ID)
		}

		nodeIDs[node.ID] = true
	}

	edgeIDs := make(map[string]bool, len(def.Edges))
	inbound := make(map[string]int)

	for _, edge := range def.Edges {
		if edgeIDs[edge.ID] {
			result.add(ViolationDuplicateEdgeID, "", edge.ID, "duplicate edge id %q", edge.ID)
		}

		edgeIDs[edge.ID] = true

		if !nodeIDs[edge.Source] {
			result.add(ViolationDanglingEdge, "", edge.ID, "edge %q references missing source node %q", edge.ID, edge.Source)
		}

		if !nodeIDs[edge.Target] {
			result.add(ViolationDanglingEdge, "", edge.ID, "edge %q references missing target node %q", edge.ID, edge.Target)
		}

		inbound[edge.Target]++
	}

	validateTriggerShape(def, inbound, result)
	validateConfigs(def, result)
	validateAcyclic(def, result)

	return result
}

// validateTriggerShape enforces: exactly one trigger node, the trigger has no
// inbound edge, and every other node is reachable through at least one
// inbound edge.
func validateTriggerShape(def *models.WorkflowDefinition, inbound map[string]int, result *ValidationResult) {
	triggers := 0

	for _, node := range def.Nodes {
		switch node.Kind {
		case models.NodeKindTrigger:
			triggers++

			if inbound[node.ID] > 0 {
				result.add(ViolationTriggerInbound, node.ID, "", "trigger node %q must not have inbound edges", node.ID)
			}
		case models.NodeKindCondition, models.NodeKindDelay, models.NodeKindAction,
			models.NodeKindMerge, models.NodeKindLoop, models.NodeKindEnd:
			if inbound[node.ID] == 0 {
				result.add(ViolationOrphanNode, node.ID, "", "node %q has no inbound edge", node.ID)
			}
		default:
			result.add(ViolationUnknownKind, node.ID, "", "node %q has unknown kind %q", node.ID, node.Kind)
		}
	}

	if triggers != 1 {
		result.add(ViolationTriggerCount, "", "", "workflow must have exactly one trigger node, found %d", triggers)
	}
}

// validateConfigs decodes every node config into its typed variant, checks it
// against the kind's JSON schema, and applies kind-specific rules (bounded
// loops, merge edge references).
func validateConfigs(def *models.WorkflowDefinition, result *ValidationResult) {
	edgeByID := make(map[string]*models.WorkflowEdge, len(def.Edges))
	for _, edge := range def.Edges {
		edgeByID[edge.ID] = edge
	}

	for _, node := range def.Nodes {
		if schemaErrs := validateConfigSchema(node); len(schemaErrs) > 0 {
			for _, msg := range schemaErrs {
				result.add(ViolationInvalidConfig, node.ID, "", "node %q: %s", node.ID, msg)
			}

			continue
		}

		switch node.Kind {
		case models.NodeKindLoop:
			validateLoop(node, result)
		case models.NodeKindMerge:
			validateMerge(node, edgeByID, result)
		case models.NodeKindCondition:
			var cfg models.ConditionConfig
			if err := models.DecodeConfig(node, &cfg); err != nil {
				result.add(ViolationInvalidConfig, node.ID, "", "%v", err)
			} else if len(cfg.Branches) == 0 {
				result.add(ViolationInvalidConfig, node.ID, "", "condition node %q has no branches", node.ID)
			}
		case models.NodeKindTrigger, models.NodeKindDelay, models.NodeKindAction, models.NodeKindEnd:
			// Shape already enforced by the schema.
		}
	}
}

func validateLoop(node *models.WorkflowNode, result *ValidationResult) {
	var cfg models.LoopConfig
	if err := models.DecodeConfig(node, &cfg); err != nil {
		result.add(ViolationInvalidConfig, node.ID, "", "%v", err)

		return
	}

	switch node.Subtype {
	case models.LoopSubtypeForEach:
		if cfg.ItemsField == "" {
			result.add(ViolationUnboundedLoop, node.ID, "", "for_each loop %q must name an items_field", node.ID)
		}
	case models.LoopSubtypeFor:
		if cfg.Count <= 0 {
			result.add(ViolationUnboundedLoop, node.ID, "", "for loop %q must have a positive count", node.ID)
		}
	case models.LoopSubtypeWhile:
		// A while loop needs both a falsifiable condition and a hard bound;
		// the condition alone cannot be proven to terminate.
		if len(cfg.Condition) == 0 {
			result.add(ViolationUnboundedLoop, node.ID, "", "while loop %q must have a stop condition", node.ID)
		}

		if cfg.MaxIterations <= 0 {
			result.add(ViolationUnboundedLoop, node.ID, "", "while loop %q must set max_iterations", node.ID)
		}
	default:
		result.add(ViolationInvalidConfig, node.ID, "", "loop node %q has unknown subtype %q", node.ID, node.Subtype)
	}
}

func validateMerge(node *models.WorkflowNode, edgeByID map[string]*models.WorkflowEdge, result *ValidationResult) {
	var cfg models.MergeConfig
	if err := models.DecodeConfig(node, &cfg); err != nil {
		result.add(ViolationInvalidConfig, node.ID, "", "%v", err)

		return
	}

	if len(cfg.InboundEdges) == 0 {
		result.add(ViolationInvalidConfig, node.ID, "", "merge node %q lists no inbound edges", node.ID)

		return
	}

	for _, edgeID := range cfg.InboundEdges {
		edge, ok := edgeByID[edgeID]
		if !ok {
			result.add(ViolationMergeEdgeMissing, node.ID, edgeID, "merge node %q references missing edge %q", node.ID, edgeID)

			continue
		}

		if edge.Target != node.ID {
			result.add(ViolationMergeEdgeMissing, node.ID, edgeID, "merge node %q references edge %q that does not target it", node.ID, edgeID)
		}
	}
}

// validateAcyclic runs cycle detection with every edge targeting a loop node
// removed: a cycle is legal only when it closes through a loop node, whose
// iteration count is bounded separately.
func validateAcyclic(def *models.WorkflowDefinition, result *ValidationResult) {
	loopNodes := make(map[string]bool)

	for _, node := range def.Nodes {
		if node.Kind == models.NodeKindLoop {
			loopNodes[node.ID] = true
		}
	}

	adjacency := make(map[string][]string)

	for _, edge := range def.Edges {
		if loopNodes[edge.Target] {
			continue
		}

		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(def.Nodes))

	var visit func(id string) bool

	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			return true
		case done:
			return false
		}

		state[id] = visiting

		for _, next := range adjacency[id] {
			if visit(next) {
				state[id] = done

				return true
			}
		}

		state[id] = done

		return false
	}

	for _, node := range def.Nodes {
		if state[node.ID] == unvisited && visit(node.ID) {
			result.add(ViolationCycle, node.ID, "", "cycle detected through node %q outside a loop node", node.ID)

			return
		}
	}
}
