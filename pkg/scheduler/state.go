package scheduler

import (
	"time"

	"github.com/driptide/driptide/pkg/graph"
	"github.com/driptide/driptide/pkg/models"
)

// executionState is the scheduler's in-memory view of one live execution.
// All fields are guarded by the scheduler mutex; the execution context is
// only touched by the single task running for this execution at a time.
type executionState struct {
	execution *models.WorkflowExecution
	graph     *graph.Graph
	settings  models.WorkflowSettings
	deadline  time.Time // zero when the definition has no wall-clock budget

	queue       []task // tasks waiting for this execution, FIFO
	running     bool   // a task for this execution is on a worker
	outstanding int    // queued + running + parked units; zero means done

	mergeSeen       map[string]map[string]bool // merge node id -> satisfied inbound edge ids
	mergeDispatched map[string]bool

	cancelled  bool
	lastOutput any

	done chan struct{} // closed on terminal transition
}

func newExecutionState(g *graph.Graph, execution *models.WorkflowExecution, now time.Time) *executionState {
	settings := g.Definition.Settings

	var deadline time.Time
	if d := settings.MaxExecutionDuration(); d > 0 {
		deadline = now.Add(d)
	}

	return &executionState{
		execution:       execution,
		graph:           g,
		settings:        settings,
		deadline:        deadline,
		mergeSeen:       make(map[string]map[string]bool),
		mergeDispatched: make(map[string]bool),
		done:            make(chan struct{}),
	}
}

// mergeReady records the satisfied inbound edge and reports whether every
// required inbound branch of the merge node has now produced a step.
func (s *executionState) mergeReady(node *models.WorkflowNode, edgeID string) bool {
	if s.mergeDispatched[node.ID] {
		return false
	}

	seen := s.mergeSeen[node.ID]
	if seen == nil {
		seen = make(map[string]bool)
		s.mergeSeen[node.ID] = seen
	}

	seen[edgeID] = true

	required := s.requiredMergeEdges(node)
	for _, id := range required {
		if !seen[id] {
			return false
		}
	}

	s.mergeDispatched[node.ID] = true
	s.mergeSeen[node.ID] = nil

	return true
}

func (s *executionState) requiredMergeEdges(node *models.WorkflowNode) []string {
	var config models.MergeConfig
	if err := models.DecodeConfig(node, &config); err == nil && len(config.InboundEdges) > 0 {
		return config.InboundEdges
	}

	edges := s.graph.IncomingEdges(node.ID)

	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.ID)
	}

	return ids
}

// lastRunningStep returns the most recent running step for the node, used to
// complete a suspended delay step on wake.
func (s *executionState) lastRunningStep(nodeID string) *models.ExecutionStep {
	for i := len(s.execution.Steps) - 1; i >= 0; i-- {
		step := s.execution.Steps[i]
		if step.NodeID == nodeID && step.Status == models.StepStatusRunning {
			return step
		}
	}

	return nil
}
