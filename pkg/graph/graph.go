// Package graph compiles a workflow definition into an indexed, traversable
// form and validates the structural invariants the scheduler relies on.
package graph

import (
	"github.com/driptide/driptide/pkg/models"
)

// Graph is an immutable index over a workflow definition: nodes by id and
// outgoing/incoming edges in declaration order. Build it once per definition
// version; executions traverse it concurrently without locking.
type Graph struct {
	Definition *models.WorkflowDefinition

	nodes    map[string]*models.WorkflowNode
	outgoing map[string][]*models.WorkflowEdge
	incoming map[string][]*models.WorkflowEdge
}

// New indexes the definition. The definition is not validated here; call
// Validate before activating it.
func New(def *models.WorkflowDefinition) *Graph {
	g := &Graph{
		Definition: def,
		nodes:      make(map[string]*models.WorkflowNode, len(def.Nodes)),
		outgoing:   make(map[string][]*models.WorkflowEdge),
		incoming:   make(map[string][]*models.WorkflowEdge),
	}

	for _, node := range def.Nodes {
		g.nodes[node.ID] = node
	}

	for _, edge := range def.Edges {
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
		g.incoming[edge.Target] = append(g.incoming[edge.Target], edge)
	}

	return g
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *models.WorkflowNode {
	return g.nodes[id]
}

// Successors returns the target node ids of every outgoing edge of the node,
// in edge-declaration order. This ordering is the scheduler's fan-out
// tie-break rule.
func (g *Graph) Successors(nodeID string) []string {
	edges := g.outgoing[nodeID]

	targets := make([]string, 0, len(edges))
	for _, edge := range edges {
		targets = append(targets, edge.Target)
	}

	return targets
}

// SuccessorsForBranch returns the targets of outgoing edges whose source
// handle matches the given branch id, in declaration order.
func (g *Graph) SuccessorsForBranch(nodeID, branch string) []string {
	var targets []string

	for _, edge := range g.outgoing[nodeID] {
		if edge.SourceHandle == branch {
			targets = append(targets, edge.Target)
		}
	}

	return targets
}

// OutgoingEdges returns the node's outgoing edges in declaration order.
func (g *Graph) OutgoingEdges(nodeID string) []*models.WorkflowEdge {
	return g.outgoing[nodeID]
}

// IncomingEdges returns the node's incoming edges in declaration order.
func (g *Graph) IncomingEdges(nodeID string) []*models.WorkflowEdge {
	return g.incoming[nodeID]
}
