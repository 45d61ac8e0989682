// Package graph implements the structural validation and ordering algorithms
// for workflow graphs: connection legality, cycle detection via topological
// sorting, and whole-graph validity.
package graph

import (
	"fmt"

	"github.com/nodeloom/nodeloom/pkg/models"
)

// Validation rule messages. ValidateWorkflow reports every violated rule,
// not just the first one.
const (
	RuleMissingStart   = "workflow must have a start node"
	RuleMissingEnd     = "workflow must have an end node"
	RuleContainsCycle  = "workflow contains cycles"
	RuleStartToEnd     = "cannot connect start directly to end; add intermediate nodes"
	RuleStartOrphaned  = "start node is not connected"
	ruleContextToEndFn = "cannot connect %s node directly to end; context nodes must connect through reasoning nodes"
)

// IsValidConnection reports whether an edge from sourceType to targetType is
// legal, as a pure function of the two types and their categories:
//
//   - reasoning nodes never feed back into context providers
//   - context nodes are source-only and accept no incoming edges
//   - context nodes never connect directly to the end marker
//   - start→end and end→start are always rejected
func IsValidConnection(sourceType, targetType models.NodeType) bool {
	if sourceType == models.NodeTypeStart && targetType == models.NodeTypeEnd {
		return false
	}

	if sourceType == models.NodeTypeEnd && targetType == models.NodeTypeStart {
		return false
	}

	sourceCategory := sourceType.Category()
	targetCategory := targetType.Category()

	if sourceCategory == models.CategoryContext && targetType == models.NodeTypeEnd {
		return false
	}

	if targetCategory == models.CategoryContext {
		return false
	}

	if sourceCategory == models.CategoryReasoning && targetCategory == models.CategoryContext {
		return false
	}

	return true
}

// ConnectionAllowed checks a proposed edge against the full graph: type
// legality first, then whether the edge would close a path back into an
// already-visited ancestor. Rejected edges must never be added to the graph.
func ConnectionAllowed(sourceID, targetID string, nodes []models.Node, edges []models.Edge) bool {
	source, ok := findNode(nodes, sourceID)
	if !ok {
		return false
	}

	target, ok := findNode(nodes, targetID)
	if !ok {
		return false
	}

	if !IsValidConnection(source.Type, target.Type) {
		return false
	}

	// An edge source→target closes a cycle iff target already reaches source.
	return !HasPath(targetID, sourceID, edges)
}

// HasPath reports whether endID is reachable from startID following edge
// direction. Plain BFS over the edge list; graphs here are small.
func HasPath(startID, endID string, edges []models.Edge) bool {
	visited := make(map[string]bool)
	queue := []string{startID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == endID {
			return true
		}

		if visited[current] {
			continue
		}

		visited[current] = true

		for _, edge := range edges {
			if edge.Source == current && !visited[edge.Target] {
				queue = append(queue, edge.Target)
			}
		}
	}

	return false
}

// TopologicalSort orders all nodes with Kahn's algorithm. The second return
// is false when the graph contains a cycle; callers must treat that as a hard
// validation failure, never as a partial order.
func TopologicalSort(nodes []models.Node, edges []models.Edge) ([]string, bool) {
	adjacency := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))

	for _, node := range nodes {
		adjacency[node.ID] = nil
		inDegree[node.ID] = 0
	}

	for _, edge := range edges {
		if _, ok := adjacency[edge.Source]; !ok {
			continue
		}

		if _, ok := inDegree[edge.Target]; !ok {
			continue
		}

		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		inDegree[edge.Target]++
	}

	queue := make([]string, 0, len(nodes))

	// Seed in node order so the result is deterministic for equal graphs.
	for _, node := range nodes {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	sorted := make([]string, 0, len(nodes))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)

		for _, neighbor := range adjacency[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(sorted) < len(nodes) {
		return nil, false
	}

	return sorted, true
}

// ValidateWorkflow checks the whole graph and returns every violated rule.
// An empty slice means the workflow is structurally executable.
func ValidateWorkflow(nodes []models.Node, edges []models.Edge) []string {
	var errs []string

	var startNode, endNode *models.Node

	for i := range nodes {
		switch nodes[i].Type {
		case models.NodeTypeStart:
			if startNode == nil {
				startNode = &nodes[i]
			}
		case models.NodeTypeEnd:
			if endNode == nil {
				endNode = &nodes[i]
			}
		}
	}

	if startNode == nil {
		errs = append(errs, RuleMissingStart)
	}

	if endNode == nil {
		errs = append(errs, RuleMissingEnd)
	}

	if _, ok := TopologicalSort(nodes, edges); !ok {
		errs = append(errs, RuleContainsCycle)
	}

	if startNode != nil && endNode != nil {
		for _, edge := range edges {
			if edge.Source == startNode.ID && edge.Target == endNode.ID {
				errs = append(errs, RuleStartToEnd)

				break
			}
		}
	}

	if endNode != nil {
		for _, node := range nodes {
			if node.Type.Category() != models.CategoryContext {
				continue
			}

			for _, edge := range edges {
				if edge.Source == node.ID && edge.Target == endNode.ID {
					errs = append(errs, fmt.Sprintf(ruleContextToEndFn, node.Type))

					break
				}
			}
		}
	}

	if startNode != nil && len(nodes) > 1 {
		connected := false

		for _, edge := range edges {
			if edge.Source == startNode.ID || edge.Target == startNode.ID {
				connected = true

				break
			}
		}

		if !connected {
			errs = append(errs, RuleStartOrphaned)
		}
	}

	return errs
}

func findNode(nodes []models.Node, id string) (models.Node, bool) {
	for _, node := range nodes {
		if node.ID == id {
			return node, true
		}
	}

	return models.Node{}, false
}
