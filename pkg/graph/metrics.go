package graph

import "github.com/nodeloom/nodeloom/pkg/models"

// Metrics summarizes the structural shape of a graph for the editor's status
// surfaces and the metrics endpoint.
type Metrics struct {
	NodeCount      int                         `json:"node_count"`
	EdgeCount      int                         `json:"edge_count"`
	NodesByType    map[models.NodeType]int     `json:"nodes_by_type"`
	NodesByGroup   map[models.NodeCategory]int `json:"nodes_by_group"`
	ContextNodes   int                         `json:"context_nodes"`
	ReasoningNodes int                         `json:"reasoning_nodes"`
	ControlNodes   int                         `json:"control_nodes"`
	Complexity     float64                     `json:"complexity"`
	Valid          bool                        `json:"valid"`
	Errors         []string                    `json:"errors,omitempty"`
}

// ComputeMetrics counts nodes per type and category and derives the edge/node
// complexity ratio. The divisor is clamped to one so an empty graph yields
// zero, not NaN.
func ComputeMetrics(nodes []models.Node, edges []models.Edge) Metrics {
	m := Metrics{
		NodeCount:    len(nodes),
		EdgeCount:    len(edges),
		NodesByType:  make(map[models.NodeType]int),
		NodesByGroup: make(map[models.NodeCategory]int),
	}

	for _, node := range nodes {
		m.NodesByType[node.Type]++

		category := node.Type.Category()
		m.NodesByGroup[category]++

		switch category {
		case models.CategoryContext:
			m.ContextNodes++
		case models.CategoryReasoning:
			m.ReasoningNodes++
		case models.CategoryControl:
			m.ControlNodes++
		}
	}

	divisor := len(nodes)
	if divisor < 1 {
		divisor = 1
	}

	m.Complexity = float64(len(edges)) / float64(divisor)

	m.Errors = ValidateWorkflow(nodes, edges)
	m.Valid = len(m.Errors) == 0

	return m
}
