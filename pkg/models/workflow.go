package models

import "time"

// Graph is the canonical in-memory node/edge state owned by the graph store
// during an editing session.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}

	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}

	copy(out.Edges, g.Edges)

	return out
}

// NodeByID returns the node with the given id, or false when absent.
func (g Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return Node{}, false
}

// Viewport is the saved canvas pan/zoom state.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// SerializedNode is the wire form of a node: same shape as Node minus the
// selection flag, with presentation-only data fields stripped.
type SerializedNode struct {
	ID       string   `json:"id"       validate:"required"`
	Type     NodeType `json:"type"     validate:"required"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// SerializedEdge is the wire form of an edge. Edges carry no presentation
// state, so the live form is copied verbatim.
type SerializedEdge = Edge

// WorkflowDTO is the wire form of a workflow. It is a derived, disposable
// projection of the live graph with no back-reference to it.
type WorkflowDTO struct {
	ID                    string           `json:"id,omitempty"`
	Name                  string           `json:"name"                             validate:"required,min=1"`
	Description           string           `json:"description,omitempty"`
	Nodes                 []SerializedNode `json:"nodes"`
	Edges                 []SerializedEdge `json:"edges"`
	Viewport              *Viewport        `json:"viewport,omitempty"`
	Version               int              `json:"version,omitempty"`
	Tags                  []string         `json:"tags,omitempty"`
	IsPublic              bool             `json:"is_public,omitempty"`
	IsActive              *bool            `json:"is_active,omitempty"`
	CreatedAt             string           `json:"created_at,omitempty"`
	UpdatedAt             string           `json:"updated_at,omitempty"`
	PreprocessedKnowledge map[string]any   `json:"preprocessed_knowledge,omitempty"`
}

// WorkflowMetadata is the lighter list-view projection returned by the
// backend workflow index.
type WorkflowMetadata struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	NodeCount    int      `json:"node_count"`
	EdgeCount    int      `json:"edge_count"`
	LastExecuted string   `json:"last_executed,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
	Tags         []string `json:"tags,omitempty"`
	IsPublic     bool     `json:"is_public"`
	IsActive     *bool    `json:"is_active,omitempty"`
	RunsCount    int      `json:"runs_count,omitempty"`
}

// ExecutionResult is the outcome of a non-streaming execution, or a summary
// row from the run history.
type ExecutionResult struct {
	WorkflowID        string         `json:"workflow_id"`
	RunID             string         `json:"run_id,omitempty"`
	Status            string         `json:"status"`
	FinalOutput       string         `json:"final_output,omitempty"`
	TotalCost         float64        `json:"total_cost,omitempty"`
	ExecutionMetadata map[string]any `json:"execution_metadata,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// HistoryEntry is one whole-state undo/redo snapshot.
type HistoryEntry struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Snapshot captures a deep copy of the given state as a history entry.
func Snapshot(nodes []Node, edges []Edge) HistoryEntry {
	entry := HistoryEntry{
		Nodes: make([]Node, len(nodes)),
		Edges: make([]Edge, len(edges)),
	}

	for i, n := range nodes {
		entry.Nodes[i] = n.Clone()
	}

	copy(entry.Edges, edges)

	return entry
}
