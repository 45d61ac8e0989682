// Package web provides HTTP request and response types for the editor API.
package web

import "github.com/nodeloom/nodeloom/pkg/models"

// SaveDraftRequest is the body for storing a draft workflow.
type SaveDraftRequest struct {
	Name     string                  `json:"name"               validate:"required,min=1"`
	Nodes    []models.SerializedNode `json:"nodes"`
	Edges    []models.SerializedEdge `json:"edges"`
	Viewport *models.Viewport        `json:"viewport,omitempty"`
	Tags     []string                `json:"tags,omitempty"`
}

// GraphRequest is the body for the stateless graph endpoints: validation,
// metrics and execution ordering.
type GraphRequest struct {
	Nodes []models.SerializedNode `json:"nodes"`
	Edges []models.SerializedEdge `json:"edges"`
}

// nodes converts the wire nodes back to their live form.
func (r GraphRequest) nodes() []models.Node {
	nodes := make([]models.Node, len(r.Nodes))

	for i, sn := range r.Nodes {
		nodes[i] = models.Node{
			ID:       sn.ID,
			Type:     sn.Type,
			Position: sn.Position,
			Data:     sn.Data,
		}
	}

	return nodes
}

// ValidateResponse reports every violated rule for a graph.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// SortResponse is the execution order for an acyclic graph.
type SortResponse struct {
	Order []string `json:"order"`
}

// ExecuteStreamRequest is the body for a dry-run execution stream.
type ExecuteStreamRequest struct {
	Inputs map[string]any `json:"inputs,omitempty"`
}
