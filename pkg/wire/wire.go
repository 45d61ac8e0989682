// Package wire converts between the live editor graph and the WorkflowDTO
// wire form. Incoming blobs are schema-checked before they are deserialized.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nodeloom/nodeloom/pkg/models"
)

// Serialize projects the live graph into its wire form. Presentation-only
// node data is stripped, the selection flag is dropped, and the DTO shares no
// memory with the live state.
func Serialize(name string, nodes []models.Node, edges []models.Edge, viewport *models.Viewport) models.WorkflowDTO {
	dto := models.WorkflowDTO{
		Name:  name,
		Nodes: make([]models.SerializedNode, len(nodes)),
		Edges: make([]models.SerializedEdge, len(edges)),
	}

	for i, node := range nodes {
		dto.Nodes[i] = models.SerializedNode{
			ID:       node.ID,
			Type:     node.Type,
			Position: node.Position,
			Data:     node.Data.Sanitized(),
		}
	}

	copy(dto.Edges, edges)

	if viewport != nil {
		v := *viewport
		dto.Viewport = &v
	}

	dto.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	return dto
}

// Deserialize is the structural inverse of Serialize. Returned nodes start
// unselected with presentation state at zero values; round-tripping preserves
// everything Serialize keeps.
func Deserialize(dto models.WorkflowDTO) ([]models.Node, []models.Edge, *models.Viewport) {
	nodes := make([]models.Node, len(dto.Nodes))

	for i, sn := range dto.Nodes {
		nodes[i] = models.Node{
			ID:       sn.ID,
			Type:     sn.Type,
			Position: sn.Position,
			Data:     sn.Data.Clone(),
		}
	}

	edges := make([]models.SerializedEdge, len(dto.Edges))
	copy(edges, dto.Edges)

	var viewport *models.Viewport

	if dto.Viewport != nil {
		v := *dto.Viewport
		viewport = &v
	}

	return nodes, edges, viewport
}

// workflowSchema is the structural contract an incoming wire blob must meet
// before Deserialize will touch it.
const workflowSchema = `{
	"type": "object",
	"required": ["name", "nodes", "edges"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type", "position"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"type": {
						"type": "string",
						"enum": ["start", "end", "document", "chat", "pin", "persona", "model", "phantom"]
					},
					"position": {
						"type": "object",
						"required": ["x", "y"],
						"properties": {
							"x": {"type": "number"},
							"y": {"type": "number"}
						}
					},
					"data": {"type": "object"}
				}
			}
		},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "source", "target"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"source": {"type": "string", "minLength": 1},
					"target": {"type": "string", "minLength": 1}
				}
			}
		},
		"viewport": {
			"type": "object",
			"properties": {
				"x": {"type": "number"},
				"y": {"type": "number"},
				"zoom": {"type": "number", "exclusiveMinimum": 0}
			}
		}
	}
}`

// ValidateBlob checks a raw wire blob against the workflow schema.
func ValidateBlob(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(workflowSchema)
	dataLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}

	if !result.Valid() {
		var descs []string
		for _, desc := range result.Errors() {
			descs = append(descs, desc.String())
		}

		return fmt.Errorf("invalid workflow payload: %s", strings.Join(descs, "; "))
	}

	return nil
}

// Decode schema-checks and unmarshals a raw wire blob into a DTO.
func Decode(raw []byte) (models.WorkflowDTO, error) {
	if err := ValidateBlob(raw); err != nil {
		return models.WorkflowDTO{}, err
	}

	var dto models.WorkflowDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return models.WorkflowDTO{}, fmt.Errorf("decode workflow: %w", err)
	}

	return dto, nil
}
