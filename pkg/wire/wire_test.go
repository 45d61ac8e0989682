package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/pkg/models"
)

func sampleGraph() ([]models.Node, []models.Edge) {
	temp := 0.5

	nodes := []models.Node{
		{
			ID:   "node_1",
			Type: models.NodeTypeStart,
			Data: models.NodeData{Label: "Start", Type: models.NodeTypeStart},
		},
		{
			ID:       "node_2",
			Type:     models.NodeTypeModel,
			Position: models.Position{X: 120, Y: 80},
			Selected: true,
			Data: models.NodeData{
				Label:              "Claude",
				Type:               models.NodeTypeModel,
				SelectedModel:      "claude-sonnet",
				Temperature:        &temp,
				IsHighlighted:      true,
				OnOpenInstructions: func() {},
			},
		},
		{
			ID:   "node_3",
			Type: models.NodeTypeEnd,
			Data: models.NodeData{Label: "End", Type: models.NodeTypeEnd},
		},
	}

	edges := []models.Edge{
		{ID: "e1", Source: "node_1", Target: "node_2"},
		{ID: "e2", Source: "node_2", Target: "node_3"},
	}

	return nodes, edges
}

func TestSerializeStripsPresentationState(t *testing.T) {
	nodes, edges := sampleGraph()

	dto := Serialize("demo", nodes, edges, &models.Viewport{Zoom: 1.5})

	require.Len(t, dto.Nodes, 3)
	require.Len(t, dto.Edges, 2)
	assert.Equal(t, "demo", dto.Name)
	assert.NotEmpty(t, dto.UpdatedAt)

	model := dto.Nodes[1]
	assert.False(t, model.Data.IsHighlighted)
	assert.Nil(t, model.Data.OnOpenInstructions)
	assert.Equal(t, "claude-sonnet", model.Data.SelectedModel)

	// The DTO must not alias the live graph.
	dto.Nodes[1].Data.SelectedModel = "other"
	assert.Equal(t, "claude-sonnet", nodes[1].Data.SelectedModel)
}

func TestRoundTripPreservesGraph(t *testing.T) {
	nodes, edges := sampleGraph()

	dto := Serialize("demo", nodes, edges, nil)
	gotNodes, gotEdges, viewport := Deserialize(dto)

	require.Len(t, gotNodes, len(nodes))
	assert.Equal(t, edges, gotEdges)
	assert.Nil(t, viewport)

	for i := range nodes {
		assert.Equal(t, nodes[i].ID, gotNodes[i].ID)
		assert.Equal(t, nodes[i].Type, gotNodes[i].Type)
		assert.Equal(t, nodes[i].Position, gotNodes[i].Position)
		assert.Equal(t, nodes[i].Data.Label, gotNodes[i].Data.Label)

		// Presentation state does not survive the trip.
		assert.False(t, gotNodes[i].Selected)
		assert.False(t, gotNodes[i].Data.IsHighlighted)
	}

	if nodes[1].Data.Temperature != nil {
		require.NotNil(t, gotNodes[1].Data.Temperature)
		assert.Equal(t, *nodes[1].Data.Temperature, *gotNodes[1].Data.Temperature)
	}
}

func TestDecodeAcceptsValidBlob(t *testing.T) {
	nodes, edges := sampleGraph()
	raw, err := json.Marshal(Serialize("demo", nodes, edges, &models.Viewport{X: 1, Y: 2, Zoom: 1}))
	require.NoError(t, err)

	dto, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "demo", dto.Name)
	assert.Len(t, dto.Nodes, 3)
}

func TestDecodeRejectsBadBlobs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing name", `{"nodes": [], "edges": []}`},
		{"empty name", `{"name": "", "nodes": [], "edges": []}`},
		{"unknown node type", `{"name": "x", "nodes": [{"id": "n1", "type": "widget", "position": {"x": 0, "y": 0}}], "edges": []}`},
		{"node without position", `{"name": "x", "nodes": [{"id": "n1", "type": "start"}], "edges": []}`},
		{"edge without target", `{"name": "x", "nodes": [], "edges": [{"id": "e1", "source": "n1"}]}`},
		{"zero zoom", `{"name": "x", "nodes": [], "edges": [], "viewport": {"x": 0, "y": 0, "zoom": 0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}
