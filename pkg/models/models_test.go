package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTypeCategory(t *testing.T) {
	tests := []struct {
		nodeType NodeType
		want     NodeCategory
	}{
		{NodeTypeDocument, CategoryContext},
		{NodeTypeChat, CategoryContext},
		{NodeTypePin, CategoryContext},
		{NodeTypePersona, CategoryReasoning},
		{NodeTypeModel, CategoryReasoning},
		{NodeTypeStart, CategoryControl},
		{NodeTypeEnd, CategoryControl},
		{NodeTypePhantom, CategoryControl},
		{NodeType("unknown"), CategoryControl},
	}

	for _, tt := range tests {
		t.Run(string(tt.nodeType), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.nodeType.Category())
		})
	}
}

func TestNodeCloneIsDeep(t *testing.T) {
	temp := 0.7
	maxTokens := 2048

	original := Node{
		ID:   "node_1",
		Type: NodeTypeModel,
		Data: NodeData{
			Label:         "Model",
			Type:          NodeTypeModel,
			Temperature:   &temp,
			MaxTokens:     &maxTokens,
			SelectedChats: []string{"chat-1"},
			Files:         []FileRef{{Name: "notes.txt", Size: 42}},
		},
	}

	clone := original.Clone()

	*clone.Data.Temperature = 0.1
	*clone.Data.MaxTokens = 1
	clone.Data.SelectedChats[0] = "chat-2"
	clone.Data.Files[0].Name = "other.txt"

	assert.Equal(t, 0.7, *original.Data.Temperature)
	assert.Equal(t, 2048, *original.Data.MaxTokens)
	assert.Equal(t, "chat-1", original.Data.SelectedChats[0])
	assert.Equal(t, "notes.txt", original.Data.Files[0].Name)
}

func TestNodeDataSanitized(t *testing.T) {
	opened := false

	data := NodeData{
		Label:              "Persona",
		Type:               NodeTypePersona,
		IsHighlighted:      true,
		OnOpenInstructions: func() { opened = true },
	}

	clean := data.Sanitized()

	assert.False(t, clean.IsHighlighted)
	assert.Nil(t, clean.OnOpenInstructions)
	assert.Equal(t, "Persona", clean.Label)

	// Original untouched.
	require.NotNil(t, data.OnOpenInstructions)
	data.OnOpenInstructions()
	assert.True(t, opened)
}

func TestSnapshotIsIndependent(t *testing.T) {
	nodes := []Node{{ID: "node_1", Type: NodeTypeChat, Data: NodeData{Label: "Chat", Type: NodeTypeChat}}}
	edges := []Edge{{ID: "e1", Source: "node_1", Target: "node_2"}}

	entry := Snapshot(nodes, edges)

	nodes[0].Data.Label = "changed"
	edges[0].Target = "node_9"

	require.Len(t, entry.Nodes, 1)
	assert.Equal(t, "Chat", entry.Nodes[0].Data.Label)
	assert.Equal(t, "node_2", entry.Edges[0].Target)
}

func TestGraphNodeByID(t *testing.T) {
	g := Graph{Nodes: []Node{{ID: "node_1"}, {ID: "node_2"}}}

	node, ok := g.NodeByID("node_2")
	require.True(t, ok)
	assert.Equal(t, "node_2", node.ID)

	_, ok = g.NodeByID("node_3")
	assert.False(t, ok)
}
