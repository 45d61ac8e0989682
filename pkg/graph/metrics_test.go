package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/pkg/models"
)

func TestComputeMetricsEmptyGraph(t *testing.T) {
	m := ComputeMetrics(nil, nil)

	assert.Equal(t, 0, m.NodeCount)
	assert.Equal(t, 0, m.EdgeCount)
	assert.Equal(t, 0.0, m.Complexity)
	assert.False(t, m.Valid)
}

func TestComputeMetricsCounts(t *testing.T) {
	nodes := []models.Node{
		node("start", models.NodeTypeStart),
		node("doc", models.NodeTypeDocument),
		node("pin", models.NodeTypePin),
		node("model", models.NodeTypeModel),
		node("end", models.NodeTypeEnd),
	}
	edges := []models.Edge{
		edge("start", "model"),
		edge("doc", "model"),
		edge("pin", "model"),
		edge("model", "end"),
	}

	m := ComputeMetrics(nodes, edges)

	assert.Equal(t, 5, m.NodeCount)
	assert.Equal(t, 4, m.EdgeCount)
	assert.Equal(t, 2, m.ContextNodes)
	assert.Equal(t, 1, m.ReasoningNodes)
	assert.Equal(t, 2, m.ControlNodes)
	assert.Equal(t, 1, m.NodesByType[models.NodeTypeModel])
	assert.Equal(t, 2, m.NodesByGroup[models.CategoryContext])
	assert.InDelta(t, 0.8, m.Complexity, 1e-9)

	require.Empty(t, m.Errors)
	assert.True(t, m.Valid)
}
