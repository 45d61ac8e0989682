package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/pkg/models"
)

func TestAddNodeAssignsCounterIDs(t *testing.T) {
	s := NewStore(nil)

	first := s.AddNode(models.NodeTypeStart, models.Position{}, models.NodeData{})
	second := s.AddNode(models.NodeTypeModel, models.Position{X: 10}, models.NodeData{})

	assert.Equal(t, "node_1", first.ID)
	assert.Equal(t, "node_2", second.ID)
	assert.Equal(t, models.NodeStatusIdle, first.Data.Status)
	assert.Equal(t, "start", first.Data.Label)
}

func TestUpdateNodeCommittedVsTransient(t *testing.T) {
	s := NewStore(nil)
	node := s.AddNode(models.NodeTypeModel, models.Position{}, models.NodeData{})

	require.NoError(t, s.UpdateNodeTransient(node.ID, func(n *models.Node) {
		n.Position.X = 99
	}))

	require.NoError(t, s.UpdateNode(node.ID, func(n *models.Node) {
		n.Data.Label = "renamed"
	}))

	// Undo reverts the committed rename, not the transient move.
	require.NoError(t, s.Undo())

	nodes := s.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "model", nodes[0].Data.Label)
}

func TestUpdateNodeUnknownID(t *testing.T) {
	s := NewStore(nil)

	err := s.UpdateNode("ghost", func(*models.Node) {})
	require.Error(t, err)
	assert.True(t, IsNodeNotFound(err))
}

func TestDeleteNodeCascadesEdges(t *testing.T) {
	s := NewStore(nil)
	start := s.AddNode(models.NodeTypeStart, models.Position{}, models.NodeData{})
	model := s.AddNode(models.NodeTypeModel, models.Position{}, models.NodeData{})
	end := s.AddNode(models.NodeTypeEnd, models.Position{}, models.NodeData{})

	_, err := s.Connect(start.ID, model.ID)
	require.NoError(t, err)
	_, err = s.Connect(model.ID, end.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteNode(model.ID))

	assert.Len(t, s.Nodes(), 2)
	assert.Empty(t, s.Edges())

	// One undo restores the node and both incident edges together.
	require.NoError(t, s.Undo())
	assert.Len(t, s.Nodes(), 3)
	assert.Len(t, s.Edges(), 2)
}

func TestDuplicateNodeOffsetAndSelection(t *testing.T) {
	s := NewStore(nil)
	node := s.AddNode(models.NodeTypeChat, models.Position{X: 100, Y: 200}, models.NodeData{})

	require.NoError(t, s.UpdateNode(node.ID, func(n *models.Node) {
		n.Selected = true
	}))

	copied, err := s.DuplicateNode(node.ID)
	require.NoError(t, err)

	assert.NotEqual(t, node.ID, copied.ID)
	assert.Equal(t, 132.0, copied.Position.X)
	assert.Equal(t, 232.0, copied.Position.Y)
	assert.False(t, copied.Selected)
	assert.Len(t, s.Nodes(), 2)
}

func TestBeginDragDuplicateIdempotentPerGesture(t *testing.T) {
	s := NewStore(nil)
	node := s.AddNode(models.NodeTypePin, models.Position{}, models.NodeData{})

	first, err := s.BeginDragDuplicate("gesture-1", node.ID)
	require.NoError(t, err)

	// Pointer-move replays of the same gesture must not insert again.
	second, err := s.BeginDragDuplicate("gesture-1", node.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, s.Nodes(), 2)

	// A new gesture inserts a new copy.
	third, err := s.BeginDragDuplicate("gesture-2", node.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Len(t, s.Nodes(), 3)
}

func TestConnectRejectsIllegalEdge(t *testing.T) {
	s := NewStore(nil)
	model := s.AddNode(models.NodeTypeModel, models.Position{}, models.NodeData{})
	doc := s.AddNode(models.NodeTypeDocument, models.Position{}, models.NodeData{})

	_, err := s.Connect(model.ID, doc.ID)
	require.Error(t, err)
	assert.True(t, IsInvalidConnection(err))
	assert.Empty(t, s.Edges())
}

func TestConnectRejectsCycle(t *testing.T) {
	s := NewStore(nil)
	a := s.AddNode(models.NodeTypeModel, models.Position{}, models.NodeData{})
	b := s.AddNode(models.NodeTypePersona, models.Position{}, models.NodeData{})

	_, err := s.Connect(a.ID, b.ID)
	require.NoError(t, err)

	_, err = s.Connect(b.ID, a.ID)
	require.Error(t, err)
	assert.True(t, IsWouldCreateCycle(err))
	assert.Len(t, s.Edges(), 1)
}

func TestDeleteEdges(t *testing.T) {
	s := NewStore(nil)
	a := s.AddNode(models.NodeTypeModel, models.Position{}, models.NodeData{})
	b := s.AddNode(models.NodeTypeEnd, models.Position{}, models.NodeData{})

	edge, err := s.Connect(a.ID, b.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteEdges(edge.ID, "ghost"))
	assert.Empty(t, s.Edges())

	assert.ErrorIs(t, s.DeleteEdges("ghost"), ErrEdgeNotFound)
}

func TestUndoRedoBoundaries(t *testing.T) {
	s := NewStore(nil)

	assert.ErrorIs(t, s.Undo(), ErrNothingToUndo)
	assert.ErrorIs(t, s.Redo(), ErrNothingToRedo)

	s.AddNode(models.NodeTypeStart, models.Position{}, models.NodeData{})

	require.True(t, s.CanUndo())
	require.NoError(t, s.Undo())
	assert.Empty(t, s.Nodes())

	require.True(t, s.CanRedo())
	require.NoError(t, s.Redo())
	assert.Len(t, s.Nodes(), 1)

	assert.ErrorIs(t, s.Redo(), ErrNothingToRedo)
}

func TestMutationTruncatesRedoTail(t *testing.T) {
	s := NewStore(nil)
	s.AddNode(models.NodeTypeStart, models.Position{}, models.NodeData{})
	s.AddNode(models.NodeTypeModel, models.Position{}, models.NodeData{})

	require.NoError(t, s.Undo())
	require.True(t, s.CanRedo())

	// Mutating from an undone state forks the timeline.
	s.AddNode(models.NodeTypeEnd, models.Position{}, models.NodeData{})

	assert.False(t, s.CanRedo())

	nodes := s.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, models.NodeTypeEnd, nodes[1].Type)
}

func TestHistoryPrunedToBound(t *testing.T) {
	s := NewStore(nil)

	for range MaxHistory + 20 {
		s.AddNode(models.NodeTypePin, models.Position{}, models.NodeData{})
	}

	undos := 0
	for s.Undo() == nil {
		undos++
	}

	assert.Equal(t, MaxHistory-1, undos)

	// Oldest retained snapshot, not the empty initial state.
	assert.Len(t, s.Nodes(), 20+1)
}

func TestClearIsUndoable(t *testing.T) {
	s := NewStore(nil)
	s.AddNode(models.NodeTypeStart, models.Position{}, models.NodeData{})
	s.AddNode(models.NodeTypeEnd, models.Position{}, models.NodeData{})

	s.Clear()
	assert.Empty(t, s.Nodes())

	require.NoError(t, s.Undo())
	assert.Len(t, s.Nodes(), 2)

	// Counter keeps climbing after a clear.
	node := s.AddNode(models.NodeTypeModel, models.Position{}, models.NodeData{})
	assert.Equal(t, "node_3", node.ID)
}

func TestLoadAdvancesCounter(t *testing.T) {
	s := NewStore(nil)

	s.Load([]models.Node{
		{ID: "node_7", Type: models.NodeTypeStart, Data: models.NodeData{Label: "start", Type: models.NodeTypeStart}},
	}, nil)

	node := s.AddNode(models.NodeTypeEnd, models.Position{}, models.NodeData{})
	assert.Equal(t, "node_8", node.ID)
}

func TestSnapshotsAreIsolatedFromCallers(t *testing.T) {
	s := NewStore(nil)
	s.AddNode(models.NodeTypeChat, models.Position{}, models.NodeData{})

	nodes := s.Nodes()
	nodes[0].Data.Label = "mutated"

	fresh := s.Nodes()
	assert.Equal(t, "chat", fresh[0].Data.Label)
}

func TestConcurrentMutationsStayConsistent(t *testing.T) {
	s := NewStore(nil)

	done := make(chan struct{})

	for i := range 4 {
		go func(i int) {
			defer func() { done <- struct{}{} }()

			for j := range 25 {
				s.AddNode(models.NodeTypePin, models.Position{X: float64(i), Y: float64(j)}, models.NodeData{})
			}
		}(i)
	}

	for range 4 {
		<-done
	}

	nodes := s.Nodes()
	require.Len(t, nodes, 100)

	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		assert.False(t, seen[n.ID], fmt.Sprintf("duplicate id %s", n.ID))
		seen[n.ID] = true
	}
}
