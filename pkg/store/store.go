package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nodeloom/nodeloom/pkg/graph"
	"github.com/nodeloom/nodeloom/pkg/models"
)

// MaxHistory bounds the undo stack; the oldest snapshot is dropped first.
const MaxHistory = 50

// Offset applied to a duplicated node so the copy is visibly distinct.
const duplicateOffset = 32

// Store holds the live graph for one editing session. All identity-changing
// mutations take the single mutex, so each committed mutation and its history
// snapshot are atomic with respect to concurrent readers.
type Store struct {
	mu sync.Mutex

	nodes   []models.Node
	edges   []models.Edge
	counter int

	history []models.HistoryEntry
	cursor  int

	// Drag-duplicate gestures already handled, gesture id -> created node id.
	gestures map[string]string

	logger *slog.Logger
}

// NewStore creates an empty session store. The initial empty state is the
// first history entry, so the very first mutation can be undone.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		history:  []models.HistoryEntry{models.Snapshot(nil, nil)},
		gestures: make(map[string]string),
		logger:   logger.With("module", "store"),
	}
}

// Nodes returns a deep copy of the current node list.
func (s *Store) Nodes() []models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.Snapshot(s.nodes, nil).Nodes
}

// Edges returns a copy of the current edge list.
func (s *Store) Edges() []models.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Edge(nil), s.edges...)
}

// Graph returns a deep copy of the whole current state.
func (s *Store) Graph() models.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.Graph{Nodes: s.nodes, Edges: s.edges}.Clone()
}

// AddNode creates a node of the given type at the given position and commits
// the change. Node ids are session-local and never reused within a session.
func (s *Store) AddNode(nodeType models.NodeType, position models.Position, data models.NodeData) models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.addNodeLocked(nodeType, position, data)
	s.pushHistoryLocked()

	return node
}

func (s *Store) addNodeLocked(nodeType models.NodeType, position models.Position, data models.NodeData) models.Node {
	s.counter++

	data.Type = nodeType
	if data.Label == "" {
		data.Label = string(nodeType)
	}

	if data.Status == "" {
		data.Status = models.NodeStatusIdle
	}

	node := models.Node{
		ID:       fmt.Sprintf("node_%d", s.counter),
		Type:     nodeType,
		Position: position,
		Data:     data,
	}

	s.nodes = append(s.nodes, node)
	s.logger.Debug("node added", "node_id", node.ID, "type", node.Type)

	return node.Clone()
}

// UpdateNode applies fn to the node and commits a history snapshot. Use it for
// discrete edits such as renaming or changing a node's configuration.
func (s *Store) UpdateNode(id string, fn func(*models.Node)) error {
	return s.updateNode("UpdateNode", id, fn, true)
}

// UpdateNodeTransient applies fn without recording history. Use it for
// high-frequency intermediate states (drag positions, streaming output) that
// must not pollute the undo stack.
func (s *Store) UpdateNodeTransient(id string, fn func(*models.Node)) error {
	return s.updateNode("UpdateNodeTransient", id, fn, false)
}

func (s *Store) updateNode(op, id string, fn func(*models.Node), commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.nodes {
		if s.nodes[i].ID != id {
			continue
		}

		fn(&s.nodes[i])

		if commit {
			s.pushHistoryLocked()
		}

		return nil
	}

	return NewNodeError(op, id, ErrNodeNotFound)
}

// SetNodeStatus is a transient status update, used while an execution stream
// is applying node transitions.
func (s *Store) SetNodeStatus(id string, status models.NodeStatus) error {
	return s.UpdateNodeTransient(id, func(n *models.Node) {
		n.Data.Status = status
	})
}

// DeleteNode removes the node and every edge incident to it in one committed
// mutation, so undo restores both together.
func (s *Store) DeleteNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false

	kept := s.nodes[:0]

	for _, node := range s.nodes {
		if node.ID == id {
			found = true

			continue
		}

		kept = append(kept, node)
	}

	if !found {
		return NewNodeError("DeleteNode", id, ErrNodeNotFound)
	}

	s.nodes = kept

	keptEdges := s.edges[:0]

	for _, edge := range s.edges {
		if edge.Source == id || edge.Target == id {
			continue
		}

		keptEdges = append(keptEdges, edge)
	}

	s.edges = keptEdges
	s.pushHistoryLocked()
	s.logger.Debug("node deleted", "node_id", id)

	return nil
}

// DuplicateNode copies a node under a fresh id, offset so the copy does not
// cover the original, with selection cleared.
func (s *Store) DuplicateNode(id string) (models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.duplicateNodeLocked(id)
	if err != nil {
		return models.Node{}, err
	}

	s.pushHistoryLocked()

	return node, nil
}

func (s *Store) duplicateNodeLocked(id string) (models.Node, error) {
	for _, node := range s.nodes {
		if node.ID != id {
			continue
		}

		s.counter++

		copied := node.Clone()
		copied.ID = fmt.Sprintf("node_%d", s.counter)
		copied.Position.X += duplicateOffset
		copied.Position.Y += duplicateOffset
		copied.Selected = false

		s.nodes = append(s.nodes, copied)

		return copied.Clone(), nil
	}

	return models.Node{}, NewNodeError("DuplicateNode", id, ErrNodeNotFound)
}

// BeginDragDuplicate inserts a duplicate at the start of an alt-drag gesture.
// It is idempotent per gesture id: repeat calls for the same gesture return
// the node created by the first call without inserting again.
func (s *Store) BeginDragDuplicate(gestureID, nodeID string) (models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if createdID, ok := s.gestures[gestureID]; ok {
		for _, node := range s.nodes {
			if node.ID == createdID {
				return node.Clone(), nil
			}
		}

		return models.Node{}, NewNodeError("BeginDragDuplicate", createdID, ErrNodeNotFound)
	}

	node, err := s.duplicateNodeLocked(nodeID)
	if err != nil {
		return models.Node{}, err
	}

	s.gestures[gestureID] = node.ID
	s.pushHistoryLocked()

	return node, nil
}

// Connect adds an edge after checking type legality and cycle safety. A
// rejected edge is never added in any form.
func (s *Store) Connect(sourceID, targetID string) (models.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := findNodeLocked(s.nodes, sourceID)
	if !ok {
		return models.Edge{}, NewNodeError("Connect", sourceID, ErrNodeNotFound)
	}

	target, ok := findNodeLocked(s.nodes, targetID)
	if !ok {
		return models.Edge{}, NewNodeError("Connect", targetID, ErrNodeNotFound)
	}

	if !graph.IsValidConnection(source.Type, target.Type) {
		return models.Edge{}, &ConnectionError{
			Op: "Connect", Source: sourceID, Target: targetID, Err: ErrInvalidConnection,
		}
	}

	if graph.HasPath(targetID, sourceID, s.edges) {
		return models.Edge{}, &ConnectionError{
			Op: "Connect", Source: sourceID, Target: targetID, Err: ErrWouldCreateCycle,
		}
	}

	edge := models.Edge{
		ID:     uuid.NewString(),
		Source: sourceID,
		Target: targetID,
	}

	s.edges = append(s.edges, edge)
	s.pushHistoryLocked()
	s.logger.Debug("edge added", "source", sourceID, "target", targetID)

	return edge, nil
}

// DeleteEdges removes the given edges in one committed mutation. Unknown ids
// are ignored; the call only errors when nothing matched.
func (s *Store) DeleteEdges(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	kept := s.edges[:0]
	removed := 0

	for _, edge := range s.edges {
		if wanted[edge.ID] {
			removed++

			continue
		}

		kept = append(kept, edge)
	}

	if removed == 0 {
		return ErrEdgeNotFound
	}

	s.edges = kept
	s.pushHistoryLocked()

	return nil
}

// Clear wipes all nodes and edges as one undoable mutation. The id counter is
// not reset, so ids stay unique across a clear.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = nil
	s.edges = nil
	s.pushHistoryLocked()
}

// Load replaces the whole state, committing one snapshot. The id counter
// jumps past any loaded counter-style id so future ids stay unique.
func (s *Store) Load(nodes []models.Node, edges []models.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := models.Snapshot(nodes, edges)
	s.nodes = entry.Nodes
	s.edges = entry.Edges

	for _, node := range s.nodes {
		var n int
		if _, err := fmt.Sscanf(node.ID, "node_%d", &n); err == nil && n > s.counter {
			s.counter = n
		}
	}

	s.pushHistoryLocked()
}

// Undo steps the cursor back one snapshot and restores it wholesale.
func (s *Store) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor == 0 {
		return ErrNothingToUndo
	}

	s.cursor--
	s.restoreLocked()

	return nil
}

// Redo steps the cursor forward one snapshot and restores it wholesale.
func (s *Store) Redo() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.history)-1 {
		return ErrNothingToRedo
	}

	s.cursor++
	s.restoreLocked()

	return nil
}

// CanUndo reports whether Undo would change state.
func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor > 0
}

// CanRedo reports whether Redo would change state.
func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor < len(s.history)-1
}

func (s *Store) restoreLocked() {
	entry := s.history[s.cursor]
	restored := models.Snapshot(entry.Nodes, entry.Edges)
	s.nodes = restored.Nodes
	s.edges = restored.Edges
}

// pushHistoryLocked records the current state after a committed mutation. Any
// redo tail past the cursor is discarded; mutating from an undone state forks
// the timeline.
func (s *Store) pushHistoryLocked() {
	s.history = s.history[:s.cursor+1]
	s.history = append(s.history, models.Snapshot(s.nodes, s.edges))

	if len(s.history) > MaxHistory {
		s.history = s.history[len(s.history)-MaxHistory:]
	}

	s.cursor = len(s.history) - 1
}

func findNodeLocked(nodes []models.Node, id string) (models.Node, bool) {
	for _, node := range nodes {
		if node.ID == id {
			return node, true
		}
	}

	return models.Node{}, false
}
