// Package store owns the canonical in-memory graph state of an editing
// session: nodes, edges, the session-local id counter and the bounded
// undo/redo history.
package store

import (
	"errors"
	"fmt"
)

// Standard store error types.
var (
	// ErrNodeNotFound indicates a node was not found by the given identifier.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound indicates an edge was not found by the given identifier.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrInvalidConnection indicates the proposed edge violates a connection rule.
	ErrInvalidConnection = errors.New("invalid connection")

	// ErrWouldCreateCycle indicates the proposed edge would close a cycle.
	ErrWouldCreateCycle = errors.New("connection would create a cycle")

	// ErrNothingToUndo indicates the history cursor is at the oldest snapshot.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo indicates the history cursor is at the newest snapshot.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// NodeError wraps node-related store errors with operation context.
type NodeError struct {
	Op     string // Operation being performed (e.g., "UpdateNode", "DuplicateNode")
	NodeID string // Node ID
	Err    error  // Underlying error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s failed for node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewNodeError creates a node error with operation context.
func NewNodeError(op, nodeID string, err error) *NodeError {
	return &NodeError{Op: op, NodeID: nodeID, Err: err}
}

// ConnectionError wraps edge-related store errors with both endpoints.
type ConnectionError struct {
	Op     string // Operation being performed
	Source string // Source node ID
	Target string // Target node ID
	Err    error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s failed for connection %s -> %s: %v", e.Op, e.Source, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsInvalidConnection checks if an error indicates an illegal edge.
func IsInvalidConnection(err error) bool {
	return errors.Is(err, ErrInvalidConnection)
}

// IsWouldCreateCycle checks if an error indicates a cycle-closing edge.
func IsWouldCreateCycle(err error) bool {
	return errors.Is(err, ErrWouldCreateCycle)
}
