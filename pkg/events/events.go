// Package events defines event types for editor and execution lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/nodeloom/nodeloom/pkg/models"
)

type EventType string

// Topic carries every editor lifecycle event.
const Topic = "nodeloom.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Editor lifecycle events.
	WorkflowSavedEvent     EventType = "workflow.saved"
	DraftSavedEvent        EventType = "workflow.draft.saved"
	NodeStatusChangedEvent EventType = "node.status.changed"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionAbortedEvent   EventType = "execution.aborted"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	SessionID  string         `json:"session_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowSaved fires after a workflow is persisted to the backend.
type WorkflowSaved struct {
	BaseEvent

	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
	Version   int    `json:"version,omitempty"`
}

func (w WorkflowSaved) GetType() EventType {
	return WorkflowSavedEvent
}

// DraftSaved fires after the crash-recovery draft is written.
type DraftSaved struct {
	BaseEvent

	Trigger string `json:"trigger"` // "autosave", "debounce" or "manual"
}

func (d DraftSaved) GetType() EventType {
	return DraftSavedEvent
}

// NodeStatusChanged fires on every node state transition during a run.
type NodeStatusChanged struct {
	BaseEvent

	NodeID   string            `json:"node_id"`
	Previous models.NodeStatus `json:"previous"`
	Current  models.NodeStatus `json:"current"`
}

func (n NodeStatusChanged) GetType() EventType {
	return NodeStatusChangedEvent
}

// ExecutionStarted fires when a test run opens its stream.
type ExecutionStarted struct {
	BaseEvent

	RunID     string `json:"run_id"`
	NodeCount int    `json:"node_count"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionCompleted fires on a clean workflow_complete.
type ExecutionCompleted struct {
	BaseEvent

	RunID       string        `json:"run_id"`
	FinalOutput string        `json:"final_output,omitempty"`
	TotalCost   float64       `json:"total_cost,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// ExecutionFailed fires when the run terminates with an unscoped error.
type ExecutionFailed struct {
	BaseEvent

	RunID  string `json:"run_id"`
	NodeID string `json:"node_id,omitempty"`
	Error  string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// ExecutionAborted fires when the user cancels a run; InterruptedNodes lists
// the nodes that were still running.
type ExecutionAborted struct {
	BaseEvent

	RunID            string   `json:"run_id"`
	InterruptedNodes []string `json:"interrupted_nodes,omitempty"`
}

func (e ExecutionAborted) GetType() EventType {
	return ExecutionAbortedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
