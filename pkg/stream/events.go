// Package stream consumes server-sent execution events and translates them
// into node status transitions and typed callbacks for the editor.
package stream

// EventType is the closed set of execution event kinds on the wire.
type EventType string

const (
	EventWorkflowStart    EventType = "workflow_start"
	EventNodeStart        EventType = "node_start"
	EventChunk            EventType = "chunk"
	EventNodeEnd          EventType = "node_end"
	EventNodeComplete     EventType = "node_complete"
	EventWorkflowComplete EventType = "workflow_complete"
	EventError            EventType = "error"
)

// known reports whether the event type is part of the closed set. Anything
// else is skipped with a warning so future server additions do not break
// older clients.
func (t EventType) known() bool {
	switch t {
	case EventWorkflowStart, EventNodeStart, EventChunk, EventNodeEnd,
		EventNodeComplete, EventWorkflowComplete, EventError:
		return true
	default:
		return false
	}
}

// Event is one execution event. Fields beyond Type are populated per kind:
// NodeID for node-scoped events, NodeName on node_start, Content/ChunkIndex
// for chunks, Output/TokensUsed/Cost/DurationMS on the terminal node events,
// FinalOutput/TotalCost on workflow_complete, Message on error (NodeID
// optional there; absent means the whole run failed).
type Event struct {
	Type        EventType `json:"type"`
	NodeID      string    `json:"node_id,omitempty"`
	NodeName    string    `json:"node_name,omitempty"`
	Content     string    `json:"content,omitempty"`
	ChunkIndex  int       `json:"chunk_index,omitempty"`
	Output      string    `json:"output,omitempty"`
	TokensUsed  int       `json:"tokens_used,omitempty"`
	Cost        float64   `json:"cost,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	FinalOutput string    `json:"final_output,omitempty"`
	TotalCost   float64   `json:"total_cost,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Usage carries the resource figures a node_end event reports for one node.
type Usage struct {
	TokensUsed int
	Cost       float64
	DurationMS int64
}

// Callbacks receives the translated stream. Any field may be nil. Callbacks
// run on the stream's reader goroutine and never after Abort returns.
// Exactly one of OnNodeEnd, OnNodeComplete or a node-scoped OnError fires
// per node: node_end finalizes model-backed nodes with their usage figures,
// node_complete finalizes the rest.
type Callbacks struct {
	OnWorkflowStart func()

	OnNodeStart func(nodeID, nodeName string)

	// OnChunk receives the cumulative output for the node, not the delta.
	OnChunk func(nodeID, accumulated string, chunkIndex int)

	OnNodeEnd func(nodeID, output string, usage Usage)

	OnNodeComplete func(nodeID, output string, cost float64)

	OnWorkflowComplete func(finalOutput string, totalCost float64)

	// OnError receives a node id for node-scoped failures and an empty
	// string when the whole run failed.
	OnError func(nodeID, message string)
}
