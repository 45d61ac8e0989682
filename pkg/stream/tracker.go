package stream

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nodeloom/nodeloom/pkg/models"
)

// Tracker folds the event stream into per-node state. Each node moves
// Idle -> Running -> {Success, Error}; transitions out of a terminal state
// are rejected and logged, never applied.
type Tracker struct {
	mu sync.Mutex

	states    map[string]models.NodeStatus
	buffers   map[string]*strings.Builder
	totalCost float64
	finished  bool

	callbacks Callbacks
	logger    *slog.Logger
}

// NewTracker wires the callbacks the folded transitions are reported to.
func NewTracker(callbacks Callbacks, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		states:    make(map[string]models.NodeStatus),
		buffers:   make(map[string]*strings.Builder),
		callbacks: callbacks,
		logger:    logger.With("module", "stream"),
	}
}

// Apply folds one event and fires the matching callback. It returns true when
// the stream is finished (workflow_complete or an unscoped error).
func (t *Tracker) Apply(event Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		t.logger.Warn("event after stream finished", "type", event.Type)

		return true
	}

	switch event.Type {
	case EventWorkflowStart:
		if t.callbacks.OnWorkflowStart != nil {
			t.callbacks.OnWorkflowStart()
		}

	case EventNodeStart:
		t.startNodeLocked(event.NodeID, event.NodeName)

	case EventChunk:
		t.applyChunkLocked(event)

	case EventNodeEnd:
		t.endNodeLocked(event)

	case EventNodeComplete:
		t.completeNodeLocked(event)

	case EventWorkflowComplete:
		t.finished = true

		total := event.TotalCost
		if total == 0 {
			total = t.totalCost
		}

		if t.callbacks.OnWorkflowComplete != nil {
			t.callbacks.OnWorkflowComplete(event.FinalOutput, total)
		}

	case EventError:
		if event.NodeID != "" {
			// Node-scoped failure: mark the node, keep consuming.
			t.states[event.NodeID] = models.NodeStatusError
		} else {
			t.finished = true
		}

		if t.callbacks.OnError != nil {
			t.callbacks.OnError(event.NodeID, event.Message)
		}
	}

	return t.finished
}

func (t *Tracker) startNodeLocked(nodeID, nodeName string) {
	if state, ok := t.states[nodeID]; ok && state != models.NodeStatusIdle {
		t.logger.Warn("node_start out of order", "node_id", nodeID, "state", state)

		return
	}

	t.states[nodeID] = models.NodeStatusRunning

	if t.callbacks.OnNodeStart != nil {
		t.callbacks.OnNodeStart(nodeID, nodeName)
	}
}

func (t *Tracker) applyChunkLocked(event Event) {
	state := t.states[event.NodeID]

	if state == models.NodeStatusSuccess || state == models.NodeStatusError {
		t.logger.Warn("chunk for terminal node", "node_id", event.NodeID, "state", state)

		return
	}

	// Chunk before node_start: the node is de facto running, synthesize it.
	if state != models.NodeStatusRunning {
		t.startNodeLocked(event.NodeID, event.NodeName)
	}

	buf, ok := t.buffers[event.NodeID]
	if !ok {
		buf = &strings.Builder{}
		t.buffers[event.NodeID] = buf
	}

	buf.WriteString(event.Content)

	if t.callbacks.OnChunk != nil {
		t.callbacks.OnChunk(event.NodeID, buf.String(), event.ChunkIndex)
	}
}

// endNodeLocked finalizes a model-backed node: node_end is its terminal
// success event and carries the output and usage figures. Absent output
// falls back to the accumulated chunks.
func (t *Tracker) endNodeLocked(event Event) {
	state := t.states[event.NodeID]

	if state == models.NodeStatusSuccess || state == models.NodeStatusError {
		t.logger.Warn("node_end for terminal node", "node_id", event.NodeID, "state", state)

		return
	}

	t.states[event.NodeID] = models.NodeStatusSuccess
	t.totalCost += event.Cost

	output := event.Output
	if output == "" {
		if buf, ok := t.buffers[event.NodeID]; ok {
			output = buf.String()
		}
	}

	if t.callbacks.OnNodeEnd != nil {
		t.callbacks.OnNodeEnd(event.NodeID, output, Usage{
			TokensUsed: event.TokensUsed,
			Cost:       event.Cost,
			DurationMS: event.DurationMS,
		})
	}
}

func (t *Tracker) completeNodeLocked(event Event) {
	state := t.states[event.NodeID]

	if state == models.NodeStatusSuccess || state == models.NodeStatusError {
		t.logger.Warn("node_complete for terminal node", "node_id", event.NodeID, "state", state)

		return
	}

	t.states[event.NodeID] = models.NodeStatusSuccess
	t.totalCost += event.Cost

	output := event.Output
	if output == "" {
		if buf, ok := t.buffers[event.NodeID]; ok {
			output = buf.String()
		}
	}

	if t.callbacks.OnNodeComplete != nil {
		t.callbacks.OnNodeComplete(event.NodeID, output, event.Cost)
	}
}

// RunningNodes returns the ids still in the running state, sorted. The abort
// path uses this to mark interrupted nodes.
func (t *Tracker) RunningNodes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string

	for id, state := range t.states {
		if state == models.NodeStatusRunning {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	return ids
}

// NodeStatus returns the tracked state for a node, idle when unseen.
func (t *Tracker) NodeStatus(nodeID string) models.NodeStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[nodeID]; ok {
		return state
	}

	return models.NodeStatusIdle
}

// Output returns the accumulated chunk text for a node.
func (t *Tracker) Output(nodeID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if buf, ok := t.buffers[nodeID]; ok {
		return buf.String()
	}

	return ""
}

// TotalCost returns the cost accumulated from the terminal node events.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.totalCost
}

// Finished reports whether a terminal event has been folded.
func (t *Tracker) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.finished
}
