package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nodeloom/nodeloom/pkg/graph"
	"github.com/nodeloom/nodeloom/pkg/models"
	"github.com/nodeloom/nodeloom/pkg/stream"
)

// Cost charged per reasoning node in a dry run. Dry runs are free in reality;
// a fixed nominal figure exercises the client's cost accounting.
const dryRunNodeCost = 0.001

// dryRun executes a graph without any model calls: nodes run in topological
// order and reasoning nodes echo their configuration as streamed chunks. The
// result is a complete SSE body.
func dryRun(nodes []models.Node, edges []models.Edge) ([]byte, error) {
	if errs := graph.ValidateWorkflow(nodes, edges); len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, "; "))
	}

	order, ok := graph.TopologicalSort(nodes, edges)
	if !ok {
		return nil, errors.New("workflow contains cycles")
	}

	byID := make(map[string]models.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	var buf bytes.Buffer

	writeEvent(&buf, stream.Event{Type: stream.EventWorkflowStart})

	var (
		finalOutput string
		totalCost   float64
	)

	for _, id := range order {
		node := byID[id]

		writeEvent(&buf, stream.Event{Type: stream.EventNodeStart, NodeID: id, NodeName: node.Data.Label})

		output := dryRunOutput(node)

		if node.Type.Category() == models.CategoryReasoning {
			// Stream the output in two chunks so consumers exercise
			// accumulation, then finalize with node_end: it is the one
			// terminal event a model-backed node gets, and it carries
			// the usage figures.
			half := len(output) / 2
			writeEvent(&buf, stream.Event{Type: stream.EventChunk, NodeID: id, Content: output[:half]})
			writeEvent(&buf, stream.Event{Type: stream.EventChunk, NodeID: id, Content: output[half:], ChunkIndex: 1})

			totalCost += dryRunNodeCost

			writeEvent(&buf, stream.Event{
				Type:       stream.EventNodeEnd,
				NodeID:     id,
				Output:     output,
				TokensUsed: len(output) / 4,
				Cost:       dryRunNodeCost,
				DurationMS: 1,
			})
		} else {
			writeEvent(&buf, stream.Event{Type: stream.EventNodeComplete, NodeID: id, Output: output})
		}

		if output != "" {
			finalOutput = output
		}
	}

	writeEvent(&buf, stream.Event{
		Type:        stream.EventWorkflowComplete,
		FinalOutput: finalOutput,
		TotalCost:   totalCost,
	})

	return buf.Bytes(), nil
}

func dryRunOutput(node models.Node) string {
	switch node.Type.Category() {
	case models.CategoryReasoning:
		label := node.Data.Label
		if label == "" {
			label = string(node.Type)
		}

		return fmt.Sprintf("[dry-run] %s would process its inputs here", label)
	case models.CategoryContext:
		return fmt.Sprintf("[dry-run] %s provides context", node.Type)
	default:
		return ""
	}
}

func writeEvent(buf *bytes.Buffer, event stream.Event) {
	// Events are plain structs; marshalling cannot fail.
	payload, _ := json.Marshal(event)

	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
}
