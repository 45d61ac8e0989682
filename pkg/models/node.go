// Package models defines the core domain models for the workflow graph editor.
package models

// NodeType identifies the kind of a node on the canvas.
type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypeEnd      NodeType = "end"
	NodeTypeDocument NodeType = "document"
	NodeTypeChat     NodeType = "chat"
	NodeTypePin      NodeType = "pin"
	NodeTypePersona  NodeType = "persona"
	NodeTypeModel    NodeType = "model"
	NodeTypePhantom  NodeType = "phantom"
)

// NodeCategory is the derived grouping that drives connection legality.
// It is never stored; it is always computed from the node type.
type NodeCategory string

const (
	CategoryContext   NodeCategory = "context"   // Pure data sources (document, chat, pin)
	CategoryReasoning NodeCategory = "reasoning" // Processing/inference (persona, model)
	CategoryControl   NodeCategory = "control"   // Flow markers (start, end, phantom)
)

// Category returns the derived category for a node type. Unknown types fall
// into the control category, matching how phantom markers are treated.
func (t NodeType) Category() NodeCategory {
	switch t {
	case NodeTypeDocument, NodeTypeChat, NodeTypePin:
		return CategoryContext
	case NodeTypePersona, NodeTypeModel:
		return CategoryReasoning
	default:
		return CategoryControl
	}
}

// NodeStatus defines the live execution state of a node.
type NodeStatus string

const (
	NodeStatusIdle    NodeStatus = "idle"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FileRef describes an uploaded file attached to a document node.
type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// NodeData carries the per-type payload of a node. The type field is the
// discriminator; the optional fields are only meaningful for their owning
// type (selected_model/selected_persona for reasoning nodes, selected_chats/
// selected_pins/files for context nodes). IsHighlighted and OnOpenInstructions
// are presentation state derived by the UI layer and must never reach the wire.
type NodeData struct {
	Label       string     `json:"label"                  validate:"required"`
	Type        NodeType   `json:"type"                   validate:"required"`
	Status      NodeStatus `json:"status"`
	Description string     `json:"description,omitempty"`

	Instructions string `json:"instructions,omitempty"`

	// Reasoning nodes (persona, model).
	SelectedModel   string   `json:"selected_model,omitempty"`
	SelectedPersona string   `json:"selected_persona,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`

	// Context nodes (document, chat, pin).
	SelectedChats []string  `json:"selected_chats,omitempty"`
	SelectedPins  []string  `json:"selected_pins,omitempty"`
	Files         []FileRef `json:"files,omitempty"`

	// Last execution output, cumulative while streaming.
	Output string `json:"output,omitempty"`

	// Presentation-only. Stripped on serialization.
	IsHighlighted      bool   `json:"-"`
	OnOpenInstructions func() `json:"-"`
}

// Clone returns a deep copy of the data.
func (d NodeData) Clone() NodeData {
	out := d

	if d.Temperature != nil {
		v := *d.Temperature
		out.Temperature = &v
	}

	if d.MaxTokens != nil {
		v := *d.MaxTokens
		out.MaxTokens = &v
	}

	out.SelectedChats = append([]string(nil), d.SelectedChats...)
	out.SelectedPins = append([]string(nil), d.SelectedPins...)
	out.Files = append([]FileRef(nil), d.Files...)

	return out
}

// Sanitized returns a copy with the presentation-only fields cleared,
// suitable for the wire form.
func (d NodeData) Sanitized() NodeData {
	out := d.Clone()
	out.IsHighlighted = false
	out.OnOpenInstructions = nil

	return out
}

// Node is a node instance on the canvas. The ID is unique and stable for the
// lifetime of the graph within one editing session.
type Node struct {
	ID       string   `json:"id"       validate:"required"`
	Type     NodeType `json:"type"     validate:"required"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
	Selected bool     `json:"selected,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	out.Data = n.Data.Clone()

	return out
}

// Edge connects two nodes. Both endpoints must reference existing node IDs;
// deleting an endpoint cascades to the edge.
type Edge struct {
	ID           string `json:"id"                      validate:"required"`
	Source       string `json:"source"                  validate:"required"`
	Target       string `json:"target"                  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
	Type         string `json:"type,omitempty"`
}
