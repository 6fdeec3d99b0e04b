package schema

import "time"

// ComponentType identifies a component definition in the registry.
type ComponentType string

// Built-in component types of the AI pipeline catalog.
const (
	ComponentUserQuery     ComponentType = "user-query"
	ComponentKnowledgeBase ComponentType = "knowledge-base"
	ComponentLLMEngine     ComponentType = "llm-engine"
	ComponentOutput        ComponentType = "output"
)

// ComponentDefinition describes one entry of the static component catalog:
// its ports, default configuration, and optional config validation rules.
// Definitions are immutable after registration.
type ComponentDefinition struct {
	Type        ComponentType  `json:"type"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Inputs      []string       `json:"inputs"`
	Outputs     []string       `json:"outputs"`
	Config      map[string]any `json:"config"`

	// ConfigSchema is an optional JSON Schema (Draft 2020-12) validating a
	// node's config map. Constraint is an optional CEL expression over the
	// variable "config" that must evaluate to true.
	ConfigSchema []byte `json:"config_schema,omitempty"`
	Constraint   string `json:"constraint,omitempty"`
}

// IsEntry reports whether the component type declares no input ports,
// making its nodes workflow starting points.
func (d *ComponentDefinition) IsEntry() bool { return len(d.Inputs) == 0 }

// IsTerminal reports whether the component type declares no output ports,
// making its nodes workflow ending points.
func (d *ComponentDefinition) IsTerminal() bool { return len(d.Outputs) == 0 }

// HasInput reports whether the named input port is declared.
func (d *ComponentDefinition) HasInput(port string) bool {
	return containsPort(d.Inputs, port)
}

// HasOutput reports whether the named output port is declared.
func (d *ComponentDefinition) HasOutput(port string) bool {
	return containsPort(d.Outputs, port)
}

func containsPort(ports []string, port string) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

// Position is a node's canvas coordinate. The core never interprets it;
// it is carried verbatim for the persistence payload.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one placed component instance in a workflow graph.
type Node struct {
	ID       string         `json:"id"`
	Type     ComponentType  `json:"type"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config"`
}

// Edge connects a source node's output port to a target node's input port.
type Edge struct {
	ID         string `json:"id"`
	SourceID   string `json:"source"`
	SourcePort string `json:"source_port"`
	TargetID   string `json:"target"`
	TargetPort string `json:"target_port"`
}

// WorkflowStatus enumerates the lifecycle states of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft WorkflowStatus = "draft"
	WorkflowStatusSaved WorkflowStatus = "saved"
	WorkflowStatusBuilt WorkflowStatus = "built"
)

// Workflow is the in-memory representation of one assembled pipeline.
// RemoteID is empty until the first successful create call.
type Workflow struct {
	RemoteID    string         `json:"workflow_id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	Status      WorkflowStatus `json:"status"`
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// Message is a single transcript entry. Confirmed distinguishes the
// locally-committed phase of an optimistic append from the
// server-confirmed one.
type Message struct {
	ID        string    `json:"id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Confirmed bool      `json:"confirmed"`
}

// ChatSession holds the transcript of one conversational UI session with a
// built workflow. Messages are not persisted server-side.
type ChatSession struct {
	WorkflowID string    `json:"workflow_id"`
	Messages   []Message `json:"messages"`
}
