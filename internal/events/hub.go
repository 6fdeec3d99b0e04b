package events

import "context"

// BuilderEvent is emitted as the graph, lifecycle, or chat coordinator
// mutate state. Observers (autosave, tool notifiers) subscribe to react.
type BuilderEvent struct {
	WorkflowID string `json:"workflow_id,omitempty"`
	NodeID     string `json:"node_id,omitempty"`
	EventType  string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// Filter specifies which events a subscriber wants to receive.
type Filter struct {
	WorkflowID string   `json:"workflow_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// Hub provides pub/sub for builder events.
type Hub interface {
	Publish(ctx context.Context, event BuilderEvent) error
	Subscribe(ctx context.Context, filter Filter) (<-chan BuilderEvent, func(), error)
}
