package store

import (
	"encoding/json"
	"time"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// Draft is the locally persisted representation of a workflow under
// construction. RemoteID stays empty until the backend assigns one.
type Draft struct {
	ID          string                `json:"id"`
	RemoteID    string                `json:"remote_id,omitempty"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Nodes       []schema.Node         `json:"nodes"`
	Edges       []schema.Edge         `json:"edges"`
	Status      schema.WorkflowStatus `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Event is an immutable entry in the mutation journal.
type Event struct {
	ID        int64           `json:"id"`
	DraftID   string          `json:"draft_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}
