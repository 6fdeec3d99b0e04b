package schema

// Builder event types appended to the local event journal and published on
// the event hub as the graph and lifecycle mutate.
const (
	EventNodeAdded     = "node_added"
	EventNodeRemoved   = "node_removed"
	EventNodeMoved     = "node_moved"
	EventNodeConfigSet = "node_config_set"
	EventEdgeAdded     = "edge_added"
	EventEdgeRemoved   = "edge_removed"

	EventWorkflowSaved = "workflow_saved"
	EventWorkflowBuilt = "workflow_built"

	EventChatStarted  = "chat_started"
	EventChatHint     = "chat_hint"
	EventChatResolved = "chat_resolved"
)
