package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flowstack-dev/flowstack/internal/chat"
	"github.com/flowstack-dev/flowstack/internal/prompt"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// handleAddNode places a new component node.
func (s *FlowstackServer) handleAddNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	componentType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required"), nil
	}

	pos := schema.Position{
		X: req.GetFloat("x", 0),
		Y: req.GetFloat("y", 0),
	}

	node, addErr := s.graph.AddNode(schema.ComponentType(componentType), pos)
	if addErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add node failed: %v", addErr)), nil
	}

	if config := mcp.ParseStringMap(req, "config", nil); config != nil {
		if cfgErr := s.graph.UpdateNodeConfig(node.ID, config); cfgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("apply config failed: %v", cfgErr)), nil
		}
		node, _ = s.graph.Node(node.ID)
	}

	return marshalResult(map[string]any{
		"node_id": node.ID,
		"type":    string(node.Type),
		"config":  node.Config,
	})
}

// handleConnect wires an edge between two nodes.
func (s *FlowstackServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	sourcePort, err := req.RequireString("source_port")
	if err != nil {
		return mcp.NewToolResultError("source_port is required"), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("target is required"), nil
	}
	targetPort, err := req.RequireString("target_port")
	if err != nil {
		return mcp.NewToolResultError("target_port is required"), nil
	}

	edge, connErr := s.graph.AddEdge(source, sourcePort, target, targetPort)
	if connErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("connect failed: %v", connErr)), nil
	}

	return marshalResult(map[string]any{
		"edge_id": edge.ID,
		"source":  edge.SourceID,
		"target":  edge.TargetID,
	})
}

// handleEdit applies a graph edit: config merge, move, or removal.
func (s *FlowstackServer) handleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	switch action {
	case "set_config":
		nodeID := req.GetString("node_id", "")
		if nodeID == "" {
			return mcp.NewToolResultError("node_id is required for set_config"), nil
		}
		config := mcp.ParseStringMap(req, "config", nil)
		if config == nil {
			return mcp.NewToolResultError("config is required for set_config"), nil
		}
		if cfgErr := s.graph.UpdateNodeConfig(nodeID, config); cfgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("set_config failed: %v", cfgErr)), nil
		}
		node, _ := s.graph.Node(nodeID)
		return marshalResult(map[string]any{"node_id": nodeID, "config": node.Config})

	case "move_node":
		nodeID := req.GetString("node_id", "")
		if nodeID == "" {
			return mcp.NewToolResultError("node_id is required for move_node"), nil
		}
		s.graph.MoveNode(nodeID, schema.Position{
			X: req.GetFloat("x", 0),
			Y: req.GetFloat("y", 0),
		})
		return marshalResult(map[string]any{"node_id": nodeID, "moved": true})

	case "remove_node":
		nodeID := req.GetString("node_id", "")
		if nodeID == "" {
			return mcp.NewToolResultError("node_id is required for remove_node"), nil
		}
		s.graph.RemoveNode(nodeID)
		return marshalResult(map[string]any{"node_id": nodeID, "removed": true})

	case "remove_edge":
		edgeID := req.GetString("edge_id", "")
		if edgeID == "" {
			return mcp.NewToolResultError("edge_id is required for remove_edge"), nil
		}
		s.graph.RemoveEdge(edgeID)
		return marshalResult(map[string]any{"edge_id": edgeID, "removed": true})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

// handleInspect reports the graph, its validation verdict, the component
// catalog, or the lifecycle status.
func (s *FlowstackServer) handleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	section := req.GetString("section", "")

	nodes, edges := s.graph.Snapshot()

	switch section {
	case "graph":
		return marshalResult(map[string]any{"nodes": nodes, "edges": edges})
	case "validation":
		return marshalResult(s.checker.Check(nodes, edges))
	case "components":
		return marshalResult(map[string]any{"components": s.registry.List()})
	case "status":
		return marshalResult(map[string]any{
			"status":      string(s.orchestrator.Status()),
			"workflow_id": s.orchestrator.RemoteID(),
			"draft_id":    s.orchestrator.DraftID(),
		})
	case "prompt":
		return s.inspectPrompt(nodes)
	case "":
		return marshalResult(map[string]any{
			"nodes":       nodes,
			"edges":       edges,
			"validation":  s.checker.Check(nodes, edges),
			"status":      string(s.orchestrator.Status()),
			"workflow_id": s.orchestrator.RemoteID(),
		})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown section: %s", section)), nil
	}
}

// inspectPrompt renders the llm-engine node's system prompt with its
// placeholders resolved against the current chat session: {{query}} is the
// latest user message, {{history}} the transcript so far.
func (s *FlowstackServer) inspectPrompt(nodes []schema.Node) (*mcp.CallToolResult, error) {
	var template string
	found := false
	for _, n := range nodes {
		if n.Type != schema.ComponentLLMEngine {
			continue
		}
		template, _ = n.Config["systemPrompt"].(string)
		found = true
		break
	}
	if !found {
		return mcp.NewToolResultError("no llm-engine node in the graph"), nil
	}

	scope := prompt.Scope{History: s.transcript()}
	for i := len(scope.History) - 1; i >= 0; i-- {
		if scope.History[i].Role == schema.RoleUser {
			scope.Query = scope.History[i].Content
			break
		}
	}

	return marshalResult(map[string]any{
		"template":         template,
		"rendered":         prompt.Interpolate(template, scope),
		"has_placeholders": prompt.HasPlaceholders(template),
	})
}

// handleBuild runs the save-and-validate lifecycle.
func (s *FlowstackServer) handleBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, buildErr := s.orchestrator.Build(ctx)
	if buildErr != nil {
		payload := map[string]any{"error": buildErr.Error()}
		if result != nil {
			payload["validation"] = result
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return mcp.NewToolResultError(buildErr.Error()), nil
		}
		return mcp.NewToolResultError(string(data)), nil
	}

	return marshalResult(map[string]any{
		"status":      string(s.orchestrator.Status()),
		"workflow_id": s.orchestrator.RemoteID(),
		"validation":  result,
	})
}

// handleChat sends a message through the built workflow.
func (s *FlowstackServer) handleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message is required"), nil
	}

	coordinator, coordErr := s.chatCoordinator()
	if coordErr != nil {
		return mcp.NewToolResultError(coordErr.Error()), nil
	}

	sendErr := coordinator.Send(ctx, message)
	transcript := coordinator.Transcript()

	if sendErr != nil {
		return marshalResult(map[string]any{
			"ok":         false,
			"error":      sendErr.Error(),
			"transcript": transcript,
		})
	}

	var reply string
	if len(transcript) > 0 {
		reply = transcript[len(transcript)-1].Content
	}
	return marshalResult(map[string]any{
		"ok":         true,
		"response":   reply,
		"transcript": transcript,
	})
}

// chatCoordinator lazily creates the session bound to the built workflow.
func (s *FlowstackServer) chatCoordinator() (*chat.Coordinator, error) {
	if !s.orchestrator.Built() {
		return nil, schema.NewError(schema.ErrCodeInvalidTransition,
			"workflow is not built; run flowstack.build first")
	}

	s.chatMu.Lock()
	defer s.chatMu.Unlock()

	if s.coordinator == nil {
		opts := append([]chat.Option{chat.WithLogger(s.logger)}, s.chatOptions...)
		s.coordinator = chat.NewCoordinator(s.orchestrator.RemoteID(), s.responder, opts...)
	}
	return s.coordinator, nil
}

// transcript returns the current session messages, or nil before the
// first chat exchange.
func (s *FlowstackServer) transcript() []schema.Message {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	if s.coordinator == nil {
		return nil
	}
	return s.coordinator.Transcript()
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
