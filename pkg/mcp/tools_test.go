package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/internal/graph"
	"github.com/flowstack-dev/flowstack/internal/lifecycle"
	"github.com/flowstack-dev/flowstack/internal/registry"
	"github.com/flowstack-dev/flowstack/internal/validation"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// --- Mock backend ---

type mockBackend struct {
	createID    string
	createErr   error
	updateErr   error
	validateOK  bool
	validateErr error
}

func (m *mockBackend) CreateWorkflow(_ context.Context, _, _ string, _ []schema.Node, _ []schema.Edge) (string, error) {
	return m.createID, m.createErr
}

func (m *mockBackend) UpdateWorkflow(_ context.Context, _ string, _ []schema.Node, _ []schema.Edge) error {
	return m.updateErr
}

func (m *mockBackend) ValidateWorkflow(_ context.Context, _ string) (bool, error) {
	return m.validateOK, m.validateErr
}

// --- Mock responder ---

type mockResponder struct {
	text string
	err  error
}

func (m *mockResponder) Chat(_ context.Context, _, _ string) (string, error) {
	return m.text, m.err
}

// --- Helpers ---

func newTestServer(t *testing.T, backend lifecycle.Backend, responder *mockResponder) *FlowstackServer {
	t.Helper()

	reg := registry.Default()
	g := graph.New(reg, nil)
	checker := validation.NewChecker(reg, nil)
	orch := lifecycle.NewOrchestrator("Test Stack", "", g, checker, backend)

	return NewFlowstackServer(FlowstackServerDeps{
		Registry:     reg,
		Graph:        g,
		Checker:      checker,
		Orchestrator: orch,
		Responder:    responder,
	})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

// wireMinimalPipeline adds an entry and a terminal node through the tool
// surface and returns their IDs.
func wireMinimalPipeline(t *testing.T, s *FlowstackServer) (entryID, outID string) {
	t.Helper()
	ctx := context.Background()

	result, err := s.handleAddNode(ctx, buildRequest("flowstack.add_node", map[string]any{
		"type": "user-query",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var added struct {
		NodeID string `json:"node_id"`
	}
	unmarshalResult(t, result, &added)
	entryID = added.NodeID

	result, err = s.handleAddNode(ctx, buildRequest("flowstack.add_node", map[string]any{
		"type": "output",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	unmarshalResult(t, result, &added)
	outID = added.NodeID

	result, err = s.handleConnect(ctx, buildRequest("flowstack.connect", map[string]any{
		"source":      entryID,
		"source_port": "query",
		"target":      outID,
		"target_port": "response",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	return entryID, outID
}

// --- Tests ---

func TestAddNodeTool(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleAddNode(context.Background(), buildRequest("flowstack.add_node", map[string]any{
		"type": "llm-engine",
		"x":    120.0,
		"y":    80.0,
		"config": map[string]any{
			"temperature": 0.2,
		},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		NodeID string         `json:"node_id"`
		Type   string         `json:"type"`
		Config map[string]any `json:"config"`
	}
	unmarshalResult(t, result, &got)
	assert.NotEmpty(t, got.NodeID)
	assert.Equal(t, "llm-engine", got.Type)
	// Override merged over the catalog defaults.
	assert.Equal(t, 0.2, got.Config["temperature"])
	assert.Equal(t, "gpt-4", got.Config["model"])
}

func TestAddNodeToolUnknownType(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleAddNode(context.Background(), buildRequest("flowstack.add_node", map[string]any{
		"type": "quantum-engine",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAddNodeToolMissingType(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleAddNode(context.Background(), buildRequest("flowstack.add_node", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestConnectTool(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})
	wireMinimalPipeline(t, s)
}

func TestConnectToolUnknownNode(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleConnect(context.Background(), buildRequest("flowstack.connect", map[string]any{
		"source":      "ghost",
		"source_port": "query",
		"target":      "ghost2",
		"target_port": "response",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "connect failed")
}

func TestConnectToolMissingArguments(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleConnect(context.Background(), buildRequest("flowstack.connect", map[string]any{
		"source": "n1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestEditToolSetConfig(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})
	entryID, _ := wireMinimalPipeline(t, s)

	result, err := s.handleEdit(context.Background(), buildRequest("flowstack.edit", map[string]any{
		"action":  "set_config",
		"node_id": entryID,
		"config":  map[string]any{"placeholder": "ask me"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		Config map[string]any `json:"config"`
	}
	unmarshalResult(t, result, &got)
	assert.Equal(t, "ask me", got.Config["placeholder"])
}

func TestEditToolRemoveNode(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})
	entryID, _ := wireMinimalPipeline(t, s)

	result, err := s.handleEdit(context.Background(), buildRequest("flowstack.edit", map[string]any{
		"action":  "remove_node",
		"node_id": entryID,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	// The node and its edge are gone from the graph section.
	result, err = s.handleInspect(context.Background(), buildRequest("flowstack.inspect", map[string]any{
		"section": "graph",
	}))
	require.NoError(t, err)

	var got struct {
		Nodes []schema.Node `json:"nodes"`
		Edges []schema.Edge `json:"edges"`
	}
	unmarshalResult(t, result, &got)
	assert.Len(t, got.Nodes, 1)
	assert.Empty(t, got.Edges)
}

func TestEditToolUnknownAction(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleEdit(context.Background(), buildRequest("flowstack.edit", map[string]any{
		"action": "explode",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestInspectToolValidationSection(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleInspect(context.Background(), buildRequest("flowstack.inspect", map[string]any{
		"section": "validation",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	// The empty graph fails structural validation.
	var got schema.ValidationResult
	unmarshalResult(t, result, &got)
	assert.False(t, got.Valid())
}

func TestInspectToolStatusSection(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleInspect(context.Background(), buildRequest("flowstack.inspect", map[string]any{
		"section": "status",
	}))
	require.NoError(t, err)

	var got struct {
		Status  string `json:"status"`
		DraftID string `json:"draft_id"`
	}
	unmarshalResult(t, result, &got)
	assert.Equal(t, string(schema.WorkflowStatusDraft), got.Status)
	assert.NotEmpty(t, got.DraftID)
}

func TestInspectToolComponentsSection(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleInspect(context.Background(), buildRequest("flowstack.inspect", map[string]any{
		"section": "components",
	}))
	require.NoError(t, err)

	var got struct {
		Components []schema.ComponentDefinition `json:"components"`
	}
	unmarshalResult(t, result, &got)
	assert.Len(t, got.Components, 4)
}

func TestInspectToolPromptSection(t *testing.T) {
	s := newTestServer(t, &mockBackend{createID: "wf-1", validateOK: true}, &mockResponder{text: "hi there"})
	entryID, outID := wireMinimalPipeline(t, s)

	result, err := s.handleAddNode(context.Background(), buildRequest("flowstack.add_node", map[string]any{
		"type": "llm-engine",
		"config": map[string]any{
			"systemPrompt": "You are a helpful AI assistant. Question: {{query}}\n{{history}}",
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var added struct {
		NodeID string `json:"node_id"`
	}
	unmarshalResult(t, result, &added)

	// Keep the graph structurally valid with the llm node in the chain.
	result, err = s.handleConnect(context.Background(), buildRequest("flowstack.connect", map[string]any{
		"source": entryID, "source_port": "query", "target": added.NodeID, "target_port": "query",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	result, err = s.handleConnect(context.Background(), buildRequest("flowstack.connect", map[string]any{
		"source": added.NodeID, "source_port": "response", "target": outID, "target_port": "response",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	// No session yet: placeholders render empty.
	result, err = s.handleInspect(context.Background(), buildRequest("flowstack.inspect", map[string]any{
		"section": "prompt",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		Template        string `json:"template"`
		Rendered        string `json:"rendered"`
		HasPlaceholders bool   `json:"has_placeholders"`
	}
	unmarshalResult(t, result, &got)
	assert.Contains(t, got.Template, "{{query}}")
	assert.True(t, got.HasPlaceholders)
	assert.NotContains(t, got.Rendered, "{{")

	// After an exchange, the latest user message and the transcript flow in.
	result, err = s.handleBuild(context.Background(), buildRequest("flowstack.build", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	result, err = s.handleChat(context.Background(), buildRequest("flowstack.chat", map[string]any{
		"message": "what is RAG?",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleInspect(context.Background(), buildRequest("flowstack.inspect", map[string]any{
		"section": "prompt",
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &got)
	assert.Contains(t, got.Rendered, "Question: what is RAG?")
	assert.Contains(t, got.Rendered, "assistant: hi there")
}

func TestInspectToolPromptSectionNoLLMNode(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})
	wireMinimalPipeline(t, s)

	result, err := s.handleInspect(context.Background(), buildRequest("flowstack.inspect", map[string]any{
		"section": "prompt",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "no llm-engine node")
}

func TestInspectToolDefaultCombined(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})
	wireMinimalPipeline(t, s)

	result, err := s.handleInspect(context.Background(), buildRequest("flowstack.inspect", map[string]any{}))
	require.NoError(t, err)

	var got map[string]any
	unmarshalResult(t, result, &got)
	assert.Contains(t, got, "nodes")
	assert.Contains(t, got, "validation")
	assert.Contains(t, got, "status")
}

func TestBuildTool(t *testing.T) {
	s := newTestServer(t, &mockBackend{createID: "wf-1", validateOK: true}, &mockResponder{})
	wireMinimalPipeline(t, s)

	result, err := s.handleBuild(context.Background(), buildRequest("flowstack.build", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		Status     string `json:"status"`
		WorkflowID string `json:"workflow_id"`
	}
	unmarshalResult(t, result, &got)
	assert.Equal(t, string(schema.WorkflowStatusBuilt), got.Status)
	assert.Equal(t, "wf-1", got.WorkflowID)
}

func TestBuildToolStructurallyInvalid(t *testing.T) {
	s := newTestServer(t, &mockBackend{createID: "wf-1", validateOK: true}, &mockResponder{})

	result, err := s.handleBuild(context.Background(), buildRequest("flowstack.build", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// The error payload carries the validation issues.
	var got struct {
		Error      string                  `json:"error"`
		Validation schema.ValidationResult `json:"validation"`
	}
	require.NoError(t, json.Unmarshal([]byte(extractText(t, result)), &got))
	assert.NotEmpty(t, got.Error)
	assert.NotEmpty(t, got.Validation.Errors)
}

func TestBuildToolBackendRejection(t *testing.T) {
	s := newTestServer(t, &mockBackend{createID: "wf-1", validateOK: false}, &mockResponder{})
	wireMinimalPipeline(t, s)

	result, err := s.handleBuild(context.Background(), buildRequest("flowstack.build", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestChatToolRequiresBuiltWorkflow(t *testing.T) {
	s := newTestServer(t, &mockBackend{createID: "wf-1", validateOK: true}, &mockResponder{text: "hi"})

	result, err := s.handleChat(context.Background(), buildRequest("flowstack.chat", map[string]any{
		"message": "hello",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "not built")
}

func TestChatTool(t *testing.T) {
	s := newTestServer(t, &mockBackend{createID: "wf-1", validateOK: true}, &mockResponder{text: "the answer is 42"})
	wireMinimalPipeline(t, s)

	result, err := s.handleBuild(context.Background(), buildRequest("flowstack.build", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleChat(context.Background(), buildRequest("flowstack.chat", map[string]any{
		"message": "what is the answer?",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		OK         bool             `json:"ok"`
		Response   string           `json:"response"`
		Transcript []schema.Message `json:"transcript"`
	}
	unmarshalResult(t, result, &got)
	assert.True(t, got.OK)
	assert.Equal(t, "the answer is 42", got.Response)
	require.Len(t, got.Transcript, 2)
	assert.Equal(t, schema.RoleUser, got.Transcript[0].Role)
}

func TestChatToolFailureKeepsTranscript(t *testing.T) {
	s := newTestServer(t, &mockBackend{createID: "wf-1", validateOK: true},
		&mockResponder{err: errors.New("rate limit exceeded")})
	wireMinimalPipeline(t, s)

	result, err := s.handleBuild(context.Background(), buildRequest("flowstack.build", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleChat(context.Background(), buildRequest("flowstack.chat", map[string]any{
		"message": "hello",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		OK         bool             `json:"ok"`
		Error      string           `json:"error"`
		Transcript []schema.Message `json:"transcript"`
	}
	unmarshalResult(t, result, &got)
	assert.False(t, got.OK)
	assert.NotEmpty(t, got.Error)
	// Optimistic user message plus the system explanation.
	require.Len(t, got.Transcript, 2)
	assert.Equal(t, schema.RoleSystem, got.Transcript[1].Role)
	assert.Contains(t, got.Transcript[1].Content, "Rate limit")
}

func TestChatToolMissingMessage(t *testing.T) {
	s := newTestServer(t, &mockBackend{}, &mockResponder{})

	result, err := s.handleChat(context.Background(), buildRequest("flowstack.chat", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
