package mcp

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowstack-dev/flowstack/internal/chat"
	"github.com/flowstack-dev/flowstack/internal/graph"
	"github.com/flowstack-dev/flowstack/internal/lifecycle"
	"github.com/flowstack-dev/flowstack/internal/registry"
	"github.com/flowstack-dev/flowstack/internal/validation"
)

// FlowstackServerDeps holds the dependencies for creating a FlowstackServer.
type FlowstackServerDeps struct {
	Registry     *registry.Registry
	Graph        *graph.Graph
	Checker      *validation.Checker
	Orchestrator *lifecycle.Orchestrator
	Responder    chat.Responder
	ChatOptions  []chat.Option
	Logger       *slog.Logger
}

// FlowstackServer wraps an MCP server with workflow-builder tool handlers.
// An agent assembles a pipeline with add_node/connect/edit, promotes it
// with build, and converses with it through the chat tool.
type FlowstackServer struct {
	registry     *registry.Registry
	graph        *graph.Graph
	checker      *validation.Checker
	orchestrator *lifecycle.Orchestrator
	responder    chat.Responder
	chatOptions  []chat.Option
	logger       *slog.Logger
	mcpServer    *server.MCPServer

	chatMu      sync.Mutex
	coordinator *chat.Coordinator
}

// NewFlowstackServer creates a FlowstackServer with all tools registered.
func NewFlowstackServer(deps FlowstackServerDeps) *FlowstackServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowstackServer{
		registry:     deps.Registry,
		graph:        deps.Graph,
		checker:      deps.Checker,
		orchestrator: deps.Orchestrator,
		responder:    deps.Responder,
		chatOptions:  deps.ChatOptions,
		logger:       logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowstack",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowstack is an AI-pipeline workflow builder. Use flowstack.add_node to place components, flowstack.connect to wire their ports, flowstack.edit to reconfigure or remove, flowstack.inspect to review the graph and its validation verdict, flowstack.build to save and validate the workflow against the backend, and flowstack.chat to converse with a built workflow."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowstackServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowstackServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowstackServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: addNodeTool(), Handler: s.handleAddNode},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: editTool(), Handler: s.handleEdit},
		{Tool: inspectTool(), Handler: s.handleInspect},
		{Tool: buildTool(), Handler: s.handleBuild},
		{Tool: chatTool(), Handler: s.handleChat},
	}
}

// --- Tool definitions ---

func addNodeTool() mcp.Tool {
	return mcp.NewTool("flowstack.add_node",
		mcp.WithDescription("Add a component node to the workflow graph"),
		mcp.WithString("type", mcp.Required(),
			mcp.Enum("user-query", "knowledge-base", "llm-engine", "output"),
			mcp.Description("Component type to place"),
		),
		mcp.WithNumber("x", mcp.Description("Canvas X position")),
		mcp.WithNumber("y", mcp.Description("Canvas Y position")),
		mcp.WithObject("config", mcp.Description("Config overrides merged over the component defaults")),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("flowstack.connect",
		mcp.WithDescription("Connect a source node's output port to a target node's input port"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source node ID")),
		mcp.WithString("source_port", mcp.Required(), mcp.Description("Output port on the source node")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target node ID")),
		mcp.WithString("target_port", mcp.Required(), mcp.Description("Input port on the target node")),
	)
}

func editTool() mcp.Tool {
	return mcp.NewTool("flowstack.edit",
		mcp.WithDescription("Edit the workflow graph: reconfigure, move, or remove nodes and edges"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("set_config", "move_node", "remove_node", "remove_edge"),
			mcp.Description("Edit action to apply"),
		),
		mcp.WithString("node_id", mcp.Description("Target node ID (set_config, move_node, remove_node)")),
		mcp.WithString("edge_id", mcp.Description("Target edge ID (remove_edge)")),
		mcp.WithObject("config", mcp.Description("Partial config to merge (set_config)")),
		mcp.WithNumber("x", mcp.Description("New X position (move_node)")),
		mcp.WithNumber("y", mcp.Description("New Y position (move_node)")),
	)
}

func inspectTool() mcp.Tool {
	return mcp.NewTool("flowstack.inspect",
		mcp.WithDescription("Inspect the workflow: nodes, edges, lifecycle status, the structural validation verdict, or the llm-engine node's effective system prompt"),
		mcp.WithString("section", mcp.Description("Restrict output to one section"),
			mcp.Enum("graph", "validation", "components", "status", "prompt"),
		),
	)
}

func buildTool() mcp.Tool {
	return mcp.NewTool("flowstack.build",
		mcp.WithDescription("Validate the workflow locally, save it to the backend, and promote it to Built on a positive remote verdict"),
	)
}

func chatTool() mcp.Tool {
	return mcp.NewTool("flowstack.chat",
		mcp.WithDescription("Send a message to the built workflow and return the assistant reply with the session transcript"),
		mcp.WithString("message", mcp.Required(), mcp.Description("User message to send")),
	)
}
