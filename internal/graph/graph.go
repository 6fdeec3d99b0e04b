package graph

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/flowstack-dev/flowstack/internal/events"
	"github.com/flowstack-dev/flowstack/internal/registry"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// Graph owns the node and edge sets for one workflow and enforces
// referential integrity on every mutation: edges always reference existing
// nodes and declared ports, and removing a node cascades to every edge
// touching it.
//
// Duplicate edges between identical endpoint/port pairs are permitted and
// not deduplicated.
type Graph struct {
	mu       sync.RWMutex
	registry *registry.Registry
	hub      events.Hub

	nodes []schema.Node
	edges []schema.Edge
}

// New creates an empty Graph backed by the given component registry.
// hub may be nil when no observers are interested in mutations.
func New(reg *registry.Registry, hub events.Hub) *Graph {
	return &Graph{registry: reg, hub: hub}
}

// AddNode places a new node of the given component type. The node's config
// is a deep copy of the definition's defaults, independently mutable.
func (g *Graph) AddNode(ct schema.ComponentType, pos schema.Position) (schema.Node, error) {
	def, err := g.registry.Get(ct)
	if err != nil {
		return schema.Node{}, err
	}

	node := schema.Node{
		ID:       uuid.New().String(),
		Type:     ct,
		Position: pos,
		Config:   copyConfig(def.Config),
	}

	g.mu.Lock()
	g.nodes = append(g.nodes, node)
	g.mu.Unlock()

	g.publish(schema.EventNodeAdded, node.ID, map[string]any{"type": string(ct)})

	// The stored node keeps its own map; hand the caller a copy so config
	// edits must go through UpdateNodeConfig.
	node.Config = copyConfig(node.Config)
	return node, nil
}

// RemoveNode removes the node and cascades removal of every edge
// referencing it. No-op if the node is absent.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()

	idx := g.nodeIndex(id)
	if idx < 0 {
		g.mu.Unlock()
		return
	}
	g.nodes = append(g.nodes[:idx], g.nodes[idx+1:]...)

	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.SourceID != id && e.TargetID != id {
			kept = append(kept, e)
		}
	}
	g.edges = kept
	g.mu.Unlock()

	g.publish(schema.EventNodeRemoved, id, nil)
}

// AddEdge connects a source node's output port to a target node's input
// port. Fails with UNKNOWN_NODE when an endpoint does not exist and
// INVALID_PORT when a port is not declared by the endpoint's component
// type.
func (g *Graph) AddEdge(sourceID, sourcePort, targetID, targetPort string) (schema.Edge, error) {
	g.mu.Lock()
	edge, err := g.addEdgeLocked(sourceID, sourcePort, targetID, targetPort)
	g.mu.Unlock()
	if err != nil {
		return schema.Edge{}, err
	}

	g.publish(schema.EventEdgeAdded, "", map[string]any{
		"edge_id": edge.ID, "source": sourceID, "target": targetID,
	})
	return edge, nil
}

func (g *Graph) addEdgeLocked(sourceID, sourcePort, targetID, targetPort string) (schema.Edge, error) {
	src := g.node(sourceID)
	if src == nil {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeUnknownNode, "source node %q does not exist", sourceID)
	}
	dst := g.node(targetID)
	if dst == nil {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeUnknownNode, "target node %q does not exist", targetID)
	}

	srcDef, err := g.registry.Get(src.Type)
	if err != nil {
		return schema.Edge{}, err
	}
	dstDef, err := g.registry.Get(dst.Type)
	if err != nil {
		return schema.Edge{}, err
	}

	if !srcDef.HasOutput(sourcePort) {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeInvalidPort,
			"component %q declares no output port %q", src.Type, sourcePort).WithNode(sourceID)
	}
	if !dstDef.HasInput(targetPort) {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeInvalidPort,
			"component %q declares no input port %q", dst.Type, targetPort).WithNode(targetID)
	}

	edge := schema.Edge{
		ID:         uuid.New().String(),
		SourceID:   sourceID,
		SourcePort: sourcePort,
		TargetID:   targetID,
		TargetPort: targetPort,
	}
	g.edges = append(g.edges, edge)
	return edge, nil
}

// RemoveEdge removes an edge by ID. No-op if absent.
func (g *Graph) RemoveEdge(id string) {
	g.mu.Lock()
	kept := g.edges[:0]
	removed := false
	for _, e := range g.edges {
		if e.ID == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	g.mu.Unlock()

	if removed {
		g.publish(schema.EventEdgeRemoved, "", map[string]any{"edge_id": id})
	}
}

// UpdateNodeConfig merges the partial config into the node's existing
// config, preserving unspecified keys. Fails with UNKNOWN_NODE if the node
// does not exist.
func (g *Graph) UpdateNodeConfig(id string, partial map[string]any) error {
	g.mu.Lock()

	node := g.node(id)
	if node == nil {
		g.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeUnknownNode, "node %q does not exist", id)
	}
	if node.Config == nil {
		node.Config = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		node.Config[k] = v
	}
	g.mu.Unlock()

	g.publish(schema.EventNodeConfigSet, id, nil)
	return nil
}

// MoveNode repositions a node. No structural effect; no-op if absent.
func (g *Graph) MoveNode(id string, pos schema.Position) {
	g.mu.Lock()
	node := g.node(id)
	if node == nil {
		g.mu.Unlock()
		return
	}
	node.Position = pos
	g.mu.Unlock()

	g.publish(schema.EventNodeMoved, id, nil)
}

// Node returns a copy of the node with the given ID.
func (g *Graph) Node(id string) (schema.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := g.node(id)
	if n == nil {
		return schema.Node{}, false
	}
	out := *n
	out.Config = copyConfig(n.Config)
	return out, true
}

// Snapshot returns copies of the current node and edge sequences, safe to
// hand to the validator or the persistence payload while edits continue.
func (g *Graph) Snapshot() ([]schema.Node, []schema.Edge) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]schema.Node, len(g.nodes))
	for i, n := range g.nodes {
		nodes[i] = n
		nodes[i].Config = copyConfig(n.Config)
	}
	edges := make([]schema.Edge, len(g.edges))
	copy(edges, g.edges)
	return nodes, edges
}

// Counts returns the number of nodes and edges.
func (g *Graph) Counts() (nodes, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes), len(g.edges)
}

// node returns a pointer into the node slice; callers must hold g.mu.
func (g *Graph) node(id string) *schema.Node {
	idx := g.nodeIndex(id)
	if idx < 0 {
		return nil
	}
	return &g.nodes[idx]
}

func (g *Graph) nodeIndex(id string) int {
	for i := range g.nodes {
		if g.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (g *Graph) publish(eventType, nodeID string, payload map[string]any) {
	if g.hub == nil {
		return
	}
	_ = g.hub.Publish(context.Background(), events.BuilderEvent{
		NodeID:    nodeID,
		EventType: eventType,
		Payload:   payload,
	})
}

// copyConfig deep-copies a config map one level down, which covers the
// list-valued fields (e.g. supportedFormats) that users append to.
func copyConfig(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		if list, ok := v.([]any); ok {
			cp := make([]any, len(list))
			copy(cp, list)
			dst[k] = cp
			continue
		}
		dst[k] = v
	}
	return dst
}
