package validation

import (
	"fmt"
	"sort"

	"github.com/flowstack-dev/flowstack/internal/registry"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// Checker runs the client-side structural validation over a graph
// snapshot, answering whether the workflow is eligible to be built. It is
// distinct from the backend's remote validation call.
type Checker struct {
	registry *registry.Registry
	config   *ConfigValidator
}

// NewChecker creates a Checker. cfg may be nil to skip per-node config
// checks.
func NewChecker(reg *registry.Registry, cfg *ConfigValidator) *Checker {
	return &Checker{registry: reg, config: cfg}
}

// Check runs the structural rules and, when a ConfigValidator is present,
// the advisory per-node config checks (reported as warnings).
func (c *Checker) Check(nodes []schema.Node, edges []schema.Edge) *schema.ValidationResult {
	result := c.checkStructure(nodes, edges)

	if result.Valid() {
		result.Merge(c.checkCycles(nodes, edges))
	}

	if c.config != nil {
		for _, n := range nodes {
			def, err := c.registry.Get(n.Type)
			if err != nil {
				continue // already reported by checkStructure
			}
			if err := c.config.Validate(def, n.Config); err != nil {
				result.AddWarning(fmt.Sprintf("nodes[%s]/config", n.ID),
					schema.ErrCodeValidation, err.Error())
			}
		}
	}

	return result
}

// Valid is the boolean form of Check: true iff the graph has no
// structural errors. Warnings never affect the verdict.
func (c *Checker) Valid(nodes []schema.Node, edges []schema.Edge) bool {
	return c.Check(nodes, edges).Valid()
}

// checkStructure applies the three structural rules: at least one entry
// node, at least one terminal node, and every non-entry node referenced by
// some edge. An empty graph fails the first two.
func (c *Checker) checkStructure(nodes []schema.Node, edges []schema.Edge) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	connected := make(map[string]bool, len(nodes))
	for _, e := range edges {
		connected[e.SourceID] = true
		connected[e.TargetID] = true
	}

	hasEntry := false
	hasTerminal := false
	for _, n := range nodes {
		def, err := c.registry.Get(n.Type)
		if err != nil {
			result.AddError(fmt.Sprintf("nodes[%s]", n.ID),
				schema.ErrCodeUnknownComponent,
				fmt.Sprintf("node references unknown component %q", n.Type))
			continue
		}
		if def.IsEntry() {
			hasEntry = true
		}
		if def.IsTerminal() {
			hasTerminal = true
		}
		if !def.IsEntry() && !connected[n.ID] {
			result.AddError(fmt.Sprintf("nodes[%s]", n.ID),
				schema.ErrCodeValidation,
				fmt.Sprintf("node %q is not connected to any edge", n.ID))
		}
	}

	if !hasEntry {
		result.AddError("nodes", schema.ErrCodeValidation,
			"workflow has no entry component (a type with no input ports)")
	}
	if !hasTerminal {
		result.AddError("nodes", schema.ErrCodeValidation,
			"workflow has no terminal component (a type with no output ports)")
	}

	return result
}

// checkCycles runs Kahn's algorithm over the edge set and reports any
// cycle as a WARNING only. A cyclic graph still validates: the structural
// check has always been this permissive, so the cycle is surfaced without
// rejecting the workflow.
func (c *Checker) checkCycles(nodes []schema.Node, edges []schema.Edge) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	inDegree := make(map[string]int, len(nodes))
	next := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range edges {
		if _, ok := inDegree[e.TargetID]; !ok {
			continue // endpoints outside the snapshot are ignored
		}
		next[e.SourceID] = append(next[e.SourceID], e.TargetID)
		inDegree[e.TargetID]++
	}

	queue := make([]string, 0, len(nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, t := range next[id] {
			inDegree[t]--
			if inDegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}

	if visited != len(nodes) {
		result.AddWarning("edges", schema.ErrCodeValidation,
			"workflow contains a cycle; execution order between the involved nodes is undefined")
	}

	return result
}
