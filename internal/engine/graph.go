package engine

import (
	"github.com/flowlinehq/flowline/pkg/schema"
)

// dependent is one outgoing edge from a node, carrying the resolved
// branch tag.
type dependent struct {
	Target string
	Branch schema.Branch
}

// plan is the in-memory adjacency representation of a graph, built once
// per run. It is owned by a single Execute invocation.
type plan struct {
	nodes        map[string]schema.Node
	order        []string               // node IDs in graph order
	dependencies map[string][]string    // node ID -> IDs it depends on
	dependents   map[string][]dependent // node ID -> outgoing edges
	incoming     map[string][]schema.Edge
	entryPoints  []string // trigger-kind or zero-dependency nodes, in graph order
}

// buildPlan validates the graph's structure, builds adjacency lists and
// rejects cyclic graphs via Kahn's algorithm. A cyclic graph would
// otherwise requeue its members forever in the execution loop.
func buildPlan(g *schema.Graph) (*plan, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph has no nodes")
	}

	p := &plan{
		nodes:        make(map[string]schema.Node, len(g.Nodes)),
		order:        make([]string, 0, len(g.Nodes)),
		dependencies: make(map[string][]string, len(g.Nodes)),
		dependents:   make(map[string][]dependent, len(g.Nodes)),
		incoming:     make(map[string][]schema.Edge, len(g.Nodes)),
	}

	for i, n := range g.Nodes {
		if n.ID == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at index %d has empty ID", i)
		}
		if _, exists := p.nodes[n.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ID: %s", n.ID)
		}
		p.nodes[n.ID] = n
		p.order = append(p.order, n.ID)
	}

	for _, e := range g.Edges {
		if _, ok := p.nodes[e.Source]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "edge references unknown source node: %s", e.Source)
		}
		if _, ok := p.nodes[e.Target]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "edge references unknown target node: %s", e.Target)
		}
		if e.Source == e.Target {
			return nil, schema.NewErrorf(schema.ErrCodeCycleDetected, "node %s depends on itself", e.Source).WithNode(e.Source)
		}
		p.dependencies[e.Target] = append(p.dependencies[e.Target], e.Source)
		p.dependents[e.Source] = append(p.dependents[e.Source], dependent{Target: e.Target, Branch: ResolveBranch(e)})
		p.incoming[e.Target] = append(p.incoming[e.Target], e)
	}

	// Kahn's algorithm for cycle detection.
	inDegree := make(map[string]int, len(p.nodes))
	for id := range p.nodes {
		inDegree[id] = len(p.dependencies[id])
	}
	queue := make([]string, 0, len(p.nodes))
	for _, id := range p.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range p.dependents[id] {
			inDegree[dep.Target]--
			if inDegree[dep.Target] == 0 {
				queue = append(queue, dep.Target)
			}
		}
	}
	if visited != len(p.nodes) {
		return nil, schema.NewError(schema.ErrCodeCycleDetected, "graph contains a cycle")
	}

	// Entry points: trigger-kind nodes or nodes with no dependencies.
	for _, id := range p.order {
		if p.nodes[id].Type == schema.NodeKindTrigger || len(p.dependencies[id]) == 0 {
			p.entryPoints = append(p.entryPoints, id)
		}
	}
	if len(p.entryPoints) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph has no entry point")
	}

	return p, nil
}
