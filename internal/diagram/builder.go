package diagram

import (
	"strings"

	"github.com/flowlinehq/flowline/pkg/schema"
)

// FromGraph builds a diagram model from an automation graph. results
// may be nil; when given, each node gets a status overlay from its run
// outcome.
func FromGraph(title string, g *schema.Graph, results map[string]*schema.NodeResult) *Model {
	m := &Model{Title: title}

	for _, n := range g.Nodes {
		node := &Node{
			ID:    n.ID,
			Label: nodeLabel(n),
			Kind:  n.Type,
		}
		if res, ok := results[n.ID]; ok && res != nil {
			node.Status = &StatusOverlay{
				Status:     res.Status,
				DurationMs: res.CompletedAt.Sub(res.StartedAt).Milliseconds(),
				Error:      res.Error,
			}
		}
		m.Nodes = append(m.Nodes, node)
	}

	for _, e := range g.Edges {
		m.Edges = append(m.Edges, Edge{
			From:  e.Source,
			To:    e.Target,
			Label: edgeLabel(e),
		})
	}

	return m
}

// nodeLabel prefers the user-given label and falls back to the kind.
func nodeLabel(n schema.Node) string {
	if n.Data.Label != "" {
		return n.Data.Label
	}
	return string(n.Type)
}

// edgeLabel exposes explicit branch tags; default branches stay
// unlabeled to keep diagrams readable.
func edgeLabel(e schema.Edge) string {
	if e.Data != nil && e.Data.Branch != "" && e.Data.Branch != schema.BranchDefault {
		return string(e.Data.Branch)
	}
	if e.SourceHandle == string(schema.BranchTrue) || e.SourceHandle == string(schema.BranchFalse) {
		return e.SourceHandle
	}
	return ""
}

// firstLine truncates a label at its first newline.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
