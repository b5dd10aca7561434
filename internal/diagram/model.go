// Package diagram renders automation graphs for the dashboard: Mermaid
// flowcharts for inline display and Graphviz PNGs for export. A run's
// node results can be overlaid so every node shows its outcome.
package diagram

import "github.com/flowlinehq/flowline/pkg/schema"

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is a single automation graph node in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   schema.NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries a node's run outcome.
type StatusOverlay struct {
	Status     schema.NodeStatus
	DurationMs int64
	Error      string
}

// Edge is a dependency between two nodes. Label carries the branch tag
// for conditional edges.
type Edge struct {
	From  string
	To    string
	Label string
}
