package engine

import (
	"github.com/flowlinehq/flowline/internal/nodes"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// ResolveBranch derives an edge's branch tag. Explicit data.branch wins,
// then a sourceHandle of "true"/"false", then default. Total: every
// edge maps to exactly one tag.
func ResolveBranch(e schema.Edge) schema.Branch {
	if e.Data != nil {
		switch e.Data.Branch {
		case schema.BranchTrue, schema.BranchFalse, schema.BranchDefault:
			return e.Data.Branch
		}
	}
	switch e.SourceHandle {
	case "true":
		return schema.BranchTrue
	case "false":
		return schema.BranchFalse
	}
	return schema.BranchDefault
}

// shouldSkip decides whether a node must be skipped by branch
// propagation, given that all of its dependencies are already visited.
// A node is skipped when every incoming edge originates from a skipped
// source, or when any non-default branch tag contradicts its source
// condition's boolean outcome. Mixed skipped/live sources keep the node
// alive.
func shouldSkip(p *plan, id string, results map[string]*schema.NodeResult, skipped map[string]bool) bool {
	edges := p.incoming[id]
	if len(edges) == 0 {
		return false
	}

	allSourcesSkipped := true
	for _, e := range edges {
		if !skipped[e.Source] {
			allSourcesSkipped = false
			break
		}
	}
	if allSourcesSkipped {
		return true
	}

	for _, e := range edges {
		branch := ResolveBranch(e)
		if branch == schema.BranchDefault {
			continue
		}
		outcome, ok := nodes.ConditionResult(results[e.Source])
		if !ok {
			// Source failed or is not a condition: no boolean to
			// contradict, the tag is inert.
			continue
		}
		if (branch == schema.BranchTrue && !outcome) || (branch == schema.BranchFalse && outcome) {
			return true
		}
	}
	return false
}
