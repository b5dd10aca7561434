package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/schema"
)

func TestBuildPlanAdjacency(t *testing.T) {
	g := &schema.Graph{
		Nodes: []schema.Node{
			{ID: "t", Type: schema.NodeKindTrigger},
			{ID: "a", Type: schema.NodeKindAIAgent},
			{ID: "o", Type: schema.NodeKindOutput},
		},
		Edges: []schema.Edge{
			{Source: "t", Target: "a"},
			{Source: "a", Target: "o"},
		},
	}

	p, err := buildPlan(g)
	require.NoError(t, err)

	assert.Equal(t, []string{"t"}, p.dependencies["a"])
	assert.Equal(t, []string{"a"}, p.dependencies["o"])
	assert.Len(t, p.dependents["t"], 1)
	assert.Equal(t, "a", p.dependents["t"][0].Target)
	assert.Equal(t, schema.BranchDefault, p.dependents["t"][0].Branch)
	assert.Equal(t, []string{"t"}, p.entryPoints)
}

func TestBuildPlanEntryPointsIncludeZeroDependencyNodes(t *testing.T) {
	g := &schema.Graph{
		Nodes: []schema.Node{
			{ID: "t", Type: schema.NodeKindTrigger},
			{ID: "standalone", Type: schema.NodeKindWebhook},
			{ID: "o", Type: schema.NodeKindOutput},
		},
		Edges: []schema.Edge{{Source: "t", Target: "o"}},
	}

	p, err := buildPlan(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "standalone"}, p.entryPoints)
}

func TestBuildPlanRejectsCycle(t *testing.T) {
	g := &schema.Graph{
		Nodes: []schema.Node{
			{ID: "t", Type: schema.NodeKindTrigger},
			{ID: "a", Type: schema.NodeKindWebhook},
			{ID: "b", Type: schema.NodeKindWebhook},
		},
		Edges: []schema.Edge{
			{Source: "t", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}

	_, err := buildPlan(g)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeCycleDetected, flowErr.Code)
}

func TestBuildPlanRejectsSelfLoop(t *testing.T) {
	g := &schema.Graph{
		Nodes: []schema.Node{{ID: "a", Type: schema.NodeKindWebhook}},
		Edges: []schema.Edge{{Source: "a", Target: "a"}},
	}

	_, err := buildPlan(g)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeCycleDetected, flowErr.Code)
}

func TestBuildPlanRejectsDuplicateNodeIDs(t *testing.T) {
	g := &schema.Graph{
		Nodes: []schema.Node{
			{ID: "a", Type: schema.NodeKindTrigger},
			{ID: "a", Type: schema.NodeKindOutput},
		},
	}

	_, err := buildPlan(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node ID")
}

func TestBuildPlanRejectsUnknownEdgeEndpoints(t *testing.T) {
	g := &schema.Graph{
		Nodes: []schema.Node{{ID: "a", Type: schema.NodeKindTrigger}},
		Edges: []schema.Edge{{Source: "a", Target: "ghost"}},
	}

	_, err := buildPlan(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")
}

func TestBuildPlanRejectsEmptyGraph(t *testing.T) {
	_, err := buildPlan(&schema.Graph{})
	require.Error(t, err)

	_, err = buildPlan(nil)
	require.Error(t, err)
}
