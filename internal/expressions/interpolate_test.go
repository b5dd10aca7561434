package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowlinehq/flowline/pkg/schema"
)

func TestInterpolateInputAndPreviousOutput(t *testing.T) {
	got := Interpolate("{{input}}-{{previous_output}}", "A", "B", nil)
	assert.Equal(t, "A-B", got)
}

func TestInterpolateNodeOutputString(t *testing.T) {
	results := map[string]*schema.NodeResult{
		"x": {Status: schema.NodeStatusCompleted, Output: "hi"},
	}
	got := Interpolate("{{node_x_output}}", "", "", results)
	assert.Equal(t, "hi", got)
}

func TestInterpolateNodeOutputStructured(t *testing.T) {
	results := map[string]*schema.NodeResult{
		"w": {Status: schema.NodeStatusCompleted, Output: map[string]any{"status": 200}},
	}
	got := Interpolate("response: {{node_w_output}}", "", "", results)
	assert.Equal(t, `response: {"status":200}`, got)
}

func TestInterpolateUnknownNodeIsEmpty(t *testing.T) {
	got := Interpolate("[{{node_missing_output}}]", "", "", nil)
	assert.Equal(t, "[]", got)
}

func TestInterpolateNodeIDWithUnderscores(t *testing.T) {
	results := map[string]*schema.NodeResult{
		"fetch_step_1": {Status: schema.NodeStatusCompleted, Output: "data"},
	}
	got := Interpolate("{{node_fetch_step_1_output}}", "", "", results)
	assert.Equal(t, "data", got)
}

func TestInterpolateSinglePass(t *testing.T) {
	// Substituted values are not re-scanned for further tokens.
	got := Interpolate("{{input}}", "{{previous_output}}", "should not appear", nil)
	assert.Equal(t, "{{previous_output}}", got)
}

func TestInterpolateSubstitutedNodeOutputNotRescanned(t *testing.T) {
	results := map[string]*schema.NodeResult{
		"x": {Status: schema.NodeStatusCompleted, Output: "{{input}} and {{node_x_output}}"},
	}
	got := Interpolate("{{node_x_output}}", "real input", "", results)
	assert.Equal(t, "{{input}} and {{node_x_output}}", got)
}

func TestInterpolateInputCarryingNodeToken(t *testing.T) {
	// An input value that looks like a node token stays literal.
	got := Interpolate("say: {{input}}", "{{node_evil_output}}", "", map[string]*schema.NodeResult{
		"evil": {Status: schema.NodeStatusCompleted, Output: "injected"},
	})
	assert.Equal(t, "say: {{node_evil_output}}", got)
}

func TestInterpolateRepeatedTokens(t *testing.T) {
	got := Interpolate("{{input}} and {{input}}", "x", "", nil)
	assert.Equal(t, "x and x", got)
}

func TestInterpolateMalformedTokensAreLiteral(t *testing.T) {
	assert.Equal(t, "{{unknown}}", Interpolate("{{unknown}}", "a", "b", nil))
	assert.Equal(t, "{{node_}}", Interpolate("{{node_}}", "a", "b", nil))
	assert.Equal(t, "plain text", Interpolate("plain text", "a", "b", nil))
}

func TestInterpolateEmptyTemplate(t *testing.T) {
	assert.Equal(t, "", Interpolate("", "a", "b", nil))
}

func TestHasTokens(t *testing.T) {
	assert.True(t, HasTokens("{{input}}"))
	assert.True(t, HasTokens("prefix {{node_a_output}}"))
	assert.False(t, HasTokens("no tokens here"))
}
