package nodes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/schema"
)

func conditionOutput(t *testing.T, res *schema.NodeResult) map[string]any {
	t.Helper()
	require.Equal(t, schema.NodeStatusCompleted, res.Status)
	out, ok := res.Output.(map[string]any)
	require.True(t, ok, "condition output must be structured")
	return out
}

func TestConditionContainsDefaultMode(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node:           node("c", schema.NodeKindCondition, schema.ConditionConfig{Condition: "YES"}),
		PreviousOutput: "yes please",
	})
	out := conditionOutput(t, res)
	assert.Equal(t, true, out["result"])
	assert.Equal(t, ConditionModeContains, out["mode"])
	assert.Equal(t, "YES", out["checkedValue"])
}

func TestConditionContainsCaseSensitive(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node: node("c", schema.NodeKindCondition, schema.ConditionConfig{
			Mode: ConditionModeContains, Condition: "YES", CaseSensitive: true,
		}),
		PreviousOutput: "yes please",
	})
	out := conditionOutput(t, res)
	assert.Equal(t, false, out["result"])
}

func TestConditionEqualsTrims(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node:           node("c", schema.NodeKindCondition, schema.ConditionConfig{Mode: ConditionModeEquals, Condition: "done"}),
		PreviousOutput: "  Done \n",
	})
	out := conditionOutput(t, res)
	assert.Equal(t, true, out["result"])
}

func TestConditionNotEquals(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node:           node("c", schema.NodeKindCondition, schema.ConditionConfig{Mode: ConditionModeNotEquals, Condition: "done"}),
		PreviousOutput: "pending",
	})
	out := conditionOutput(t, res)
	assert.Equal(t, true, out["result"])
}

func TestConditionRegexMatch(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node:           node("c", schema.NodeKindCondition, schema.ConditionConfig{Mode: ConditionModeRegex, Condition: `order #\d+`}),
		PreviousOutput: "Received Order #12345 today",
	})
	out := conditionOutput(t, res)
	assert.Equal(t, true, out["result"])
	assert.Equal(t, "Order #12345", out["matchedValue"])
}

func TestConditionInvalidRegexIsFalseNotError(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node:           node("c", schema.NodeKindCondition, schema.ConditionConfig{Mode: ConditionModeRegex, Condition: "[invalid("}),
		PreviousOutput: "anything",
	})
	out := conditionOutput(t, res)
	assert.Equal(t, false, out["result"])
	assert.Empty(t, res.Error)
}

func TestConditionExpressionMode(t *testing.T) {
	exec, _ := newTestExecutor(t)

	results := map[string]*schema.NodeResult{
		"agent": {Status: schema.NodeStatusCompleted, Output: "approved"},
	}

	res := exec.Execute(context.Background(), Request{
		Node: node("c", schema.NodeKindCondition, schema.ConditionConfig{
			Mode:      ConditionModeExpression,
			Condition: `previous_output.contains("approved") && input.size() > 0`,
		}),
		Input:          "review this",
		PreviousOutput: "approved",
		Results:        results,
	})
	out := conditionOutput(t, res)
	assert.Equal(t, true, out["result"])
}

func TestConditionExpressionErrorIsFalse(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node: node("c", schema.NodeKindCondition, schema.ConditionConfig{
			Mode:      ConditionModeExpression,
			Condition: `this is not valid CEL ((`,
		}),
		PreviousOutput: "anything",
	})
	out := conditionOutput(t, res)
	assert.Equal(t, false, out["result"])
	assert.Empty(t, res.Error)
}

func TestConditionTruncatesPreview(t *testing.T) {
	exec, _ := newTestExecutor(t)

	long := strings.Repeat("x", 500)
	res := exec.Execute(context.Background(), Request{
		Node:           node("c", schema.NodeKindCondition, schema.ConditionConfig{Condition: "x"}),
		PreviousOutput: long,
	})
	out := conditionOutput(t, res)
	preview, ok := out["previousOutput"].(string)
	require.True(t, ok)
	assert.Less(t, len([]rune(preview)), 210)
}

func TestConditionResultHelper(t *testing.T) {
	val, ok := ConditionResult(&schema.NodeResult{
		Status: schema.NodeStatusCompleted,
		Output: map[string]any{"result": true},
	})
	assert.True(t, ok)
	assert.True(t, val)

	_, ok = ConditionResult(&schema.NodeResult{Status: schema.NodeStatusFailed})
	assert.False(t, ok)

	_, ok = ConditionResult(&schema.NodeResult{Status: schema.NodeStatusCompleted, Output: "plain"})
	assert.False(t, ok)

	_, ok = ConditionResult(nil)
	assert.False(t, ok)
}
