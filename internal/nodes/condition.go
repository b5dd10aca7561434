package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/flowlinehq/flowline/pkg/schema"
)

// Condition modes. The comparison modes test previousOutput against the
// configured condition string; expression mode evaluates a CEL
// expression over the run state.
const (
	ConditionModeContains   = "contains"
	ConditionModeEquals     = "equals"
	ConditionModeNotEquals  = "not_equals"
	ConditionModeRegex      = "regex"
	ConditionModeExpression = "expression"
)

const conditionPreviewLimit = 200

// executeCondition evaluates the node's dependency output against the
// configured condition. Evaluation itself never fails: malformed regex
// and expression errors are treated as a non-match.
func (e *Executor) executeCondition(ctx context.Context, req Request) *schema.NodeResult {
	var cfg schema.ConditionConfig
	if len(req.Node.Data.Config) > 0 {
		if err := json.Unmarshal(req.Node.Data.Config, &cfg); err != nil {
			cfg = schema.ConditionConfig{}
		}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ConditionModeContains
	}

	checked := req.PreviousOutput
	var result bool
	var matched string

	switch mode {
	case ConditionModeContains:
		result = strings.Contains(fold(checked, cfg.CaseSensitive), fold(cfg.Condition, cfg.CaseSensitive))
	case ConditionModeEquals:
		result = fold(strings.TrimSpace(checked), cfg.CaseSensitive) == fold(strings.TrimSpace(cfg.Condition), cfg.CaseSensitive)
	case ConditionModeNotEquals:
		result = fold(strings.TrimSpace(checked), cfg.CaseSensitive) != fold(strings.TrimSpace(cfg.Condition), cfg.CaseSensitive)
	case ConditionModeRegex:
		result, matched = matchRegex(cfg.Condition, checked, cfg.CaseSensitive)
	case ConditionModeExpression:
		result = e.evalConditionExpression(ctx, cfg.Condition, req)
	default:
		result = false
	}

	output := map[string]any{
		"result":         result,
		"mode":           mode,
		"checkedValue":   cfg.Condition,
		"previousOutput": truncate(checked, conditionPreviewLimit),
	}
	if matched != "" {
		output["matchedValue"] = matched
	}

	return &schema.NodeResult{
		Status: schema.NodeStatusCompleted,
		Output: output,
	}
}

// evalConditionExpression evaluates a CEL expression; any compile or
// runtime error, and any non-boolean result, counts as false.
func (e *Executor) evalConditionExpression(ctx context.Context, expression string, req Request) bool {
	if e.cel == nil || expression == "" {
		return false
	}
	val, err := e.cel.Evaluate(ctx, expression, map[string]any{
		"input":           req.Input,
		"previous_output": req.PreviousOutput,
		"nodes":           nodeOutputs(req.Results),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "condition expression error", "error", err.Error())
		return false
	}
	b, ok := val.(bool)
	return ok && b
}

// matchRegex compiles and matches the pattern. A malformed pattern is a
// non-match, never an error.
func matchRegex(pattern, value string, caseSensitive bool) (bool, string) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, ""
	}
	return re.MatchString(value), re.FindString(value)
}

// nodeOutputs flattens the results map into id -> output for
// expression evaluation.
func nodeOutputs(results map[string]*schema.NodeResult) map[string]any {
	out := make(map[string]any, len(results))
	for id, res := range results {
		if res != nil {
			out[id] = res.Output
		}
	}
	return out
}

// ConditionResult reads the boolean outcome from a completed condition
// node result. ok is false when the result is not a condition output.
func ConditionResult(res *schema.NodeResult) (value, ok bool) {
	if res == nil || res.Status != schema.NodeStatusCompleted {
		return false, false
	}
	m, isMap := res.Output.(map[string]any)
	if !isMap {
		return false, false
	}
	b, isBool := m["result"].(bool)
	return b, isBool
}

func fold(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return fmt.Sprintf("%s…", string(r[:limit]))
}
