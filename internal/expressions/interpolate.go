package expressions

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/flowlinehq/flowline/pkg/schema"
)

const (
	inputToken          = "{{input}}"
	previousOutputToken = "{{previous_output}}"
	nodeTokenPrefix     = "{{node_"
	nodeTokenSuffix     = "_output}}"
)

// tokenPattern matches all three token kinds in one scan. Node IDs may
// themselves contain underscores; the node alternative matches lazily
// up to the first "_output}}".
var tokenPattern = regexp.MustCompile(`\{\{(?:input|previous_output|node_.+?_output)\}\}`)

// Interpolate resolves template variables against the current run
// state. It is a single pass over the template: every token kind is
// resolved in the same scan, so substituted values are never re-scanned
// for further tokens. Malformed or unmatched tokens are left as literal
// text. It never fails.
//
// Supported tokens:
//   - {{input}}            the run's original input
//   - {{previous_output}}  the joined outputs of the node's dependencies
//   - {{node_<id>_output}} a specific node's output; strings verbatim,
//     structured values JSON-serialized, unknown ids as ""
func Interpolate(template, input, previousOutput string, results map[string]*schema.NodeResult) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	return tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		switch token {
		case inputToken:
			return input
		case previousOutputToken:
			return previousOutput
		}
		id := strings.TrimSuffix(strings.TrimPrefix(token, nodeTokenPrefix), nodeTokenSuffix)
		res, ok := results[id]
		if !ok {
			return ""
		}
		return resultOutputString(res)
	})
}

// HasTokens reports whether a template contains any {{...}} references.
func HasTokens(template string) bool {
	return strings.Contains(template, "{{")
}

func resultOutputString(res *schema.NodeResult) string {
	if res == nil || res.Output == nil {
		return ""
	}
	if s, ok := res.Output.(string); ok {
		return s
	}
	b, err := json.Marshal(res.Output)
	if err != nil {
		return ""
	}
	return string(b)
}
