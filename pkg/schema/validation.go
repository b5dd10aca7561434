package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// graphSchemaJSON is the JSON Schema for Graph validation.
// Embedded as a constant to avoid filesystem dependencies.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowline.dev/schemas/graph.json",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "data": {
          "type": "object",
          "properties": {
            "label": { "type": "string" },
            "config": {}
          },
          "additionalProperties": false
        }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "sourceHandle": { "type": "string" },
        "data": {
          "type": "object",
          "properties": {
            "branch": { "type": "string", "enum": ["true", "false", "default"] }
          },
          "additionalProperties": false
        }
      },
      "additionalProperties": false
    }
  }
}`

var (
	graphSchemaOnce sync.Once
	graphSchema     *jsonschema.Schema
	graphSchemaErr  error
)

func compiledGraphSchema() (*jsonschema.Schema, error) {
	graphSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
		if err != nil {
			graphSchemaErr = fmt.Errorf("unmarshal graph schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("graph.json", doc); err != nil {
			graphSchemaErr = fmt.Errorf("add graph schema resource: %w", err)
			return
		}
		graphSchema, graphSchemaErr = c.Compile("graph.json")
	})
	return graphSchema, graphSchemaErr
}

// ValidateGraph validates a Graph against the embedded JSON Schema plus
// the structural checks the schema cannot express: duplicate node IDs,
// edges referencing unknown nodes, and the entry-point invariant (at
// least one trigger node or one node with no incoming edges).
func ValidateGraph(g *Graph) error {
	if g == nil {
		return NewError(ErrCodeValidation, "graph is nil")
	}

	sch, err := compiledGraphSchema()
	if err != nil {
		return NewError(ErrCodeValidation, "graph schema unavailable").WithCause(err)
	}

	doc, err := toJSONValue(g)
	if err != nil {
		return NewError(ErrCodeValidation, "failed to serialize graph").WithCause(err)
	}
	if err := sch.Validate(doc); err != nil {
		return toFlowError(err)
	}

	nodes := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, exists := nodes[n.ID]; exists {
			return NewErrorf(ErrCodeValidation, "duplicate node id %q", n.ID)
		}
		nodes[n.ID] = struct{}{}
	}

	incoming := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		if _, ok := nodes[e.Source]; !ok {
			return NewErrorf(ErrCodeValidation, "edge references unknown source node %q", e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			return NewErrorf(ErrCodeValidation, "edge references unknown target node %q", e.Target)
		}
		incoming[e.Target]++
	}

	hasEntry := false
	for _, n := range g.Nodes {
		if n.Type == NodeKindTrigger || incoming[n.ID] == 0 {
			hasEntry = true
			break
		}
	}
	if !hasEntry {
		return NewError(ErrCodeValidation, "graph has no entry point: every node has incoming edges and none is a trigger")
	}

	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so
// that numeric values become json.Number (required by the jsonschema
// library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError
// with clear, actionable messages.
func toFlowError(err error) *FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return NewError(ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return NewError(ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return NewError(ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("graph validation failed with %d errors", len(violations))
	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf
// error messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
