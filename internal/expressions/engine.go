package expressions

import "context"

// Engine evaluates expressions over run state.
// Two implementations: CEL (condition expressions), GoJQ (transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
