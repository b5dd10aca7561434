package store

import "github.com/flowlinehq/flowline/pkg/schema"

// validRunTransitions is the run status state machine. Terminal states
// have no outgoing transitions.
var validRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusPending: {schema.RunStatusRunning, schema.RunStatusFailed},
	schema.RunStatusRunning: {schema.RunStatusCompleted, schema.RunStatusFailed},
}

// ValidateRunTransition returns an error when moving a run from one
// status to another is not allowed.
func ValidateRunTransition(from, to schema.RunStatus) error {
	if from == to {
		return nil
	}
	for _, allowed := range validRunTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeConflict,
		"invalid run status transition: %s -> %s", from, to)
}
