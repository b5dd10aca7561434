package nodes

import "github.com/flowlinehq/flowline/pkg/schema"

// executeTrigger is the graph's entry data source: it completes with
// the run input unchanged.
func (e *Executor) executeTrigger(req Request) *schema.NodeResult {
	return &schema.NodeResult{
		Status: schema.NodeStatusCompleted,
		Output: req.Input,
	}
}

// executeOutput is a pure pass-through of the joined dependency outputs.
func (e *Executor) executeOutput(req Request) *schema.NodeResult {
	return &schema.NodeResult{
		Status: schema.NodeStatusCompleted,
		Output: req.PreviousOutput,
	}
}
