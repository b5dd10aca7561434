package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/schema"
)

// maxDelay caps a delay node's wait regardless of its configuration.
const maxDelay = 60 * time.Second

// executeDelay pauses for min(configured, 60) seconds and passes the
// previous output through unchanged.
func (e *Executor) executeDelay(ctx context.Context, req Request) *schema.NodeResult {
	var cfg schema.DelayConfig
	if len(req.Node.Data.Config) > 0 {
		if err := json.Unmarshal(req.Node.Data.Config, &cfg); err != nil {
			return failedResult(fmt.Sprintf("invalid delay config: %s", err.Error()))
		}
	}

	d := time.Duration(cfg.Duration * float64(time.Second))
	if d > maxDelay {
		d = maxDelay
	}
	if d > 0 {
		if err := e.sleep(ctx, d); err != nil {
			return failedResult(fmt.Sprintf("delay interrupted: %s", err.Error()))
		}
	}

	return &schema.NodeResult{
		Status: schema.NodeStatusCompleted,
		Output: req.PreviousOutput,
	}
}
