package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowlinehq/flowline/internal/email"
	"github.com/flowlinehq/flowline/internal/expressions"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// executeEmail interpolates the subject and body templates and hands
// the message to the external sender. A missing recipient fails before
// any send is attempted.
func (e *Executor) executeEmail(ctx context.Context, req Request) *schema.NodeResult {
	var cfg schema.EmailConfig
	if len(req.Node.Data.Config) > 0 {
		if err := json.Unmarshal(req.Node.Data.Config, &cfg); err != nil {
			return failedResult(fmt.Sprintf("invalid email config: %s", err.Error()))
		}
	}
	if cfg.To == "" {
		return failedResult("email node requires a recipient")
	}
	if e.email == nil {
		return failedResult("no email sender configured")
	}

	body := cfg.Body
	if body == "" {
		body = "{{previous_output}}"
	}

	receipt, err := e.email.Send(ctx, email.Message{
		To:      cfg.To,
		Subject: expressions.Interpolate(cfg.Subject, req.Input, req.PreviousOutput, req.Results),
		Content: expressions.Interpolate(body, req.Input, req.PreviousOutput, req.Results),
	})
	if err != nil {
		return failedResult(err.Error())
	}

	return &schema.NodeResult{
		Status: schema.NodeStatusCompleted,
		Output: fmt.Sprintf("Email sent to %s (message id: %s)", cfg.To, receipt.MessageID),
	}
}
