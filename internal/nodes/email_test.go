package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/schema"
)

func TestEmailMissingRecipientFailsWithoutSend(t *testing.T) {
	exec, deps := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node: node("e", schema.NodeKindEmail, schema.EmailConfig{Subject: "hi"}),
	})
	assert.Equal(t, schema.NodeStatusFailed, res.Status)
	assert.Contains(t, res.Error, "recipient")
	assert.Equal(t, 0, deps.sender.calls)
}

func TestEmailSendsInterpolatedMessage(t *testing.T) {
	exec, deps := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node: node("e", schema.NodeKindEmail, schema.EmailConfig{
			To:      "client@example.com",
			Subject: "Report for {{input}}",
			Body:    "Summary:\n{{previous_output}}",
		}),
		Input:          "Acme",
		PreviousOutput: "all metrics up",
	})
	require.Equal(t, schema.NodeStatusCompleted, res.Status)
	assert.Equal(t, 1, deps.sender.calls)
	assert.Equal(t, "client@example.com", deps.sender.lastMsg.To)
	assert.Equal(t, "Report for Acme", deps.sender.lastMsg.Subject)
	assert.Equal(t, "Summary:\nall metrics up", deps.sender.lastMsg.Content)

	out, ok := res.Output.(string)
	require.True(t, ok)
	assert.Contains(t, out, "client@example.com")
	assert.Contains(t, out, "msg-1")
}

func TestEmailDefaultBodyIsPreviousOutput(t *testing.T) {
	exec, deps := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node:           node("e", schema.NodeKindEmail, schema.EmailConfig{To: "a@b.c"}),
		PreviousOutput: "upstream text",
	})
	require.Equal(t, schema.NodeStatusCompleted, res.Status)
	assert.Equal(t, "upstream text", deps.sender.lastMsg.Content)
}

func TestEmailProviderErrorFails(t *testing.T) {
	exec, deps := newTestExecutor(t)
	deps.sender.err = errors.New("smtp unavailable")

	res := exec.Execute(context.Background(), Request{
		Node: node("e", schema.NodeKindEmail, schema.EmailConfig{To: "a@b.c"}),
	})
	assert.Equal(t, schema.NodeStatusFailed, res.Status)
	assert.Contains(t, res.Error, "smtp unavailable")
}
