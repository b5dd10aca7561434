// Package email sends transactional mail for email nodes through a
// narrow Sender interface, keeping the engine decoupled from the
// delivery provider.
package email

import "context"

// Message is one outbound transactional email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Receipt is the provider's acknowledgement of a send.
type Receipt struct {
	MessageID string `json:"message_id"`
}

// Sender delivers a single message. Implementations return an error
// on delivery failure; the engine surfaces it verbatim and does not
// retry.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}
