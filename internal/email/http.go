package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowlinehq/flowline/pkg/schema"
)

const defaultSendTimeout = 30 * time.Second

// HTTPSender posts messages to a JSON transactional-mail endpoint.
// The endpoint is expected to accept {to, subject, content} and
// answer 2xx with {message_id} in the body.
type HTTPSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSender creates a sender for the given endpoint. apiKey may be
// empty when the endpoint does not require authentication.
func NewHTTPSender(endpoint, apiKey string) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: defaultSendTimeout},
	}
}

// Send delivers one message.
func (s *HTTPSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if s.endpoint == "" {
		return nil, schema.NewError(schema.ErrCodeProvider, "email endpoint is not configured")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "encode email payload: %s", err.Error()).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "build email request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "email send failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "read email response: %s", err.Error()).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeProvider,
			"email provider returned %s", resp.Status).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(body)})
	}

	var receipt Receipt
	if err := json.Unmarshal(body, &receipt); err != nil || receipt.MessageID == "" {
		// Some providers answer 2xx with a bare id or an empty body.
		receipt.MessageID = fmt.Sprintf("http-%d", time.Now().UnixNano())
	}

	return &receipt, nil
}

var _ Sender = (*HTTPSender)(nil)
