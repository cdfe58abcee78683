package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/supportchat/pkg/appearance"
	"github.com/papercomputeco/supportchat/pkg/llm"
)

// StatusError is returned when the relay answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Body)
}

// HTTPTransport posts conversations to a relay's /api/chat endpoint.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport targets the relay at baseURL. A nil client uses one
// without a timeout, since replies stream for as long as the model writes.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, turns []llm.Message) (io.ReadCloser, error) {
	body, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("marshal turns: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return resp.Body, nil
}

// Appearance fetches the widget appearance the relay currently serves.
func (t *HTTPTransport) Appearance(ctx context.Context) (appearance.Appearance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/appearance", nil)
	if err != nil {
		return appearance.Appearance{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return appearance.Appearance{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return appearance.Appearance{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	a := appearance.Default()
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return appearance.Appearance{}, fmt.Errorf("decode appearance: %w", err)
	}
	if err := a.Validate(); err != nil {
		return appearance.Appearance{}, err
	}
	return a, nil
}

var _ Transport = (*HTTPTransport)(nil)
