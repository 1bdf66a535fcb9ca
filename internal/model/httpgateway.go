// ABOUTME: HTTP bridge to an external model-call service
// ABOUTME: Maps upstream status codes onto transient/terminal call errors

package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPGateway forwards completion requests to an external service that owns
// the per-provider clients and credentials. The wire shape mirrors
// CallRequest/CallResponse.
type HTTPGateway struct {
	url    string
	client *http.Client
}

// NewHTTPGateway creates a gateway posting to the given URL. A nil client
// uses http.DefaultClient; per-call deadlines come from the caller's context.
func NewHTTPGateway(url string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{url: url, client: client}
}

type wireRequest struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Messages     []ChatMessage `json:"messages"`
	Temperature  float64       `json:"temperature,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
}

type wireResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
	Error   string `json:"error,omitempty"`
}

// Complete implements Gateway.
func (g *HTTPGateway) Complete(ctx context.Context, req CallRequest) (*CallResponse, error) {
	body, err := json.Marshal(wireRequest{
		Provider:     req.Provider,
		Model:        req.Model,
		Messages:     req.Messages,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		return nil, Terminal(req.Provider, "completion", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, Terminal(req.Provider, "completion", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// Transport failures (refused, reset, deadline) are worth retrying
		return nil, Transient(req.Provider, "completion", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, Transient(req.Provider, "completion", err)
	}

	if resp.StatusCode != http.StatusOK {
		callErr := fmt.Errorf("upstream status %d: %s", resp.StatusCode, firstLine(data))
		if retryableStatus(resp.StatusCode) {
			return nil, &Error{Provider: req.Provider, Operation: "completion", Status: resp.StatusCode, Retryable: true, Err: callErr}
		}
		return nil, &Error{Provider: req.Provider, Operation: "completion", Status: resp.StatusCode, Retryable: false, Err: callErr}
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, Transient(req.Provider, "completion", err)
	}
	if wire.Error != "" {
		return nil, Terminal(req.Provider, "completion", fmt.Errorf("%s", wire.Error))
	}
	return &CallResponse{Content: wire.Content, Usage: wire.Usage}, nil
}

// retryableStatus treats rate limits and server-side faults as transient.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func firstLine(data []byte) string {
	for i, b := range data {
		if b == '\n' {
			return string(data[:i])
		}
	}
	if len(data) > 200 {
		return string(data[:200])
	}
	return string(data)
}
