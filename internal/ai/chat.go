package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
)

const maxReplyBytes = 64 << 10

// chatRequest is the OpenAI chat completion body both providers accept.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	Private     bool      `json:"private,omitempty"`
}

// chatEndpoint posts chat completions to one URL.
type chatEndpoint struct {
	provider string
	url      string
	client   *http.Client
}

func (c chatEndpoint) complete(ctx context.Context, body chatRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("%s: read reply: %w", c.provider, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", &StatusError{Provider: c.provider, Code: resp.StatusCode, Body: truncate(raw)}
	}
	// some gateways answer errors with a 200 and an html page
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "text/html" {
		return "", fmt.Errorf("%s returned html", c.provider)
	}
	return parseChoices(c.provider, raw)
}
