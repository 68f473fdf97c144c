package ai

import (
	"context"
	"net/http"
	"time"
)

const pollinationsURL = "https://text.pollinations.ai/openai"

// PollinationsProvider talks to the keyless pollinations.ai text endpoint.
type PollinationsProvider struct {
	chat chatEndpoint
}

func NewPollinationsProvider() *PollinationsProvider {
	return &PollinationsProvider{chat: chatEndpoint{
		provider: "pollinations",
		url:      pollinationsURL,
		client:   &http.Client{Timeout: 25 * time.Second},
	}}
}

func (p *PollinationsProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	zero := 0.0
	return p.chat.complete(ctx, chatRequest{
		Model:       "openai",
		Messages:    messages,
		Temperature: &zero,
		Private:     true,
	})
}
