package ai

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	g4fBase         = "https://g4f.dev/api/"
	g4fDefaultModel = "gpt-oss-120b"
)

// g4fRoutes maps a model prefix to the g4f.dev route serving it.
var g4fRoutes = []string{"groq", "ollama"}

// G4FProvider talks to the g4f.dev gateways. The engine string picks the
// route and model: "g4f:groq/qwen/qwen3-32b", "g4f:ollama/gpt-oss:20b" or
// plain "g4f" for the default model.
type G4FProvider struct {
	chat  chatEndpoint
	model string
}

func NewG4FProvider(engine string) *G4FProvider {
	_, target, ok := strings.Cut(engine, ":")
	if !ok || target == "" {
		target = g4fDefaultModel
	}

	route, model := g4fDefaultModel, target
	for _, r := range g4fRoutes {
		if m, found := strings.CutPrefix(target, r+"/"); found {
			route, model = r, m
			break
		}
	}

	return &G4FProvider{
		chat: chatEndpoint{
			provider: "g4f",
			url:      g4fBase + route + "/chat/completions",
			client:   &http.Client{Timeout: 30 * time.Second},
		},
		model: model,
	}
}

func (p *G4FProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	return p.chat.complete(ctx, chatRequest{Model: p.model, Messages: messages})
}
