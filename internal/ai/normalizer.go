package ai

import (
	"context"
	"strings"
	"time"

	"github.com/dewmguy/discordmusic/pkg/retrylimit"
	"github.com/rs/zerolog"
)

const normalizePrompt = `You turn free-form music requests into a short search query for a video site.
Reply with the query only, on one line, in the form "artist - title" when both are known.
Do not add quotes, comments or explanations.`

// QueryNormalizer rewrites free text ("that song from the matrix lobby scene")
// into a search term before it reaches the extractor.
type QueryNormalizer struct {
	provider Provider
	limiter  *retrylimit.AdaptiveLimiter
	retry    retrylimit.RetryConfig
	log      zerolog.Logger
}

func NewQueryNormalizer(provider Provider, log zerolog.Logger) *QueryNormalizer {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = 300 * time.Millisecond
	cfg.MaxDelay = 2 * time.Second

	return &QueryNormalizer{
		provider: provider,
		limiter:  retrylimit.NewAdaptiveLimiter(2, 1, 5, 1, 0.5),
		retry:    cfg,
		log:      log,
	}
}

// Normalize returns the rewritten query. Callers fall back to the raw query on error.
func (n *QueryNormalizer) Normalize(ctx context.Context, query string) (string, error) {
	messages := []Message{
		{Role: "system", Content: normalizePrompt},
		{Role: "user", Content: query},
	}

	var reply string
	err := retrylimit.WithRetryConfig(ctx, func() error {
		r, err := n.provider.Generate(ctx, messages)
		if err != nil {
			return err
		}
		reply = r
		return nil
	}, n.limiter, n.retry)
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	n.log.Debug().Str("query", query).Str("normalized", reply).Msg("query normalized")
	return reply, nil
}
