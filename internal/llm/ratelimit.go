package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedGenerator wraps a TextGenerator with a client-side rate limit,
// so batch jobs (reflection over hundreds of memories, backfills) never
// hammer a hosted API.
type RateLimitedGenerator struct {
	inner   TextGenerator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator wraps inner with a sustained reqPerMin rate and
// the given burst. Non-positive values disable the wrapper and return inner
// unchanged.
func NewRateLimitedGenerator(inner TextGenerator, reqPerMin float64, burst int) TextGenerator {
	if reqPerMin <= 0 || burst <= 0 {
		return inner
	}
	interval := rate.Every(minuteInterval(reqPerMin))
	return &RateLimitedGenerator{
		inner:   inner,
		limiter: rate.NewLimiter(interval, burst),
	}
}

// Complete blocks until the limiter grants a slot, then delegates.
func (g *RateLimitedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return g.inner.Complete(ctx, prompt)
}

// GetModel returns the wrapped generator's model name.
func (g *RateLimitedGenerator) GetModel() string {
	return g.inner.GetModel()
}

// minuteInterval converts a per-minute rate into the interval between
// consecutive requests.
func minuteInterval(reqPerMin float64) time.Duration {
	return time.Duration(float64(time.Minute) / reqPerMin)
}
