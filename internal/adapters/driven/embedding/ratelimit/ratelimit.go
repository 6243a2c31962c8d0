// Package ratelimit throttles calls to an embedding provider.
package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/quire/internal/core/ports/driven"
)

// Ensure Embedder implements the interface.
var _ driven.Embedder = (*Embedder)(nil)

// Embedder waits on a token bucket before each provider call.
type Embedder struct {
	driven.Embedder
	limiter *rate.Limiter
}

// New wraps next with a limit of rps requests per second.
// A non-positive rps returns next unchanged.
func New(next driven.Embedder, rps float64) driven.Embedder {
	if rps <= 0 {
		return next
	}
	burst := int(math.Max(1, math.Ceil(rps)))
	return &Embedder{Embedder: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Embed waits for a token, then embeds text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.Embedder.Embed(ctx, text)
}

// EmbedBatch waits for a token, then embeds texts in one call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.Embedder.EmbedBatch(ctx, texts)
}
