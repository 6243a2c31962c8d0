package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	c.calls++
	return []float32{1}, nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return make([][]float32, len(texts)), nil
}

func (c *countingEmbedder) Dimensions() int            { return 1 }
func (c *countingEmbedder) ModelName() string          { return "count" }
func (c *countingEmbedder) Ping(context.Context) error { return nil }
func (c *countingEmbedder) Close() error               { return nil }

func TestNew_DisabledReturnsInner(t *testing.T) {
	inner := &countingEmbedder{}
	assert.Same(t, inner, New(inner, 0))
}

func TestEmbedder_Throttles(t *testing.T) {
	inner := &countingEmbedder{}
	e := New(inner, 20)

	start := time.Now()
	for i := 0; i < 30; i++ {
		_, err := e.Embed(context.Background(), "x")
		require.NoError(t, err)
	}
	// 20 burst tokens, then 10 more at 20/s.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, 30, inner.calls)
	assert.Equal(t, "count", e.ModelName())
}

func TestEmbedder_CancelledWhileWaiting(t *testing.T) {
	inner := &countingEmbedder{}
	e := New(inner, 1)

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = e.EmbedBatch(ctx, []string{"b"})
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
