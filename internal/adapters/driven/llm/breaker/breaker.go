// Package breaker wraps a generator in a circuit breaker so a failing
// provider is not hammered by every question.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/logger"
)

// Ensure Generator implements the interface.
var _ driven.Generator = (*Generator)(nil)

// Default breaker settings.
const (
	DefaultMaxRequests  = 5
	DefaultInterval     = 10 * time.Second
	DefaultTimeout      = 60 * time.Second
	DefaultMinRequests  = 3
	DefaultFailureRatio = 0.6
)

// Settings configures the breaker. Zero fields take the defaults.
type Settings struct {
	// MaxRequests is how many calls pass while half-open.
	MaxRequests uint32

	// Interval is the closed-state window after which counts reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open.
	Timeout time.Duration

	// MinRequests is the number of calls in a window before it may trip.
	MinRequests uint32

	// FailureRatio trips the breaker once reached.
	FailureRatio float64
}

// Generator is a driven.Generator guarded by a circuit breaker.
type Generator struct {
	next driven.Generator
	cb   *gobreaker.CircuitBreaker
}

// New wraps next.
func New(next driven.Generator, s Settings) *Generator {
	if s.MaxRequests == 0 {
		s.MaxRequests = DefaultMaxRequests
	}
	if s.Interval == 0 {
		s.Interval = DefaultInterval
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	if s.MinRequests == 0 {
		s.MinRequests = DefaultMinRequests
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = DefaultFailureRatio
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.ModelName(),
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
		// Only provider faults count against the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetryable(err)
		},
	})
	return &Generator{next: next, cb: cb}
}

// Generate produces text completion from a prompt.
func (g *Generator) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	return g.execute(func() (string, error) {
		return g.next.Generate(ctx, prompt, opts)
	})
}

// Chat conducts a multi-turn conversation.
func (g *Generator) Chat(ctx context.Context, messages []domain.ChatMessage, opts driven.ChatOptions) (string, error) {
	return g.execute(func() (string, error) {
		return g.next.Chat(ctx, messages, opts)
	})
}

func (g *Generator) execute(call func() (string, error)) (string, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return call()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &domain.GenerationServiceError{
			Provider: g.next.ModelName(),
			Err:      fmt.Errorf("circuit %s: %w", g.cb.State(), err),
		}
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state.
func (g *Generator) State() gobreaker.State {
	return g.cb.State()
}

// ModelName returns the wrapped model name.
func (g *Generator) ModelName() string {
	return g.next.ModelName()
}

// Ping bypasses the breaker.
func (g *Generator) Ping(ctx context.Context) error {
	return g.next.Ping(ctx)
}

// Close closes the wrapped generator.
func (g *Generator) Close() error {
	return g.next.Close()
}
