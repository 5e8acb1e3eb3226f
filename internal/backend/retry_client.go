package backend

import (
	"context"

	"persona/internal/errors"
	"persona/internal/logging"
)

// retryGenerator wraps a Generator with retry logic and a circuit breaker.
type retryGenerator struct {
	underlying     Generator
	retryConfig    errors.RetryConfig
	circuitBreaker *errors.CircuitBreaker
	logger         logging.Logger
}

var _ Generator = (*retryGenerator)(nil)

// NewRetryGenerator wraps a backend so transient failures are retried with
// jittered exponential backoff and repeated failures trip a circuit breaker.
// The retry policy is an explicit object, testable without real I/O.
func NewRetryGenerator(underlying Generator, retryConfig errors.RetryConfig, circuitBreaker *errors.CircuitBreaker) Generator {
	return &retryGenerator{
		underlying:     underlying,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("backend-retry"),
	}
}

func (g *retryGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	return errors.RetryWithResultAndLog(ctx, g.retryConfig, func(ctx context.Context) (*GenerationResult, error) {
		return errors.ExecuteFunc(g.circuitBreaker, ctx, func(ctx context.Context) (*GenerationResult, error) {
			return g.underlying.Generate(ctx, req)
		})
	}, g.logger)
}

func (g *retryGenerator) Model() string {
	return g.underlying.Model()
}
