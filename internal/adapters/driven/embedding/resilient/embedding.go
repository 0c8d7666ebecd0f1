// Package resilient wraps an embedding service with bounded retries and an
// optional client-side rate limit.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default retry settings.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
)

// Config tunes the decorator.
type Config struct {
	// MaxAttempts bounds calls per request, including the first.
	MaxAttempts int

	// InitialInterval and MaxInterval shape the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// RatePerSecond throttles calls to the inner service. Zero disables it.
	RatePerSecond float64

	// Burst is the token bucket size. Defaults to 1.
	Burst int

	// Permanent reports errors that must not be retried, such as an invalid
	// API key. Dimension mismatches and invalid input are always permanent.
	Permanent func(error) bool

	// Logger receives retry warnings.
	Logger *logger.Logger
}

// EmbeddingService decorates another EmbeddingService.
type EmbeddingService struct {
	inner   driven.EmbeddingService
	cfg     Config
	limiter *rate.Limiter
	log     *logger.Logger
}

// New wraps inner. Zero config values take the package defaults.
func New(inner driven.EmbeddingService, cfg Config) *EmbeddingService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	s := &EmbeddingService{
		inner: inner,
		cfg:   cfg,
		log:   logger.OrNop(cfg.Logger),
	}
	if cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return s
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := s.retry(ctx, "embed", func() error {
		v, err := s.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}

// EmbedBatch generates embeddings for multiple texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := s.retry(ctx, "embed batch", func() error {
		v, err := s.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return fmt.Errorf("got %d embeddings for %d texts", len(v), len(texts))
		}
		vecs = v
		return nil
	})
	return vecs, err
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.inner.ModelName()
}

// Ping is passed through without retries.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return s.inner.Close()
}

// Unwrap returns the decorated service.
func (s *EmbeddingService) Unwrap() driven.EmbeddingService {
	return s.inner
}

func (s *EmbeddingService) retry(ctx context.Context, op string, call func() error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := call()
		if err == nil {
			return nil
		}
		if s.permanent(ctx, err) {
			return backoff.Permanent(err)
		}
		s.log.Warn("%s attempt %d/%d failed: %v", op, attempt, s.cfg.MaxAttempts, err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval
	b.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx))
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if errors.Is(err, domain.ErrEmbeddingFailure) {
		return err
	}
	return fmt.Errorf("%w: %s after %d attempt(s): %w", domain.ErrEmbeddingFailure, op, attempt, err)
}

func (s *EmbeddingService) permanent(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil:
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, domain.ErrDimensionMismatch), errors.Is(err, domain.ErrInvalidInput):
		return true
	case s.cfg.Permanent != nil && s.cfg.Permanent(err):
		return true
	}
	return false
}
