// Package ai provides factory functions for creating embedding service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/esgrag/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/custodia-labs/esgrag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/esgrag/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/embedding/resilient"
	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateEmbeddingService(
	ctx context.Context,
	settings *domain.EmbeddingSettings,
	log *logger.Logger,
) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'esgrag settings set embedding.provider' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: %s unreachable (%w)",
			domain.ErrEmbeddingUnavailable, settings.Provider.Description(), err)
	}

	return svc, nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating a service and pinging it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(settings, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// CreateEmbeddingService creates the embedding service named by settings,
// wrapped in the retrying, rate-limited decorator.
func CreateEmbeddingService(settings *domain.EmbeddingSettings, log *logger.Logger) (driven.EmbeddingService, error) {
	if !settings.IsConfigured() {
		if settings != nil && settings.Provider.RequiresAPIKey() {
			return nil, fmt.Errorf("%w: %s requires an API key", domain.ErrInvalidInput, settings.Provider)
		}
		return nil, fmt.Errorf("%w: embedding provider is not configured", domain.ErrInvalidInput)
	}

	var (
		inner     driven.EmbeddingService
		permanent func(error) bool
		err       error
	)
	switch settings.Provider {
	case domain.EmbeddingHashing:
		inner, err = hashing.NewEmbeddingService(settings.Dimensions)

	case domain.EmbeddingOllama:
		inner = createOllamaEmbedding(settings)

	case domain.EmbeddingOpenAI:
		inner, err = createOpenAIEmbedding(settings)
		permanent = openaiembed.IsPermanent

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
	if err != nil {
		return nil, err
	}

	return resilient.New(inner, resilient.Config{
		MaxAttempts:   settings.MaxAttempts,
		RatePerSecond: settings.RatePerSecond,
		Permanent:     permanent,
		Logger:        log,
	}), nil
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions[settings.Model]
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: settings.Dimensions,
	})
}
