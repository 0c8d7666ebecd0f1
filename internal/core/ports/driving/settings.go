package driving

import "github.com/custodia-labs/esgrag/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// SetEmbeddingProvider configures the embedding provider.
	SetEmbeddingProvider(provider domain.EmbeddingProvider, model, apiKey string) error

	// Validate checks the current settings.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// Keys lists every settable key.
	Keys() []string

	// Value returns the stored value of a key, with secrets masked.
	Value(key string) (string, bool)

	// SetValue parses and stores a single key.
	SetValue(key, raw string) error

	// GetSchedulerConfig returns the background task configuration.
	GetSchedulerConfig() domain.SchedulerConfig
}
