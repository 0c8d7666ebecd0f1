package domain

import "time"

const unknownDescription = "Unknown"

// EmbeddingProvider identifies the embedding backend.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingOllama is a local Ollama instance.
	EmbeddingOllama EmbeddingProvider = "ollama"

	// EmbeddingOpenAI is the OpenAI embeddings API.
	EmbeddingOpenAI EmbeddingProvider = "openai"

	// EmbeddingHashing is the offline feature-hashing embedder.
	EmbeddingHashing EmbeddingProvider = "hashing"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingOllama, EmbeddingOpenAI, EmbeddingHashing:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingOpenAI
}

// String returns the string representation.
func (p EmbeddingProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingOllama:
		return "Ollama (local)"
	case EmbeddingOpenAI:
		return "OpenAI (cloud)"
	case EmbeddingHashing:
		return "Feature hashing (offline)"
	default:
		return unknownDescription
	}
}

// AllEmbeddingProviders returns every provider in display order.
func AllEmbeddingProviders() []EmbeddingProvider {
	return []EmbeddingProvider{EmbeddingHashing, EmbeddingOllama, EmbeddingOpenAI}
}

// DefaultEmbeddingModels returns the model picked when a provider is set
// without one.
func DefaultEmbeddingModels() map[EmbeddingProvider]string {
	return map[EmbeddingProvider]string{
		EmbeddingOllama:  "nomic-embed-text",
		EmbeddingOpenAI:  "text-embedding-3-small",
		EmbeddingHashing: "hashing",
	}
}

// IsConfigured reports whether the settings name a usable provider.
func (s *EmbeddingSettings) IsConfigured() bool {
	if s == nil || !s.Provider.IsValid() {
		return false
	}
	if s.Provider.RequiresAPIKey() && s.APIKey == "" {
		return false
	}
	return true
}

// IndexBackend selects the VectorIndex implementation.
type IndexBackend string

// Available index backends.
const (
	// BackendFlat is the exact on-disk flat index.
	BackendFlat IndexBackend = "flat"

	// BackendQdrant stores vectors in a Qdrant collection.
	BackendQdrant IndexBackend = "qdrant"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	return b == BackendFlat || b == BackendQdrant
}

// String returns the string representation.
func (b IndexBackend) String() string {
	return string(b)
}

// DistanceMetric is the nearest-neighbour distance.
type DistanceMetric string

// Available metrics.
const (
	// MetricL2 is squared Euclidean distance. Smaller is closer.
	MetricL2 DistanceMetric = "l2"

	// MetricCosine is 1 - cosine similarity. Smaller is closer.
	MetricCosine DistanceMetric = "cosine"
)

// IsValid returns true if the metric is recognised.
func (m DistanceMetric) IsValid() bool {
	return m == MetricL2 || m == MetricCosine
}

// String returns the string representation.
func (m DistanceMetric) String() string {
	return string(m)
}

// EmbeddingSettings configures the embedding gateway.
type EmbeddingSettings struct {
	// Provider is the embedding backend.
	Provider EmbeddingProvider

	// Model is the model name.
	Model string

	// BaseURL is the API endpoint. Empty means the provider default.
	BaseURL string

	// APIKey is required for cloud providers.
	APIKey string

	// Dimensions is the vector length produced by the model.
	Dimensions int

	// BatchSize is the number of units embedded per call while indexing.
	BatchSize int

	// MaxAttempts bounds retries of a failed embedding call.
	MaxAttempts int

	// RatePerSecond throttles embedding calls. Zero disables throttling.
	RatePerSecond float64
}

// IndexSettings configures vector index storage.
type IndexSettings struct {
	// Dir is the root directory holding one sub-directory per collection.
	Dir string

	// Backend selects the index implementation.
	Backend IndexBackend

	// Metric is the distance metric for new indexes.
	Metric DistanceMetric

	// Oversample multiplies k to size the candidate pool.
	Oversample int

	// QdrantHost and QdrantPort locate the Qdrant server.
	QdrantHost string
	QdrantPort int
}

// ScorerSettings holds relevance weights and thresholds.
type ScorerSettings struct {
	// DefaultThreshold gates uncategorised queries.
	DefaultThreshold float64

	// Weights of the combined score.
	WeightSimilarity float64
	WeightOverlap    float64
	WeightSynonym    float64

	// Category share boundaries for the dynamic threshold tiers.
	TierLow float64
	TierMid float64

	// Thresholds for sparse, medium and well represented categories.
	ThresholdLow  float64
	ThresholdMid  float64
	ThresholdHigh float64
}

// DispatchSettings bounds concurrent criterion searches.
type DispatchSettings struct {
	// MaxWorkers caps the worker pool.
	MaxWorkers int

	// PerWorkerMB is the assumed memory cost of one worker.
	PerWorkerMB int

	// MemoryCeiling refuses dispatch when used memory reaches this fraction.
	MemoryCeiling float64

	// MinFreeMB refuses dispatch when less memory than this is available.
	MinFreeMB int
}

// WatchSettings configures directory watching.
type WatchSettings struct {
	// Directories are watched by `esgrag watch` when none are given.
	Directories []string

	// PollInterval is the full-scan fallback interval.
	PollInterval time.Duration

	// Debounce coalesces bursts of events for one path.
	Debounce time.Duration
}

// AppSettings holds all persisted application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	Index     IndexSettings
	Scorer    ScorerSettings
	Dispatch  DispatchSettings
	Watch     WatchSettings

	// SynonymsFile optionally overrides the built-in synonym table.
	SynonymsFile string
}

// EmbeddingDimensions maps known embedding models to their output size.
var EmbeddingDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// DefaultHashingDimensions is the vector size of the offline embedder.
const DefaultHashingDimensions = 512

// DefaultAppSettings returns the defaults used when nothing is configured.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider:    EmbeddingHashing,
			Model:       "hashing",
			Dimensions:  DefaultHashingDimensions,
			BatchSize:   32,
			MaxAttempts: 3,
		},
		Index: IndexSettings{
			Backend:    BackendFlat,
			Metric:     MetricL2,
			Oversample: 8,
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Scorer: DefaultScorerSettings(),
		Dispatch: DispatchSettings{
			MaxWorkers:    4,
			PerWorkerMB:   256,
			MemoryCeiling: 0.8,
			MinFreeMB:     256,
		},
		Watch: WatchSettings{
			PollInterval: 30 * time.Minute,
			Debounce:     2 * time.Second,
		},
	}
}

// DefaultScorerSettings returns the empirically tuned scorer defaults.
func DefaultScorerSettings() ScorerSettings {
	return ScorerSettings{
		DefaultThreshold: 0.25,
		WeightSimilarity: 0.6,
		WeightOverlap:    0.25,
		WeightSynonym:    0.15,
		TierLow:          0.1,
		TierMid:          0.2,
		ThresholdLow:     0.25,
		ThresholdMid:     0.35,
		ThresholdHigh:    0.4,
	}
}
