package services

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyEmbedDims        = "embedding.dimensions"
	keyEmbedBatch       = "embedding.batch_size"
	keyEmbedAttempts    = "embedding.max_attempts"
	keyEmbedRate        = "embedding.rate_per_second"
	keyIndexDir         = "index.dir"
	keyIndexBackend     = "index.backend"
	keyIndexMetric      = "index.metric"
	keyIndexOversample  = "index.oversample"
	keyIndexQdrantHost  = "index.qdrant_host"
	keyIndexQdrantPort  = "index.qdrant_port"
	keyScorerDefault    = "scorer.default_threshold"
	keyScorerWeightSim  = "scorer.weight_similarity"
	keyScorerWeightOvl  = "scorer.weight_overlap"
	keyScorerWeightSyn  = "scorer.weight_synonym"
	keyScorerTierLow    = "scorer.tier_low"
	keyScorerTierMid    = "scorer.tier_mid"
	keyScorerThreshLow  = "scorer.threshold_low"
	keyScorerThreshMid  = "scorer.threshold_mid"
	keyScorerThreshHigh = "scorer.threshold_high"
	keyDispatchWorkers  = "dispatch.max_workers"
	keyDispatchPerMB    = "dispatch.per_worker_mb"
	keyDispatchCeiling  = "dispatch.memory_ceiling"
	keyDispatchMinFree  = "dispatch.min_free_mb"
	keyWatchDirs        = "watch.directories"
	keyWatchPoll        = "watch.poll_interval"
	keyWatchDebounce    = "watch.debounce"
	keySynonymsFile     = "synonyms.file"
	keySchedulerEnabled = "scheduler.enabled"
	keyReindexEnabled   = "scheduler.corpus_reindex.enabled"
	keyReindexInterval  = "scheduler.corpus_reindex.interval"
	keyReindexKind      = "scheduler.corpus_reindex.kind"
	keyCompactEnabled   = "scheduler.index_compact.enabled"
	keyCompactInterval  = "scheduler.index_compact.interval"
)

// EnvOpenAIKey is read when no OpenAI key is configured.
//
//nolint:gosec // G101: environment variable name, not a credential.
const EnvOpenAIKey = "OPENAI_API_KEY"

// DefaultOllamaURL is used for Ollama when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// valueKind is how a raw string setting is parsed.
type valueKind int

const (
	kindString valueKind = iota
	kindSecret
	kindInt
	kindFloat
	kindDuration
	kindList
	kindBool
)

// settingKinds lists every settable key.
var settingKinds = map[string]valueKind{
	keyEmbedProvider:    kindString,
	keyEmbedModel:       kindString,
	keyEmbedBaseURL:     kindString,
	keyEmbedAPIKey:      kindSecret,
	keyEmbedDims:        kindInt,
	keyEmbedBatch:       kindInt,
	keyEmbedAttempts:    kindInt,
	keyEmbedRate:        kindFloat,
	keyIndexDir:         kindString,
	keyIndexBackend:     kindString,
	keyIndexMetric:      kindString,
	keyIndexOversample:  kindInt,
	keyIndexQdrantHost:  kindString,
	keyIndexQdrantPort:  kindInt,
	keyScorerDefault:    kindFloat,
	keyScorerWeightSim:  kindFloat,
	keyScorerWeightOvl:  kindFloat,
	keyScorerWeightSyn:  kindFloat,
	keyScorerTierLow:    kindFloat,
	keyScorerTierMid:    kindFloat,
	keyScorerThreshLow:  kindFloat,
	keyScorerThreshMid:  kindFloat,
	keyScorerThreshHigh: kindFloat,
	keyDispatchWorkers:  kindInt,
	keyDispatchPerMB:    kindInt,
	keyDispatchCeiling:  kindFloat,
	keyDispatchMinFree:  kindInt,
	keyWatchDirs:        kindList,
	keyWatchPoll:        kindDuration,
	keyWatchDebounce:    kindDuration,
	keySynonymsFile:     kindString,
	keySchedulerEnabled: kindBool,
	keyReindexEnabled:   kindBool,
	keyReindexInterval:  kindDuration,
	keyReindexKind:      kindString,
	keyCompactEnabled:   kindBool,
	keyCompactInterval:  kindDuration,
}

// schedulerTaskKeys maps task IDs to their enabled and interval keys.
var schedulerTaskKeys = map[string][2]string{
	domain.TaskIDCorpusReindex: {keyReindexEnabled, keyReindexInterval},
	domain.TaskIDIndexCompact:  {keyCompactEnabled, keyCompactInterval},
}

// SettingsService manages application settings stored as flat keys.
type SettingsService struct {
	configStore driven.ConfigStore
	validator   driven.EmbeddingValidator
	getenv      func(string) string
}

// NewSettingsService creates a new settings service. The validator may be nil.
func NewSettingsService(configStore driven.ConfigStore, validator driven.EmbeddingValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		validator:   validator,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings, falling back to defaults for
// missing or invalid values.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:      s.getProvider(d.Embedding.Provider),
			Model:         s.configStore.GetString(keyEmbedModel),
			BaseURL:       s.configStore.GetString(keyEmbedBaseURL),
			APIKey:        s.configStore.GetString(keyEmbedAPIKey),
			Dimensions:    s.configStore.GetInt(keyEmbedDims),
			BatchSize:     s.getInt(keyEmbedBatch, d.Embedding.BatchSize),
			MaxAttempts:   s.getInt(keyEmbedAttempts, d.Embedding.MaxAttempts),
			RatePerSecond: s.getFloat(keyEmbedRate, d.Embedding.RatePerSecond),
		},
		Index: domain.IndexSettings{
			Dir:        s.getString(keyIndexDir, d.Index.Dir),
			Backend:    s.getBackend(d.Index.Backend),
			Metric:     s.getMetric(d.Index.Metric),
			Oversample: s.getInt(keyIndexOversample, d.Index.Oversample),
			QdrantHost: s.getString(keyIndexQdrantHost, d.Index.QdrantHost),
			QdrantPort: s.getInt(keyIndexQdrantPort, d.Index.QdrantPort),
		},
		Scorer: domain.ScorerSettings{
			DefaultThreshold: s.getFloat(keyScorerDefault, d.Scorer.DefaultThreshold),
			WeightSimilarity: s.getFloat(keyScorerWeightSim, d.Scorer.WeightSimilarity),
			WeightOverlap:    s.getFloat(keyScorerWeightOvl, d.Scorer.WeightOverlap),
			WeightSynonym:    s.getFloat(keyScorerWeightSyn, d.Scorer.WeightSynonym),
			TierLow:          s.getFloat(keyScorerTierLow, d.Scorer.TierLow),
			TierMid:          s.getFloat(keyScorerTierMid, d.Scorer.TierMid),
			ThresholdLow:     s.getFloat(keyScorerThreshLow, d.Scorer.ThresholdLow),
			ThresholdMid:     s.getFloat(keyScorerThreshMid, d.Scorer.ThresholdMid),
			ThresholdHigh:    s.getFloat(keyScorerThreshHigh, d.Scorer.ThresholdHigh),
		},
		Dispatch: domain.DispatchSettings{
			MaxWorkers:    s.getInt(keyDispatchWorkers, d.Dispatch.MaxWorkers),
			PerWorkerMB:   s.getInt(keyDispatchPerMB, d.Dispatch.PerWorkerMB),
			MemoryCeiling: s.getFloat(keyDispatchCeiling, d.Dispatch.MemoryCeiling),
			MinFreeMB:     s.getInt(keyDispatchMinFree, d.Dispatch.MinFreeMB),
		},
		Watch: domain.WatchSettings{
			Directories:  s.configStore.GetStringSlice(keyWatchDirs),
			PollInterval: s.getDuration(keyWatchPoll, d.Watch.PollInterval),
			Debounce:     s.getDuration(keyWatchDebounce, d.Watch.Debounce),
		},
		SynonymsFile: s.configStore.GetString(keySynonymsFile),
	}

	emb := &settings.Embedding
	if emb.Model == "" {
		emb.Model = domain.DefaultEmbeddingModels()[emb.Provider]
	}
	if emb.Dimensions == 0 {
		if emb.Provider == domain.EmbeddingHashing {
			emb.Dimensions = domain.DefaultHashingDimensions
		} else {
			emb.Dimensions = domain.EmbeddingDimensions[emb.Model]
		}
	}
	if emb.Provider == domain.EmbeddingOllama && emb.BaseURL == "" {
		emb.BaseURL = DefaultOllamaURL
	}
	if emb.Provider == domain.EmbeddingOpenAI && emb.APIKey == "" {
		emb.APIKey = s.getenv(EnvOpenAIKey)
	}

	return settings, nil
}

// Save persists application settings. An empty API key is not written so an
// environment key is never copied into the config file.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	type setting struct {
		key   string
		value any
	}
	values := []setting{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyEmbedBatch, settings.Embedding.BatchSize},
		{keyEmbedAttempts, settings.Embedding.MaxAttempts},
		{keyEmbedRate, settings.Embedding.RatePerSecond},
		{keyIndexDir, settings.Index.Dir},
		{keyIndexBackend, settings.Index.Backend.String()},
		{keyIndexMetric, settings.Index.Metric.String()},
		{keyIndexOversample, settings.Index.Oversample},
		{keyIndexQdrantHost, settings.Index.QdrantHost},
		{keyIndexQdrantPort, settings.Index.QdrantPort},
		{keyScorerDefault, settings.Scorer.DefaultThreshold},
		{keyScorerWeightSim, settings.Scorer.WeightSimilarity},
		{keyScorerWeightOvl, settings.Scorer.WeightOverlap},
		{keyScorerWeightSyn, settings.Scorer.WeightSynonym},
		{keyScorerTierLow, settings.Scorer.TierLow},
		{keyScorerTierMid, settings.Scorer.TierMid},
		{keyScorerThreshLow, settings.Scorer.ThresholdLow},
		{keyScorerThreshMid, settings.Scorer.ThresholdMid},
		{keyScorerThreshHigh, settings.Scorer.ThresholdHigh},
		{keyDispatchWorkers, settings.Dispatch.MaxWorkers},
		{keyDispatchPerMB, settings.Dispatch.PerWorkerMB},
		{keyDispatchCeiling, settings.Dispatch.MemoryCeiling},
		{keyDispatchMinFree, settings.Dispatch.MinFreeMB},
		{keyWatchDirs, settings.Watch.Directories},
		{keyWatchPoll, settings.Watch.PollInterval.String()},
		{keyWatchDebounce, settings.Watch.Debounce.String()},
		{keySynonymsFile, settings.SynonymsFile},
	}
	if settings.Embedding.APIKey != "" && settings.Embedding.APIKey != s.getenv(EnvOpenAIKey) {
		values = append(values, setting{keyEmbedAPIKey, settings.Embedding.APIKey})
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// SetEmbeddingProvider configures the embedding provider. An empty model
// picks the provider default; dimensions follow the model when known.
func (s *SettingsService) SetEmbeddingProvider(provider domain.EmbeddingProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: embedding provider %q", domain.ErrInvalidInput, provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" && s.getenv(EnvOpenAIKey) == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	emb := &settings.Embedding
	emb.Provider = provider
	emb.Model = model
	if emb.Model == "" {
		emb.Model = domain.DefaultEmbeddingModels()[provider]
	}
	switch provider {
	case domain.EmbeddingOllama:
		if emb.BaseURL == "" {
			emb.BaseURL = DefaultOllamaURL
		}
	default:
		emb.BaseURL = ""
	}
	emb.APIKey = apiKey
	switch {
	case provider == domain.EmbeddingHashing:
		emb.Dimensions = domain.DefaultHashingDimensions
	case domain.EmbeddingDimensions[emb.Model] > 0:
		emb.Dimensions = domain.EmbeddingDimensions[emb.Model]
	default:
		emb.Dimensions = 0
	}

	return s.Save(settings)
}

// Validate checks the current settings and, when a validator is set, that
// the embedding provider is reachable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := ValidateSettings(settings); err != nil {
		return err
	}
	if s.validator != nil {
		return s.validator.ValidateEmbedding(&settings.Embedding)
	}
	return nil
}

// ValidateSettings checks settings without contacting any service.
func ValidateSettings(settings *domain.AppSettings) error {
	var problems []string
	if !settings.Embedding.IsConfigured() {
		problems = append(problems, fmt.Sprintf("embedding provider %q is not configured", settings.Embedding.Provider))
	}
	if settings.Embedding.Dimensions <= 0 {
		problems = append(problems, fmt.Sprintf("embedding dimensions unknown for model %q", settings.Embedding.Model))
	}
	if !settings.Index.Backend.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown index backend %q", settings.Index.Backend))
	}
	if !settings.Index.Metric.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown distance metric %q", settings.Index.Metric))
	}
	sc := settings.Scorer
	for name, w := range map[string]float64{
		"weight_similarity": sc.WeightSimilarity, "weight_overlap": sc.WeightOverlap, "weight_synonym": sc.WeightSynonym,
	} {
		if w < 0 {
			problems = append(problems, fmt.Sprintf("scorer %s must not be negative", name))
		}
	}
	if sc.TierLow > sc.TierMid {
		problems = append(problems, "scorer tier_low must not exceed tier_mid")
	}
	if c := settings.Dispatch.MemoryCeiling; c < 0 || c > 1 {
		problems = append(problems, "dispatch memory_ceiling must be within [0,1]")
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Keys lists every settable key in order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingKinds))
	for k := range settingKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetValue parses raw according to the key's type and stores it.
// Lists are comma separated.
func (s *SettingsService) SetValue(key, raw string) error {
	kind, ok := settingKinds[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	raw = strings.TrimSpace(raw)

	var value any
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, key)
		}
		value = n
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, key)
		}
		value = f
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidInput, key)
		}
		value = b
	case kindDuration:
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%w: %s must be a duration such as 30m", domain.ErrInvalidInput, key)
		}
		value = raw
	case kindList:
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		value = items
	default:
		value = raw
	}

	if err := s.checkEnum(key, raw); err != nil {
		return err
	}
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Value returns the stored value of a key for display. Secrets are masked.
func (s *SettingsService) Value(key string) (string, bool) {
	kind, known := settingKinds[key]
	v, ok := s.configStore.Get(key)
	if !known || !ok {
		return "", false
	}
	if kind == kindSecret {
		return maskSecret(fmt.Sprint(v)), true
	}
	if list, isList := v.([]string); isList {
		return strings.Join(list, ","), true
	}
	if list, isList := v.([]any); isList {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ","), true
	}
	return fmt.Sprint(v), true
}

func (s *SettingsService) checkEnum(key, raw string) error {
	var valid bool
	switch key {
	case keyEmbedProvider:
		valid = domain.EmbeddingProvider(raw).IsValid()
	case keyIndexBackend:
		valid = domain.IndexBackend(raw).IsValid()
	case keyIndexMetric:
		valid = domain.DistanceMetric(raw).IsValid()
	case keyReindexKind:
		valid = domain.SourceKind(raw).IsDocument()
	default:
		return nil
	}
	if !valid {
		return fmt.Errorf("%w: %q is not a valid %s", domain.ErrInvalidInput, raw, key)
	}
	return nil
}

// GetSchedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()

	if _, exists := s.configStore.Get(keySchedulerEnabled); exists {
		defaults.Enabled = s.configStore.GetBool(keySchedulerEnabled)
	}

	for taskID, keys := range schedulerTaskKeys {
		taskCfg := defaults.TaskConfigs[taskID]
		if _, exists := s.configStore.Get(keys[0]); exists {
			taskCfg.Enabled = s.configStore.GetBool(keys[0])
		}
		taskCfg.Interval = s.getDuration(keys[1], taskCfg.Interval)
		defaults.TaskConfigs[taskID] = taskCfg
	}

	if kind := domain.SourceKind(s.configStore.GetString(keyReindexKind)); kind.IsDocument() {
		defaults.ReindexKind = kind
	}

	return defaults
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getProvider(defaultVal domain.EmbeddingProvider) domain.EmbeddingProvider {
	p := domain.EmbeddingProvider(s.configStore.GetString(keyEmbedProvider))
	if !p.IsValid() {
		return defaultVal
	}
	return p
}

func (s *SettingsService) getBackend(defaultVal domain.IndexBackend) domain.IndexBackend {
	b := domain.IndexBackend(s.configStore.GetString(keyIndexBackend))
	if !b.IsValid() {
		return defaultVal
	}
	return b
}

func (s *SettingsService) getMetric(defaultVal domain.DistanceMetric) domain.DistanceMetric {
	m := domain.DistanceMetric(s.configStore.GetString(keyIndexMetric))
	if !m.IsValid() {
		return defaultVal
	}
	return m
}

func maskSecret(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}
