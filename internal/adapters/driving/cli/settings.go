package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

const notSet = "(not set)"

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the embedding provider, index storage, relevance
thresholds and dispatch limits.

Settings are stored in ~/.esgrag/config.toml. Use 'settings get' and
'settings set' for individual keys.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting, or list every key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Change one setting. Lists are comma separated and durations use Go
syntax, e.g.:

  esgrag settings set scorer.default_threshold 0.3
  esgrag settings set watch.directories reports,standards
  esgrag settings set watch.poll_interval 10m`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long: `Configure the embedding provider used for indexing and retrieval.

Changing the provider or model changes the vector dimension; existing
indexes must be rebuilt afterwards.`,
	RunE: runSettingsEmbedding,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if appConfig == nil || appConfig.Settings == nil {
		return errors.New("settings service not configured")
	}

	settings, err := appConfig.Settings.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	emb := settings.Embedding
	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", emb.Provider.Description())
	cmd.Printf("  Model: %s\n", emb.Model)
	cmd.Printf("  Dimensions: %d\n", emb.Dimensions)
	if emb.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", emb.BaseURL)
	}
	if emb.Provider.RequiresAPIKey() {
		if emb.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(emb.APIKey))
		} else {
			cmd.Printf("  API Key: %s\n", notSet)
		}
	}
	status := "configured"
	if !emb.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()

	idx := settings.Index
	cmd.Println("[Index]")
	cmd.Printf("  Directory: %s\n", idx.Dir)
	cmd.Printf("  Backend: %s\n", idx.Backend)
	if idx.Backend == domain.BackendQdrant {
		cmd.Printf("  Qdrant: %s:%d\n", idx.QdrantHost, idx.QdrantPort)
	}
	cmd.Printf("  Metric: %s\n", idx.Metric)
	cmd.Println()

	sc := settings.Scorer
	cmd.Println("[Relevance]")
	cmd.Printf("  Weights: similarity %.2f, overlap %.2f, synonyms %.2f\n",
		sc.WeightSimilarity, sc.WeightOverlap, sc.WeightSynonym)
	cmd.Printf("  Default threshold: %.2f\n", sc.DefaultThreshold)
	cmd.Printf("  Category thresholds: %.2f (<%.0f%%), %.2f (<%.0f%%), %.2f\n",
		sc.ThresholdLow, sc.TierLow*100, sc.ThresholdMid, sc.TierMid*100, sc.ThresholdHigh)
	cmd.Println()

	d := settings.Dispatch
	cmd.Println("[Dispatch]")
	cmd.Printf("  Max workers: %d\n", d.MaxWorkers)
	cmd.Printf("  Memory per worker: %d MB\n", d.PerWorkerMB)
	cmd.Printf("  Memory ceiling: %.0f%%\n", d.MemoryCeiling*100)
	cmd.Println()

	w := settings.Watch
	cmd.Println("[Watch]")
	dirs := notSet
	if len(w.Directories) > 0 {
		dirs = strings.Join(w.Directories, ", ")
	}
	cmd.Printf("  Directories: %s\n", dirs)
	cmd.Printf("  Poll interval: %s\n", w.PollInterval)
	cmd.Println()

	if err := appConfig.Settings.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'esgrag settings embedding' to fix the embedding configuration.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	if appConfig == nil || appConfig.Settings == nil {
		return errors.New("settings service not configured")
	}

	keys := appConfig.Settings.Keys()
	if len(args) == 1 {
		if !containsKey(keys, args[0]) {
			return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, args[0])
		}
		keys = args
	}

	for _, key := range keys {
		value, ok := appConfig.Settings.Value(key)
		if !ok {
			value = "(default)"
		}
		if len(args) == 1 {
			cmd.Println(value)
		} else {
			cmd.Printf("%-36s %s\n", key, value)
		}
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if appConfig == nil || appConfig.Settings == nil {
		return errors.New("settings service not configured")
	}

	if err := appConfig.Settings.SetValue(args[0], args[1]); err != nil {
		return err
	}
	value, _ := appConfig.Settings.Value(args[0])
	cmd.Printf("%s = %s\n", args[0], value)
	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if appConfig == nil || appConfig.Settings == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	return configureEmbeddingProvider(cmd, reader)
}

func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	defaults := domain.DefaultEmbeddingModels()
	defaultModel := defaults[selectedProvider]
	model := defaultModel
	if selectedProvider != domain.EmbeddingHashing {
		cmd.Printf("Enter model name [%s]: ", defaultModel)
		if model = readLine(reader); model == "" {
			model = defaultModel
		}
	}

	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Print("Enter API key (empty to use OPENAI_API_KEY): ")
		apiKey = readPassword(cmd.InOrStdin(), reader)
		cmd.Println()
	}

	if err := appConfig.Settings.SetEmbeddingProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := appConfig.Settings.Validate(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n", selectedProvider.Description(), model)
	cmd.Println("Rebuild existing indexes if the vector dimension changed.")
	return nil
}

// Helper functions.

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo when in is a terminal, else falls back to
// a plain line read from reader.
func readPassword(in io.Reader, reader *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
