// Package main is the esgrag command: indexing, retrieval and compliance
// audits over ESG reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/esgrag/internal/adapters/driven/ai"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/report"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/requirements"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/resource"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/vectorindex"
	"github.com/custodia-labs/esgrag/internal/adapters/driving/cli"
	"github.com/custodia-labs/esgrag/internal/connectors/filesystem"
	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/core/services"
	"github.com/custodia-labs/esgrag/internal/extractors"
	"github.com/custodia-labs/esgrag/internal/logger"
	"github.com/custodia-labs/esgrag/internal/segmenter"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cleanup, err := wire(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "esgrag: %v\n", err)
		os.Exit(1)
	}

	cli.SetVersion(version)
	err = cli.Execute(ctx)
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}

// wire builds every service from the stored settings and installs them as
// the command configuration. The returned func releases open indexes.
func wire(ctx context.Context) (func(), error) {
	log := logger.New(os.Stderr, false)

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	baseDir := filepath.Join(home, ".esgrag")

	configStore, err := file.NewConfigStore(baseDir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings.Index.Dir == "" {
		settings.Index.Dir = filepath.Join(baseDir, "indexes")
	}

	config := &cli.Config{
		Collections:     make(map[domain.SourceKind]*cli.Collection),
		Assessor:        services.NewAssessor(log),
		Settings:        settingsService,
		Requirements:    requirements.NewCSVSource(),
		Renderer:        report.NewCSVRenderer(),
		SchedulerConfig: settingsService.GetSchedulerConfig(),
		Logger:          log,
	}

	// The embedder and indexes are optional so settings commands keep
	// working while the provider is misconfigured.
	embedder, err := ai.CreateEmbeddingService(&settings.Embedding, log)
	if err != nil {
		log.Warn("embedding unavailable: %v", err)
		cli.SetConfig(config)
		return func() {}, nil
	}

	fingerprints := func(domain.SourceKind) driven.FingerprintStore { return memory.NewFingerprintStore() }
	var schedulerStore driven.SchedulerStore = memory.NewSchedulerStore()
	closeStore := func() {}
	if store, err := sqlite.NewStore(filepath.Join(baseDir, "data")); err != nil {
		log.Warn("state store unavailable, fingerprints will not persist: %v", err)
	} else {
		fingerprints = func(kind domain.SourceKind) driven.FingerprintStore {
			return store.FingerprintStore(kind.String())
		}
		schedulerStore = store.SchedulerStore()
		closeStore = func() { _ = store.Close() }
	}

	synonyms, err := file.NewSynonymStore(baseDir)
	if err != nil {
		log.Warn("synonym file unavailable, using built-in table: %v", err)
		synonyms = file.NewStaticSynonyms(file.DefaultSynonyms)
	}

	registry := extractors.NewDefaultRegistry()
	seg := segmenter.New()

	var indexes []driven.VectorIndex
	cleanup := func() {
		for _, idx := range indexes {
			if err := idx.Close(); err != nil {
				log.Error("close index: %v", err)
			}
		}
		_ = embedder.Close()
		closeStore()
	}

	kinds := []domain.SourceKind{domain.SourceStandard, domain.SourceReport, domain.SourceRequirement}
	for _, kind := range kinds {
		idx, err := vectorindex.Open(ctx, settings.Index, kind, embedder.Dimensions())
		if err != nil {
			cleanup()
			return nil, err
		}
		indexes = append(indexes, idx)

		indexer := services.NewIndexer(idx, embedder, registry, seg, fingerprints(kind),
			services.IndexerConfig{Kind: kind, BatchSize: settings.Embedding.BatchSize, Scorer: settings.Scorer}, log)
		searcher := services.NewSearcher(idx, embedder, synonyms,
			services.SearcherConfig{Scorer: settings.Scorer, Oversample: settings.Index.Oversample}, log)
		config.Collections[kind] = &cli.Collection{Index: idx, Indexer: indexer, Searcher: searcher}
	}

	config.Dispatcher = services.NewDispatcher(resource.NewHostSampler(true), settings.Dispatch, log)
	config.Watcher = services.NewChangeWatcher(
		filesystem.NewNotifier(log), filesystem.NewScanner(log), settings.Watch, log)

	reindexKind := config.SchedulerConfig.ReindexKind
	config.Scheduler = services.NewScheduler(config.SchedulerConfig, schedulerStore, services.SchedulerTargets{
		Indexer:     config.Collections[reindexKind].Indexer,
		Directories: settings.Watch.Directories,
		Options:     driving.IndexOptions{Kind: reindexKind},
		Indexes:     indexes,
	}, log)

	cli.SetConfig(config)
	return cleanup, nil
}
