// Package cli provides the esgrag command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// version is reported by `esgrag version`. Set with SetVersion.
var version = "dev"

var verbose bool

// Collection bundles the services bound to one vector index.
type Collection struct {
	Index    driven.VectorIndex
	Indexer  driving.CorpusIndexer
	Searcher driving.RetrievalSearcher
}

// Config holds everything the commands run against.
type Config struct {
	// Collections are keyed by kind. A missing kind is reported as not configured.
	Collections map[domain.SourceKind]*Collection

	Dispatcher   driving.QueryDispatcher
	Assessor     driving.ComplianceAssessor
	Watcher      driving.ChangeWatcher
	Settings     driving.SettingsService
	Requirements driven.RequirementSource
	Renderer     driven.ReportRenderer

	// Scheduler runs background tasks during long-running commands.
	Scheduler       driving.Scheduler
	SchedulerConfig domain.SchedulerConfig

	Logger *logger.Logger
}

// appConfig holds the current configuration.
var appConfig *Config

var rootCmd = &cobra.Command{
	Use:   "esgrag",
	Short: "Retrieve ESG disclosures from sustainability reports",
	Long: `esgrag indexes regulatory standards, company reports and requirement
lists into local vector indexes, and answers compliance criteria with ranked,
page-attributed passages.

Typical workflow:
  esgrag index standards/ --kind standard
  esgrag index requirements requirements/UNCTAD_requirements.csv
  esgrag audit reports/acme-2024.pdf --requirements requirements/UNCTAD_requirements.csv`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if appConfig != nil && appConfig.Logger != nil {
			appConfig.Logger.SetVerbose(verbose)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
}

// SetConfig sets the configuration used by every command.
func SetConfig(config *Config) {
	appConfig = config
}

// SetVersion sets the reported version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command with ctx. Command output goes to stdout.
func Execute(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

// collection returns the configured collection for kind.
func collection(kind domain.SourceKind) (*Collection, error) {
	if appConfig == nil || appConfig.Collections == nil {
		return nil, fmt.Errorf("%s index not configured", kind)
	}
	c, ok := appConfig.Collections[kind]
	if !ok || c == nil {
		return nil, fmt.Errorf("%s index not configured", kind)
	}
	return c, nil
}

// collectionKinds returns the configured kinds in a stable order.
func collectionKinds() []domain.SourceKind {
	if appConfig == nil {
		return nil
	}
	kinds := make([]domain.SourceKind, 0, len(appConfig.Collections))
	for k, c := range appConfig.Collections {
		if c != nil && c.Index != nil {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func parseKind(s string) (domain.SourceKind, error) {
	kind := domain.SourceKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: unknown kind %q (want standard, report or requirement)", domain.ErrInvalidInput, s)
	}
	return kind, nil
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// startScheduler runs the scheduler in the background when enabled and
// returns a function that stops it.
func startScheduler(ctx context.Context, errOut io.Writer) func() {
	if appConfig == nil || appConfig.Scheduler == nil || !appConfig.SchedulerConfig.Enabled {
		return func() {}
	}
	schedulerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := appConfig.Scheduler.Start(schedulerCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			// Log but don't fail - scheduler errors shouldn't stop the command
			fmt.Fprintf(errOut, "scheduler stopped: %v\n", err)
		}
	}()
	return func() {
		cancel()
		appConfig.Scheduler.Stop() //nolint:errcheck // best-effort shutdown
		<-done
	}
}
