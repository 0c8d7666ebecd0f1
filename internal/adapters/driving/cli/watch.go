package cli

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

var (
	watchKind     string
	watchCategory string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Keep directories indexed as files change",
	Long: `Watches directories for created, modified and removed files and updates
the index as they change. Native filesystem events are used where available,
with a periodic full scan as a fallback.

Without arguments the directories configured in watch.directories are used.
Background tasks (re-index, compaction) run while watching when the scheduler
is enabled.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchKind, "kind", "k", string(domain.SourceReport), "collection: standard or report")
	watchCmd.Flags().StringVarP(&watchCategory, "category", "c", "", "category tag written to new entries")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "full-scan interval (0 = configured)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if appConfig == nil || appConfig.Watcher == nil {
		return errors.New("watcher not configured")
	}
	kind, err := parseKind(watchKind)
	if err != nil {
		return err
	}
	if kind == domain.SourceRequirement {
		return errors.New("requirement lists cannot be watched")
	}
	c, err := collection(kind)
	if err != nil {
		return err
	}
	if c.Indexer == nil {
		return errors.New("indexer not configured")
	}

	dirs := args
	if len(dirs) == 0 && appConfig.Settings != nil {
		if settings, err := appConfig.Settings.Get(); err == nil {
			dirs = settings.Watch.Directories
		}
	}
	if len(dirs) == 0 {
		return errors.New("no directories to watch: pass them as arguments or set watch.directories")
	}

	ctx := cmd.Context()
	stopScheduler := startScheduler(ctx, cmd.ErrOrStderr())
	defer stopScheduler()

	callback := indexOnChange(cmd, c.Indexer, driving.IndexOptions{Kind: kind, Category: watchCategory})

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", strings.Join(dirs, ", "))
	g, gctx := errgroup.WithContext(ctx)
	for _, dir := range dirs {
		g.Go(func() error {
			return appConfig.Watcher.Watch(gctx, dir, callback, watchInterval)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// indexOnChange keeps the index in step with one change event at a time.
// Unchanged and unsupported files are ignored.
func indexOnChange(cmd *cobra.Command, indexer driving.CorpusIndexer, opts driving.IndexOptions) driving.ChangeCallback {
	var mu sync.Mutex
	say := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		cmd.Printf(format+"\n", args...)
	}

	return func(ctx context.Context, ev domain.ChangeEvent) {
		if appConfig != nil && appConfig.Logger != nil {
			appConfig.Logger.Debug("change: %s %s via %s", ev.Op, ev.Path, ev.Origin)
		}
		if ev.Op == domain.ChangeRemoved {
			if err := indexer.RemoveSource(ctx, ev.Path); err != nil {
				say("remove %s: %v", ev.Path, err)
				return
			}
			say("removed %s", ev.Path)
			return
		}

		report, err := indexer.IndexFile(ctx, ev.Path, opts)
		switch {
		case err != nil:
			say("index %s: %v", ev.Path, err)
		case len(report.Failed) > 0:
			if strings.HasPrefix(report.Failed[0].Error, domain.ErrUnsupportedType.Error()) {
				return
			}
			say("index %s: %s", ev.Path, report.Failed[0].Error)
		case report.Indexed > 0:
			say("%s %s (%d entries)", ev.Op, ev.Path, report.EntriesAdded)
		}
	}
}
