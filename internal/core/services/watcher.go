package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure ChangeWatcher implements the interface.
var _ driving.ChangeWatcher = (*ChangeWatcher)(nil)

// Watch defaults.
const (
	DefaultPollInterval = 30 * time.Minute
	DefaultDebounce     = 2 * time.Second
)

// fileStamp is what a poll compares between scans.
type fileStamp struct {
	modTime time.Time
	size    int64
}

// debounced is a change waiting for its quiet period to end.
type debounced struct {
	event domain.ChangeEvent
	timer *time.Timer
	gen   uint64
}

// firing identifies which debounce timer expired.
type firing struct {
	path string
	gen  uint64
}

// ChangeWatcher reports changed files in a directory. Native events are
// debounced per path; a periodic full scan catches what events miss.
// Delivery is at least once, so a change may be reported by both.
type ChangeWatcher struct {
	notifier driven.DirectoryNotifier
	scanner  driven.DirectoryScanner
	debounce time.Duration
	poll     time.Duration
	log      *logger.Logger
}

// NewChangeWatcher creates a watcher. A nil notifier leaves only polling.
func NewChangeWatcher(
	notifier driven.DirectoryNotifier,
	scanner driven.DirectoryScanner,
	cfg domain.WatchSettings,
	log *logger.Logger,
) *ChangeWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	return &ChangeWatcher{
		notifier: notifier,
		scanner:  scanner,
		debounce: cfg.Debounce,
		poll:     cfg.PollInterval,
		log:      logger.OrNop(log),
	}
}

// Watch blocks until ctx is cancelled and returns ctx.Err(). The directory
// is created when missing.
func (w *ChangeWatcher) Watch(ctx context.Context, dir string, callback driving.ChangeCallback, interval time.Duration) error {
	if callback == nil {
		return fmt.Errorf("%w: nil callback", domain.ErrInvalidInput)
	}
	if interval <= 0 {
		interval = w.poll
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}

	var events <-chan domain.ChangeEvent
	if w.notifier != nil {
		ch, err := w.notifier.Notify(ctx, dir)
		if err != nil {
			w.log.Warn("native watch of %s unavailable, polling every %s: %v", dir, interval, err)
		} else {
			events = ch
		}
	}

	snapshot := w.scan(ctx, dir)
	if snapshot == nil {
		snapshot = map[string]fileStamp{}
	}
	w.log.Info("Watching %s (%d files, poll every %s)", dir, len(snapshot), interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := make(map[string]*debounced)
	fired := make(chan firing, 16)
	var gen uint64
	defer func() {
		for _, p := range pending {
			p.timer.Stop()
		}
	}()

	deliver := func(ev domain.ChangeEvent) {
		w.log.Debug("%s %s (%s)", ev.Op, ev.Path, ev.Origin)
		callback(ctx, ev)
		w.remember(snapshot, ev)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				w.log.Warn("native watch of %s stopped, polling every %s", dir, interval)
				events = nil
				continue
			}
			if w.debounce == 0 {
				deliver(ev)
				continue
			}
			gen++
			p, exists := pending[ev.Path]
			if exists {
				p.timer.Stop()
				// A create followed by writes is still a create.
				if !(p.event.Op == domain.ChangeCreated && ev.Op == domain.ChangeModified) {
					p.event = ev
				}
			} else {
				p = &debounced{event: ev}
				pending[ev.Path] = p
			}
			p.gen = gen
			f := firing{path: ev.Path, gen: gen}
			p.timer = time.AfterFunc(w.debounce, func() {
				select {
				case fired <- f:
				case <-ctx.Done():
				}
			})

		case f := <-fired:
			p, ok := pending[f.path]
			if !ok || p.gen != f.gen {
				continue
			}
			delete(pending, f.path)
			deliver(p.event)

		case <-ticker.C:
			current := w.scan(ctx, dir)
			if current == nil {
				continue
			}
			for _, ev := range diffSnapshots(snapshot, current) {
				if _, waiting := pending[ev.Path]; waiting {
					continue
				}
				w.log.Debug("%s %s (%s)", ev.Op, ev.Path, ev.Origin)
				callback(ctx, ev)
			}
			snapshot = current
		}
	}
}

// scan lists the directory. A failed scan returns nil.
func (w *ChangeWatcher) scan(ctx context.Context, dir string) map[string]fileStamp {
	if w.scanner == nil {
		return nil
	}
	files, err := w.scanner.Scan(ctx, dir)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("scan %s: %v", dir, err)
		}
		return nil
	}
	out := make(map[string]fileStamp, len(files))
	for _, f := range files {
		out[f.Path] = fileStamp{modTime: f.ModTime, size: f.Size}
	}
	return out
}

// remember records a delivered event so the next poll does not repeat it.
func (w *ChangeWatcher) remember(snapshot map[string]fileStamp, ev domain.ChangeEvent) {
	if ev.Op == domain.ChangeRemoved {
		delete(snapshot, ev.Path)
		return
	}
	info, err := os.Stat(ev.Path)
	if err != nil {
		return
	}
	snapshot[ev.Path] = fileStamp{modTime: info.ModTime(), size: info.Size()}
}

// diffSnapshots returns poll events for files that appeared, changed or
// disappeared between two scans.
func diffSnapshots(prev, cur map[string]fileStamp) []domain.ChangeEvent {
	var out []domain.ChangeEvent
	for path, stamp := range cur {
		old, ok := prev[path]
		switch {
		case !ok:
			out = append(out, domain.ChangeEvent{Path: path, Op: domain.ChangeCreated, Origin: domain.OriginPoll})
		case !old.modTime.Equal(stamp.modTime) || old.size != stamp.size:
			out = append(out, domain.ChangeEvent{Path: path, Op: domain.ChangeModified, Origin: domain.OriginPoll})
		}
	}
	for path := range prev {
		if _, ok := cur[path]; !ok {
			out = append(out, domain.ChangeEvent{Path: path, Op: domain.ChangeRemoved, Origin: domain.OriginPoll})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
