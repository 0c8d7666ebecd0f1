package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure Notifier implements the interface.
var _ driven.DirectoryNotifier = (*Notifier)(nil)

// eventBuffer is the capacity of the change channel.
const eventBuffer = 64

// Notifier watches directory trees with fsnotify.
type Notifier struct {
	log *logger.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(log *logger.Logger) *Notifier {
	return &Notifier{log: logger.OrNop(log)}
}

// Notify starts watching dir and its non-hidden sub-directories.
func (n *Notifier) Notify(ctx context.Context, dir string) (<-chan domain.ChangeEvent, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := n.addTree(watcher, dir, dir); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan domain.ChangeEvent, eventBuffer)
	go n.run(ctx, watcher, dir, out)
	return out, nil
}

func (n *Notifier) run(ctx context.Context, watcher *fsnotify.Watcher, root string, out chan<- domain.ChangeEvent) {
	defer close(out)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			change := n.handleFsEvent(watcher, root, event)
			if change == nil {
				continue
			}
			select {
			case out <- *change:
			case <-ctx.Done():
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			n.log.Warn("watch %s: %v", root, err)
		}
	}
}

// handleFsEvent maps an fsnotify event to a change. Chmod-only events,
// directories and hidden paths produce nothing; a new directory is added
// to the watch list instead.
func (n *Notifier) handleFsEvent(watcher *fsnotify.Watcher, root string, event fsnotify.Event) *domain.ChangeEvent {
	if hiddenBelow(root, event.Name) {
		return nil
	}

	var op domain.ChangeOp
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = domain.ChangeRemoved
	case event.Has(fsnotify.Create):
		op = domain.ChangeCreated
	case event.Has(fsnotify.Write):
		op = domain.ChangeModified
	default:
		return nil
	}

	if op != domain.ChangeRemoved {
		info, err := os.Stat(event.Name)
		if err != nil {
			// Gone again before we looked; a later event reports the removal.
			return nil
		}
		if info.IsDir() {
			if op == domain.ChangeCreated && watcher != nil {
				if err := n.addTree(watcher, root, event.Name); err != nil {
					n.log.Warn("watch new directory %s: %v", event.Name, err)
				}
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
	}

	return &domain.ChangeEvent{Path: event.Name, Op: op, Origin: domain.OriginEvent}
}

// addTree adds dir and every non-hidden directory below it.
func (n *Notifier) addTree(watcher *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			n.log.Warn("skip %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hiddenBelow(root, path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
