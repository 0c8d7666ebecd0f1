package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// DirectoryNotifier delivers native filesystem change events for a directory.
type DirectoryNotifier interface {
	// Notify starts watching dir recursively. The channel is closed when ctx
	// is cancelled or the watch fails.
	Notify(ctx context.Context, dir string) (<-chan domain.ChangeEvent, error)
}

// FileState is a file seen by a directory scan.
type FileState struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// DirectoryScanner lists the regular, non-hidden files under a directory.
type DirectoryScanner interface {
	Scan(ctx context.Context, dir string) ([]FileState, error)
}
