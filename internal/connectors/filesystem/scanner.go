package filesystem

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure Scanner implements the interface.
var _ driven.DirectoryScanner = (*Scanner)(nil)

// Scanner lists files under a directory.
type Scanner struct {
	log *logger.Logger
}

// NewScanner creates a scanner.
func NewScanner(log *logger.Logger) *Scanner {
	return &Scanner{log: logger.OrNop(log)}
}

// Scan returns every regular, non-hidden file below dir in lexical order.
// Unreadable sub-directories are skipped with a warning.
func (s *Scanner) Scan(ctx context.Context, dir string) ([]driven.FileState, error) {
	var files []driven.FileState
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == dir {
				return err
			}
			s.log.Warn("scan %s: %v", path, err)
			return nil
		}
		if path != dir && hiddenBelow(dir, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Removed between listing and stat.
			return nil
		}
		files = append(files, driven.FileState{
			Path:    path,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
