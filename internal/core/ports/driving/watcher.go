package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// ChangeCallback is invoked at least once per logical change.
type ChangeCallback func(ctx context.Context, ev domain.ChangeEvent)

// ChangeWatcher observes a directory until cancelled.
type ChangeWatcher interface {
	// Watch blocks until ctx is cancelled. interval is the full-scan fallback
	// period; zero uses the configured default.
	Watch(ctx context.Context, dir string, callback ChangeCallback, interval time.Duration) error
}
