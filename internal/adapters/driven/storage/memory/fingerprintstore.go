package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure FingerprintStore implements the interface.
var _ driven.FingerprintStore = (*FingerprintStore)(nil)

// FingerprintStore is an in-memory implementation of driven.FingerprintStore.
type FingerprintStore struct {
	mu  sync.RWMutex
	fps map[string]domain.ContentFingerprint
}

// NewFingerprintStore creates a new in-memory fingerprint store.
func NewFingerprintStore() *FingerprintStore {
	return &FingerprintStore{
		fps: make(map[string]domain.ContentFingerprint),
	}
}

// Get returns the fingerprint for a source, or nil if none is recorded.
func (s *FingerprintStore) Get(_ context.Context, sourcePath string) (*domain.ContentFingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.fps[sourcePath]
	if !ok {
		return nil, nil
	}
	return &fp, nil
}

// Save creates or replaces a fingerprint.
func (s *FingerprintStore) Save(_ context.Context, fp domain.ContentFingerprint) error {
	if fp.SourcePath == "" || fp.Hash == "" {
		return fmt.Errorf("%w: fingerprint needs a source path and a hash", domain.ErrInvalidInput)
	}
	if fp.IndexedAt.IsZero() {
		fp.IndexedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps[fp.SourcePath] = fp
	return nil
}

// Delete removes a fingerprint.
func (s *FingerprintStore) Delete(_ context.Context, sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fps, sourcePath)
	return nil
}

// List returns all fingerprints ordered by source path.
func (s *FingerprintStore) List(_ context.Context) ([]domain.ContentFingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ContentFingerprint, 0, len(s.fps))
	for _, fp := range s.fps {
		out = append(out, fp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out, nil
}
