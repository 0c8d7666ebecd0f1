// Package flat provides an exact nearest-neighbour VectorIndex persisted as a
// binary vector file plus a JSON metadata sidecar.
//
// Every mutation rewrites both files through a temp file and an atomic
// rename before returning. The index keeps a single-writer discipline: any
// number of concurrent searches, one mutation at a time. Mutations also hold
// an advisory lock on the index directory and reload the files first when
// another handle, in this or another process, has written since.
package flat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index is a flat (brute force) vector index.
type Index struct {
	mu        sync.RWMutex
	dir       string
	dimension int
	metric    domain.DistanceMetric
	vectors   []float32
	entries   []domain.IndexEntry
	live      map[string]int
	write     fileWriter
	lock      *flock.Flock
	seen      os.FileInfo // metadata file as of the last load or persist
}

// lockRetry is how often a blocked mutation polls the directory lock.
const lockRetry = 20 * time.Millisecond

// Create initialises an empty index in dir and persists it.
// It refuses to overwrite an existing index.
func Create(dir string, dimension int, metric domain.DistanceMetric) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrInvalidInput, dimension)
	}
	if metric == "" {
		metric = domain.MetricL2
	}
	if !metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, metric)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx := &Index{
		dir:       dir,
		dimension: dimension,
		metric:    metric,
		live:      make(map[string]int),
		write:     writeAtomic,
		lock:      flock.New(filepath.Join(dir, lockFile)),
	}
	if err := idx.lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking index %s: %w", dir, err)
	}
	defer idx.lock.Unlock()

	if _, err := os.Stat(filepath.Join(dir, vectorsFile)); err == nil {
		return nil, fmt.Errorf("%w: index already exists at %s", domain.ErrInvalidInput, dir)
	}
	if err := idx.persist(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Load reads an existing index. A missing index is domain.ErrIndexMissing and
// an unparseable one is domain.ErrIndexCorrupt; neither is ever replaced.
// Vectors beyond the count recorded in the metadata sidecar are left over
// from a write interrupted between the two renames and are dropped.
func Load(dir string) (*Index, error) {
	seen, err := os.Stat(filepath.Join(dir, metadataFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat metadata: %w", err)
	}
	h, vectors, sc, err := readFiles(dir)
	if err != nil {
		return nil, err
	}
	metric, _ := metricFromCode(h.Metric)

	idx := &Index{
		dir:       dir,
		dimension: int(h.Dimension),
		metric:    metric,
		vectors:   vectors,
		entries:   sc.Entries,
		write:     writeAtomic,
		lock:      flock.New(filepath.Join(dir, lockFile)),
		seen:      seen,
	}
	idx.rebuildLive()
	return idx, nil
}

// Open loads the index in dir, creating it only when none exists.
// A loaded index whose dimension differs from dimension is rejected.
func Open(dir string, dimension int, metric domain.DistanceMetric) (*Index, error) {
	idx, err := Load(dir)
	if errors.Is(err, domain.ErrIndexMissing) {
		return Create(dir, dimension, metric)
	}
	if err != nil {
		return nil, err
	}
	if dimension > 0 && idx.dimension != dimension {
		return nil, fmt.Errorf("%w: index %s has dimension %d, embedder produces %d",
			domain.ErrDimensionMismatch, dir, idx.dimension, dimension)
	}
	return idx, nil
}

// Dir returns the index directory.
func (idx *Index) Dir() string {
	return idx.dir
}

// Dimension returns the fixed vector length.
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Metric returns the distance metric.
func (idx *Index) Metric() domain.DistanceMetric {
	return idx.metric
}

// Len returns the number of entries including tombstones.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Add appends vectors and records as one atomic batch.
func (idx *Index) Add(ctx context.Context, vectors [][]float32, records []domain.EntryMetadata) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("%w: %d vectors for %d records", domain.ErrDimensionMismatch, len(vectors), len(records))
	}
	for i, v := range vectors {
		if len(v) != idx.dimension {
			return nil, fmt.Errorf("%w: vector %d has length %d, index dimension is %d",
				domain.ErrDimensionMismatch, i, len(v), idx.dimension)
		}
		if err := records[i].Validate(); err != nil {
			return nil, err
		}
	}
	if len(vectors) == 0 {
		return []int{}, nil
	}

	unlock, err := idx.lockForWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	oldCount := len(idx.entries)
	ids := make([]int, len(vectors))
	for i, v := range vectors {
		id := oldCount + i
		ids[i] = id
		idx.vectors = append(idx.vectors, v...)
		idx.entries = append(idx.entries, domain.IndexEntry{ID: id, Metadata: records[i]})
		idx.live[records[i].SourceID]++
	}

	if err := idx.persist(); err != nil {
		idx.vectors = idx.vectors[:oldCount*idx.dimension]
		idx.entries = idx.entries[:oldCount]
		idx.rebuildLive()
		return nil, idx.restoreAfter(err)
	}
	return ids, nil
}

// Search returns the k nearest live entries.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has length %d, index dimension is %d",
			domain.ErrDimensionMismatch, len(query), idx.dimension)
	}
	if k <= 0 {
		return []driven.VectorHit{}, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]driven.VectorHit, 0, len(idx.entries))
	var queryNorm float64
	if idx.metric == domain.MetricCosine {
		queryNorm = norm(query)
	}
	for i := range idx.entries {
		if idx.entries[i].Tombstoned {
			continue
		}
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v := idx.vectors[i*idx.dimension : (i+1)*idx.dimension]
		hits = append(hits, driven.VectorHit{ID: i, Distance: idx.distance(query, queryNorm, v)})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Entry returns the entry with the given id.
func (idx *Index) Entry(id int) (domain.IndexEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if id < 0 || id >= len(idx.entries) {
		return domain.IndexEntry{}, false
	}
	return idx.entries[id], true
}

// Vector returns a copy of the stored vector with the given id.
func (idx *Index) Vector(id int) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if id < 0 || id >= len(idx.entries) {
		return nil, false
	}
	v := make([]float32, idx.dimension)
	copy(v, idx.vectors[id*idx.dimension:(id+1)*idx.dimension])
	return v, true
}

// Neighbours returns live entries adjacent to id on the same source and page.
func (idx *Index) Neighbours(id, before, after int) (prev, next []domain.IndexEntry) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if id < 0 || id >= len(idx.entries) {
		return nil, nil
	}
	anchor := idx.entries[id].Metadata

	for i := id - 1; i >= 0 && len(prev) < before; i-- {
		e := idx.entries[i]
		if !samePage(anchor, e.Metadata) {
			break
		}
		if !e.Tombstoned {
			prev = append(prev, e)
		}
	}
	// Collected backwards; callers expect id order.
	for l, r := 0, len(prev)-1; l < r; l, r = l+1, r-1 {
		prev[l], prev[r] = prev[r], prev[l]
	}

	for i := id + 1; i < len(idx.entries) && len(next) < after; i++ {
		e := idx.entries[i]
		if !samePage(anchor, e.Metadata) {
			break
		}
		if !e.Tombstoned {
			next = append(next, e)
		}
	}
	return prev, next
}

// CountBySource returns the number of live entries for a source.
func (idx *Index) CountBySource(source string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.live[source]
}

// Tombstone hides every live entry of a source.
func (idx *Index) Tombstone(ctx context.Context, source string) (int, error) {
	return idx.tombstoneWhere(ctx, func(m domain.EntryMetadata) bool {
		return m.SourceID == source
	})
}

// TombstoneStale hides the live entries of a source written by any run other
// than keepRunID.
func (idx *Index) TombstoneStale(ctx context.Context, source, keepRunID string) (int, error) {
	return idx.tombstoneWhere(ctx, func(m domain.EntryMetadata) bool {
		return m.SourceID == source && m.RunID != keepRunID
	})
}

func (idx *Index) tombstoneWhere(ctx context.Context, match func(domain.EntryMetadata) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	unlock, err := idx.lockForWrite(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var marked []int
	for i := range idx.entries {
		if !idx.entries[i].Tombstoned && match(idx.entries[i].Metadata) {
			idx.entries[i].Tombstoned = true
			marked = append(marked, i)
		}
	}
	if len(marked) == 0 {
		return 0, nil
	}

	if err := idx.persist(); err != nil {
		for _, i := range marked {
			idx.entries[i].Tombstoned = false
		}
		return 0, idx.restoreAfter(err)
	}
	idx.rebuildLive()
	return len(marked), nil
}

// Compact rebuilds the index without tombstoned entries. Ids are reassigned
// densely in their previous order.
func (idx *Index) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock, err := idx.lockForWrite(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	oldVectors, oldEntries := idx.vectors, idx.entries

	vectors := make([]float32, 0, len(oldVectors))
	entries := make([]domain.IndexEntry, 0, len(oldEntries))
	for i, e := range oldEntries {
		if e.Tombstoned {
			continue
		}
		e.ID = len(entries)
		entries = append(entries, e)
		vectors = append(vectors, oldVectors[i*idx.dimension:(i+1)*idx.dimension]...)
	}
	if len(entries) == len(oldEntries) {
		return nil
	}

	idx.vectors, idx.entries = vectors, entries
	if err := idx.persist(); err != nil {
		idx.vectors, idx.entries = oldVectors, oldEntries
		return idx.restoreAfter(err)
	}
	return nil
}

// Stats summarises the index.
func (idx *Index) Stats() domain.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := domain.IndexStats{
		Dimension:  idx.dimension,
		Metric:     idx.metric.String(),
		Total:      len(idx.entries),
		Sources:    len(idx.live),
		Categories: make(map[string]int),
	}
	for i := range idx.entries {
		if idx.entries[i].Tombstoned {
			continue
		}
		stats.Live++
		if c := idx.entries[i].Metadata.Category; c != "" {
			stats.Categories[c]++
		}
	}
	return stats
}

// Close releases the directory lock handle. The index is already persisted.
func (idx *Index) Close() error {
	return idx.lock.Close()
}

// lockForWrite takes the in-process write lock and then the directory lock,
// and reloads the files when another handle has persisted since this one
// last read or wrote them. The returned func releases both locks.
func (idx *Index) lockForWrite(ctx context.Context) (func(), error) {
	idx.mu.Lock()
	ok, err := idx.lock.TryLockContext(ctx, lockRetry)
	if err == nil && !ok {
		err = errors.New("lock not acquired")
	}
	if err != nil {
		idx.mu.Unlock()
		return nil, fmt.Errorf("locking index %s: %w", idx.dir, err)
	}
	unlock := func() {
		idx.lock.Unlock()
		idx.mu.Unlock()
	}
	if err := idx.reloadIfChanged(); err != nil {
		unlock()
		return nil, err
	}
	return unlock, nil
}

// reloadIfChanged replaces the in-memory state with the files on disk when
// the metadata file is not the one this handle last saw. Every write renames
// a fresh file into place, so any foreign write changes its identity.
// Callers must hold both locks.
func (idx *Index) reloadIfChanged() error {
	info, err := os.Stat(filepath.Join(idx.dir, metadataFile))
	if err != nil {
		return fmt.Errorf("stat metadata: %w", err)
	}
	if sameFile(idx.seen, info) {
		return nil
	}

	h, vectors, sc, err := readFiles(idx.dir)
	if err != nil {
		return err
	}
	if int(h.Dimension) != idx.dimension {
		return fmt.Errorf("%w: index %s now has dimension %d, handle expects %d",
			domain.ErrDimensionMismatch, idx.dir, h.Dimension, idx.dimension)
	}
	idx.vectors, idx.entries = vectors, sc.Entries
	idx.rebuildLive()
	idx.seen = info
	return nil
}

// persist writes the vectors and then the metadata sidecar.
// Callers must hold the write lock.
func (idx *Index) persist() error {
	vectorsPath := filepath.Join(idx.dir, vectorsFile)
	metadataPath := filepath.Join(idx.dir, metadataFile)

	if err := idx.write(vectorsPath, func(w io.Writer) error {
		return encodeVectors(w, idx.metric, idx.dimension, idx.vectors)
	}); err != nil {
		return fmt.Errorf("persisting vectors: %w", err)
	}

	entries := idx.entries
	if entries == nil {
		entries = []domain.IndexEntry{}
	}
	if err := idx.write(metadataPath, func(w io.Writer) error {
		return encodeSidecar(w, sidecar{
			Version:   formatVersion,
			Dimension: idx.dimension,
			Metric:    idx.metric.String(),
			Count:     len(entries),
			Entries:   entries,
		})
	}); err != nil {
		return fmt.Errorf("persisting metadata: %w", err)
	}

	info, err := os.Stat(metadataPath)
	if err != nil {
		return fmt.Errorf("stat metadata: %w", err)
	}
	idx.seen = info
	return nil
}

// restoreAfter re-persists the rolled back in-memory state so that a vector
// file written before a failed sidecar write does not outlive the failure.
func (idx *Index) restoreAfter(cause error) error {
	if err := idx.persist(); err != nil {
		return errors.Join(cause, fmt.Errorf("restoring previous index state: %w", err))
	}
	return cause
}

func (idx *Index) rebuildLive() {
	idx.live = make(map[string]int)
	for i := range idx.entries {
		if !idx.entries[i].Tombstoned {
			idx.live[idx.entries[i].Metadata.SourceID]++
		}
	}
}

func (idx *Index) distance(query []float32, queryNorm float64, v []float32) float64 {
	switch idx.metric {
	case domain.MetricCosine:
		denom := queryNorm * norm(v)
		if denom == 0 {
			return 1
		}
		return 1 - dot(query, v)/denom
	default:
		var sum float64
		for i := range query {
			d := float64(query[i]) - float64(v[i])
			sum += d * d
		}
		return sum
	}
}

func sameFile(a, b os.FileInfo) bool {
	return a != nil && b != nil && os.SameFile(a, b) &&
		a.ModTime().Equal(b.ModTime()) && a.Size() == b.Size()
}

func samePage(a, b domain.EntryMetadata) bool {
	return a.SourceID == b.SourceID && a.Page == b.Page
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
