// Package qdrant provides a VectorIndex backed by a Qdrant collection.
//
// Points are keyed by numeric id and carry the entry metadata as payload.
// Tombstoned points keep a payload flag and are filtered out of queries
// until Compact deletes them. The index mirrors every point in memory so
// that entry lookups, neighbour windows and statistics need no round trip.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// scrollBatch is the page size used when loading the collection.
const scrollBatch = 256

// Config configures the Qdrant connection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
	Metric     domain.DistanceMetric
}

// Index is a VectorIndex stored in Qdrant.
type Index struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     domain.DistanceMetric

	mu      sync.RWMutex
	entries map[int]domain.IndexEntry
	vectors map[int][]float32
	nextID  int
}

// Open connects to Qdrant, creates the collection when it does not exist and
// loads its points. An existing collection with another vector size is
// rejected with domain.ErrDimensionMismatch.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrInvalidInput, cfg.Dimension)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}
	metric := cfg.Metric
	if metric == "" {
		metric = domain.MetricL2
	}
	if !metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, metric)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorIndexUnavailable, err)
	}

	idx := &Index{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		metric:     metric,
		entries:    make(map[int]domain.IndexEntry),
		vectors:    make(map[int][]float32),
	}

	if err := idx.healthCheckWithRetry(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorIndexUnavailable, err)
	}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := idx.load(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// healthCheckWithRetry pings Qdrant with exponential backoff.
func (idx *Index) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 15 * time.Second

	return backoff.Retry(func() error {
		_, err := idx.client.HealthCheck(ctx)
		return err
	}, backoff.WithContext(b, ctx))
}

func (idx *Index) ensureCollection(ctx context.Context) error {
	collections, err := idx.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	for _, name := range collections {
		if name != idx.collection {
			continue
		}
		info, err := idx.client.GetCollectionInfo(ctx, idx.collection)
		if err != nil {
			return fmt.Errorf("reading collection %s: %w", idx.collection, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if int(size) != idx.dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, embedder produces %d",
				domain.ErrDimensionMismatch, idx.collection, size, idx.dimension)
		}
		return nil
	}

	err = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(idx.dimension),
			Distance: qdrantDistance(idx.metric),
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", idx.collection, err)
	}

	for _, field := range []string{"source_id", "category"} {
		_, err := idx.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: idx.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("creating index for field %s: %w", field, err)
		}
	}
	return nil
}

// load mirrors every point of the collection.
func (idx *Index) load(ctx context.Context) error {
	var offset *qdrant.PointId
	for {
		points, err := idx.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: idx.collection,
			Limit:          qdrant.PtrOf(uint32(scrollBatch)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return fmt.Errorf("loading collection %s: %w", idx.collection, err)
		}

		for _, p := range points {
			id := int(p.GetId().GetNum())
			entry := entryFromPayload(id, p.GetPayload())
			if err := entry.Metadata.Validate(); err != nil {
				return fmt.Errorf("%w: point %d: %v", domain.ErrIndexCorrupt, id, err)
			}
			idx.entries[id] = entry
			idx.vectors[id] = p.GetVectors().GetVector().GetData()
			if id >= idx.nextID {
				idx.nextID = id + 1
			}
		}

		if len(points) < scrollBatch {
			return nil
		}
		offset = qdrant.NewIDNum(points[len(points)-1].GetId().GetNum() + 1)
	}
}

// Dimension returns the fixed vector length.
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Add upserts a batch of points with consecutive ids.
func (idx *Index) Add(ctx context.Context, vectors [][]float32, records []domain.EntryMetadata) ([]int, error) {
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

	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := make([]int, len(vectors))
	points := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		ids[i] = idx.nextID + i
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(ids[i])),
			Vectors: qdrant.NewVectors(v...),
			Payload: qdrant.NewValueMap(entryPayload(records[i], false)),
		}
	}

	if err := idx.upsertWithRetry(ctx, points); err != nil {
		return nil, fmt.Errorf("upserting %d points: %w", len(points), err)
	}

	for i, id := range ids {
		idx.entries[id] = domain.IndexEntry{ID: id, Metadata: records[i]}
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		idx.vectors[id] = v
	}
	idx.nextID += len(ids)
	return ids, nil
}

func (idx *Index) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)

	return backoff.Retry(func() error {
		_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: idx.collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// Search queries the k nearest live points.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has length %d, index dimension is %d",
			domain.ErrDimensionMismatch, len(query), idx.dimension)
	}
	if k <= 0 {
		return []driven.VectorHit{}, nil
	}

	results, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(query...),
		Filter: &qdrant.Filter{
			MustNot: []*qdrant.Condition{qdrant.NewMatchBool("tombstoned", true)},
		},
		Limit:       qdrant.PtrOf(uint64(k)),
		WithPayload: qdrant.NewWithPayload(false),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorIndexUnavailable, err)
	}

	hits := make([]driven.VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, driven.VectorHit{
			ID:       int(r.GetId().GetNum()),
			Distance: distanceFromScore(idx.metric, r.GetScore()),
		})
	}
	sortHits(hits)
	return hits, nil
}

// Entry returns the mirrored entry with the given id.
func (idx *Index) Entry(id int) (domain.IndexEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[id]
	return e, ok
}

// Vector returns a copy of the mirrored vector with the given id.
func (idx *Index) Vector(id int) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[id]
	if !ok || len(v) != idx.dimension {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Neighbours returns live entries adjacent to id on the same source and page.
// Compaction leaves gaps in the id space; a gap ends the window.
func (idx *Index) Neighbours(id, before, after int) (prev, next []domain.IndexEntry) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	anchor, ok := idx.entries[id]
	if !ok {
		return nil, nil
	}

	for i := id - 1; len(prev) < before; i-- {
		e, ok := idx.entries[i]
		if !ok || !samePage(anchor.Metadata, e.Metadata) {
			break
		}
		if !e.Tombstoned {
			prev = append([]domain.IndexEntry{e}, prev...)
		}
	}
	for i := id + 1; len(next) < after; i++ {
		e, ok := idx.entries[i]
		if !ok || !samePage(anchor.Metadata, e.Metadata) {
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
	n := 0
	for _, e := range idx.entries {
		if !e.Tombstoned && e.Metadata.SourceID == source {
			n++
		}
	}
	return n
}

// Tombstone flags every live point of a source.
func (idx *Index) Tombstone(ctx context.Context, source string) (int, error) {
	return idx.tombstoneWhere(ctx, source, func(m domain.EntryMetadata) bool {
		return m.SourceID == source
	})
}

// TombstoneStale flags the live points of a source written by any run other
// than keepRunID.
func (idx *Index) TombstoneStale(ctx context.Context, source, keepRunID string) (int, error) {
	return idx.tombstoneWhere(ctx, source, func(m domain.EntryMetadata) bool {
		return m.SourceID == source && m.RunID != keepRunID
	})
}

func (idx *Index) tombstoneWhere(ctx context.Context, source string, match func(domain.EntryMetadata) bool) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var marked []int
	for id, e := range idx.entries {
		if !e.Tombstoned && match(e.Metadata) {
			marked = append(marked, id)
		}
	}
	if len(marked) == 0 {
		return 0, nil
	}

	points := make([]*qdrant.PointId, len(marked))
	for i, id := range marked {
		points[i] = qdrant.NewIDNum(uint64(id))
	}
	_, err := idx.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: idx.collection,
		Payload:        qdrant.NewValueMap(map[string]any{"tombstoned": true}),
		PointsSelector: qdrant.NewPointsSelector(points...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("tombstoning %s: %w", source, err)
	}

	for _, id := range marked {
		e := idx.entries[id]
		e.Tombstoned = true
		idx.entries[id] = e
	}
	return len(marked), nil
}

// Compact deletes tombstoned points. Point ids are stable in Qdrant, so ids
// are not reassigned.
func (idx *Index) Compact(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchBool("tombstoned", true)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("compacting %s: %w", idx.collection, err)
	}

	for id, e := range idx.entries {
		if e.Tombstoned {
			delete(idx.entries, id)
			delete(idx.vectors, id)
		}
	}
	return nil
}

// Stats summarises the mirrored points.
func (idx *Index) Stats() domain.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := domain.IndexStats{
		Dimension:  idx.dimension,
		Metric:     idx.metric.String(),
		Total:      len(idx.entries),
		Categories: make(map[string]int),
	}
	sources := make(map[string]struct{})
	for _, e := range idx.entries {
		if e.Tombstoned {
			continue
		}
		stats.Live++
		sources[e.Metadata.SourceID] = struct{}{}
		if c := e.Metadata.Category; c != "" {
			stats.Categories[c]++
		}
	}
	stats.Sources = len(sources)
	return stats
}

// Close closes the client connection.
func (idx *Index) Close() error {
	if idx.client == nil {
		return nil
	}
	err := idx.client.Close()
	idx.client = nil
	return err
}

func qdrantDistance(m domain.DistanceMetric) qdrant.Distance {
	if m == domain.MetricCosine {
		return qdrant.Distance_Cosine
	}
	return qdrant.Distance_Euclid
}

// distanceFromScore converts a Qdrant score into the index distance.
// Euclid scores are plain distances and are squared to match the flat index;
// cosine scores are similarities.
func distanceFromScore(m domain.DistanceMetric, score float32) float64 {
	if m == domain.MetricCosine {
		return 1 - float64(score)
	}
	d := float64(score)
	return d * d
}

func sortHits(hits []driven.VectorHit) {
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})
}

func samePage(a, b domain.EntryMetadata) bool {
	return a.SourceID == b.SourceID && a.Page == b.Page
}
