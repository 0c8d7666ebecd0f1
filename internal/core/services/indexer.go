package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure Indexer implements the interface.
var _ driving.CorpusIndexer = (*Indexer)(nil)

// DefaultBatchSize is the number of units embedded per call.
const DefaultBatchSize = 32

// IndexerConfig configures an indexer for one collection.
type IndexerConfig struct {
	// Kind tags entries when the run does not name one.
	Kind domain.SourceKind

	// BatchSize is the number of units per embedding call.
	BatchSize int

	// Scorer supplies the threshold tiers used when assigning units to
	// requirement categories.
	Scorer domain.ScorerSettings
}

// sourceOutcome is what indexing one source did.
type sourceOutcome struct {
	skipped    bool
	added      int
	tombstoned int
}

// Indexer turns source documents into index entries. Writes are serialised
// so the index only ever has one writer.
type Indexer struct {
	mu sync.Mutex

	index        driven.VectorIndex
	embedder     driven.EmbeddingService
	extractors   driven.ExtractorRegistry
	segmenter    driven.Segmenter
	fingerprints driven.FingerprintStore
	cfg          IndexerConfig
	log          *logger.Logger

	now func() time.Time
}

// NewIndexer creates an indexer.
func NewIndexer(
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	extractors driven.ExtractorRegistry,
	segmenter driven.Segmenter,
	fingerprints driven.FingerprintStore,
	cfg IndexerConfig,
	log *logger.Logger,
) *Indexer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Kind == "" {
		cfg.Kind = domain.SourceReport
	}
	if cfg.Scorer == (domain.ScorerSettings{}) {
		cfg.Scorer = domain.DefaultScorerSettings()
	}
	return &Indexer{
		index:        index,
		embedder:     embedder,
		extractors:   extractors,
		segmenter:    segmenter,
		fingerprints: fingerprints,
		cfg:          cfg,
		log:          logger.OrNop(log),
		now:          time.Now,
	}
}

// IndexPath indexes a file, or every supported non-hidden file below a
// directory. Per-source failures are recorded in the report and do not stop
// the run; index integrity errors do.
func (ix *Indexer) IndexPath(ctx context.Context, path string, opts driving.IndexOptions) (*driving.IndexReport, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return ix.IndexFile(ctx, root, opts)
	}

	files, err := ix.collect(ctx, root)
	if err != nil {
		return nil, err
	}
	cat, err := ix.categoriser(ctx, opts)
	if err != nil {
		return nil, err
	}

	report := ix.newReport()
	ix.log.Section("Indexing")
	ix.log.Info("Run %s: %d files under %s", report.RunID, len(files), root)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := ix.indexInto(ctx, file, opts, cat, report); err != nil {
			return report, err
		}
	}
	ix.log.Info("Run %s: %d indexed, %d skipped, %d failed, %d entries",
		report.RunID, report.Indexed, report.Skipped, len(report.Failed), report.EntriesAdded)
	return report, nil
}

// IndexFile indexes a single file.
func (ix *Indexer) IndexFile(ctx context.Context, path string, opts driving.IndexOptions) (*driving.IndexReport, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	report := ix.newReport()
	if !ix.extractors.Supports(abs) {
		report.Failed = append(report.Failed, driving.FailedSource{
			Path:  abs,
			Error: fmt.Errorf("%w: %s", domain.ErrUnsupportedType, filepath.Ext(abs)).Error(),
		})
		return report, nil
	}
	cat, err := ix.categoriser(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := ix.indexInto(ctx, abs, opts, cat, report); err != nil {
		return report, err
	}
	return report, nil
}

// IndexRequirements embeds a requirement list as one source. Each entry
// carries the category, criterion and description of its row.
func (ix *Indexer) IndexRequirements(
	ctx context.Context, source string, reqs []domain.Requirement,
) (*driving.IndexReport, error) {
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	report := ix.newReport()

	h := sha256.New()
	for _, r := range reqs {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\n", r.Category, r.Criterion, r.Description)
	}
	hash := hex.EncodeToString(h.Sum(nil))

	units := make([]domain.TextUnit, 0, len(reqs))
	meta := make([]domain.EntryMetadata, 0, len(reqs))
	for _, r := range reqs {
		text := r.EmbeddingText()
		if text == "" {
			continue
		}
		u := domain.TextUnit{
			SourceID:  source,
			Page:      1,
			UnitIndex: len(units),
			Text:      text,
			Kind:      domain.UnitParagraph,
		}
		units = append(units, u)
		meta = append(meta, domain.EntryMetadata{
			TextUnit:     u,
			DocumentName: filepath.Base(source),
			Category:     r.Category,
			Criterion:    r.Criterion,
			Description:  r.Description,
			SourceKind:   domain.SourceRequirement,
			RunID:        report.RunID,
		})
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	var (
		out sourceOutcome
		err error
	)
	if ix.unchanged(ctx, source, hash) {
		out.skipped = true
	} else {
		out, err = ix.storeBatched(ctx, source, hash, meta, report.RunID, ix.cfg.BatchSize, nil)
	}
	ix.record(report, source, out, err)
	if isIntegrityError(err) {
		return report, err
	}
	return report, nil
}

// RemoveSource tombstones a source's entries and forgets its fingerprint.
func (ix *Indexer) RemoveSource(ctx context.Context, path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	n, err := ix.index.Tombstone(ctx, path)
	if err != nil {
		return fmt.Errorf("tombstone %s: %w", path, err)
	}
	if err := ix.fingerprints.Delete(ctx, path); err != nil {
		return fmt.Errorf("forget fingerprint %s: %w", path, err)
	}
	ix.log.Info("Removed %s (%d entries)", path, n)
	return nil
}

func (ix *Indexer) newReport() *driving.IndexReport {
	return &driving.IndexReport{RunID: uuid.NewString(), Failed: []driving.FailedSource{}}
}

// categoriser profiles the requirement categories of a run. It returns nil
// when the run has a fixed category or no requirement list.
func (ix *Indexer) categoriser(ctx context.Context, opts driving.IndexOptions) (*Categoriser, error) {
	if opts.Category != "" || len(opts.Categories) == 0 {
		return nil, nil
	}
	cat, err := NewCategoriser(ctx, ix.embedder, opts.Categories, ix.cfg.Scorer)
	if err != nil {
		return nil, err
	}
	ix.log.Debug("Categorising units into %s", strings.Join(cat.Categories(), ", "))
	return cat, nil
}

// indexInto indexes one file and folds the outcome into report. Only index
// integrity errors are returned.
func (ix *Indexer) indexInto(
	ctx context.Context, path string, opts driving.IndexOptions, cat *Categoriser, report *driving.IndexReport,
) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out, err := ix.indexSource(ctx, path, opts, cat, report.RunID)
	ix.record(report, path, out, err)
	if isIntegrityError(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return nil
}

func (ix *Indexer) record(report *driving.IndexReport, path string, out sourceOutcome, err error) {
	report.EntriesAdded += out.added
	report.Tombstoned += out.tombstoned
	switch {
	case err != nil:
		ix.log.Warn("index %s: %v", path, err)
		report.Failed = append(report.Failed, driving.FailedSource{Path: path, Error: err.Error()})
	case out.skipped:
		report.Skipped++
	default:
		report.Indexed++
	}
}

func (ix *Indexer) indexSource(
	ctx context.Context, path string, opts driving.IndexOptions, cat *Categoriser, runID string,
) (sourceOutcome, error) {
	hash, err := hashFile(path)
	if err != nil {
		return sourceOutcome{}, err
	}
	if cat != nil {
		sum := sha256.Sum256([]byte(hash + "\x1f" + cat.Digest()))
		hash = hex.EncodeToString(sum[:])
	}
	if !opts.Force && ix.unchanged(ctx, path, hash) {
		ix.log.Debug("Unchanged: %s", path)
		return sourceOutcome{skipped: true}, nil
	}

	pages, err := ix.extractors.Extract(ctx, path)
	if err != nil {
		return sourceOutcome{}, err
	}
	units := ix.segmenter.Segment(path, pages)
	if len(units) == 0 {
		ix.log.Warn("%s: no text found", filepath.Base(path))
	} else {
		ix.log.Debug("%s: %d pages, %d units", filepath.Base(path), len(pages), len(units))
	}

	kind := opts.Kind
	if kind == "" {
		kind = ix.cfg.Kind
	}
	meta := make([]domain.EntryMetadata, len(units))
	for i, u := range units {
		meta[i] = domain.EntryMetadata{
			TextUnit:     u,
			DocumentName: filepath.Base(path),
			Category:     opts.Category,
			SourceKind:   kind,
			RunID:        runID,
		}
	}

	batch := opts.BatchSize
	if batch < 1 {
		batch = ix.cfg.BatchSize
	}
	return ix.storeBatched(ctx, path, hash, meta, runID, batch, cat)
}

// unchanged reports whether a source can be skipped. A fingerprint whose
// entries have since vanished from the index does not count.
func (ix *Indexer) unchanged(ctx context.Context, path, hash string) bool {
	fp, err := ix.fingerprints.Get(ctx, path)
	if err != nil {
		ix.log.Warn("read fingerprint %s: %v", path, err)
		return false
	}
	if fp == nil || fp.Hash != hash {
		return false
	}
	return fp.Entries == 0 || ix.index.CountBySource(path) > 0
}

// storeBatched replaces a source's entries: units are embedded and added
// batch by batch, then entries from earlier runs are tombstoned. When no
// batch is stored the previous entries stay live. A failed batch is skipped
// and leaves the fingerprint unset so the source is retried on the next run.
// A non-nil cat tags each uncategorised unit with its requirement category.
func (ix *Indexer) storeBatched(
	ctx context.Context, source, hash string, meta []domain.EntryMetadata, runID string, batch int, cat *Categoriser,
) (sourceOutcome, error) {
	var (
		out    sourceOutcome
		failed []error
		tally  map[string]int
	)
	if cat != nil {
		tally = cat.NewTally()
	}
	for start := 0; start < len(meta); start += batch {
		if err := ctx.Err(); err != nil {
			failed = append(failed, err)
			break
		}
		end := min(start+batch, len(meta))
		chunk := meta[start:end]

		texts := make([]string, len(chunk))
		for i, m := range chunk {
			texts[i] = m.Text
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			ix.log.Warn("%s: batch %d-%d not embedded: %v", filepath.Base(source), start, end-1, err)
			failed = append(failed, fmt.Errorf("batch %d-%d: %w", start, end-1, err))
			continue
		}
		if cat != nil && len(vectors) == len(chunk) {
			for i := range chunk {
				if chunk[i].Category == "" {
					chunk[i].Category = cat.Assign(tally, chunk[i].Text, vectors[i])
				}
			}
		}
		ids, err := ix.index.Add(ctx, vectors, chunk)
		if err != nil {
			if errors.Is(err, domain.ErrDimensionMismatch) {
				return out, fmt.Errorf("add batch %d-%d: %w", start, end-1, err)
			}
			ix.log.Warn("%s: batch %d-%d not stored: %v", filepath.Base(source), start, end-1, err)
			failed = append(failed, fmt.Errorf("batch %d-%d: %w", start, end-1, err))
			continue
		}
		out.added += len(ids)
	}

	if out.added > 0 || len(meta) == 0 {
		n, err := ix.index.TombstoneStale(context.WithoutCancel(ctx), source, runID)
		if err != nil {
			return out, fmt.Errorf("tombstone previous entries: %w", err)
		}
		out.tombstoned = n
	} else if ix.index.CountBySource(source) > 0 {
		ix.log.Warn("%s: nothing stored, keeping previous entries", filepath.Base(source))
	}
	if tally != nil {
		ix.log.Debug("%s: categories %v", filepath.Base(source), tally)
	}

	if len(failed) > 0 {
		return out, fmt.Errorf("partially indexed (%d entries): %w", out.added, errors.Join(failed...))
	}

	fp := domain.ContentFingerprint{
		SourcePath: source,
		Hash:       hash,
		Entries:    out.added,
		IndexedAt:  ix.now(),
		RunID:      runID,
	}
	if err := ix.fingerprints.Save(ctx, fp); err != nil {
		ix.log.Warn("save fingerprint %s: %v", source, err)
	}
	return out, nil
}

// collect lists supported, non-hidden files below root in lexical order.
func (ix *Indexer) collect(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			ix.log.Warn("skip %s: %v", path, err)
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && ix.extractors.Supports(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// hashFile returns the hex sha256 digest of a file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrExtraction, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isIntegrityError reports errors that must stop an indexing run.
func isIntegrityError(err error) bool {
	return errors.Is(err, domain.ErrDimensionMismatch) || errors.Is(err, domain.ErrIndexCorrupt)
}
