package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// fingerprintStore implements driven.FingerprintStore for one index.
type fingerprintStore struct {
	store *Store
	index string
}

var _ driven.FingerprintStore = (*fingerprintStore)(nil)

// Get returns the fingerprint for a source, or nil if none is recorded.
func (s *fingerprintStore) Get(ctx context.Context, sourcePath string) (*domain.ContentFingerprint, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source_path, hash, entries, indexed_at, run_id
		FROM fingerprints WHERE index_name = ? AND source_path = ?
	`, s.index, sourcePath)

	fp, err := scanFingerprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fp, nil
}

// Save creates or replaces a fingerprint.
func (s *fingerprintStore) Save(ctx context.Context, fp domain.ContentFingerprint) error {
	if fp.SourcePath == "" || fp.Hash == "" {
		return fmt.Errorf("%w: fingerprint needs a source path and a hash", domain.ErrInvalidInput)
	}
	if fp.IndexedAt.IsZero() {
		fp.IndexedAt = time.Now()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO fingerprints (index_name, source_path, hash, entries, indexed_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(index_name, source_path) DO UPDATE SET
			hash = excluded.hash,
			entries = excluded.entries,
			indexed_at = excluded.indexed_at,
			run_id = excluded.run_id
	`, s.index, fp.SourcePath, fp.Hash, fp.Entries,
		fp.IndexedAt.UTC().Format(time.RFC3339Nano), nullString(fp.RunID))
	if err != nil {
		return fmt.Errorf("saving fingerprint: %w", err)
	}
	return nil
}

// Delete removes a fingerprint.
func (s *fingerprintStore) Delete(ctx context.Context, sourcePath string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM fingerprints WHERE index_name = ? AND source_path = ?", s.index, sourcePath)
	if err != nil {
		return fmt.Errorf("deleting fingerprint: %w", err)
	}
	return nil
}

// List returns all fingerprints of the index ordered by source path.
func (s *fingerprintStore) List(ctx context.Context) ([]domain.ContentFingerprint, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_path, hash, entries, indexed_at, run_id
		FROM fingerprints WHERE index_name = ?
		ORDER BY source_path
	`, s.index)
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []domain.ContentFingerprint //nolint:prealloc // size unknown from query
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		fps = append(fps, *fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fingerprints: %w", err)
	}
	return fps, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFingerprint(row rowScanner) (*domain.ContentFingerprint, error) {
	var fp domain.ContentFingerprint
	var indexedAt string
	var runID sql.NullString

	if err := row.Scan(&fp.SourcePath, &fp.Hash, &fp.Entries, &indexedAt, &runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning fingerprint: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, indexedAt); err == nil {
		fp.IndexedAt = t
	}
	if runID.Valid {
		fp.RunID = runID.String
	}
	return &fp, nil
}
