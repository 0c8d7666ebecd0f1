package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not available for a backend.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates a file type no extractor handles.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// Index Errors.

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension, or a vector/record count mismatch on add.
	// The index is left unchanged.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexCorrupt indicates the persisted index could not be parsed.
	// Callers decide whether to rebuild; the index is never replaced silently.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrIndexMissing indicates no persisted index exists at the given path.
	ErrIndexMissing = errors.New("index missing")

	// Pipeline Errors.

	// ErrExtraction indicates a source could not be read or parsed.
	// The source is skipped and the indexing run continues.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbeddingFailure indicates the embedding gateway failed after retries.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrResourceExhausted indicates there is not enough memory headroom to
	// start concurrent searches. It is not retried automatically.
	ErrResourceExhausted = errors.New("resource exhausted")
)
