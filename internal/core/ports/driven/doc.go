// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - VectorIndex: Persisted nearest-neighbour index with a metadata sidecar
//   - EmbeddingService: Text to fixed-dimension vectors
//   - TextExtractor: Source file to ordered pages of text
//   - Segmenter: Pages to sentence, paragraph and table-row units
//   - FingerprintStore: Content hashes of indexed sources
//   - SynonymTable: Read-only related-term lookup for scoring
//   - ResourceSampler: Host memory and CPU usage
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - DirectoryNotifier, DirectoryScanner: Change detection for watch mode
//   - RequirementSource, ReportRenderer: Audit input and output
//   - SchedulerStore: Background task persistence
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or extractor package
package driven
