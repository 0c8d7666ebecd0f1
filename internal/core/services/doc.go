// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The indexing path (Indexer, ChangeWatcher, Scheduler) writes to a vector
// index; the retrieval path (Searcher, Scorer, Dispatcher, Assessor) only
// reads from it. Services are pure Go with no CGO.
package services
