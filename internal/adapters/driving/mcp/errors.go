// Package mcp provides an MCP (Model Context Protocol) server adapter for esgrag.
// It lets AI assistants query the compliance corpus and inspect index state.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
