package mcp

import (
	"context"
	"errors"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// defaultLimit is the number of matches returned when none is requested.
const defaultLimit = 5

// SearchInput is the input schema for the search_criterion tool.
type SearchInput struct {
	Criterion string   `json:"criterion" jsonschema:"the disclosure criterion to look for, e.g. Scope 1 emissions"`
	Category  string   `json:"category,omitempty" jsonschema:"requirement category used to pick the relevance threshold"`
	Source    string   `json:"source,omitempty" jsonschema:"restrict matches to one document name or path"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of matches to return (default 5)"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"override the relevance threshold in [0,1]"`
}

// SearchOutput is the output schema for the search_criterion tool.
type SearchOutput struct {
	Criterion string         `json:"criterion"`
	Status    string         `json:"status"`
	Matches   []domain.Match `json:"matches"`
	Count     int            `json:"count"`
}

// StatusInput is the input schema for the index_status tool.
type StatusInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"only report this collection: standard, report or requirement"`
}

// CollectionStatus describes one open collection.
type CollectionStatus struct {
	Kind       string         `json:"kind"`
	Dimension  int            `json:"dimension"`
	Metric     string         `json:"metric"`
	Total      int            `json:"total"`
	Live       int            `json:"live"`
	Sources    int            `json:"sources"`
	Categories map[string]int `json:"categories,omitempty"`
}

// StatusOutput is the output schema for the index_status tool.
type StatusOutput struct {
	Collections []CollectionStatus `json:"collections"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_criterion",
		Description: "Find report passages that disclose a compliance criterion",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report entry counts and categories for each indexed collection",
	}, s.handleStatus)
}

// handleSearch handles the search_criterion tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Criterion == "" {
		return nil, SearchOutput{}, errors.New("criterion is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	opts := domain.SearchOptions{
		Category:  input.Category,
		Threshold: input.Threshold,
	}
	if input.Source != "" {
		opts.Filter = &domain.Filter{Source: input.Source}
	}

	matches, err := s.ports.Search.Search(ctx, input.Criterion, limit, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	res := domain.NewQueryResult(input.Criterion, matches, nil)
	return nil, SearchOutput{
		Criterion: res.Criterion,
		Status:    string(res.Status),
		Matches:   res.Matches,
		Count:     len(res.Matches),
	}, nil
}

// handleStatus handles the index_status tool invocation.
func (s *Server) handleStatus(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	out := StatusOutput{Collections: []CollectionStatus{}}
	for _, kind := range s.kinds() {
		if input.Kind != "" && string(kind) != input.Kind {
			continue
		}
		st := s.ports.Indexes[kind].Stats()
		out.Collections = append(out.Collections, CollectionStatus{
			Kind:       string(kind),
			Dimension:  st.Dimension,
			Metric:     st.Metric,
			Total:      st.Total,
			Live:       st.Live,
			Sources:    st.Sources,
			Categories: st.Categories,
		})
	}
	return nil, out, nil
}

// kinds returns the configured collection kinds in a stable order.
func (s *Server) kinds() []domain.SourceKind {
	kinds := make([]domain.SourceKind, 0, len(s.ports.Indexes))
	for k, idx := range s.ports.Indexes {
		if idx != nil {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
