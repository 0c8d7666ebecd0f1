package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for esgrag resources.
	uriScheme = "esgrag://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "collections",
		Name:        "collections",
		Description: "Statistics for every open collection",
		MIMEType:    "application/json",
	}, s.handleCollectionsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "entries/{kind}/{id}",
		Name:        "entry",
		Description: "Text and provenance of one index entry",
		MIMEType:    "application/json",
	}, s.handleEntryResource)
}

// handleCollectionsResource returns the stats of every collection.
func (s *Server) handleCollectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	_, out, err := s.handleStatus(ctx, nil, StatusInput{})
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(out.Collections, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling collections: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleEntryResource returns a single entry, tombstoned or not.
func (s *Server) handleEntryResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	kind, id, ok := parseEntryURI(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	idx := s.ports.Indexes[kind]
	if idx == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	entry, found := idx.Entry(id)
	if !found {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling entry: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// parseEntryURI splits a URI like esgrag://entries/{kind}/{id}.
func parseEntryURI(uri string) (domain.SourceKind, int, bool) {
	const prefix = uriScheme + "entries/"

	if !strings.HasPrefix(uri, prefix) {
		return "", 0, false
	}
	kindPart, idPart, found := strings.Cut(strings.TrimPrefix(uri, prefix), "/")
	if !found {
		return "", 0, false
	}
	kind := domain.SourceKind(kindPart)
	if !kind.IsValid() {
		return "", 0, false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id < 0 {
		return "", 0, false
	}
	return kind, id, true
}
