// Package requirements loads structured requirement lists.
package requirements

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure CSVSource implements the interface.
var _ driven.RequirementSource = (*CSVSource)(nil)

// Required columns, matched case-insensitively in any order.
const (
	colCategory    = "category"
	colCriterion   = "criterion"
	colDescription = "description"
)

// CSVSource reads requirement lists with a category,criterion,description header.
type CSVSource struct{}

// NewCSVSource creates a CSV requirement source.
func NewCSVSource() *CSVSource {
	return &CSVSource{}
}

// Load reads the requirement list at path.
func (s *CSVSource) Load(ctx context.Context, path string) ([]domain.Requirement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open requirements: %w", err)
	}
	defer f.Close()

	reqs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reqs, nil
}

// Parse reads requirements from r. Rows without a criterion are skipped.
func Parse(r io.Reader) ([]domain.Requirement, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: requirements file is empty", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", domain.ErrInvalidInput, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		cols[name] = i
	}
	var missing []string
	for _, name := range []string{colCategory, colCriterion, colDescription} {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: requirements header is missing %s",
			domain.ErrInvalidInput, strings.Join(missing, ", "))
	}

	field := func(record []string, name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var reqs []domain.Requirement
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		req := domain.Requirement{
			Category:    field(record, colCategory),
			Criterion:   field(record, colCriterion),
			Description: field(record, colDescription),
		}
		if req.Criterion == "" {
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
