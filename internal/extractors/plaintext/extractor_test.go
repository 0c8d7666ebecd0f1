package plaintext

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestExtract_SinglePage(t *testing.T) {
	path := writeFile(t, "report.txt", []byte("Scope 1 emissions: 1,200 tCO2e\r\n\r\nWater use fell."))

	pages, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "Scope 1 emissions: 1,200 tCO2e\n\nWater use fell.", pages[0].Text)
}

func TestExtract_EmptyFile(t *testing.T) {
	path := writeFile(t, "empty.md", nil)

	pages, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestExtract_Errors(t *testing.T) {
	_, err := New().Extract(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrExtraction)

	path := writeFile(t, "blob.txt", []byte{'a', 0, 'b'})
	_, err = New().Extract(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []domain.Page
	}{
		{name: "empty", text: "", want: []domain.Page{}},
		{name: "one page", text: "alpha", want: []domain.Page{{Number: 1, Text: "alpha"}}},
		{
			name: "blank page keeps numbering",
			text: "alpha\f  \fgamma\f",
			want: []domain.Page{{Number: 1, Text: "alpha"}, {Number: 3, Text: "gamma"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPages(tt.text))
		})
	}
}
