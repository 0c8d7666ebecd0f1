package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{".", false},
		{"..", false},
		{"report.pdf", false},
		{"2023/report.pdf", false},
		{".DS_Store", true},
		{".git/config", true},
		{"reports/.drafts/q3.docx", true},
		{"./reports/q3.docx", false},
		{"../inbox/q3.docx", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isHidden(tt.path))
		})
	}
}

func TestHiddenBelow_IgnoresHiddenRoot(t *testing.T) {
	assert.False(t, hiddenBelow("/home/u/.esgrag/inbox", "/home/u/.esgrag/inbox/a.pdf"))
	assert.True(t, hiddenBelow("/home/u/.esgrag/inbox", "/home/u/.esgrag/inbox/.tmp/a.pdf"))
}
