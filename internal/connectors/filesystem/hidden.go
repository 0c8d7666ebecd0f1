package filesystem

import (
	"path/filepath"
	"strings"
)

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// hiddenBelow reports whether path is hidden relative to root. The root
// itself may live under a hidden directory, such as ~/.esgrag/inbox.
func hiddenBelow(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return isHidden(filepath.Base(path))
	}
	return isHidden(rel)
}
