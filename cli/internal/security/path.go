package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveWithin resolves path against projectDir and rejects results that
// escape it. Relative paths are taken from projectDir; absolute paths must
// already lie inside it. The returned path is absolute and cleaned.
func ResolveWithin(projectDir, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, path)
	}
	if err := Within(projectDir, path); err != nil {
		return "", err
	}
	return filepath.Abs(path)
}

// Within reports an error when path is outside dir. dir itself counts as inside.
func Within(dir, path string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve project directory %q: %w", dir, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %q: %w", path, err)
	}

	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return fmt.Errorf("path %q is not relative to %q: %w", absPath, absDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes project directory %q", path, dir)
	}
	return nil
}
