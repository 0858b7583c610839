// Package pathutil resolves file paths for comparison and error messages.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RedactPath reduces a full path to .../<parent>/<basename> for log lines.
// For example, "/home/user/data/run1/out.jsonl" becomes ".../run1/out.jsonl".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Resolve returns the absolute, symlink-resolved form of path. The file and
// some of its parents may not exist yet; the deepest existing ancestor is
// resolved and the missing tail re-appended.
func Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains null byte")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	return resolveExisting(abs)
}

// SameFile reports whether a and b name the same file, following symlinks.
func SameFile(a, b string) (bool, error) {
	ra, err := Resolve(a)
	if err != nil {
		return false, err
	}
	rb, err := Resolve(b)
	if err != nil {
		return false, err
	}
	return ra == rb, nil
}

// resolveExisting walks up to the deepest existing ancestor, resolves
// symlinks on it, then re-appends the non-existent tail.
func resolveExisting(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(p)
	if parent == p {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(p))
	}

	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(p)), nil
}
