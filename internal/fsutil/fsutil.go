package fsutil

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidPath is returned for paths containing bytes no file system accepts.
	ErrInvalidPath = errors.New("invalid path")
	// ErrPathEscape is returned when a path would leave its root.
	ErrPathEscape = errors.New("path escape")
)

// CleanRelPath takes a user path like "", ".", "/a/b", "a//b", and returns a
// safe, slash-based, no-leading-slash relative path ("" means root). Unlike a
// plain path.Clean it refuses ".." segments that climb above the root instead
// of silently clamping them.
func CleanRelPath(p string) (string, error) {
	if strings.Contains(p, "\x00") {
		return "", ErrInvalidPath
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" || p == "." {
		return "", nil
	}
	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", ErrPathEscape
	}
	if p == "." {
		return "", nil
	}
	// "C:/x" style volume injection on Windows.
	if native := filepath.FromSlash(p); filepath.IsAbs(native) || filepath.VolumeName(native) != "" {
		return "", ErrPathEscape
	}
	return p, nil
}

// JoinWithinRoot returns an absolute filesystem path under root for a given rel
// path. It rejects escapes (..).
func JoinWithinRoot(rootAbs string, rel string) (string, error) {
	rel, err := CleanRelPath(rel)
	if err != nil {
		return "", err
	}
	rootClean := filepath.Clean(rootAbs)
	if rel == "" {
		return rootClean, nil
	}
	absClean := filepath.Clean(filepath.Join(rootClean, filepath.FromSlash(rel)))
	if absClean != rootClean && !strings.HasPrefix(absClean, strings.TrimSuffix(rootClean, string(filepath.Separator))+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return absClean, nil
}

// WithinRoot reports whether abs is root itself or lies below it.
func WithinRoot(rootAbs, abs string) bool {
	rootClean := filepath.Clean(rootAbs)
	absClean := filepath.Clean(abs)
	if absClean == rootClean {
		return true
	}
	return strings.HasPrefix(absClean, strings.TrimSuffix(rootClean, string(filepath.Separator))+string(filepath.Separator))
}
