// Package pathguard keeps client-supplied relative paths inside a root
// directory.
//
// The check is lexical: paths are cleaned and compared component-wise,
// symlinks are not resolved. A symlink inside the root that points
// elsewhere is followed by whoever opens the joined path.
package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"capserve/internal/model"
)

var errEscapesRoot = errors.New("path escapes root")

// IsContained reports whether candidate lies within root after both are
// cleaned. A candidate equal to root is contained.
func IsContained(root, candidate string) bool {
	if root == "" || candidate == "" {
		return false
	}
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)
	if candidate == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(candidate, prefix)
}

// Join joins rel onto root and verifies the result is still contained.
// The error is a model.KindInvalidPath error when rel escapes.
func Join(root, rel string) (string, error) {
	candidate := filepath.Join(root, filepath.FromSlash(rel))
	if !IsContained(root, candidate) {
		return "", model.NewError(model.KindInvalidPath, "join", rel, errEscapesRoot)
	}
	return candidate, nil
}

// Rel converts an absolute path under root into a forward-slash relative
// path without a leading separator.
func Rel(root, abs string) string {
	rel := strings.TrimPrefix(abs, filepath.Clean(root))
	rel = strings.TrimLeft(rel, `/\`)
	return filepath.ToSlash(rel)
}
