// Package captions reads and writes caption text files under the served root.
package captions

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"capserve/internal/model"
	"capserve/internal/pathguard"
)

// Caption is a root-relative path and the text to store there.
type Caption struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// BatchError reports the first failing entry of WriteBatch.
// Entries before Index were written and stay written.
type BatchError struct {
	Index int
	Path  string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("caption %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Store writes caption files. The zero value is ready to use.
type Store struct {
	// FileMode is used for newly created files; 0 means 0o644.
	FileMode os.FileMode
	// DirMode is used for created parent directories; 0 means 0o755.
	DirMode os.FileMode
}

// NewStore returns a Store with default permissions.
func NewStore() *Store {
	return &Store{FileMode: 0o644, DirMode: 0o755}
}

func (s *Store) fileMode() os.FileMode {
	if s == nil || s.FileMode == 0 {
		return 0o644
	}
	return s.FileMode
}

func (s *Store) dirMode() os.FileMode {
	if s == nil || s.DirMode == 0 {
		return 0o755
	}
	return s.DirMode
}

// resolve joins rel under root and refuses escapes and the root itself.
func resolve(op, root, rel string) (string, error) {
	target, err := pathguard.Join(root, rel)
	if err != nil {
		return "", model.NewError(model.KindInvalidPath, op, rel, errors.Unwrap(err))
	}
	if filepath.Clean(target) == filepath.Clean(root) {
		return "", model.NewError(model.KindInvalidPath, op, rel, errors.New("path names the root directory"))
	}
	return target, nil
}

// Write replaces the file at root/rel with content, creating missing
// parent directories first.
func (s *Store) Write(root, rel, content string) error {
	const op = "write caption"
	target, err := resolve(op, root, rel)
	if err != nil {
		return err
	}

	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(target), s.dirMode()); err != nil {
			return model.NewError(model.KindIOFailure, op, rel, fmt.Errorf("create parent directories: %w", err))
		}
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.fileMode())
	if err != nil {
		return model.NewError(model.KindIOFailure, op, rel, fmt.Errorf("open: %w", err))
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return model.NewError(model.KindIOFailure, op, rel, fmt.Errorf("write: %w", err))
	}
	if err := f.Close(); err != nil {
		return model.NewError(model.KindIOFailure, op, rel, fmt.Errorf("close: %w", err))
	}
	return nil
}

// WriteBatch writes entries in order and stops at the first failure.
// It returns the number of entries written and, on failure, a *BatchError.
func (s *Store) WriteBatch(root string, entries []Caption) (int, error) {
	for i, entry := range entries {
		if err := s.Write(root, entry.Path, entry.Content); err != nil {
			return i, &BatchError{Index: i, Path: entry.Path, Err: err}
		}
	}
	return len(entries), nil
}

// Read returns the content of root/rel.
func (s *Store) Read(root, rel string) (string, error) {
	const op = "read caption"
	target, err := resolve(op, root, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", model.NewError(model.KindNotFound, op, rel, err)
		}
		return "", model.NewError(model.KindIOFailure, op, rel, err)
	}
	return string(data), nil
}
