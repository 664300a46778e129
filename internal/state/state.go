// Package state manages the state directory, where a running server
// advertises itself to other processes.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the state directory name under the user config directory.
const DirName = "capserve"

// DefaultDir returns <user config dir>/capserve.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, DirName), nil
}

// EnsureDir creates stateDir when missing.
func EnsureDir(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", stateDir, err)
	}
	return nil
}
