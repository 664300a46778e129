package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"capserve/internal/model"
)

// ConnectionFile is the file name written inside the state directory.
const ConnectionFile = "connection.json"

// Connection is the schema of connection.json.
type Connection struct {
	Root      string    `json:"root"`
	Port      uint16    `json:"port"`
	URL       string    `json:"url"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// ConnectionPath returns the connection.json path inside stateDir.
func ConnectionPath(stateDir string) string {
	return filepath.Join(stateDir, ConnectionFile)
}

// WriteConnection replaces connection.json. Readers never see a partial file.
func WriteConnection(stateDir string, conn Connection) error {
	if err := EnsureDir(stateDir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(conn, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(stateDir, ".connection-*.json")
	if err != nil {
		return fmt.Errorf("write %s: %w", ConnectionFile, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", ConnectionFile, err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", ConnectionFile, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", ConnectionFile, err)
	}
	if err := os.Rename(tmpName, ConnectionPath(stateDir)); err != nil {
		return fmt.Errorf("write %s: %w", ConnectionFile, err)
	}
	return nil
}

// ReadConnection loads connection.json. A missing file is a NotFound error.
func ReadConnection(stateDir string) (Connection, error) {
	path := ConnectionPath(stateDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Connection{}, model.NewError(model.KindNotFound, "read connection", path, err)
		}
		return Connection{}, model.NewError(model.KindIOFailure, "read connection", path, err)
	}
	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return Connection{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return conn, nil
}

// RemoveConnection deletes connection.json if it was written by pid, so a
// server that exits does not remove the file of a newer one.
func RemoveConnection(stateDir string, pid int) error {
	conn, err := ReadConnection(stateDir)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	if conn.PID != pid {
		return nil
	}
	if err := os.Remove(ConnectionPath(stateDir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", ConnectionFile, err)
	}
	return nil
}
