package state

import (
	"errors"
	"os"
	"testing"
	"time"

	"capserve/internal/model"
)

func TestConnectionLifecycle(t *testing.T) {
	dir := t.TempDir() + "/nested/state"

	if _, err := ReadConnection(dir); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err=%v want not found", err)
	}

	conn := Connection{
		Root:      "/data/photos",
		Port:      45123,
		URL:       "http://127.0.0.1:45123",
		PID:       4242,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := WriteConnection(dir, conn); err != nil {
		t.Fatalf("WriteConnection: %v", err)
	}

	info, err := os.Stat(ConnectionPath(dir))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm=%o want 600", perm)
	}

	got, err := ReadConnection(dir)
	if err != nil {
		t.Fatalf("ReadConnection: %v", err)
	}
	if got.Root != conn.Root || got.Port != conn.Port || got.URL != conn.URL || got.PID != conn.PID || !got.StartedAt.Equal(conn.StartedAt) {
		t.Fatalf("got %+v want %+v", got, conn)
	}

	if err := RemoveConnection(dir, 9999); err != nil {
		t.Fatalf("RemoveConnection(other pid): %v", err)
	}
	if _, err := os.Stat(ConnectionPath(dir)); err != nil {
		t.Fatalf("file removed by another pid: %v", err)
	}

	if err := RemoveConnection(dir, 4242); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	if _, err := os.Stat(ConnectionPath(dir)); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if err := RemoveConnection(dir, 4242); err != nil {
		t.Fatalf("second RemoveConnection: %v", err)
	}
}

func TestWriteConnectionReplaces(t *testing.T) {
	dir := t.TempDir()
	if err := WriteConnection(dir, Connection{Root: "/a", Port: 1, PID: 1}); err != nil {
		t.Fatalf("WriteConnection: %v", err)
	}
	if err := WriteConnection(dir, Connection{Root: "/b", Port: 2, PID: 1}); err != nil {
		t.Fatalf("WriteConnection: %v", err)
	}
	got, err := ReadConnection(dir)
	if err != nil {
		t.Fatalf("ReadConnection: %v", err)
	}
	if got.Root != "/b" || got.Port != 2 {
		t.Fatalf("got %+v", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("leftover temp files: %v", entries)
	}
}
