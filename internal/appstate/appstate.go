package appstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"capserve/internal/model"
)

// ErrPortAlreadySet is returned by SetPort after the port has been published.
var ErrPortAlreadySet = errors.New("port already published")

// RootState holds the served root directory and the bound server port.
// It is shared between the asset server and the command layer; every
// method is safe for concurrent use.
type RootState struct {
	mu   sync.RWMutex
	root string
	port uint16

	readyOnce sync.Once
	ready     chan struct{}

	subsMu sync.Mutex
	subs   map[int]chan string
	nextID int

	stats *ServingStats
}

// New returns a RootState serving root. An empty root means the current
// working directory.
func New(root string) (*RootState, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	abs, err := normalizeRoot(root)
	if err != nil {
		return nil, err
	}
	return &RootState{
		root:  abs,
		ready: make(chan struct{}),
		subs:  make(map[int]chan string),
		stats: NewServingStats(),
	}, nil
}

func normalizeRoot(root string) (string, error) {
	if root == "" {
		return "", model.NewError(model.KindInvalidPath, "set root", root, errors.New("empty path"))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", model.NewError(model.KindInvalidPath, "set root", root, err)
	}
	return filepath.Clean(abs), nil
}

// Root returns the currently served root.
func (s *RootState) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// SetRoot replaces the served root and notifies subscribers.
func (s *RootState) SetRoot(root string) error {
	abs, err := normalizeRoot(root)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.root = abs
	s.mu.Unlock()

	s.notify(abs)
	return nil
}

// Port returns the published port. ok is false until the server has bound.
func (s *RootState) Port() (port uint16, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port, s.port != 0
}

// SetPort publishes the bound port. It succeeds once; port 0 is rejected.
func (s *RootState) SetPort(port uint16) error {
	if port == 0 {
		return errors.New("refusing to publish port 0")
	}
	s.mu.Lock()
	if s.port != 0 {
		s.mu.Unlock()
		return ErrPortAlreadySet
	}
	s.port = port
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	return nil
}

// Ready is closed once the port has been published.
func (s *RootState) Ready() <-chan struct{} {
	return s.ready
}

// WaitPort blocks until the port is published or ctx is done.
func (s *RootState) WaitPort(ctx context.Context) (uint16, error) {
	select {
	case <-s.ready:
		port, _ := s.Port()
		return port, nil
	case <-ctx.Done():
		return 0, model.NewError(model.KindNotReady, "wait port", "", ctx.Err())
	}
}

// Subscribe returns a channel that receives the new root after each
// SetRoot. Only the latest root is buffered; slow readers miss
// intermediate values. Call cancel to unsubscribe.
func (s *RootState) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 1)
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
	return ch, cancel
}

func (s *RootState) notify(root string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- root:
		default:
		}
	}
}

// Stats returns the request and write counters attached to this state.
func (s *RootState) Stats() *ServingStats {
	return s.stats
}

// Snapshot is a point-in-time view of the state.
type Snapshot struct {
	Root  string
	Port  uint16
	Ready bool
	Stats StatsSnapshot
}

// Snapshot returns root and port read together, plus the current counters.
func (s *RootState) Snapshot() Snapshot {
	s.mu.RLock()
	root, port := s.root, s.port
	s.mu.RUnlock()
	return Snapshot{
		Root:  root,
		Port:  port,
		Ready: port != 0,
		Stats: s.stats.Snapshot(),
	}
}
