// Package commands is the operation surface a shell (or the CLI) drives:
// choosing the root, reporting where the asset server listens, listing files,
// writing captions and counting tokens.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"capserve/internal/appstate"
	"capserve/internal/captions"
	"capserve/internal/discover"
	"capserve/internal/model"
	"capserve/internal/tokens"
	"capserve/internal/watch"
)

// FolderPicker asks the user for a directory. It returns an error matching
// model.ErrDialogCancelled, or an empty path, when nothing was chosen.
type FolderPicker interface {
	PickFolder(ctx context.Context, start string) (string, error)
}

// RootInfo is the root together with the bound port.
type RootInfo struct {
	Root string `json:"root"`
	Port uint16 `json:"port"`
	URL  string `json:"url"`
}

// Options configures a Service. Nil fields fall back to defaults.
type Options struct {
	Picker  FolderPicker
	Counter tokens.Counter
	Store   *captions.Store
	List    discover.Options
	Watch   watch.Options
	Logger  *zerolog.Logger
}

// Service implements the command operations over a shared RootState.
type Service struct {
	state   *appstate.RootState
	picker  FolderPicker
	counter tokens.Counter
	store   *captions.Store
	list    discover.Options
	watch   watch.Options
	log     zerolog.Logger
}

// New returns a Service. It fails only when the default tokenizer cannot be
// loaded.
func New(state *appstate.RootState, opts Options) (*Service, error) {
	counter := opts.Counter
	if counter == nil {
		c, err := tokens.New(tokens.DefaultKind)
		if err != nil {
			return nil, err
		}
		counter = c
	}
	store := opts.Store
	if store == nil {
		store = captions.NewStore()
	}
	list := opts.List
	if list.MaxEntries <= 0 {
		list.MaxEntries = discover.DefaultMaxEntries
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	wopts := opts.Watch
	if wopts.Logger == nil {
		wopts.Logger = opts.Logger
	}
	if wopts.Excludes == nil {
		wopts.Excludes = list.Excludes
	}
	return &Service{
		state:   state,
		picker:  opts.Picker,
		counter: counter,
		store:   store,
		list:    list,
		watch:   wopts,
		log:     logger.With().Str("component", "commands").Logger(),
	}, nil
}

// ChooseRoot asks the picker for a folder and makes it the served root.
func (s *Service) ChooseRoot(ctx context.Context) (string, error) {
	if s.picker == nil {
		return "", errors.New("no folder picker configured")
	}
	path, err := s.picker.PickFolder(ctx, s.state.Root())
	if err != nil {
		if errors.Is(err, model.ErrDialogCancelled) || ctx.Err() != nil {
			return "", model.NewError(model.KindDialogCancelled, "choose root", "", err)
		}
		return "", fmt.Errorf("choose root: %w", err)
	}
	if path == "" {
		return "", model.NewError(model.KindDialogCancelled, "choose root", "", nil)
	}
	if err := s.SetRoot(path); err != nil {
		return "", err
	}
	return s.state.Root(), nil
}

// SetRoot makes path the served root. path must name an existing directory.
func (s *Service) SetRoot(path string) error {
	if path == "" {
		return model.NewError(model.KindInvalidPath, "set root", path, errors.New("empty path"))
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewError(model.KindNotFound, "set root", path, err)
		}
		return model.NewError(model.KindIOFailure, "set root", path, err)
	}
	if !info.IsDir() {
		return model.NewError(model.KindInvalidPath, "set root", path, errors.New("not a directory"))
	}
	if err := s.state.SetRoot(path); err != nil {
		return err
	}
	s.log.Info().Str("root", s.state.Root()).Msg("root changed")
	return nil
}

// RootAndPort returns the root and port, or a NotReady error when the
// server has not bound yet.
func (s *Service) RootAndPort() (RootInfo, error) {
	snap := s.state.Snapshot()
	if !snap.Ready {
		return RootInfo{}, model.NewError(model.KindNotReady, "root and port", "", errors.New("asset server has not bound a port"))
	}
	return rootInfo(snap.Root, snap.Port), nil
}

// RootAndPortWait blocks until the port is published or ctx is done.
func (s *Service) RootAndPortWait(ctx context.Context) (RootInfo, error) {
	if _, err := s.state.WaitPort(ctx); err != nil {
		return RootInfo{}, err
	}
	return s.RootAndPort()
}

func rootInfo(root string, port uint16) RootInfo {
	return RootInfo{Root: root, Port: port, URL: BaseURL(port)}
}

// BaseURL is the asset server URL for port.
func BaseURL(port uint16) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// ListFiles enumerates regular files under the current root.
func (s *Service) ListFiles(ctx context.Context) ([]string, error) {
	l, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return l.Files, nil
}

// List is ListFiles plus whether the entry cap left files out.
func (s *Service) List(ctx context.Context) (discover.Listing, error) {
	root := s.state.Root()
	l, err := discover.List(ctx, root, s.list)
	if err != nil {
		return discover.Listing{}, err
	}
	s.state.Stats().AddListed()
	s.log.Debug().Str("root", root).Int("files", len(l.Files)).Bool("truncated", l.Truncated).Msg("listed files")
	return l, nil
}

// WriteCaptions writes entries in order and stops at the first failure.
// Entries written before the failure stay on disk.
func (s *Service) WriteCaptions(entries []captions.Caption) error {
	n, err := s.store.WriteBatch(s.state.Root(), entries)
	s.state.Stats().AddWritten(int64(n))
	if err != nil {
		if errors.Is(err, model.ErrInvalidPath) {
			s.state.Stats().AddRejected()
		}
		s.log.Warn().Err(err).Int("written", n).Int("total", len(entries)).Msg("caption batch stopped")
		return err
	}
	return nil
}

// ReadCaption returns the text of the caption file at rel.
func (s *Service) ReadCaption(rel string) (string, error) {
	content, err := s.store.Read(s.state.Root(), rel)
	if errors.Is(err, model.ErrInvalidPath) {
		s.state.Stats().AddRejected()
	}
	return content, err
}

// CountTokens counts each text independently, in order.
func (s *Service) CountTokens(texts []string) []int {
	return tokens.CountAll(s.counter, texts)
}

// Pairs lists the root and pairs each image with its caption file.
func (s *Service) Pairs(ctx context.Context) ([]captions.Pair, error) {
	files, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	return captions.PairImages(files), nil
}

// Watch reports filesystem changes under the root until ctx is done.
func (s *Service) Watch(ctx context.Context, emit func(watch.Event)) error {
	return watch.New(s.state, s.watch).Run(ctx, emit)
}
