// Package discover enumerates the files under a served root.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"capserve/internal/model"
)

// DefaultMaxEntries bounds a single enumeration. Options.MaxEntries may
// lower it, never raise it.
const DefaultMaxEntries = 10000

// Policy decides what happens when a directory or entry cannot be read.
type Policy int

const (
	// Skip drops the unreadable entry and keeps walking.
	Skip Policy = iota
	// Fail aborts the enumeration with the first error.
	Fail
)

// Policies lists the accepted policy names.
var Policies = []string{"skip", "fail"}

func (p Policy) String() string {
	if p == Fail {
		return "fail"
	}
	return "skip"
}

// ParsePolicy maps "skip" or "fail" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return Skip, nil
	case "fail":
		return Fail, nil
	default:
		return Skip, fmt.Errorf("unknown entry error policy %q", s)
	}
}

// Options controls ListFiles.
type Options struct {
	// MaxEntries stops the walk once this many files are collected.
	// Zero or anything above DefaultMaxEntries means DefaultMaxEntries.
	MaxEntries int
	// OnEntryError is applied to unreadable directories and entries.
	OnEntryError Policy
	// Excludes are root-relative globs; "**" matches any number of segments.
	Excludes []string
	// OnSkip, when set, observes entries dropped under the Skip policy.
	OnSkip func(rel string, err error)
}

// DefaultOptions returns the 10,000-entry, skip-on-error defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries:   DefaultMaxEntries,
		OnEntryError: Skip,
	}
}

type frame struct {
	abs string
	rel string
}

// Listing is the result of List.
type Listing struct {
	Files []string
	// Truncated is set when at least one more file existed past the cap.
	Truncated bool
}

// ListFiles walks root depth-first with an explicit stack and returns
// root-relative, forward-slash paths of regular files. Symlinks are
// followed; each resolved directory is visited once. Order is
// unspecified. The result never exceeds DefaultMaxEntries, nor
// MaxEntries when it is lower; reaching the cap ends the walk without
// error.
func ListFiles(ctx context.Context, root string, opts Options) ([]string, error) {
	l, err := List(ctx, root, opts)
	if err != nil {
		return nil, err
	}
	return l.Files, nil
}

// List is ListFiles that also reports whether the cap cut the walk short.
func List(ctx context.Context, root string, opts Options) (Listing, error) {
	if opts.MaxEntries <= 0 || opts.MaxEntries > DefaultMaxEntries {
		opts.MaxEntries = DefaultMaxEntries
	}
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return Listing{}, model.NewError(model.KindNotFound, "list files", root, err)
	}
	if !info.IsDir() {
		return Listing{}, model.NewError(model.KindNotFound, "list files", root, fmt.Errorf("not a directory"))
	}

	w := walker{
		opts:    opts,
		visited: map[string]struct{}{resolvedKey(root): {}},
		files:   make([]string, 0, 256),
	}
	stack := []frame{{abs: root}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Listing{}, err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir.abs)
		if err != nil {
			if ferr := w.entryError(dir.rel, err); ferr != nil {
				return Listing{}, ferr
			}
			if len(entries) == 0 {
				continue
			}
		}

		for _, entry := range entries {
			rel := entry.Name()
			if dir.rel != "" {
				rel = dir.rel + "/" + rel
			}
			if len(opts.Excludes) > 0 && IsExcluded(rel, opts.Excludes) {
				continue
			}
			full := filepath.Join(dir.abs, entry.Name())

			info, err := entryInfo(full, entry)
			if err != nil {
				if ferr := w.entryError(rel, err); ferr != nil {
					return Listing{}, ferr
				}
				continue
			}

			if info.IsDir() {
				key := resolvedKey(full)
				if _, seen := w.visited[key]; seen {
					continue
				}
				w.visited[key] = struct{}{}
				stack = append(stack, frame{abs: full, rel: rel})
				continue
			}
			if !info.Mode().IsRegular() {
				continue
			}

			// A full listing keeps walking only to learn whether anything was left out.
			if len(w.files) >= opts.MaxEntries {
				return Listing{Files: w.files, Truncated: true}, nil
			}
			w.files = append(w.files, rel)
		}
	}
	return Listing{Files: w.files}, nil
}

type walker struct {
	opts    Options
	visited map[string]struct{}
	files   []string
}

func (w *walker) entryError(rel string, err error) error {
	if w.opts.OnEntryError == Fail {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewError(model.KindNotFound, "list files", rel, err)
		}
		return model.NewError(model.KindIOFailure, "list files", rel, err)
	}
	if w.opts.OnSkip != nil {
		w.opts.OnSkip(rel, err)
	}
	return nil
}

// entryInfo follows symlinks so linked directories are walked and
// dangling links surface as errors.
func entryInfo(full string, entry fs.DirEntry) (fs.FileInfo, error) {
	if entry.Type()&fs.ModeSymlink != 0 {
		return os.Stat(full)
	}
	return entry.Info()
}

func resolvedKey(dir string) string {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Clean(resolved)
	}
	return filepath.Clean(dir)
}
