// Package picker provides folder pickers for choosing the served root.
package picker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/term"

	"capserve/internal/model"
)

// Picker asks for a directory, starting from start.
type Picker interface {
	PickFolder(ctx context.Context, start string) (string, error)
}

// Auto returns the interactive browser when both in and out are terminals
// and a line prompt otherwise.
func Auto(in, out *os.File) Picker {
	if term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(out.Fd())) {
		return &Browser{In: in, Out: out}
	}
	return &Prompt{In: in, Out: out}
}

// Static always answers Path. An empty Path behaves like a cancelled dialog.
type Static struct {
	Path string
}

func (s Static) PickFolder(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", model.NewError(model.KindDialogCancelled, "pick folder", "", err)
	}
	if s.Path == "" {
		return "", model.NewError(model.KindDialogCancelled, "pick folder", "", nil)
	}
	return s.Path, nil
}

// Prompt reads a path from a line of input. An empty line accepts the
// starting folder; end of input cancels. Relative answers resolve against
// the starting folder and a leading "~" expands to the home directory.
//
// A read cannot be interrupted, so a cancelled pick leaves at most one read
// pending; the next PickFolder waits on that read instead of starting
// another, and the line it returns is not lost.
type Prompt struct {
	In  io.Reader
	Out io.Writer

	mu      sync.Mutex
	reader  *bufio.Reader
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// nextLine returns the channel of the read in flight, starting one if none is.
func (p *Prompt) nextLine() chan lineResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		return p.pending
	}
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	ch := make(chan lineResult, 1)
	p.pending = ch
	go func() {
		line, err := p.reader.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- lineResult{line: line, err: err}
	}()
	return ch
}

func (p *Prompt) done(ch chan lineResult) {
	p.mu.Lock()
	if p.pending == ch {
		p.pending = nil
	}
	p.mu.Unlock()
}

func (p *Prompt) PickFolder(ctx context.Context, start string) (string, error) {
	if p.Out != nil {
		fmt.Fprintf(p.Out, "Folder to serve [%s]: ", start)
	}
	ch := p.nextLine()

	select {
	case <-ctx.Done():
		return "", model.NewError(model.KindDialogCancelled, "pick folder", "", ctx.Err())
	case res := <-ch:
		p.done(ch)
		if res.err != nil {
			return "", model.NewError(model.KindDialogCancelled, "pick folder", "", res.err)
		}
		answer := strings.TrimSpace(res.line)
		if answer == "" {
			return start, nil
		}
		return resolve(start, answer)
	}
}

func resolve(start, answer string) (string, error) {
	if answer == "~" || strings.HasPrefix(answer, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		answer = filepath.Join(home, strings.TrimPrefix(answer, "~"))
	}
	if !filepath.IsAbs(answer) {
		answer = filepath.Join(start, answer)
	}
	return filepath.Clean(answer), nil
}
