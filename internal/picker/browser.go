package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"capserve/internal/model"
)

var (
	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	styleSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	styleSubtle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const (
	itemUseThis = "[ use this folder ]"
	itemParent  = ".."
	maxVisible  = 15
)

// Browser is a full-screen directory browser. Typing filters the listing.
type Browser struct {
	In  io.Reader
	Out io.Writer
}

func (b *Browser) PickFolder(ctx context.Context, start string) (string, error) {
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if b.In != nil {
		opts = append(opts, tea.WithInput(b.In))
	}
	if b.Out != nil {
		opts = append(opts, tea.WithOutput(b.Out))
	}
	final, err := tea.NewProgram(newBrowserModel(start), opts...).Run()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
			return "", model.NewError(model.KindDialogCancelled, "pick folder", "", err)
		}
		return "", fmt.Errorf("folder browser: %w", err)
	}
	m, ok := final.(browserModel)
	if !ok || m.cancelled || m.chosen == "" {
		return "", model.NewError(model.KindDialogCancelled, "pick folder", "", nil)
	}
	return m.chosen, nil
}

type browserModel struct {
	dir       string
	subdirs   []string
	filter    textinput.Model
	cursor    int
	chosen    string
	cancelled bool
	errMsg    string
	width     int
}

func newBrowserModel(start string) browserModel {
	ti := textinput.New()
	ti.Placeholder = "type to filter"
	ti.CharLimit = 256
	ti.Width = 40
	ti.Prompt = "filter> "
	ti.Focus()

	m := browserModel{filter: ti}
	m.enter(start)
	return m
}

// enter switches the listing to dir.
func (m *browserModel) enter(dir string) {
	dir = filepath.Clean(dir)
	subdirs, err := listSubdirs(dir)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.dir = dir
	m.subdirs = subdirs
	m.cursor = 0
	m.errMsg = ""
	m.filter.SetValue("")
}

func listSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, e.Name())); err == nil && info.IsDir() {
				out = append(out, e.Name())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out, nil
}

// items is the visible list: the two fixed entries followed by the
// subdirectories matching the filter.
func (m browserModel) items() []string {
	items := []string{itemUseThis, itemParent}
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	for _, name := range m.subdirs {
		if needle == "" || strings.Contains(strings.ToLower(name), needle) {
			items = append(items, name)
		}
	}
	return items
}

func (m browserModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		items := m.items()
		switch msg.String() {
		case "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		case "up", "ctrl+p":
			m.cursor--
			if m.cursor < 0 {
				m.cursor = len(items) - 1
			}
			return m, nil
		case "down", "ctrl+n":
			m.cursor++
			if m.cursor >= len(items) {
				m.cursor = 0
			}
			return m, nil
		case "enter":
			switch item := items[m.cursor]; item {
			case itemUseThis:
				m.chosen = m.dir
				return m, tea.Quit
			case itemParent:
				m.enter(filepath.Dir(m.dir))
			default:
				m.enter(filepath.Join(m.dir, item))
			}
			return m, nil
		case "backspace":
			if m.filter.Value() == "" {
				m.enter(filepath.Dir(m.dir))
				return m, nil
			}
		}
	}

	before := m.filter.Value()
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.cursor = 0
		if len(m.items()) > 2 {
			m.cursor = 2
		}
	}
	return m, cmd
}

func (m browserModel) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Choose a folder to serve"))
	b.WriteString("\n")
	b.WriteString(styleSubtle.Render(m.dir))
	b.WriteString("\n\n")
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")

	items := m.items()
	first := 0
	if m.cursor >= maxVisible {
		first = m.cursor - maxVisible + 1
	}
	for i := first; i < len(items) && i < first+maxVisible; i++ {
		line := "  " + items[i]
		if i == m.cursor {
			line = styleSelected.Render("> " + items[i])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if hidden := len(items) - first - maxVisible; hidden > 0 {
		b.WriteString(styleSubtle.Render(fmt.Sprintf("  ... %d more", hidden)))
		b.WriteString("\n")
	}
	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(styleError.Render(m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styleSubtle.Render("arrows navigate · enter open/select · backspace up · esc cancel"))
	return b.String()
}
