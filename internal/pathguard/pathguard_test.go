package pathguard

import (
	"errors"
	"path/filepath"
	"testing"

	"capserve/internal/model"
)

func TestIsContained(t *testing.T) {
	root := filepath.FromSlash("/data/project")

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{name: "root itself", candidate: "/data/project", want: true},
		{name: "direct child", candidate: "/data/project/a.txt", want: true},
		{name: "nested child", candidate: "/data/project/sub/b.txt", want: true},
		{name: "dot segments inside", candidate: "/data/project/sub/../a.txt", want: true},
		{name: "parent", candidate: "/data", want: false},
		{name: "sibling sharing prefix", candidate: "/data/project2/a.txt", want: false},
		{name: "escape via dot dot", candidate: "/data/project/../../etc/passwd", want: false},
		{name: "unrelated absolute", candidate: "/etc/passwd", want: false},
		{name: "empty", candidate: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsContained(root, filepath.FromSlash(tt.candidate))
			if got != tt.want {
				t.Fatalf("IsContained(%q, %q)=%v want=%v", root, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestIsContainedFilesystemRoot(t *testing.T) {
	root := filepath.FromSlash("/")
	if !IsContained(root, filepath.FromSlash("/etc/passwd")) {
		t.Fatal("expected every absolute path to be inside /")
	}
}

func TestJoinContainsPlainRelativePaths(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"a.txt", "sub/b.txt", "deep/er/still/c.caption", "./x", "sub/../y"} {
		joined, err := Join(root, rel)
		if err != nil {
			t.Fatalf("Join(%q) unexpected error: %v", rel, err)
		}
		if !IsContained(root, joined) {
			t.Fatalf("Join(%q)=%q escapes root", rel, joined)
		}
	}
}

func TestJoinRejectsParentEscapes(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"../x", "../../etc/passwd", "sub/../../x", "..", "a/b/../../../c"} {
		if _, err := Join(root, rel); !errors.Is(err, model.ErrInvalidPath) {
			t.Fatalf("Join(%q) err=%v want invalid path", rel, err)
		}
	}
}

func TestJoinNeutralizesAbsoluteSegments(t *testing.T) {
	root := t.TempDir()
	joined, err := Join(root, "/etc/passwd")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	want := filepath.Join(root, "etc", "passwd")
	if joined != want {
		t.Fatalf("Join()=%q want=%q", joined, want)
	}
}

func TestRel(t *testing.T) {
	root := filepath.FromSlash("/data/project")
	got := Rel(root, filepath.FromSlash("/data/project/sub/b.txt"))
	if got != "sub/b.txt" {
		t.Fatalf("Rel()=%q want sub/b.txt", got)
	}
	if got := Rel(root+string(filepath.Separator), filepath.FromSlash("/data/project/a.txt")); got != "a.txt" {
		t.Fatalf("Rel() with trailing separator=%q want a.txt", got)
	}
}
