package tokens

import (
	"testing"
)

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New("clip-vit"); err == nil {
		t.Fatal("expected unknown tokenizer to be rejected")
	}
}

func TestWordCounter(t *testing.T) {
	c := WordCounter{}
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"a photo of a cat", 5},
		{"a cat, sitting.", 5},
		{"café au lait", 3},
	}
	for _, tt := range tests {
		if got := c.Count(tt.text); got != tt.want {
			t.Fatalf("Count(%q)=%d want=%d", tt.text, got, tt.want)
		}
	}
}

func TestWordCounterNormalizesComposition(t *testing.T) {
	c := WordCounter{}
	composed := "caf\u00e9 au lait"
	decomposed := "cafe\u0301 au lait"
	if c.Count(composed) != c.Count(decomposed) {
		t.Fatalf("composed=%d decomposed=%d", c.Count(composed), c.Count(decomposed))
	}
}

func TestCountAllPreservesOrderAndLength(t *testing.T) {
	c := WordCounter{}
	texts := []string{"one", "", "one two three", "one two"}
	got := CountAll(c, texts)
	want := []int{1, 0, 3, 2}
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("CountAll()[%d]=%d want %d", i, got[i], want[i])
		}
	}
	if out := CountAll(c, nil); len(out) != 0 {
		t.Fatalf("CountAll(nil)=%v want empty", out)
	}
}

func TestBPECounter(t *testing.T) {
	c, err := New("cl100k_base")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Count(""); got != 0 {
		t.Fatalf("Count(\"\")=%d want 0", got)
	}

	text := "a photograph of an astronaut riding a horse, highly detailed"
	first := c.Count(text)
	second := c.Count(text)
	if first == 0 {
		t.Fatal("expected non-zero token count")
	}
	if first != second {
		t.Fatalf("non-deterministic count: %d then %d", first, second)
	}

	// Interleaving other inputs must not change the result.
	_ = c.Count("something else entirely")
	if third := c.Count(text); third != first {
		t.Fatalf("count changed after other input: %d vs %d", third, first)
	}

	if got := c.Count("hello"); got != 1 {
		t.Fatalf("Count(\"hello\")=%d want 1", got)
	}
}

func TestEveryKindCountsEmptyAsZero(t *testing.T) {
	for _, kind := range Kinds {
		c, err := New(kind)
		if err != nil {
			t.Fatalf("New(%q): %v", kind, err)
		}
		if got := c.Count(""); got != 0 {
			t.Fatalf("%s: Count(\"\")=%d want 0", kind, got)
		}
	}
}
