// Package tokens estimates how many tokens a caption uses.
package tokens

import (
	"fmt"
	"strings"
)

// Counter returns the number of tokens in text. Implementations must be
// deterministic and keep no state between calls that affects the result.
type Counter interface {
	Count(text string) int
}

// DefaultKind is the tokenizer used when none is configured.
const DefaultKind = "cl100k_base"

// Kinds lists the accepted tokenizer names.
var Kinds = []string{"cl100k_base", "p50k_base", "r50k_base", "words"}

// New returns the counter for kind.
func New(kind string) (Counter, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = DefaultKind
	}
	switch kind {
	case "words":
		return WordCounter{}, nil
	case "cl100k_base", "p50k_base", "r50k_base":
		return NewBPECounter(kind)
	default:
		return nil, fmt.Errorf("unknown tokenizer %q; allowed: %s", kind, strings.Join(Kinds, ", "))
	}
}

// CountAll counts each text independently. The result has the same
// length and order as texts.
func CountAll(c Counter, texts []string) []int {
	counts := make([]int, len(texts))
	for i, text := range texts {
		counts[i] = c.Count(text)
	}
	return counts
}
