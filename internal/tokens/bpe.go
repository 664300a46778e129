package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

var loaderOnce sync.Once

// BPECounter counts byte-pair-encoding tokens with an embedded vocabulary,
// so no network access is needed.
type BPECounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewBPECounter loads the named encoding.
func NewBPECounter(encoding string) (*BPECounter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &BPECounter{encoding: encoding, enc: enc}, nil
}

// Encoding returns the encoding name.
func (c *BPECounter) Encoding() string {
	return c.encoding
}

// Count treats special-token text as ordinary text.
func (c *BPECounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}
