package model

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt size.
type TokenCounter interface {
	Count(text string) int
}

type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k encoding. The first call may download the
// BPE ranks, so callers fall back to RuneCounter on error.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// RuneCounter approximates tokens as four runes each.
type RuneCounter struct{}

func (RuneCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
