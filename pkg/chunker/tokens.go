package chunker

import (
	"fmt"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// EncodingWords selects the whitespace word tokenizer.
const EncodingWords = "words"

// DefaultEncoding is the BPE encoding used for token budgets.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens. Implementations must be deterministic so that
// budgets computed at index time hold at query time.
type Tokenizer interface {
	Count(text string) int
	Name() string
}

// NewTokenizer returns the tokenizer for the named encoding.
func NewTokenizer(encoding string) (Tokenizer, error) {
	switch encoding {
	case EncodingWords:
		return Words{}, nil
	case "":
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %s: %w", encoding, err)
	}
	return &Tiktoken{name: encoding, enc: enc}, nil
}

// Words counts whitespace-separated words.
// This is approximate but fast and needs no vocabulary file.
type Words struct{}

func (Words) Name() string { return EncodingWords }

// Count returns the number of whitespace-separated words in text.
func (Words) Count(text string) int {
	count := 0
	inWord := false

	for _, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				count++
				inWord = false
			}
		} else {
			inWord = true
		}
	}
	if inWord {
		count++
	}

	return count
}

// Tiktoken counts BPE tokens of an OpenAI encoding. The ranks file is
// fetched once and cached under TIKTOKEN_CACHE_DIR.
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

func (t *Tiktoken) Name() string { return t.name }

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}
