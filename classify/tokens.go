package classify

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// encoder returns the shared tokenizer. Model-specific encodings fall
// back to cl100k_base, which is close enough for budgeting purposes.
// The error is memoized too: without BPE data (offline, no cache) every
// call would otherwise retry the download.
func encoder(model string) (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.EncodingForModel(model)
		if encErr != nil {
			enc, encErr = tiktoken.GetEncoding("cl100k_base")
		}
	})
	return enc, encErr
}

const truncMarker = "\n[...]\n"

// truncateMiddle keeps the head and tail of over-budget text and drops
// the middle, which tends to carry the least routing signal. Text within
// budget passes through unchanged. When no tokenizer is available the
// budget is approximated by rune count instead of silently skipping
// truncation.
func truncateMiddle(text string, maxTokens int, model string) string {
	if maxTokens <= 0 {
		return text
	}
	e, err := encoder(model)
	if err != nil {
		return truncateMiddleRunes(text, maxTokens)
	}
	tokens := e.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	keep := maxTokens - 8 // room for the ellipsis marker
	if keep < 2 {
		keep = 2
	}
	head := keep / 2
	tail := keep - head

	var b strings.Builder
	b.WriteString(e.Decode(tokens[:head]))
	b.WriteString(truncMarker)
	b.WriteString(e.Decode(tokens[len(tokens)-tail:]))
	return b.String()
}

// approxRunesPerToken is the usual English-text rule of thumb.
const approxRunesPerToken = 4

// truncateMiddleRunes is the tokenizer-free estimate: the token budget
// maps to a rune budget and the middle is cut the same way.
func truncateMiddleRunes(text string, maxTokens int) string {
	runes := []rune(text)
	budget := maxTokens * approxRunesPerToken
	if len(runes) <= budget {
		return text
	}

	keep := budget - len(truncMarker)
	if keep < 2 {
		keep = 2
	}
	head := keep / 2
	tail := keep - head

	return string(runes[:head]) + truncMarker + string(runes[len(runes)-tail:])
}
