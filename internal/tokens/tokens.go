// Package tokens estimates the token cost of a message and of a full
// message list. Pure and deterministic.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/example/reservoir/internal/chatmodel"
)

// Encoding is the BPE vocabulary this counter is specified against.
const Encoding = "o200k_base"

// perMessageOverhead accounts for message framing: role/content
// delimiters the tokenizer doesn't see as literal text.
const perMessageOverhead = 4

// replyPrimingOverhead accounts for the assistant-reply priming tokens
// added once per request, not per message.
const replyPrimingOverhead = 3

var (
	initOnce sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
)

func encoder() (*tiktoken.Tiktoken, error) {
	initOnce.Do(func() {
		enc, initErr = tiktoken.GetEncoding(Encoding)
	})
	return enc, initErr
}

// Counter counts with the package's shared, lazily loaded encoder;
// safe for concurrent use since the underlying tiktoken encoder has no
// mutable per-call state.
type Counter struct{}

// New returns a Counter. Construction never fails; if the encoding
// can't be loaded, counting falls back to a character-based estimate.
func New() *Counter { return &Counter{} }

func rawCount(s string) int {
	e, err := encoder()
	if err != nil || e == nil {
		// Fallback estimate: roughly 4 characters per token.
		return (len(s) + 3) / 4
	}
	return len(e.Encode(s, nil, nil))
}

// CountOne returns 4 + tokens(role) + tokens(content) for a single
// message.
func (c *Counter) CountOne(m chatmodel.Message) int {
	return perMessageOverhead + rawCount(m.Role) + rawCount(m.Content)
}

// CountAll returns the sum of CountOne over messages plus the reply
// priming overhead.
func (c *Counter) CountAll(messages []chatmodel.Message) int {
	total := 0
	for _, m := range messages {
		total += c.CountOne(m)
	}
	return total + replyPrimingOverhead
}
