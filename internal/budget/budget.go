// Package budget truncates a message list to fit an input-token limit
// while preserving system messages and the final message.
package budget

import (
	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/tokens"
)

// Enforce truncates messages to fit limit: iterate from index 0,
// skipping system messages and the final message, remove the first
// removable message found, and restart the scan (indices shift on
// removal). Stops when within limit or when no removable messages
// remain; if still over budget, returns as-is.
func Enforce(counter *tokens.Counter, messages []chatmodel.Message, limit int) []chatmodel.Message {
	out := make([]chatmodel.Message, len(messages))
	copy(out, messages)

	for counter.CountAll(out) > limit {
		idx := firstRemovable(out)
		if idx < 0 {
			break
		}
		out = append(out[:idx], out[idx+1:]...)
	}
	return out
}

func firstRemovable(messages []chatmodel.Message) int {
	last := len(messages) - 1
	for i, m := range messages {
		if i == last {
			continue
		}
		if m.Role == chatmodel.RoleSystem {
			continue
		}
		return i
	}
	return -1
}

// FitsWithin reports whether messages already fit within limit.
func FitsWithin(counter *tokens.Counter, messages []chatmodel.Message, limit int) bool {
	return counter.CountAll(messages) <= limit
}
