// Package compressor collapses runs of system messages into one
// leading system prompt.
package compressor

import (
	"fmt"
	"strings"

	"github.com/example/reservoir/internal/chatmodel"
)

// Compress folds system messages into a single leading one. If there
// are at least two system messages and the first is at index 0, every
// system message from index 0 through the last system index is folded
// into the content of the message at index 0, each subsequent one
// appended as a role-labelled heading line. Messages after the last
// system index are preserved verbatim. Otherwise the list is returned
// unchanged.
//
// Applying Compress twice is equivalent to applying it once: after the
// first pass there is at most one system message, so the second pass's
// precondition ("at least two system messages") never holds.
func Compress(messages []chatmodel.Message) []chatmodel.Message {
	if len(messages) == 0 {
		return messages
	}
	lastSystem := -1
	systemCount := 0
	for i, m := range messages {
		if m.Role == chatmodel.RoleSystem {
			systemCount++
			lastSystem = i
		}
	}
	if systemCount < 2 || messages[0].Role != chatmodel.RoleSystem {
		return messages
	}

	var b strings.Builder
	b.WriteString(messages[0].Content)
	for i := 1; i <= lastSystem; i++ {
		b.WriteString("\n")
		b.WriteString(heading(messages[i]))
	}

	out := make([]chatmodel.Message, 0, len(messages)-lastSystem)
	out = append(out, chatmodel.Message{Role: chatmodel.RoleSystem, Content: b.String()})
	out = append(out, messages[lastSystem+1:]...)
	return out
}

func heading(m chatmodel.Message) string {
	switch m.Role {
	case chatmodel.RoleUser:
		return fmt.Sprintf("User: %s", m.Content)
	case chatmodel.RoleAssistant:
		return fmt.Sprintf("Assistant: %s", m.Content)
	case chatmodel.RoleSystem:
		return fmt.Sprintf("System Note: %s", m.Content)
	default:
		return fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
}
