// Package contextbuilder merges retrieved similar/recent history into
// the outgoing request.
package contextbuilder

import (
	"sort"

	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/graphstore"
)

const (
	semanticHeader = "The following is the result of a semantic search of the most related messages by cosine similarity to previous conversations"
	recencyHeader  = "The following are the most recent messages in the conversation in chronological order"
)

// Build merges similar and recent into req's message list. It never
// mutates similar/recent or req.Messages in place; it returns a new
// Request.
//
// The enrichment block is intentionally not deduplicated against req's
// existing messages; tests pin that behaviour.
func Build(req chatmodel.Request, similar, recent []graphstore.MessageNode) chatmodel.Request {
	sortedRecent := make([]graphstore.MessageNode, len(recent))
	copy(sortedRecent, recent)
	sort.SliceStable(sortedRecent, func(i, j int) bool {
		return sortedRecent[i].Timestamp < sortedRecent[j].Timestamp
	})

	block := make([]chatmodel.Message, 0, len(similar)+len(sortedRecent)+2)
	block = append(block, chatmodel.Message{Role: chatmodel.RoleSystem, Content: semanticHeader})
	for _, n := range similar {
		block = append(block, chatmodel.Message{Role: n.Role, Content: n.Content})
	}
	block = append(block, chatmodel.Message{Role: chatmodel.RoleSystem, Content: recencyHeader})
	for _, n := range sortedRecent {
		block = append(block, chatmodel.Message{Role: n.Role, Content: n.Content})
	}

	block = dropEmpty(block)

	insertAt := 0
	if len(req.Messages) > 0 && req.Messages[0].Role == chatmodel.RoleSystem {
		insertAt = 1
	}

	out := req.Clone()
	merged := make([]chatmodel.Message, 0, len(out.Messages)+len(block))
	merged = append(merged, out.Messages[:insertAt]...)
	merged = append(merged, block...)
	merged = append(merged, out.Messages[insertAt:]...)
	out.Messages = merged
	return out
}

func dropEmpty(messages []chatmodel.Message) []chatmodel.Message {
	out := make([]chatmodel.Message, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
