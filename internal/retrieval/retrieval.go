// Package retrieval finds relevant history for a new prompt: semantic
// search, graph expansion, and deduplication.
package retrieval

import (
	"context"
	"strings"

	"github.com/example/reservoir/internal/embedding"
	"github.com/example/reservoir/internal/graphstore"
	"github.com/example/reservoir/internal/platform/logger"
)

const (
	similarTopK  = 7
	recentCount  = 15
	bfsThreshold = 2
)

// Result is the pair of lists the context builder consumes.
type Result struct {
	Similar []graphstore.MessageNode
	Recent  []graphstore.MessageNode
}

// Engine runs retrieval against one embedding port and one graph
// store.
type Engine struct {
	embed embedding.Port
	store graphstore.Store
	log   *logger.Logger
}

func New(embed embedding.Port, store graphstore.Store, log *logger.Logger) *Engine {
	return &Engine{embed: embed, store: store, log: log.With("component", "RetrievalEngine")}
}

// Retrieve runs the full retrieval sequence for searchTerm within
// (partition, instance). Embedding-port failure yields an empty
// Similar list; recency is still attempted.
func (e *Engine) Retrieve(ctx context.Context, searchTerm, partition, instance string) Result {
	similar := e.similar(ctx, searchTerm, partition, instance)
	recent, err := e.store.GetLastMessages(ctx, partition, instance, recentCount)
	if err != nil {
		e.log.Warn("get_last_messages degraded", "error", err.Error())
		recent = nil
	}
	return Result{Similar: similar, Recent: recent}
}

func (e *Engine) similar(ctx context.Context, searchTerm, partition, instance string) []graphstore.MessageNode {
	vec, err := e.embed.Embed(ctx, searchTerm)
	if err != nil {
		e.log.Warn("embedding unavailable, retrieval degraded", "error", err.Error())
		return nil
	}

	found, err := e.store.FindSimilar(ctx, vec, partition, instance, "user", similarTopK)
	if err != nil {
		e.log.Warn("find_similar degraded", "error", err.Error())
		return nil
	}

	deduped := dedupeByContent(found)

	if expanded, err := e.store.FindConnectionsBetween(ctx, deduped); err == nil && len(expanded) > 0 {
		deduped = append(deduped, expanded...)
	} else if err != nil {
		e.log.Warn("find_connections_between degraded", "error", err.Error())
	}

	if len(deduped) > 0 {
		top := deduped[0]
		if connected, err := e.store.FindNodesConnectedTo(ctx, top); err == nil && len(connected) > bfsThreshold {
			deduped = connected
		} else if err != nil {
			e.log.Warn("find_nodes_connected_to degraded", "error", err.Error())
		}
	}

	return deduped
}

// dedupeByContent removes entries sharing a lower-cased, trimmed
// content, keeping the one with the highest score.
func dedupeByContent(nodes []graphstore.MessageNode) []graphstore.MessageNode {
	best := map[string]graphstore.MessageNode{}
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		key := strings.TrimSpace(strings.ToLower(n.Content))
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = n
			continue
		}
		if n.Score > existing.Score {
			best[key] = n
		}
	}
	out := make([]graphstore.MessageNode, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}
