// Package persistence writes the user turn on request entry, the
// assistant turn on exit, and rebuilds adjacency edges.
package persistence

import (
	"context"
	"strings"

	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/embedding"
	"github.com/example/reservoir/internal/graphstore"
	"github.com/example/reservoir/internal/platform/logger"
)

// Coordinator writes both sides of a request/response pair against one
// embedding port and one graph store.
type Coordinator struct {
	embed embedding.Port
	store graphstore.Store
	log   *logger.Logger
}

func New(embed embedding.Port, store graphstore.Store, log *logger.Logger) *Coordinator {
	return &Coordinator{embed: embed, store: store, log: log.With("component", "PersistenceCoordinator")}
}

// PersistInbound saves every message of the incoming request, each
// with its own fresh embedding. System-role and empty-content messages
// are never persisted. A failure here is the caller's to treat as 5xx.
func (c *Coordinator) PersistInbound(ctx context.Context, traceID, partition, instance string, messages []chatmodel.Message) error {
	for _, m := range messages {
		if m.Role == chatmodel.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		vec, err := c.embed.Embed(ctx, m.Content)
		if err != nil {
			return err
		}
		node := graphstore.MessageNode{
			TraceID:   traceID,
			Partition: partition,
			Instance:  instance,
			Role:      m.Role,
			Content:   m.Content,
			Embedding: vec,
			Timestamp: graphstore.NowMillis(),
		}
		if err := c.store.SaveMessageNode(ctx, node); err != nil {
			return err
		}
	}
	return nil
}

// PersistOutbound embeds and saves the assistant's reply, sharing the
// request's trace id, then rebuilds SYNAPSE edges. Edge rebuild is
// best-effort: its failure is logged but not propagated.
func (c *Coordinator) PersistOutbound(ctx context.Context, traceID, partition, instance, replyContent string) error {
	vec, err := c.embed.Embed(ctx, replyContent)
	if err != nil {
		c.log.Warn("outbound embed degraded, persisting without vector", "error", err.Error())
		vec = nil
	}
	node := graphstore.MessageNode{
		TraceID:   traceID,
		Partition: partition,
		Instance:  instance,
		Role:      chatmodel.RoleAssistant,
		Content:   replyContent,
		Embedding: vec,
		Timestamp: graphstore.NowMillis(),
	}
	if err := c.store.SaveMessageNode(ctx, node); err != nil {
		c.log.Warn("outbound persist failed, response already computed", "error", err.Error())
		return err
	}

	if err := c.store.ConnectSynapses(ctx); err != nil {
		c.log.Warn("connect_synapses failed", "error", err.Error())
	}
	return nil
}
