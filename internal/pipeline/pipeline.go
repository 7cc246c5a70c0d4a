// Package pipeline is the end-to-end request handler: retrieval,
// inbound persistence, enrichment, truncation, forwarding, and outbound
// persistence, strictly sequenced per request.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/example/reservoir/internal/budget"
	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/compressor"
	"github.com/example/reservoir/internal/contextbuilder"
	"github.com/example/reservoir/internal/embedding"
	"github.com/example/reservoir/internal/graphstore"
	"github.com/example/reservoir/internal/modelinfo"
	"github.com/example/reservoir/internal/persistence"
	"github.com/example/reservoir/internal/platform/logger"
	"github.com/example/reservoir/internal/reserr"
	"github.com/example/reservoir/internal/retrieval"
	"github.com/example/reservoir/internal/tokens"
	"github.com/example/reservoir/internal/upstream"
)

// State names the phase that has just completed.
type State string

const (
	StateInit         State = "INIT"
	StateParsed       State = "PARSED"
	StateSizeChecked  State = "SIZE_CHECKED"
	StateRetrieved    State = "RETRIEVED"
	StatePersistedIn  State = "PERSISTED_IN"
	StateEnriched     State = "ENRICHED"
	StateTruncated    State = "TRUNCATED"
	StateForwarded    State = "FORWARDED"
	StatePersistedOut State = "PERSISTED_OUT"
	StateSynapsed     State = "SYNAPSED"
	StateDone         State = "DONE"
)

// Deps aggregates every port and component the pipeline sequences.
type Deps struct {
	Tokens      *tokens.Counter
	Embed       embedding.Port
	Store       graphstore.Store
	Upstream    upstream.Port
	Retrieval   *retrieval.Engine
	Persistence *persistence.Coordinator
	Log         *logger.Logger
}

// Input is one inbound request, already scoped to a partition/instance
// by the HTTP layer's routing.
type Input struct {
	Partition string
	Instance  string
	Request   chatmodel.Request
}

// Outcome is what the HTTP layer needs to render a response: the chat
// response and the last state reached. Errors are returned alongside
// it by Run for the HTTP layer to translate to a status code.
type Outcome struct {
	Response chatmodel.Response
	State    State
}

// Run drives one request through the full state machine. It never
// panics on a degraded dependency; only BadRequest, Oversize (handled
// in-band), and UpstreamError/StoreUnavailable-on-inbound-persist
// propagate as errors the HTTP layer must translate.
func Run(ctx context.Context, deps Deps, in Input) (Outcome, error) {
	state := StateInit

	// PARSED
	last, ok := in.Request.LastMessage()
	if !ok || last.Role != chatmodel.RoleUser {
		return Outcome{State: state}, &reserr.BadRequest{Reason: "last message must have role=user"}
	}
	state = StateParsed

	model := modelinfo.Resolve(in.Request.Model)

	// SIZE_CHECKED
	measured := deps.Tokens.CountOne(last)
	if measured > model.InputTokenLimit {
		resp := oversizeResponse(measured, model.InputTokenLimit)
		return Outcome{Response: resp, State: StateSizeChecked}, nil
	}
	state = StateSizeChecked

	partition, instance := resolveScope(in.Partition, in.Instance)
	searchTerm := last.Content

	// RETRIEVED
	result := deps.Retrieval.Retrieve(ctx, searchTerm, partition, instance)
	state = StateRetrieved

	// PERSISTED_IN
	traceID := uuid.NewString()
	if err := deps.Persistence.PersistInbound(ctx, traceID, partition, instance, in.Request.Messages); err != nil {
		return Outcome{State: state}, &reserr.StoreUnavailable{Op: "persist_inbound", Cause: err}
	}
	state = StatePersistedIn

	// ENRICHED
	enriched := contextbuilder.Build(in.Request, result.Similar, result.Recent)
	state = StateEnriched

	// System folding happens between enrichment and truncation so the
	// merged system prompt is what the budget sees.
	enriched.Messages = compressor.Compress(enriched.Messages)

	// TRUNCATED
	enriched.Messages = budget.Enforce(deps.Tokens, enriched.Messages, model.InputTokenLimit)
	if !budget.FitsWithin(deps.Tokens, enriched.Messages, model.InputTokenLimit) {
		// Only system messages and the final prompt remain; the
		// upstream will reject, the proxy does not further mangle.
		deps.Log.Warn("request still over token budget after truncation",
			"limit", model.InputTokenLimit, "messages", len(enriched.Messages))
	}
	state = StateTruncated

	// FORWARDED
	upstreamResp, err := deps.Upstream.Complete(ctx, model, enriched)
	if err != nil {
		// The user turn persisted at PERSISTED_IN is kept even without
		// a matching assistant turn.
		return Outcome{State: state}, err
	}
	state = StateForwarded

	// PERSISTED_OUT / SYNAPSED — best-effort; failures are logged, not
	// propagated, since the response is already computed. The tail runs
	// on a detached context: a client disconnect after forwarding must
	// not lose the assistant turn.
	tailCtx := context.WithoutCancel(ctx)
	if replyContent, ok := firstReplyContent(upstreamResp); ok {
		if err := deps.Persistence.PersistOutbound(tailCtx, traceID, partition, instance, replyContent); err != nil {
			deps.Log.Warn("outbound persistence failed", "trace_id", traceID, "error", err.Error())
		}
	}
	state = StateDone

	return Outcome{Response: upstreamResp, State: state}, nil
}

func resolveScope(partition, instance string) (string, string) {
	partition = strings.TrimSpace(partition)
	instance = strings.TrimSpace(instance)
	if partition == "" {
		partition = "default"
		instance = "default"
	} else if instance == "" {
		instance = partition
	}
	return partition, instance
}

func firstReplyContent(resp chatmodel.Response) (string, bool) {
	if len(resp.Choices) == 0 {
		return "", false
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", false
	}
	return content, true
}

// oversizeResponse synthesises a fake chat response with
// finish_reason=length. The upstream is not called; nothing is
// persisted.
func oversizeResponse(measured, limit int) chatmodel.Response {
	msg := fmt.Sprintf(
		"Your message is too large to process: it measures %d tokens, but this model accepts at most %d input tokens. Please shorten your message and try again.",
		measured, limit,
	)
	return chatmodel.Response{
		Object: "chat.completion",
		Choices: []chatmodel.Choice{
			{
				Index:        0,
				Message:      chatmodel.Message{Role: chatmodel.RoleAssistant, Content: msg},
				FinishReason: "length",
			},
		},
	}
}
