package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/graphstore"
	"github.com/example/reservoir/internal/modelinfo"
	"github.com/example/reservoir/internal/persistence"
	"github.com/example/reservoir/internal/platform/logger"
	"github.com/example/reservoir/internal/reserr"
	"github.com/example/reservoir/internal/retrieval"
	"github.com/example/reservoir/internal/tokens"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}
func (fakeEmbedder) Dims() int         { return 3 }
func (fakeEmbedder) IndexName() string { return "test" }

type fakeStore struct {
	saved     []graphstore.MessageNode
	saveInErr error
	recent    []graphstore.MessageNode
}

func (f *fakeStore) SaveMessageNode(ctx context.Context, n graphstore.MessageNode) error {
	if f.saveInErr != nil {
		return f.saveInErr
	}
	f.saved = append(f.saved, n)
	return nil
}
func (f *fakeStore) FindSimilar(ctx context.Context, embedding []float32, partition, instance, role string, topK int) ([]graphstore.MessageNode, error) {
	return nil, nil
}
func (f *fakeStore) GetLastMessages(ctx context.Context, partition, instance string, count int) ([]graphstore.MessageNode, error) {
	return f.recent, nil
}
func (f *fakeStore) AllMessages(ctx context.Context) ([]graphstore.MessageNode, error) {
	return f.saved, nil
}
func (f *fakeStore) FindConnectionsBetween(ctx context.Context, nodes []graphstore.MessageNode) ([]graphstore.MessageNode, error) {
	return nil, nil
}
func (f *fakeStore) FindNodesConnectedTo(ctx context.Context, node graphstore.MessageNode) ([]graphstore.MessageNode, error) {
	return nil, nil
}
func (f *fakeStore) ConnectSynapses(ctx context.Context) error { return nil }
func (f *fakeStore) EnsureVectorIndex(ctx context.Context, name, nodeLabel, property string, dims int, metric string) error {
	return nil
}

type fakeUpstream struct {
	resp chatmodel.Response
	err  error
}

func (f *fakeUpstream) Complete(ctx context.Context, model modelinfo.Info, req chatmodel.Request) (chatmodel.Response, error) {
	return f.resp, f.err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func buildDeps(t *testing.T, store *fakeStore, up *fakeUpstream) Deps {
	t.Helper()
	log := testLogger(t)
	embed := fakeEmbedder{}
	return Deps{
		Tokens:      tokens.New(),
		Embed:       embed,
		Store:       store,
		Upstream:    up,
		Retrieval:   retrieval.New(embed, store, log),
		Persistence: persistence.New(embed, store, log),
		Log:         log,
	}
}

func TestRun_RejectsRequestNotEndingInUserMessage(t *testing.T) {
	store := &fakeStore{}
	deps := buildDeps(t, store, &fakeUpstream{})
	in := Input{Request: chatmodel.Request{Messages: []chatmodel.Message{
		{Role: chatmodel.RoleAssistant, Content: "hi"},
	}}}

	_, err := Run(context.Background(), deps, in)

	require.Error(t, err)
	var badReq *reserr.BadRequest
	require.ErrorAs(t, err, &badReq)
}

func TestRun_OversizeMessageReturnsSyntheticResponseWithoutCallingUpstream(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUpstream{err: errSentinel}
	deps := buildDeps(t, store, up)
	in := Input{Request: chatmodel.Request{
		Model:    "gpt-4o-mini",
		Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: strings.Repeat("word ", 60000)}},
	}}

	out, err := Run(context.Background(), deps, in)

	require.NoError(t, err)
	assert.Equal(t, StateSizeChecked, out.State)
	require.Len(t, out.Response.Choices, 1)
	assert.Equal(t, "length", out.Response.Choices[0].FinishReason)
	assert.Empty(t, store.saved)
}

func TestRun_HappyPathPersistsInboundAndOutboundAndReachesDone(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUpstream{resp: chatmodel.Response{
		Object: "chat.completion",
		Choices: []chatmodel.Choice{
			{Index: 0, Message: chatmodel.Message{Role: chatmodel.RoleAssistant, Content: "the answer"}, FinishReason: "stop"},
		},
	}}
	deps := buildDeps(t, store, up)
	in := Input{
		Partition: "acme",
		Instance:  "prod",
		Request: chatmodel.Request{
			Model:    "gpt-4o",
			Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "what is the weather"}},
		},
	}

	out, err := Run(context.Background(), deps, in)

	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, "the answer", out.Response.Choices[0].Message.Content)

	require.Len(t, store.saved, 2)
	assert.Equal(t, chatmodel.RoleUser, store.saved[0].Role)
	assert.Equal(t, chatmodel.RoleAssistant, store.saved[1].Role)
	assert.Equal(t, store.saved[0].TraceID, store.saved[1].TraceID)
	assert.Equal(t, "acme", store.saved[0].Partition)
	assert.Equal(t, "prod", store.saved[0].Instance)
}

func TestRun_UpstreamFailurePropagatesButInboundPersistIsKept(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUpstream{err: &reserr.UpstreamError{Status: 502, Body: "bad gateway"}}
	deps := buildDeps(t, store, up)
	in := Input{Request: chatmodel.Request{
		Model:    "gpt-4o",
		Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "hello"}},
	}}

	_, err := Run(context.Background(), deps, in)

	require.Error(t, err)
	var upstreamErr *reserr.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Len(t, store.saved, 1)
	assert.Equal(t, chatmodel.RoleUser, store.saved[0].Role)
}

func TestRun_InboundPersistFailureReturnsStoreUnavailable(t *testing.T) {
	store := &fakeStore{saveInErr: errSentinel}
	deps := buildDeps(t, store, &fakeUpstream{})
	in := Input{Request: chatmodel.Request{
		Model:    "gpt-4o",
		Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "hello"}},
	}}

	_, err := Run(context.Background(), deps, in)

	require.Error(t, err)
	var storeErr *reserr.StoreUnavailable
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "persist_inbound", storeErr.Op)
}

func TestResolveScope_DefaultsAndFallbacks(t *testing.T) {
	p, i := resolveScope("", "")
	assert.Equal(t, "default", p)
	assert.Equal(t, "default", i)

	p, i = resolveScope("acme", "")
	assert.Equal(t, "acme", p)
	assert.Equal(t, "acme", i)

	p, i = resolveScope("acme", "prod")
	assert.Equal(t, "acme", p)
	assert.Equal(t, "prod", i)
}

var errSentinel = &reserr.StoreUnavailable{Op: "unexpected", Cause: nil}
