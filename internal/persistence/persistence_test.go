package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/graphstore"
	"github.com/example/reservoir/internal/platform/logger"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}
func (f *fakeEmbedder) Dims() int         { return 2 }
func (f *fakeEmbedder) IndexName() string { return "test" }

type fakeStore struct {
	saved         []graphstore.MessageNode
	saveErr       error
	synapseErr    error
	synapseCalled bool
}

func (f *fakeStore) SaveMessageNode(ctx context.Context, n graphstore.MessageNode) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, n)
	return nil
}
func (f *fakeStore) FindSimilar(ctx context.Context, embedding []float32, partition, instance, role string, topK int) ([]graphstore.MessageNode, error) {
	return nil, nil
}
func (f *fakeStore) GetLastMessages(ctx context.Context, partition, instance string, count int) ([]graphstore.MessageNode, error) {
	return nil, nil
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
func (f *fakeStore) ConnectSynapses(ctx context.Context) error {
	f.synapseCalled = true
	return f.synapseErr
}
func (f *fakeStore) EnsureVectorIndex(ctx context.Context, name, nodeLabel, property string, dims int, metric string) error {
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestPersistInbound_SkipsSystemMessages(t *testing.T) {
	store := &fakeStore{}
	coord := New(&fakeEmbedder{}, store, testLogger(t))

	err := coord.PersistInbound(context.Background(), "trace-1", "p", "i", []chatmodel.Message{
		{Role: chatmodel.RoleSystem, Content: "sys"},
		{Role: chatmodel.RoleUser, Content: "hi"},
	})

	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, chatmodel.RoleUser, store.saved[0].Role)
	assert.Equal(t, "trace-1", store.saved[0].TraceID)
}

func TestPersistInbound_PropagatesEmbedFailure(t *testing.T) {
	store := &fakeStore{}
	coord := New(&fakeEmbedder{err: errors.New("embed down")}, store, testLogger(t))

	err := coord.PersistInbound(context.Background(), "trace-1", "p", "i", []chatmodel.Message{
		{Role: chatmodel.RoleUser, Content: "hi"},
	})

	assert.Error(t, err)
}

func TestPersistOutbound_DegradesOnEmbedFailureButStillSaves(t *testing.T) {
	store := &fakeStore{}
	coord := New(&fakeEmbedder{err: errors.New("embed down")}, store, testLogger(t))

	err := coord.PersistOutbound(context.Background(), "trace-1", "p", "i", "the reply")

	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Nil(t, store.saved[0].Embedding)
	assert.Equal(t, chatmodel.RoleAssistant, store.saved[0].Role)
	assert.True(t, store.synapseCalled)
}

func TestPersistOutbound_SynapseFailureDoesNotPropagate(t *testing.T) {
	store := &fakeStore{synapseErr: errors.New("synapse down")}
	coord := New(&fakeEmbedder{}, store, testLogger(t))

	err := coord.PersistOutbound(context.Background(), "trace-1", "p", "i", "the reply")

	assert.NoError(t, err)
}

func TestPersistOutbound_SaveFailurePropagates(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("store down")}
	coord := New(&fakeEmbedder{}, store, testLogger(t))

	err := coord.PersistOutbound(context.Background(), "trace-1", "p", "i", "the reply")

	assert.Error(t, err)
}
