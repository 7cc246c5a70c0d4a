package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reservoir/internal/platform/logger"
)

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_OrthogonalIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestCosineSimilarity_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func testStore(t *testing.T) *Neo4jStore {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	// No driver: only the pre-session guards are exercised.
	return NewNeo4jStore(nil, log, "embedding1536", 1536)
}

func TestSaveMessageNode_SkipsSystemRole(t *testing.T) {
	s := testStore(t)
	err := s.SaveMessageNode(context.Background(), MessageNode{
		TraceID: "t1", Role: "system", Content: "never persisted",
	})
	assert.NoError(t, err)
}

func TestSaveMessageNode_SkipsEmptyContent(t *testing.T) {
	s := testStore(t)
	err := s.SaveMessageNode(context.Background(), MessageNode{
		TraceID: "t1", Role: "user", Content: "   ",
	})
	assert.NoError(t, err)
}

func TestSaveMessageNode_RejectsMismatchedEmbeddingLength(t *testing.T) {
	s := testStore(t)
	err := s.SaveMessageNode(context.Background(), MessageNode{
		TraceID: "t1", Role: "user", Content: "hi",
		Embedding: []float32{1, 2, 3},
	})
	assert.Error(t, err)
}

func TestSanitizeIdent_StripsInjectionCharacters(t *testing.T) {
	assert.Equal(t, "messageEmbeddings", sanitizeIdent("messageEmbeddings"))
	assert.Equal(t, "badnameDROP", sanitizeIdent("bad`name; DROP"))
	assert.Equal(t, "cosine", sanitizeIdent("cosine"))
}
