package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/reservoir/internal/chatmodel"
)

func TestCountOne_IncludesOverhead(t *testing.T) {
	c := New()
	m := chatmodel.Message{Role: chatmodel.RoleUser, Content: "hi"}
	got := c.CountOne(m)
	assert.Greater(t, got, 4) // overhead alone, plus role+content tokens
}

func TestCountAll_SumsPlusPriming(t *testing.T) {
	c := New()
	messages := []chatmodel.Message{
		{Role: chatmodel.RoleUser, Content: "hi"},
		{Role: chatmodel.RoleAssistant, Content: "hello there"},
	}
	sum := c.CountOne(messages[0]) + c.CountOne(messages[1])
	assert.Equal(t, sum+3, c.CountAll(messages))
}

func TestCountAll_Empty(t *testing.T) {
	c := New()
	assert.Equal(t, 3, c.CountAll(nil))
}

func TestCountOne_Deterministic(t *testing.T) {
	c := New()
	m := chatmodel.Message{Role: chatmodel.RoleUser, Content: "the quick brown fox"}
	assert.Equal(t, c.CountOne(m), c.CountOne(m))
}
