package modelinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_KnownModelsHaveExpectedLimits(t *testing.T) {
	cases := []struct {
		name      string
		inputLim  int
		outputLim int
	}{
		{"gpt-4.1", 128000, 4096},
		{"gpt-4o", 128000, 4096},
		{"gpt-4o-mini", 48000, 4096},
		{"llama3.2", 128000, 2048},
		{"mistral-large-2402", 128000, 2048},
		{"gemini-2.0-flash", 128000, 2048},
	}
	for _, tc := range cases {
		info := Resolve(tc.name)
		assert.Equal(t, tc.inputLim, info.InputTokenLimit, tc.name)
		assert.Equal(t, tc.outputLim, info.OutputTokenLimit, tc.name)
		assert.NotEmpty(t, info.BaseURL, tc.name)
	}
}

func TestResolve_UnknownModelFallsBackToOllamaProfile(t *testing.T) {
	info := Resolve("some-unreleased-model")
	assert.Equal(t, "http://localhost:11434/v1/chat/completions", info.BaseURL)
	assert.Equal(t, 128000, info.InputTokenLimit)
	assert.Empty(t, info.Key)
}

func TestResolve_LlamaHasNoAPIKey(t *testing.T) {
	info := Resolve("llama3.2")
	assert.Empty(t, info.Key)
}
