// Package modelinfo resolves a model name to the egress endpoint,
// token limits, and API key it talks to.
package modelinfo

import (
	"os"
	"strings"
)

// Info carries everything the upstream port needs to forward a
// request for one model.
type Info struct {
	Name             string
	BaseURL          string
	InputTokenLimit  int
	OutputTokenLimit int
	Key              string
}

func envOrDefault(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func openAIBaseURL() string {
	return envOrDefault("RSV_OPENAI_BASE_URL", "https://api.openai.com/v1/chat/completions")
}

func ollamaBaseURL() string {
	return envOrDefault("RSV_OLLAMA_BASE_URL", "http://localhost:11434/v1/chat/completions")
}

func mistralBaseURL() string {
	return envOrDefault("RSV_MISTRAL_BASE_URL", "https://api.mistral.ai/v1/chat/completions")
}

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"

// Resolve looks up the known-models table for name, falling back to a
// local-endpoint profile for anything it doesn't recognise.
func Resolve(name string) Info {
	switch name {
	case "gpt-4.1":
		return Info{Name: name, BaseURL: openAIBaseURL(), InputTokenLimit: 128000, OutputTokenLimit: 4096, Key: os.Getenv("OPENAI_API_KEY")}
	case "gpt-4o":
		return Info{Name: name, BaseURL: openAIBaseURL(), InputTokenLimit: 128000, OutputTokenLimit: 4096, Key: os.Getenv("OPENAI_API_KEY")}
	case "gpt-4o-mini":
		return Info{Name: name, BaseURL: openAIBaseURL(), InputTokenLimit: 48000, OutputTokenLimit: 4096, Key: os.Getenv("OPENAI_API_KEY")}
	case "llama3.2":
		return Info{Name: name, BaseURL: ollamaBaseURL(), InputTokenLimit: 128000, OutputTokenLimit: 2048, Key: ""}
	case "mistral-large-2402":
		return Info{Name: name, BaseURL: mistralBaseURL(), InputTokenLimit: 128000, OutputTokenLimit: 2048, Key: os.Getenv("MISTRAL_API_KEY")}
	case "gemini-2.0-flash":
		return Info{Name: name, BaseURL: geminiBaseURL, InputTokenLimit: 128000, OutputTokenLimit: 2048, Key: os.Getenv("GEMINI_API_KEY")}
	default:
		base := envOrDefault("OLLAMA_BASE_URL", "http://localhost:11434")
		return Info{Name: name, BaseURL: base + "/v1/chat/completions", InputTokenLimit: 128000, OutputTokenLimit: 2048, Key: os.Getenv("OLLAMA_API_KEY")}
	}
}
