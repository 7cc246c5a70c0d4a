package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/example/reservoir/internal/platform/httpx"
	"github.com/example/reservoir/internal/platform/logger"
	"github.com/example/reservoir/internal/reserr"
)

// remoteDims is the fixed length of the cloud embedding model's output.
const remoteDims = 1536

// httpStatusError carries the verbatim upstream status for
// httpx.IsRetryableError to inspect.
type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("embedding http %d: %s", e.StatusCode, e.Body)
}

func (e *httpStatusError) HTTPStatusCode() int { return e.StatusCode }

// Remote is the cloud embedding variant: POSTs {input, model} to a
// configurable URL with a bearer key from a named environment
// variable.
type Remote struct {
	log        *logger.Logger
	httpClient *http.Client
	url        string
	model      string
	apiKeyEnv  string
	maxRetries int
	indexName  string
}

// NewRemote builds a Remote embedding port. url defaults to OpenAI's
// embeddings endpoint; apiKeyEnv defaults to OPENAI_API_KEY.
func NewRemote(log *logger.Logger) *Remote {
	url := strings.TrimSpace(os.Getenv("RSV_EMBED_BASE_URL"))
	if url == "" {
		url = "https://api.openai.com/v1/embeddings"
	}
	model := strings.TrimSpace(os.Getenv("RSV_EMBED_MODEL"))
	if model == "" {
		model = "text-embedding-3-small"
	}
	apiKeyEnv := strings.TrimSpace(os.Getenv("RSV_EMBED_KEY_ENV"))
	if apiKeyEnv == "" {
		apiKeyEnv = "OPENAI_API_KEY"
	}
	return &Remote{
		log:        log.With("component", "RemoteEmbedding"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
		model:      model,
		apiKeyEnv:  apiKeyEnv,
		maxRetries: 3,
		indexName:  "embedding1536",
	}
}

func (r *Remote) Dims() int         { return remoteDims }
func (r *Remote) IndexName() string { return r.indexName }

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed implements Port.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.embedWithRetry(ctx, text)
	if err != nil {
		return nil, &reserr.EmbeddingUnavailable{Cause: err}
	}
	return vec, nil
}

func (r *Remote) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		vec, err := r.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) || attempt == r.maxRetries {
			return nil, err
		}
		sleepFor := httpx.JitterSleep(backoff)
		r.log.Warn("embedding request retrying", "attempt", attempt+1, "max_retries", r.maxRetries, "error", err.Error())
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (r *Remote) embedOnce(ctx context.Context, text string) ([]float32, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(embedRequest{Input: text, Model: r.model}); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &buf)
	if err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(os.Getenv(r.apiKeyEnv)); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embedding decode error: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response had no data")
	}
	out := make([]float32, len(parsed.Data[0].Embedding))
	for i, v := range parsed.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
