// Package upstream forwards chat requests to an OpenAI-compatible
// /v1/chat/completions endpoint.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/modelinfo"
	"github.com/example/reservoir/internal/platform/logger"
	"github.com/example/reservoir/internal/reserr"
)

// Port is the upstream completion contract.
type Port interface {
	// Complete forwards req to the endpoint named by model, returning
	// the upstream response, or *reserr.UpstreamError with the
	// verbatim status and body when the endpoint answers with a
	// non-2xx status or an undecodable body. Transport failures are
	// returned as-is, not as *reserr.UpstreamError.
	Complete(ctx context.Context, model modelinfo.Info, req chatmodel.Request) (chatmodel.Response, error)
}

// Client is the default HTTP-backed Port implementation. One per
// process.
type Client struct {
	log        *logger.Logger
	httpClient *http.Client
}

// New builds an upstream Client. timeout bounds the whole round trip
// of each request. The remote embedder and the graph driver set their
// own, separate network timeouts.
func New(log *logger.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		log:        log.With("component", "UpstreamClient"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete implements Port. It makes exactly one attempt: retries are
// the client's concern, not the proxy's.
func (c *Client) Complete(ctx context.Context, model modelinfo.Info, req chatmodel.Request) (chatmodel.Response, error) {
	req.Model = model.Name

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return chatmodel.Response{}, fmt.Errorf("upstream: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, model.BaseURL, &buf)
	if err != nil {
		return chatmodel.Response{}, fmt.Errorf("upstream: build request: %w", err)
	}
	if model.Key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+model.Key)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug("forwarding chat completion", "model", model.Name, "messages", len(req.Messages))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return chatmodel.Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatmodel.Response{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chatmodel.Response{}, &reserr.UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	var out chatmodel.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return chatmodel.Response{}, &reserr.UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}
	return out, nil
}
