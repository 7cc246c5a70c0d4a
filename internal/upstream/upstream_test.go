package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/modelinfo"
	"github.com/example/reservoir/internal/platform/logger"
	"github.com/example/reservoir/internal/reserr"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestComplete_PostsToModelBaseURLWithBearerAuth(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody chatmodel.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hi back"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := New(testLogger(t), time.Second)
	model := modelinfo.Info{Name: "gpt-4o", BaseURL: srv.URL + "/v1/chat/completions", Key: "sk-test"}
	req := chatmodel.Request{Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "hello"}}}

	resp, err := client.Complete(context.Background(), model, req)

	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o", gotBody.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi back", resp.Choices[0].Message.Content)
}

func TestComplete_NonSuccessStatusWrapsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream exploded"}`))
	}))
	defer srv.Close()

	client := New(testLogger(t), time.Second)
	model := modelinfo.Info{Name: "gpt-4o", BaseURL: srv.URL}
	req := chatmodel.Request{Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "hello"}}}

	_, err := client.Complete(context.Background(), model, req)

	require.Error(t, err)
	var upstreamErr *reserr.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusBadGateway, upstreamErr.Status)
}

func TestComplete_NoAuthHeaderWhenKeyEmpty(t *testing.T) {
	var gotAuth string
	var sawHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth, sawHeader = r.Header.Get("Authorization"), r.Header.Get("Authorization") != ""
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	client := New(testLogger(t), time.Second)
	model := modelinfo.Info{Name: "llama3.2", BaseURL: srv.URL}
	req := chatmodel.Request{Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "hello"}}}

	_, err := client.Complete(context.Background(), model, req)

	require.NoError(t, err)
	assert.False(t, sawHeader)
	assert.Empty(t, gotAuth)
}
