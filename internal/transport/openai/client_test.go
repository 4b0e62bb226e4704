package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	"github.com/kailas-cloud/tokenguard/internal/domain/chat"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterMeteringMetrics()
	os.Exit(m.Run())
}

type chatRequestBody struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func writeCompletion(w http.ResponseWriter, content string, prompt, completion, cached int) {
	usage := map[string]any{
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
		"total_tokens":      prompt + completion,
	}
	if cached > 0 {
		usage["prompt_tokens_details"] = map[string]any{"cached_tokens": cached}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "deepseek-chat",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": usage,
	})
}

func newTestClient(url string) *Client {
	return NewClient(&Config{APIKey: "test-key", BaseURL: url, Logger: zap.NewNop()})
}

func TestClient_Complete(t *testing.T) {
	var got chatRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeCompletion(w, "Hello!", 12, 34, 0)
	}))
	defer server.Close()

	reply, err := newTestClient(server.URL).Complete(context.Background(),
		chat.Request{Prompt: "hi", Tone: "formal", Language: "de"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply.Content != "Hello!" || reply.InputTokens != 12 || reply.OutputTokens != 34 || reply.CacheHit {
		t.Errorf("reply = %+v", reply)
	}
	if got.Model != DefaultModel || got.MaxTokens != DefaultMaxTokens {
		t.Errorf("request model=%q max_tokens=%d", got.Model, got.MaxTokens)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "hi" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if sys := got.Messages[0].Content; !strings.Contains(sys, "formal") || !strings.Contains(sys, `"de"`) {
		t.Errorf("system prompt = %q", sys)
	}
}

func TestClient_CompleteCacheHit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, "ok", 100, 5, 64)
	}))
	defer server.Close()

	reply, err := newTestClient(server.URL).Complete(context.Background(), chat.Request{Prompt: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !reply.CacheHit {
		t.Error("expected cache hit when cached_tokens > 0")
	}
}

func TestClient_CompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Insufficient Balance","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), chat.Request{Prompt: "x"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "Insufficient Balance") {
		t.Errorf("error should carry provider message: %v", err)
	}
}

func TestClient_CompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[],"usage":{}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), chat.Request{Prompt: "x"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	if err := newTestClient(server.URL).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	for body, want := range map[string]string{
		`{"detail":"bad key"}`:         "bad key",
		`{"error":{"message":"nope"}}`: "nope",
		`not json`:                     "",
	} {
		if got := extractDetail([]byte(body)); got != want {
			t.Errorf("extractDetail(%s) = %q, want %q", body, got, want)
		}
	}
}
