package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/mikhail-dubov/answerd/internal/domain"
	"github.com/mikhail-dubov/answerd/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEngineMetrics()
	os.Exit(m.Run())
}

// chatResponse mirrors the OpenAI-compatible chat completion response.
type chatResponse struct {
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func newChatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		resp := chatResponse{Object: "chat.completion", Model: "test-model"}
		if content != "" {
			resp.Choices = append(resp.Choices, struct {
				Index   int `json:"index"`
				Message struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"message"`
				FinishReason string `json:"finish_reason"`
			}{})
			resp.Choices[0].Message.Role = "assistant"
			resp.Choices[0].Message.Content = content
			resp.Choices[0].FinishReason = "stop"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestEngine(serverURL string) *Engine {
	return New(&Config{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})
}

func TestAnswer_FramesJSONPayload(t *testing.T) {
	server := newChatServer(t, "National Health Service")
	defer server.Close()

	e := newTestEngine(server.URL)
	out, err := e.Answer(context.Background(), "What is NHS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"answer":"National Health Service"}` {
		t.Errorf("unexpected payload: %s", out)
	}
}

func TestAnswer_EmptyChoices(t *testing.T) {
	server := newChatServer(t, "")
	defer server.Close()

	e := newTestEngine(server.URL)
	_, err := e.Answer(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
}

func TestAnswer_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream broken"}}`))
	}))
	defer server.Close()

	e := newTestEngine(server.URL)
	_, err := e.Answer(context.Background(), "q")
	if !errors.Is(err, domain.ErrEngineFailed) {
		t.Fatalf("expected ErrEngineFailed, got %v", err)
	}
}
