package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/storylinehq/storyline/internal/model"
)

func verdictServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-123",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Index: 0,
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: answer,
					},
					FinishReason: "stop",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIClassifier_Ask_Yes(t *testing.T) {
	server := verdictServer(t, "YES")
	defer server.Close()

	c, err := NewOpenAIClassifier(model.ClassifierConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	yes, err := c.Ask(context.Background(), "Tracking the conflict", "Russia strikes Kharkiv")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !yes {
		t.Error("Expected YES verdict")
	}
}

func TestOpenAIClassifier_Ask_No(t *testing.T) {
	server := verdictServer(t, "NO")
	defer server.Close()

	c, err := NewOpenAIClassifier(model.ClassifierConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	yes, err := c.Ask(context.Background(), "Tracking the conflict", "Local bakery opens")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if yes {
		t.Error("Expected NO verdict")
	}
}

func TestOpenAIClassifier_Ask_SloppyAnswerParsed(t *testing.T) {
	server := verdictServer(t, "  yes.")
	defer server.Close()

	c, err := NewOpenAIClassifier(model.ClassifierConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	yes, err := c.Ask(context.Background(), "anchor", "candidate")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !yes {
		t.Error("Expected lenient YES parsing")
	}
}

func TestOpenAIClassifier_Ask_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewOpenAIClassifier(model.ClassifierConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	if _, err := c.Ask(context.Background(), "anchor", "candidate"); err == nil {
		t.Error("Expected error on server failure")
	}
}

func TestNewOpenAIClassifier_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIClassifier(model.ClassifierConfig{}); err == nil {
		t.Error("Expected error without API key")
	}
}
