package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-1" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"A bright day ahead."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":30,"completion_tokens":12,"total_tokens":42}}`))
	}))
	defer upstream.Close()

	o := NewOpenAI("openai", upstream.URL, "sk-1")
	comp, err := o.Complete(context.Background(), "gpt-4o-mini", Request{Prompt: "fortune", MaxTokens: 200, Temperature: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if comp.Text != "A bright day ahead." {
		t.Errorf("unexpected text %q", comp.Text)
	}
	if comp.Usage.InputTokens != 30 || comp.Usage.OutputTokens != 12 {
		t.Errorf("unexpected usage %+v", comp.Usage)
	}
}

func TestOpenAIServerError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer upstream.Close()

	o := NewOpenAI("openai", upstream.URL, "sk-1")
	_, err := o.Complete(context.Background(), "gpt-4o-mini", Request{Prompt: "x"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Status != http.StatusServiceUnavailable || !pe.Retryable() {
		t.Errorf("unexpected error %+v", pe)
	}
}
