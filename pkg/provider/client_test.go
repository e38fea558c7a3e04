package provider

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ilearnhow/lessongen/pkg/config"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/router"
)

// scriptedBackend returns queued results in order, then repeats the last.
type scriptedBackend struct {
	name  string
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	text string
	err  error
}

func (s *scriptedBackend) Name() string { return s.name }

func (s *scriptedBackend) Complete(ctx context.Context, model string, req Request) (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.steps)-1)
	s.calls++
	st := s.steps[i]
	if st.err != nil {
		return Completion{}, st.err
	}
	return Completion{Text: st.text, Usage: models.Usage{InputTokens: 1000, OutputTokens: 500}}, nil
}

func (s *scriptedBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func status(provider string, code int) error {
	return &ProviderError{Provider: provider, Status: code, Message: http.StatusText(code)}
}

func fastBackOff() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

func newTestClient(t *testing.T, routes []config.RouteConfig, backends ...*scriptedBackend) *Client {
	t.Helper()
	var providers []config.ProviderConfig
	endpoints := make(map[string]Endpoint)
	for _, b := range backends {
		providers = append(providers, config.ProviderConfig{Name: b.name})
		endpoints[b.name] = Endpoint{Backend: b, MaxRetries: 2, BreakerThreshold: 3}
	}
	return New(router.New(providers, routes), endpoints, WithBackOff(fastBackOff))
}

const goodJSON = `{"introduction":"hi","mainContent":"m","examples":"e","reflection":"r","conclusion":"c"}`

func TestGenerateSuccess(t *testing.T) {
	b := &scriptedBackend{name: "claude", steps: []step{{text: goodJSON}}}
	c := newTestClient(t, nil, b)

	resp, err := c.Generate(context.Background(), Request{Prompt: "p", Model: "claude-3-5-sonnet-20241022", MaxTokens: 800})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Degraded {
		t.Error("valid JSON should not degrade")
	}
	if resp.Content["introduction"] != "hi" {
		t.Errorf("unexpected content %v", resp.Content)
	}
	if resp.Cost != 0.0105 {
		t.Errorf("expected default pricing cost 0.0105, got %v", resp.Cost)
	}
	if resp.Provider != "claude" || resp.Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("unexpected route %s/%s", resp.Provider, resp.Model)
	}
}

func TestGenerateRetriesRetryable(t *testing.T) {
	b := &scriptedBackend{name: "claude", steps: []step{
		{err: status("claude", 503)},
		{err: status("claude", 429)},
		{text: goodJSON},
	}}
	c := newTestClient(t, nil, b)

	if _, err := c.Generate(context.Background(), Request{Prompt: "p", Model: "m"}); err != nil {
		t.Fatal(err)
	}
	if b.Calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", b.Calls())
	}
}

func TestGenerateDoesNotRetryClientError(t *testing.T) {
	b := &scriptedBackend{name: "claude", steps: []step{{err: status("claude", 400)}}}
	c := newTestClient(t, nil, b)

	_, err := c.Generate(context.Background(), Request{Prompt: "p", Model: "m"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Status != 400 {
		t.Fatalf("expected 400 ProviderError, got %v", err)
	}
	if b.Calls() != 1 {
		t.Errorf("expected a single attempt, got %d", b.Calls())
	}
}

func TestGenerateFallsBack(t *testing.T) {
	primary := &scriptedBackend{name: "claude", steps: []step{{err: status("claude", 500)}}}
	secondary := &scriptedBackend{name: "openai", steps: []step{{text: goodJSON}}}
	c := newTestClient(t, []config.RouteConfig{{
		Model: "lesson",
		Targets: []config.RouteTarget{
			{Provider: "claude", Model: "claude-3-5-sonnet-20241022"},
			{Provider: "openai", Model: "gpt-4o-mini"},
		},
	}}, primary, secondary)

	resp, err := c.Generate(context.Background(), Request{Prompt: "p", Model: "lesson"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "openai" || resp.Model != "gpt-4o-mini" {
		t.Errorf("expected fallback to openai, got %s/%s", resp.Provider, resp.Model)
	}
	if primary.Calls() != 3 {
		t.Errorf("primary should be tried 1+2 times, got %d", primary.Calls())
	}
}

func TestBreakerOpens(t *testing.T) {
	b := &scriptedBackend{name: "claude", steps: []step{{err: status("claude", 502)}}}
	c := newTestClient(t, nil, b)
	ctx := context.Background()

	// MaxRetries 2 means three failures per Generate, which trips the breaker.
	_, _ = c.Generate(ctx, Request{Prompt: "p", Model: "m"})
	if got := c.BreakerStates()["claude"]; got != "open" {
		t.Fatalf("expected open breaker, got %s", got)
	}

	calls := b.Calls()
	_, err := c.Generate(ctx, Request{Prompt: "p", Model: "m"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Message != "circuit open" {
		t.Errorf("expected circuit open error, got %v", err)
	}
	if b.Calls() != calls {
		t.Error("open breaker should not reach the backend")
	}
}

func TestGenerateDegradesOnMalformedPayload(t *testing.T) {
	b := &scriptedBackend{name: "claude", steps: []step{{text: "Once upon a time there was no JSON."}}}
	c := newTestClient(t, nil, b)

	resp, err := c.Generate(context.Background(), Request{Prompt: "p", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Degraded {
		t.Error("expected degraded response")
	}
	if resp.Content["introduction"] != "Once upon a time there was no JSON." {
		t.Errorf("raw text should be kept, got %v", resp.Content)
	}
	if resp.Cost == 0 {
		t.Error("degraded responses still cost money")
	}
}

func TestGenerateTextMode(t *testing.T) {
	b := &scriptedBackend{name: "claude", steps: []step{{text: "  You will shine today.\n"}}}
	c := newTestClient(t, nil, b)

	resp, err := c.Generate(context.Background(), Request{Prompt: "p", Model: "m", Mode: ModeText})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Degraded || resp.Content["fortune"] != "You will shine today." {
		t.Errorf("unexpected fortune response %+v", resp)
	}
}

func TestGenerateNoProviders(t *testing.T) {
	c := New(router.New(nil, nil), nil)
	_, err := c.Generate(context.Background(), Request{Model: "m"})
	var pe *ProviderError
	if !errors.As(err, &pe) || !errors.Is(err, router.ErrNoProviders) {
		t.Errorf("expected ProviderError wrapping ErrNoProviders, got %v", err)
	}
}
