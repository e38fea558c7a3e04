package router

import (
	"errors"
	"testing"

	"github.com/ilearnhow/lessongen/pkg/config"
)

var (
	claude = config.ProviderConfig{Name: "claude", Type: "anthropic", APIKey: "sk-ant"}
	openai = config.ProviderConfig{Name: "openai", Type: "openai", APIKey: "sk-1"}
)

func TestResolveNoRoutes(t *testing.T) {
	r := New([]config.ProviderConfig{claude}, nil)
	routes, err := r.Resolve("claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if routes[0].Provider.Name != "claude" || routes[0].Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("unexpected route: %+v", routes[0])
	}
}

func TestResolveWithAlias(t *testing.T) {
	r := New([]config.ProviderConfig{claude, openai}, []config.RouteConfig{
		{
			Model: "lesson",
			Targets: []config.RouteTarget{
				{Provider: "claude", Model: "claude-3-5-sonnet-20241022"},
				{Provider: "openai", Model: "gpt-4o-mini"},
			},
		},
	})
	routes, err := r.Resolve("lesson")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Provider.Name != "claude" || routes[1].Model != "gpt-4o-mini" {
		t.Errorf("unexpected routes: %+v", routes)
	}
	if got := Describe(routes); got != "claude/claude-3-5-sonnet-20241022 -> openai/gpt-4o-mini" {
		t.Errorf("unexpected description %q", got)
	}
}

func TestResolveEmptyModelUsesRequested(t *testing.T) {
	r := New([]config.ProviderConfig{claude}, []config.RouteConfig{
		{Model: "claude-3-5-haiku", Targets: []config.RouteTarget{{Provider: "claude"}}},
	})
	routes, err := r.Resolve("claude-3-5-haiku")
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Model != "claude-3-5-haiku" {
		t.Errorf("expected requested model, got %s", routes[0].Model)
	}
}

func TestResolveSkipsUnknownProvider(t *testing.T) {
	r := New([]config.ProviderConfig{openai}, []config.RouteConfig{
		{
			Model: "lesson",
			Targets: []config.RouteTarget{
				{Provider: "unknown", Model: "x"},
				{Provider: "openai", Model: "gpt-4o-mini"},
			},
		},
	})
	routes, err := r.Resolve("lesson")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].Provider.Name != "openai" {
		t.Fatalf("expected only openai, got %+v", routes)
	}
}

func TestResolveAllUnknownProviders(t *testing.T) {
	r := New([]config.ProviderConfig{openai}, []config.RouteConfig{
		{Model: "bad", Targets: []config.RouteTarget{{Provider: "unknown", Model: "x"}}},
	})
	if _, err := r.Resolve("bad"); err == nil {
		t.Fatal("expected error for all unknown providers")
	}
}

func TestResolveNoProviders(t *testing.T) {
	r := New(nil, nil)
	if _, err := r.Resolve("lesson"); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}
