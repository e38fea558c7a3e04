package provider

import (
	"errors"
	"testing"
)

func TestExtractStructuredPayload(t *testing.T) {
	cases := map[string]string{
		"bare":      `{"introduction":"hi","conclusion":"bye"}`,
		"prose":     "Here you go:\n{\"introduction\":\"hi\",\"conclusion\":\"bye\"}\nEnjoy!",
		"fenced":    "```json\n{\"introduction\":\"hi\",\"conclusion\":\"bye\"}\n```",
		"fenced-nl": "Sure.\n```\n{\"introduction\":\"hi\",\"conclusion\":\"bye\"}\n```\n",
	}
	for name, text := range cases {
		p, err := ExtractStructuredPayload(text)
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
			continue
		}
		if p["introduction"] != "hi" || p["conclusion"] != "bye" {
			t.Errorf("%s: unexpected payload %v", name, p)
		}
	}
}

func TestExtractOutermostSpan(t *testing.T) {
	p, err := ExtractStructuredPayload(`x {"a":{"b":1},"c":"}"} y`)
	if err != nil {
		t.Fatal(err)
	}
	inner, ok := p["a"].(map[string]any)
	if !ok || inner["b"] != float64(1) {
		t.Errorf("unexpected nested value %v", p["a"])
	}
}

func TestExtractMalformed(t *testing.T) {
	for _, text := range []string{"", "no json here", "} backwards {", `{"unterminated": "`} {
		if _, err := ExtractStructuredPayload(text); !errors.Is(err, ErrPayloadMalformed) {
			t.Errorf("%q: expected ErrPayloadMalformed, got %v", text, err)
		}
	}
}

func TestPlaceholderKeepsRawText(t *testing.T) {
	p := Placeholder("just prose")
	if p["introduction"] != "just prose" {
		t.Errorf("raw text not kept: %v", p)
	}
	for _, k := range []string{"mainContent", "examples", "reflection", "conclusion"} {
		if _, ok := p[k]; !ok {
			t.Errorf("missing %s", k)
		}
	}
}
