// Package provider calls remote text-generation providers with timeouts,
// retries, circuit breaking and fallback along a router chain.
package provider

import (
	"context"

	"github.com/ilearnhow/lessongen/pkg/models"
)

// Mode selects how generated text is turned into a payload.
type Mode int

const (
	// ModeStructured expects a JSON object in the text.
	ModeStructured Mode = iota
	// ModeText keeps the raw text.
	ModeText
)

// Request is one generation request.
type Request struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
	Mode        Mode
}

// Completion is the raw result of a single backend call.
type Completion struct {
	Text  string
	Usage models.Usage
}

// Backend performs a single remote call against a concrete API.
type Backend interface {
	Name() string
	Complete(ctx context.Context, model string, req Request) (Completion, error)
}
