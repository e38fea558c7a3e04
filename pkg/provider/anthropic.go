package provider

import (
	"context"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"resty.dev/v3"

	"github.com/ilearnhow/lessongen/pkg/models"
)

const (
	// DefaultAnthropicURL is used when a provider has no url.
	DefaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
	messagesPath        = "/v1/messages"
)

// Anthropic calls the Anthropic messages API.
type Anthropic struct {
	name   string
	client *resty.Client
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(name, baseURL, apiKey string) *Anthropic {
	if baseURL == "" {
		baseURL = DefaultAnthropicURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetHeader("Content-Type", "application/json")
	return &Anthropic{name: name, client: client}
}

// Name implements Backend.
func (a *Anthropic) Name() string { return a.name }

// Complete implements Backend.
func (a *Anthropic) Complete(ctx context.Context, model string, req Request) (Completion, error) {
	temp := req.Temperature
	body, err := json.Marshal(models.AnthropicRequest{
		Model:       model,
		Messages:    []models.ChatMessage{{Role: "user", Content: req.Prompt}},
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, &ProviderError{Provider: a.name, Message: "encode request", Err: err}
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetDoNotParseResponse(true).
		Post(messagesPath)
	if err != nil {
		return Completion{}, &ProviderError{Provider: a.name, Message: err.Error(), Err: err}
	}
	raw, err := readBody(resp)
	if err != nil {
		return Completion{}, &ProviderError{Provider: a.name, Message: "read response", Err: err}
	}
	if resp.IsError() {
		return Completion{}, a.errorFromResponse(resp.StatusCode(), raw)
	}

	var out models.AnthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Completion{}, &ProviderError{Provider: a.name, Status: resp.StatusCode(), Message: "malformed response envelope", Err: err}
	}
	if len(out.Content) == 0 {
		return Completion{}, &ProviderError{Provider: a.name, Status: resp.StatusCode(), Message: "response has no content"}
	}
	return Completion{Text: out.Text(), Usage: out.Usage.ToUsage()}, nil
}

func readBody(resp *resty.Response) ([]byte, error) {
	if resp == nil || resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, nil
	}
	defer resp.RawResponse.Body.Close()
	return io.ReadAll(resp.RawResponse.Body)
}

func (a *Anthropic) errorFromResponse(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var env models.AnthropicErrorBody
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	if msg == "" {
		msg = "request failed"
	}
	return &ProviderError{Provider: a.name, Status: status, Message: msg}
}

// Close releases idle connections.
func (a *Anthropic) Close() error {
	return a.client.Close()
}
