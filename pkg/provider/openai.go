package provider

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ilearnhow/lessongen/pkg/models"
)

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	name   string
	client *openai.Client
}

// NewOpenAI creates an OpenAI backend. baseURL is the host without /v1;
// empty means api.openai.com.
func NewOpenAI(name, baseURL, apiKey string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		base := strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		cfg.BaseURL = base
	}
	return &OpenAI{name: name, client: openai.NewClientWithConfig(cfg)}
}

// Name implements Backend.
func (o *OpenAI) Name() string { return o.name }

// Complete implements Backend.
func (o *OpenAI) Complete(ctx context.Context, model string, req Request) (Completion, error) {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return Completion{}, o.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &ProviderError{Provider: o.name, Status: 200, Message: "response has no choices"}
	}
	return Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: models.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (o *OpenAI) wrap(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: o.name, Status: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: o.name, Status: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return &ProviderError{Provider: o.name, Message: err.Error(), Err: err}
}
