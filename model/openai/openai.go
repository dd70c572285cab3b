// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/composekit/unitflow/model"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic
// model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Complete implements model.Model with a single non-streaming completion.
func (m *Model) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	messages = append(messages, openai.UserMessage(req.Input))

	params := openai.ChatCompletionNewParams{
		Model:               m.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	ch0 := resp.Choices[0]

	return &model.Response{
		Text:         ch0.Message.Content,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai"}
}
