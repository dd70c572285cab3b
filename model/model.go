// Package model defines the minimal completion interface the model-backed
// unit drives, plus a deterministic MockModel for tests and examples.
// Provider subpackages wrap the official Anthropic and OpenAI SDKs.
package model

import (
	"context"
	"fmt"
)

// Request captures one normalized completion input.
type Request struct {
	// Instructions is the system-level steer (may be empty).
	Instructions string `json:"instructions,omitempty"`
	// Input is the user-facing request text.
	Input string `json:"input"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed generation.
type Response struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required by the model-backed unit.
type Model interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info      Info
	responses map[string]string
	err       error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input.
func (m *MockModel) AddResponse(input, response string) { m.responses[input] = response }

// FailWith makes every completion return err.
func (m *MockModel) FailWith(err error) { m.err = err }

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (*Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	text, ok := m.responses[req.Input]
	if !ok {
		text = fmt.Sprintf("Mock response to: %s", req.Input)
	}
	return &Response{Text: text, FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
