package model

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyRequest is returned when a request carries no messages.
var ErrEmptyRequest = errors.New("model: request has no messages")

// Role names the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request captures a normalized completion request.
type Request struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// UserPrompt builds a single-turn request.
func UserPrompt(system, prompt string) Request {
	return Request{System: system, Messages: []Message{{Role: RoleUser, Text: prompt}}}
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is a completed generation.
type Response struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Model generates a completion for a request.
type Model interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
// It answers with the canned response registered for the last user message,
// or a fallback when none matches.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	fallback  string
	requests  []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an exact prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// SetFallback sets the completion returned for unknown prompts.
func (m *MockModel) SetFallback(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
}

// Requests returns the requests seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if len(req.Messages) == 0 {
		return Response{}, ErrEmptyRequest
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	prompt := req.Messages[len(req.Messages)-1].Text
	text, ok := m.responses[prompt]
	if !ok {
		text = m.fallback
	}
	return Response{Text: text, FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
