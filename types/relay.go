package types

import (
	"context"
	"strings"
)

// Routing headers understood by the relay.
const (
	HeaderProvider = "X-Provider"
	HeaderAPIKey   = "X-Api-Key"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of both the chat and the vision endpoints.
type ChatRequest struct {
	Model    string        `json:"model,omitempty"`
	Prompt   string        `json:"prompt"`
	Messages []ChatMessage `json:"messages"`
	ImageURL string        `json:"imageUrl,omitempty"`
}

type ImageRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
}

type ImageResponse struct {
	ImageURL string `json:"imageUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StreamChunk is the JSON carried by one "data: " line.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Delta   string `json:"delta,omitempty"`
}

func (c *StreamChunk) Text() string {
	if c.Content != "" {
		return c.Content
	}
	return c.Delta
}

// Relay performs the network calls of LLM nodes.
// Stream returns nil on a clean end of stream, ErrStopped when ctx was
// cancelled, and a *ProviderError for a non-success response, in which
// case onFragment is never called.
type Relay interface {
	Stream(ctx context.Context, endpoint string, payload any, headers map[string]string, onFragment func(fragment string)) error
	GenerateImage(ctx context.Context, endpoint string, payload *ImageRequest, headers map[string]string) (string, error)
}

// ProviderForModel maps a model label chosen on a node to the provider
// whose credential should be attached.
func ProviderForModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "deepseek"):
		return "deepseek"
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gemini"):
		return "google"
	default:
		return "openai"
	}
}
