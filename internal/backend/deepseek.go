package backend

import (
	"context"
	"net/http"

	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
)

const deepSeekDefaultBase = "https://api.deepseek.com/v1"

// DeepSeek serves text generation. The API is chat-completions shaped but
// keeps its own wire structs; compatibility today is not a contract.
type DeepSeek struct {
	base
}

// NewDeepSeek creates the DeepSeek adapter.
func NewDeepSeek(opts ...Option) *DeepSeek {
	return &DeepSeek{base: newBase(provider.NameDeepSeek, opts...)}
}

// Capabilities implements Adapter.
func (a *DeepSeek) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityText}
}

// RefForm implements Adapter.
func (a *DeepSeek) RefForm() asset.Form { return asset.FormURL }

type deepSeekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepSeekMessage `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type deepSeekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepSeekResponse struct {
	Choices []struct {
		Message deepSeekMessage `json:"message"`
	} `json:"choices"`
}

// GenerateText implements TextGenerator.
func (a *DeepSeek) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	cfg := a.runtime(provider.CapabilityText, deepSeekDefaultBase)

	messages := make([]deepSeekMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, deepSeekMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, deepSeekMessage{Role: "user", Content: req.Prompt})

	payload := deepSeekRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var resp deepSeekResponse
	err := a.doJSON(ctx, provider.CapabilityText, http.MethodPost, cfg.BaseURL+"/chat/completions", bearer(cfg.APIKey), payload, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityText), "empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

var (
	_ Adapter       = (*DeepSeek)(nil)
	_ TextGenerator = (*DeepSeek)(nil)
)
