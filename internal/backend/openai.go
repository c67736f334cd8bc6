package backend

import (
	"context"
	"net/http"

	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
)

const openAIDefaultBase = "https://api.openai.com/v1"

// OpenAI serves text and image generation through the OpenAI API.
type OpenAI struct {
	base
}

// NewOpenAI creates the OpenAI adapter.
func NewOpenAI(opts ...Option) *OpenAI {
	return &OpenAI{base: newBase(provider.NameOpenAI, opts...)}
}

// Capabilities implements Adapter.
func (a *OpenAI) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityText, provider.CapabilityImage}
}

// RefForm implements Adapter. The images API takes no reference images; the
// URL form keeps request bodies small when refs are folded into prompts.
func (a *OpenAI) RefForm() asset.Form { return asset.FormURL }

// SupportsNup implements ImageGenerator: current image models follow grid
// composition instructions in a single call.
func (a *OpenAI) SupportsNup() bool { return true }

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// GenerateText implements TextGenerator.
func (a *OpenAI) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	cfg := a.runtime(provider.CapabilityText, openAIDefaultBase)

	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	payload := openAIChatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var resp openAIChatResponse
	err := a.doJSON(ctx, provider.CapabilityText, http.MethodPost, cfg.BaseURL+"/chat/completions", bearer(cfg.APIKey), payload, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityText), "empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

type openAIImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type openAIImageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage implements ImageGenerator.
func (a *OpenAI) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	cfg := a.runtime(provider.CapabilityImage, openAIDefaultBase)

	// N-up is composed natively: the grid lives inside one generated image,
	// so n stays 1 and the panel layout travels in the prompt.
	prompt := req.Prompt
	if req.Count > 1 {
		prompt += GridInstruction(req.Count, req.AspectRatio)
	}

	payload := openAIImageRequest{
		Model:  cfg.Model,
		Prompt: prompt,
		N:      1,
		Size:   req.Size,
	}

	var resp openAIImageResponse
	err := a.doJSON(ctx, provider.CapabilityImage, http.MethodPost, cfg.BaseURL+"/images/generations", bearer(cfg.APIKey), payload, &resp)
	if err != nil {
		return ImageResult{}, err
	}
	if len(resp.Data) == 0 {
		return ImageResult{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityImage), "empty data in response")
	}
	out := resp.Data[0]
	if out.B64JSON != "" {
		return ImageResult{Base64: out.B64JSON, MIME: "image/png"}, nil
	}
	return ImageResult{URL: out.URL, MIME: "image/png"}, nil
}

var (
	_ Adapter        = (*OpenAI)(nil)
	_ TextGenerator  = (*OpenAI)(nil)
	_ ImageGenerator = (*OpenAI)(nil)
)
