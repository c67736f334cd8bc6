package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
)

const geminiDefaultBase = "https://generativelanguage.googleapis.com/v1beta"

// Gemini serves text and image generation through the generateContent API.
// Reference images travel inline as base64 parts.
type Gemini struct {
	base
}

// NewGemini creates the Gemini adapter.
func NewGemini(opts ...Option) *Gemini {
	return &Gemini{base: newBase(provider.NameGemini, opts...)}
}

// Capabilities implements Adapter.
func (a *Gemini) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityText, provider.CapabilityImage}
}

// RefForm implements Adapter.
func (a *Gemini) RefForm() asset.Form { return asset.FormInline }

// SupportsNup implements ImageGenerator.
func (a *Gemini) SupportsNup() bool { return false }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenCfg struct {
	Temperature        float64  `json:"temperature,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// Responses come back camelCase; request and response shapes differ.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MIMEType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (a *Gemini) headers(cfg provider.Config) map[string]string {
	return map[string]string{"x-goog-api-key": cfg.APIKey}
}

func (a *Gemini) endpoint(cfg provider.Config) string {
	return fmt.Sprintf("%s/models/%s:generateContent", cfg.BaseURL, cfg.Model)
}

// GenerateText implements TextGenerator.
func (a *Gemini) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	cfg := a.runtime(provider.CapabilityText, geminiDefaultBase)

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		payload.GenerationConfig = &geminiGenCfg{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens}
	}

	var resp geminiResponse
	err := a.doJSON(ctx, provider.CapabilityText, http.MethodPost, a.endpoint(cfg), a.headers(cfg), payload, &resp)
	if err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityText), "no text part in response")
}

// GenerateImage implements ImageGenerator. References are passed inline in
// positional order; with several references the prompt gains the index
// legend describing which slot is the scene and which are cast members.
func (a *Gemini) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	cfg := a.runtime(provider.CapabilityImage, geminiDefaultBase)

	prompt := req.Prompt
	if len(req.Refs) > 1 {
		prompt += ReferenceLegend(len(req.Refs))
	}

	parts := []geminiPart{{Text: prompt}}
	for _, ref := range req.Refs {
		if ref.Data == "" {
			continue // adapter tolerates refs left in URL form
		}
		mime := ref.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MIMEType: mime, Data: ref.Data}})
	}

	payload := geminiRequest{
		Contents:         []geminiContent{{Parts: parts}},
		GenerationConfig: &geminiGenCfg{ResponseModalities: []string{"IMAGE"}},
	}

	var resp geminiResponse
	err := a.doJSON(ctx, provider.CapabilityImage, http.MethodPost, a.endpoint(cfg), a.headers(cfg), payload, &resp)
	if err != nil {
		return ImageResult{}, err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return ImageResult{Base64: part.InlineData.Data, MIME: part.InlineData.MIMEType}, nil
			}
		}
	}
	return ImageResult{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityImage), "no image part in response")
}

var (
	_ Adapter        = (*Gemini)(nil)
	_ TextGenerator  = (*Gemini)(nil)
	_ ImageGenerator = (*Gemini)(nil)
)
