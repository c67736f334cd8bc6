// Package server provides the HTTP server for the generation API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// ReferenceImage is a reference asset supplied by URL or inline base64.
type ReferenceImage struct {
	// URL is a remote location for the reference image.
	URL string `json:"url,omitempty" validate:"omitempty,url"`
	// Base64 is the inline payload, without a data-URI prefix.
	Base64 string `json:"base64,omitempty" validate:"omitempty,base64"`
	// MIME is the payload's media type, e.g. "image/png".
	MIME string `json:"mime,omitempty"`
}

// TextGenerationRequest is the HTTP request body for text generation.
type TextGenerationRequest struct {
	// Prompt is the user prompt.
	Prompt string `json:"prompt" validate:"required"`
	// System is an optional system prompt.
	System string `json:"system,omitempty"`
	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature,omitempty" validate:"min=0,max=2"`
	// MaxTokens caps the response length; zero means the backend default.
	MaxTokens int `json:"max_tokens,omitempty" validate:"min=0"`
	// ConfigID pins this request to a specific provider configuration.
	ConfigID string `json:"config_id,omitempty"`
	// ProjectConfigID pins the surrounding project to a configuration.
	ProjectConfigID string `json:"project_config_id,omitempty"`
}

// TextGenerationResponse is the HTTP response for text generation.
type TextGenerationResponse struct {
	// Text is the generated text.
	Text string `json:"text"`
}

// ImageGenerationRequest is the HTTP request body for image generation.
type ImageGenerationRequest struct {
	// Prompt describes the image to generate.
	Prompt string `json:"prompt" validate:"required"`
	// Refs are positional reference images: scene first, then cast members.
	Refs []ReferenceImage `json:"refs,omitempty" validate:"max=10,dive"`
	// Count asks for an N-panel result; zero or one means a single image.
	Count int `json:"count,omitempty" validate:"min=0,max=9"`
	// Size is a "WxH" pixel size, e.g. "1024x1024".
	Size string `json:"size,omitempty"`
	// AspectRatio is a "W:H" ratio, e.g. "16:9".
	AspectRatio string `json:"aspect_ratio,omitempty"`
	// Style is an optional style hint appended by the backend.
	Style           string `json:"style,omitempty"`
	ConfigID        string `json:"config_id,omitempty"`
	ProjectConfigID string `json:"project_config_id,omitempty"`
}

// ImageBatchRequest is the HTTP request body for batch image generation.
type ImageBatchRequest struct {
	// Items are the individual image requests, submitted in order.
	Items []ImageGenerationRequest `json:"items" validate:"required,min=1,max=50,dive"`
}

// VideoGenerationRequest is the HTTP request body for image-to-video
// generation.
type VideoGenerationRequest struct {
	// Prompt describes the motion to generate.
	Prompt string `json:"prompt,omitempty"`
	// StartImage is the first frame.
	StartImage ReferenceImage `json:"start_image" validate:"required"`
	// EndImage is an optional last frame for backends that support it.
	EndImage *ReferenceImage `json:"end_image,omitempty"`
	// Duration is the clip length in seconds; zero means the backend default.
	Duration int `json:"duration,omitempty" validate:"min=0,max=15"`
	// AspectRatio is a "W:H" ratio, e.g. "16:9".
	AspectRatio string `json:"aspect_ratio,omitempty"`
	// CameraMove is an optional camera instruction for backends that take one.
	CameraMove      string `json:"camera_move,omitempty"`
	ConfigID        string `json:"config_id,omitempty"`
	ProjectConfigID string `json:"project_config_id,omitempty"`
}

// ArtifactResponse is the HTTP response for a produced media object.
type ArtifactResponse struct {
	// ID is the artifact's unique identifier.
	ID string `json:"id"`
	// Provider is the backend that produced the artifact.
	Provider string `json:"provider"`
	// URL is the artifact's best available location.
	URL string `json:"url,omitempty"`
	// Base64 is the inline payload when no URL is available.
	Base64 string `json:"base64,omitempty"`
	// MIME is the artifact's media type.
	MIME string `json:"mime,omitempty"`
}

// BatchItemResponse is one outcome in a batch image response.
type BatchItemResponse struct {
	// Artifact is the produced image; nil when the item failed.
	Artifact *ArtifactResponse `json:"artifact,omitempty"`
	// Error is the item's failure message, empty on success.
	Error string `json:"error,omitempty"`
}

// ImageBatchResponse is the HTTP response for batch image generation.
type ImageBatchResponse struct {
	Items []BatchItemResponse `json:"items"`
}

// ProviderConfigRequest is the HTTP request body for upserting a provider
// configuration.
type ProviderConfigRequest struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Capability string `json:"capability" validate:"required,oneof=llm text2image image2video"`
	Model      string `json:"model,omitempty"`
	// APIKey is accepted on write but never echoed back.
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`
	Enabled bool   `json:"enabled"`
}

// ProviderConfigResponse is one sanitized provider configuration. The
// credential is reported only as present or absent.
type ProviderConfigResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Capability    string `json:"capability"`
	Model         string `json:"model,omitempty"`
	BaseURL       string `json:"base_url,omitempty"`
	Enabled       bool   `json:"enabled"`
	HasCredential bool   `json:"has_credential"`
}

// ProvidersResponse is the HTTP response listing provider configurations.
type ProvidersResponse struct {
	Providers []ProviderConfigResponse `json:"providers"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
