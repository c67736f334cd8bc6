// Package provider holds the provider configuration model: which external
// generation backends exist, which capability each configuration serves, and
// which configuration is active for a capability. The orchestration core
// reads this set; configuration management owns writes.
package provider

import "errors"

// Capability identifies one of the generation kinds the core serves.
type Capability string

const (
	// CapabilityText is prompt-to-text generation.
	CapabilityText Capability = "llm"
	// CapabilityImage is prompt-to-image generation.
	CapabilityImage Capability = "text2image"
	// CapabilityVideo is image-to-video generation.
	CapabilityVideo Capability = "image2video"
)

// IsValid returns true if the capability is one of the supported kinds.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityText, CapabilityImage, CapabilityVideo:
		return true
	default:
		return false
	}
}

// Name identifies an external generation backend.
type Name string

const (
	NameOpenAI   Name = "openai"
	NameDeepSeek Name = "deepseek"
	NameGemini   Name = "gemini"
	NameFlux     Name = "flux"
	NameDoubao   Name = "doubao"
	NameKling    Name = "kling"
	NameVidu     Name = "vidu"
	NameRunway   Name = "runway"
	NameMiniMax  Name = "minimax"
)

// Static errors for provider configuration handling.
var (
	// ErrConfigNotFound is returned when a configuration id is unknown.
	ErrConfigNotFound = errors.New("provider: configuration not found")
	// ErrConfigInvalid is returned when a configuration is missing identity,
	// provider name, or capability.
	ErrConfigInvalid = errors.New("provider: configuration invalid")
)

// Config is one stored provider configuration: a named set of
// credential/model/endpoint values for one provider+capability pair.
type Config struct {
	ID         string     `json:"id"`
	Name       Name       `json:"name"`
	Capability Capability `json:"capability"`
	Model      string     `json:"model"`
	APIKey     string     `json:"-"` // never serialized
	BaseURL    string     `json:"base_url"`
	Enabled    bool       `json:"enabled"`
}

// Validate checks the configuration carries the fields the store requires.
func (c Config) Validate() error {
	if c.ID == "" || c.Name == "" || !c.Capability.IsValid() {
		return ErrConfigInvalid
	}
	return nil
}

// HasCredential reports whether the configuration carries a usable credential.
func (c Config) HasCredential() bool {
	return c.APIKey != ""
}
