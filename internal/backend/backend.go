// Package backend implements the provider adapters: one small translation
// layer per external generation backend, all satisfying the same
// capability-specific contracts. Each adapter owns its backend's wire shape,
// its raw status vocabulary, and its poll cadence; nothing backend-specific
// leaks past this package.
package backend

import (
	"context"

	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/provider"
	"github.com/storyforge/mediagen/internal/task"
)

// TextRequest is a uniform text-generation request.
type TextRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// ImageRequest is a uniform image-generation request.
type ImageRequest struct {
	Prompt string
	// Refs are reference images; when more than one is supplied the first is
	// the scene and the rest are cast members, in order.
	Refs []asset.Asset
	// Count asks for an N-up result: one image tiling Count panels.
	Count       int
	Size        string // "1024x1024" style
	AspectRatio string // "16:9" style
	Style       string
}

// ImageResult is one produced image, by URL or inline.
type ImageResult struct {
	URL    string
	Base64 string
	MIME   string
}

// VideoRequest is a uniform image-to-video generation request.
type VideoRequest struct {
	Prompt      string
	Start       asset.Asset
	End         *asset.Asset
	Duration    int // seconds
	AspectRatio string
	CameraMove  string
}

// Adapter is the surface every backend exposes regardless of capability.
// Adapters hold mutable runtime parameters: the resolver propagates the
// resolved configuration through Configure before any call is issued, and
// the configuration is kept per capability so switching providers for one
// capability never disturbs an in-flight call for another.
type Adapter interface {
	// Name returns the backend this adapter speaks to.
	Name() provider.Name

	// Capabilities returns the generation kinds the backend offers.
	Capabilities() []provider.Capability

	// Configure installs the resolved configuration for its capability.
	Configure(cfg provider.Config)

	// RefForm returns the representation this backend wants reference
	// assets in.
	RefForm() asset.Form
}

// TextGenerator is the contract for synchronous text generation.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// ImageGenerator is the contract for synchronous image generation.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)

	// SupportsNup reports whether the backend can compose an N-panel grid
	// in a single call. When false, the orchestrator synthesizes N-up by
	// generating panels separately and issuing one extra tiling call.
	SupportsNup() bool
}

// ImageSubmitter is the contract for backends whose image generation is
// asynchronous: submit returns a handle the poller drives to completion.
type ImageSubmitter interface {
	SubmitImage(ctx context.Context, req ImageRequest) (task.Handle, error)
}

// VideoSubmitter is the contract for asynchronous video generation; every
// implemented video backend is asynchronous.
type VideoSubmitter interface {
	SubmitVideo(ctx context.Context, req VideoRequest) (task.Handle, error)
}
