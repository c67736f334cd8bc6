// Package generate is the orchestration core: it resolves which provider
// serves a request, shapes the request for that backend, drives synchronous
// and asynchronous calls through the retry executor and task poller, and
// hands finished media to the persistence pipeline.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/storyforge/mediagen/internal/artifact"
	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/backend"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
	"github.com/storyforge/mediagen/internal/retry"
	"github.com/storyforge/mediagen/internal/task"
)

// TextInput is one text-generation request.
type TextInput struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
	Scope       provider.Scope
}

// ImageInput is one image-generation request.
type ImageInput struct {
	Prompt string
	// Refs are positional reference images: scene first, then cast members.
	Refs        []asset.Asset
	Count       int
	Size        string
	AspectRatio string
	Style       string
	Scope       provider.Scope
}

// VideoInput is one image-to-video request.
type VideoInput struct {
	Prompt      string
	Start       asset.Asset
	End         *asset.Asset
	Duration    int
	AspectRatio string
	CameraMove  string
	Scope       provider.Scope
}

// Service orchestrates generation calls end to end. One mutex per capability
// serializes resolve + configure + dispatch, so switching the provider for
// one capability cannot corrupt a call in flight on another. Async polling
// happens outside the lock: task handles close over their credentials.
type Service struct {
	resolver   *provider.Resolver
	registry   *backend.Registry
	retrier    *retry.Executor
	poller     *task.Poller
	pipeline   *artifact.Pipeline
	normalizer *asset.Normalizer
	limiter    *rate.Limiter
	logger     *slog.Logger

	locks map[provider.Capability]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithPipeline sets the persistence pipeline for finished artifacts.
func WithPipeline(p *artifact.Pipeline) Option {
	return func(s *Service) {
		s.pipeline = p
	}
}

// WithNormalizer sets the reference-asset normalizer.
func WithNormalizer(n *asset.Normalizer) Option {
	return func(s *Service) {
		s.normalizer = n
	}
}

// WithRetry sets the backoff executor wrapping outbound calls.
func WithRetry(e *retry.Executor) Option {
	return func(s *Service) {
		s.retrier = e
	}
}

// WithPoller sets the task poller for asynchronous backends.
func WithPoller(p *task.Poller) Option {
	return func(s *Service) {
		s.poller = p
	}
}

// WithBatchInterval sets the minimum spacing between batch submissions.
func WithBatchInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// NewService creates a Service on top of a provider store and adapter
// registry. Ambient collaborators default to no-op or production settings.
func NewService(store provider.Store, registry *backend.Registry, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		resolver:   provider.NewResolver(store),
		registry:   registry,
		retrier:    retry.NewExecutor(logger),
		poller:     task.NewPoller(logger),
		pipeline:   artifact.NewPipeline(nil, "", logger),
		normalizer: asset.NewNormalizer(logger),
		limiter:    rate.NewLimiter(rate.Every(2500*time.Millisecond), 1),
		logger:     logger,
		locks: map[provider.Capability]*sync.Mutex{
			provider.CapabilityText:  {},
			provider.CapabilityImage: {},
			provider.CapabilityVideo: {},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolve picks the configuration for a capability and returns its adapter,
// already configured. The caller must hold the capability lock.
func (s *Service) resolve(capability provider.Capability, scope provider.Scope) (backend.Adapter, provider.Config, error) {
	cfg, err := s.resolver.Resolve(capability, scope)
	if err != nil {
		return nil, provider.Config{}, err
	}
	adapter, ok := s.registry.Get(cfg.Name)
	if !ok {
		return nil, provider.Config{}, genfail.New(
			genfail.KindNoProviderConfigured, string(cfg.Name), string(capability),
			fmt.Sprintf("no adapter registered for provider %q", cfg.Name),
		)
	}
	adapter.Configure(cfg)
	return adapter, cfg, nil
}

// GenerateText produces text through the resolved LLM provider.
func (s *Service) GenerateText(ctx context.Context, in TextInput) (string, error) {
	lock := s.locks[provider.CapabilityText]
	lock.Lock()
	defer lock.Unlock()

	adapter, cfg, err := s.resolve(provider.CapabilityText, in.Scope)
	if err != nil {
		return "", err
	}
	gen, ok := adapter.(backend.TextGenerator)
	if !ok {
		return "", genfail.New(
			genfail.KindNoProviderConfigured, string(cfg.Name), string(provider.CapabilityText),
			fmt.Sprintf("provider %q does not generate text", cfg.Name),
		)
	}

	req := backend.TextRequest{
		Prompt:      in.Prompt,
		System:      in.System,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	}
	return retry.DoValue(ctx, s.retrier, func(ctx context.Context) (string, error) {
		return gen.GenerateText(ctx, req)
	})
}

// GenerateImage produces one image artifact. Synchronous and asynchronous
// backends are dispatched through the same entry point; for backends that
// cannot compose an N-panel grid natively, a Count above one is synthesized
// with separate panel generations and one final tiling call.
func (s *Service) GenerateImage(ctx context.Context, in ImageInput) (*artifact.Artifact, error) {
	lock := s.locks[provider.CapabilityImage]
	lock.Lock()

	adapter, cfg, err := s.resolve(provider.CapabilityImage, in.Scope)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	refs := s.normalizeRefs(ctx, in.Refs, adapter.RefForm())
	req := backend.ImageRequest{
		Prompt:      in.Prompt,
		Refs:        refs,
		Count:       in.Count,
		Size:        in.Size,
		AspectRatio: in.AspectRatio,
		Style:       in.Style,
	}

	switch impl := adapter.(type) {
	case backend.ImageGenerator:
		defer lock.Unlock()
		if in.Count > 1 && !impl.SupportsNup() {
			return s.synthesizeNup(ctx, impl, adapter.RefForm(), cfg, req)
		}
		result, err := retry.DoValue(ctx, s.retrier, func(ctx context.Context) (backend.ImageResult, error) {
			return impl.GenerateImage(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		return s.finishImage(ctx, cfg, result), nil

	case backend.ImageSubmitter:
		handle, err := retry.DoValue(ctx, s.retrier, func(ctx context.Context) (task.Handle, error) {
			return impl.SubmitImage(ctx, req)
		})
		lock.Unlock()
		if err != nil {
			return nil, err
		}
		result, err := s.await(ctx, cfg, provider.CapabilityImage, handle)
		if err != nil {
			return nil, err
		}
		return s.finishImage(ctx, cfg, backend.ImageResult{URL: result.URL, Base64: result.Base64, MIME: result.MIME}), nil

	default:
		lock.Unlock()
		return nil, genfail.New(
			genfail.KindNoProviderConfigured, string(cfg.Name), string(provider.CapabilityImage),
			fmt.Sprintf("provider %q does not generate images", cfg.Name),
		)
	}
}

// synthesizeNup builds an N-panel grid for backends without native N-up:
// each panel is generated on its own, then one tiling call composes them.
// The capability lock is held for the whole sequence so the panels and the
// composition come from the same provider configuration.
func (s *Service) synthesizeNup(ctx context.Context, gen backend.ImageGenerator, refForm asset.Form, cfg provider.Config, req backend.ImageRequest) (*artifact.Artifact, error) {
	s.logger.Info("composing n-up from separate panels",
		slog.String("provider", string(cfg.Name)),
		slog.Int("count", req.Count),
	)

	panels := make([]asset.Asset, 0, req.Count)
	single := req
	single.Count = 1
	for i := 0; i < req.Count; i++ {
		result, err := retry.DoValue(ctx, s.retrier, func(ctx context.Context) (backend.ImageResult, error) {
			return gen.GenerateImage(ctx, single)
		})
		if err != nil {
			return nil, fmt.Errorf("generate: panel %d of %d: %w", i+1, req.Count, err)
		}
		panels = append(panels, asset.Asset{URL: result.URL, Data: result.Base64, MIME: result.MIME})
	}

	tile := backend.ImageRequest{
		Prompt:      backend.TileInstruction(req.Count, req.AspectRatio),
		Refs:        s.normalizeRefs(ctx, panels, refForm),
		Count:       1,
		Size:        req.Size,
		AspectRatio: req.AspectRatio,
	}
	result, err := retry.DoValue(ctx, s.retrier, func(ctx context.Context) (backend.ImageResult, error) {
		return gen.GenerateImage(ctx, tile)
	})
	if err != nil {
		return nil, fmt.Errorf("generate: tiling composition: %w", err)
	}
	return s.finishImage(ctx, cfg, result), nil
}

// GenerateVideo produces one video artifact from a start frame (and
// optionally an end frame). All video backends are asynchronous.
func (s *Service) GenerateVideo(ctx context.Context, in VideoInput) (*artifact.Artifact, error) {
	lock := s.locks[provider.CapabilityVideo]
	lock.Lock()

	adapter, cfg, err := s.resolve(provider.CapabilityVideo, in.Scope)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	sub, ok := adapter.(backend.VideoSubmitter)
	if !ok {
		lock.Unlock()
		return nil, genfail.New(
			genfail.KindNoProviderConfigured, string(cfg.Name), string(provider.CapabilityVideo),
			fmt.Sprintf("provider %q does not generate video", cfg.Name),
		)
	}

	req := backend.VideoRequest{
		Prompt:      in.Prompt,
		Start:       s.normalizer.Normalize(ctx, in.Start, adapter.RefForm()),
		Duration:    in.Duration,
		AspectRatio: in.AspectRatio,
		CameraMove:  in.CameraMove,
	}
	if in.End != nil && !in.End.Empty() {
		end := s.normalizer.Normalize(ctx, *in.End, adapter.RefForm())
		req.End = &end
	}

	handle, err := retry.DoValue(ctx, s.retrier, func(ctx context.Context) (task.Handle, error) {
		return sub.SubmitVideo(ctx, req)
	})
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	result, err := s.await(ctx, cfg, provider.CapabilityVideo, handle)
	if err != nil {
		return nil, err
	}

	a := artifact.New(cfg.Name, provider.CapabilityVideo)
	a.URL = result.URL
	a.Base64 = result.Base64
	a.MIME = result.MIME
	s.pipeline.Persist(ctx, a, artifact.CategoryVideo)
	return a, nil
}

// BatchItem is one outcome of a batch image run.
type BatchItem struct {
	Artifact *artifact.Artifact
	Err      error
}

// GenerateImageBatch runs image requests sequentially, pacing submissions
// with the batch limiter. Individual failures are recorded per item and do
// not stop the batch; context cancellation does.
func (s *Service) GenerateImageBatch(ctx context.Context, inputs []ImageInput) []BatchItem {
	items := make([]BatchItem, len(inputs))
	for i, in := range inputs {
		if err := s.limiter.Wait(ctx); err != nil {
			for j := i; j < len(inputs); j++ {
				items[j].Err = fmt.Errorf("generate: batch cancelled: %w", err)
			}
			return items
		}
		items[i].Artifact, items[i].Err = s.GenerateImage(ctx, in)
		if items[i].Err != nil {
			s.logger.Warn("batch item failed",
				slog.Int("index", i),
				slog.String("error", items[i].Err.Error()),
			)
		}
	}
	return items
}

// await drives an async handle to completion, retrying individual status
// queries through the same rate-limit policy as submission.
func (s *Service) await(ctx context.Context, cfg provider.Config, capability provider.Capability, h task.Handle) (task.Result, error) {
	fetch := h.Fetch
	h.Fetch = func(ctx context.Context) (task.Update, error) {
		return retry.DoValue(ctx, s.retrier, func(ctx context.Context) (task.Update, error) {
			return fetch(ctx)
		})
	}
	t := task.New(cfg.Name, capability, h.ID)
	return s.poller.Await(ctx, t, h)
}

// normalizeRefs converts each reference to the adapter's preferred form.
func (s *Service) normalizeRefs(ctx context.Context, refs []asset.Asset, target asset.Form) []asset.Asset {
	if len(refs) == 0 {
		return nil
	}
	out := make([]asset.Asset, 0, len(refs))
	for _, ref := range refs {
		if ref.Empty() {
			continue
		}
		out = append(out, s.normalizer.Normalize(ctx, ref, target))
	}
	return out
}

// finishImage wraps a backend image result in an artifact and persists it.
func (s *Service) finishImage(ctx context.Context, cfg provider.Config, result backend.ImageResult) *artifact.Artifact {
	a := artifact.New(cfg.Name, provider.CapabilityImage)
	a.URL = result.URL
	a.Base64 = result.Base64
	a.MIME = result.MIME
	s.pipeline.Persist(ctx, a, artifact.CategoryImage)
	return a
}
