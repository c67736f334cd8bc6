package generate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/mediagen/internal/artifact"
	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/backend"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
	"github.com/storyforge/mediagen/internal/retry"
	"github.com/storyforge/mediagen/internal/task"
)

// fakeCore carries the adapter plumbing the capability-specific fakes embed.
type fakeCore struct {
	name    provider.Name
	caps    []provider.Capability
	refForm asset.Form

	mu      sync.Mutex
	configs []provider.Config
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fakeCore) Name() provider.Name                 { return f.name }
func (f *fakeCore) Capabilities() []provider.Capability { return f.caps }
func (f *fakeCore) RefForm() asset.Form                 { return f.refForm }

func (f *fakeCore) Configure(cfg provider.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
}

func (f *fakeCore) lastConfig() provider.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.configs) == 0 {
		return provider.Config{}
	}
	return f.configs[len(f.configs)-1]
}

type fakeTextGen struct {
	fakeCore
	generate func(ctx context.Context, req backend.TextRequest) (string, error)
}

func (f *fakeTextGen) GenerateText(ctx context.Context, req backend.TextRequest) (string, error) {
	return f.generate(ctx, req)
}

type fakeImageGen struct {
	fakeCore
	nup      bool
	requests []backend.ImageRequest
	generate func(ctx context.Context, req backend.ImageRequest) (backend.ImageResult, error)
}

func (f *fakeImageGen) SupportsNup() bool { return f.nup }

func (f *fakeImageGen) GenerateImage(ctx context.Context, req backend.ImageRequest) (backend.ImageResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.generate(ctx, req)
}

type fakeImageSub struct {
	fakeCore
	submit func(ctx context.Context, req backend.ImageRequest) (task.Handle, error)
}

func (f *fakeImageSub) SubmitImage(ctx context.Context, req backend.ImageRequest) (task.Handle, error) {
	return f.submit(ctx, req)
}

type fakeVideoSub struct {
	fakeCore
	requests []backend.VideoRequest
	submit   func(ctx context.Context, req backend.VideoRequest) (task.Handle, error)
}

func (f *fakeVideoSub) SubmitVideo(ctx context.Context, req backend.VideoRequest) (task.Handle, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.submit(ctx, req)
}

func newTestService(t *testing.T, store provider.Store, adapters ...backend.Adapter) *Service {
	t.Helper()
	registry := backend.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	return NewService(store, registry, testLogger(),
		WithRetry(retry.NewExecutor(testLogger(), retry.WithSleep(noSleep))),
		WithBatchInterval(time.Millisecond),
	)
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func seedStore(t *testing.T, cfgs ...provider.Config) *provider.MemoryStore {
	t.Helper()
	store := provider.NewMemoryStore()
	for _, cfg := range cfgs {
		require.NoError(t, store.Put(cfg))
	}
	return store
}

func runningHandle(id string, updates ...task.Update) task.Handle {
	i := 0
	return task.Handle{
		Provider:    "fake",
		Capability:  string(provider.CapabilityImage),
		ID:          id,
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		Fetch: func(ctx context.Context) (task.Update, error) {
			u := updates[i]
			if i < len(updates)-1 {
				i++
			}
			return u, nil
		},
	}
}

func TestGenerateText(t *testing.T) {
	gen := &fakeTextGen{
		fakeCore: fakeCore{name: "fake-llm", caps: []provider.Capability{provider.CapabilityText}},
		generate: func(ctx context.Context, req backend.TextRequest) (string, error) {
			assert.Equal(t, "write act one", req.Prompt)
			return "ACT ONE", nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-llm", Name: "fake-llm", Capability: provider.CapabilityText,
		APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, gen)

	got, err := svc.GenerateText(context.Background(), TextInput{Prompt: "write act one"})
	require.NoError(t, err)
	assert.Equal(t, "ACT ONE", got)
	assert.Equal(t, "cfg-llm", gen.lastConfig().ID)
}

func TestGenerateText_NoProviderConfigured(t *testing.T) {
	svc := newTestService(t, provider.NewMemoryStore())

	_, err := svc.GenerateText(context.Background(), TextInput{Prompt: "hello"})
	require.Error(t, err)
	assert.True(t, genfail.Is(err, genfail.KindNoProviderConfigured))
}

func TestGenerateText_RequestScopeOverridesEnabled(t *testing.T) {
	var calledDefault, calledScoped bool
	defaultGen := &fakeTextGen{
		fakeCore: fakeCore{name: "fake-default", caps: []provider.Capability{provider.CapabilityText}},
		generate: func(context.Context, backend.TextRequest) (string, error) {
			calledDefault = true
			return "default", nil
		},
	}
	scopedGen := &fakeTextGen{
		fakeCore: fakeCore{name: "fake-scoped", caps: []provider.Capability{provider.CapabilityText}},
		generate: func(context.Context, backend.TextRequest) (string, error) {
			calledScoped = true
			return "scoped", nil
		},
	}
	store := seedStore(t,
		provider.Config{ID: "cfg-default", Name: "fake-default", Capability: provider.CapabilityText, APIKey: "k", Enabled: true},
		provider.Config{ID: "cfg-scoped", Name: "fake-scoped", Capability: provider.CapabilityText, APIKey: "k"},
	)
	svc := newTestService(t, store, defaultGen, scopedGen)

	got, err := svc.GenerateText(context.Background(), TextInput{
		Prompt: "hello",
		Scope:  provider.Scope{RequestConfigID: "cfg-scoped"},
	})
	require.NoError(t, err)
	assert.Equal(t, "scoped", got)
	assert.True(t, calledScoped)
	assert.False(t, calledDefault)
}

func TestConcurrentCapabilitiesKeepOwnCredentials(t *testing.T) {
	// Each fake reports the credential installed on it at call time. The
	// per-capability critical section must make that the credential the
	// call resolved, no matter how the other capability interleaves.
	textGen := &fakeTextGen{
		fakeCore: fakeCore{name: "fake-llm", caps: []provider.Capability{provider.CapabilityText}},
	}
	textGen.generate = func(ctx context.Context, req backend.TextRequest) (string, error) {
		time.Sleep(time.Millisecond)
		return textGen.lastConfig().APIKey, nil
	}
	imgGen := &fakeImageGen{
		fakeCore: fakeCore{name: "fake-img", caps: []provider.Capability{provider.CapabilityImage}, refForm: asset.FormURL},
		nup:      true,
	}
	imgGen.generate = func(ctx context.Context, req backend.ImageRequest) (backend.ImageResult, error) {
		time.Sleep(time.Millisecond)
		return backend.ImageResult{URL: "https://cdn.example.com/" + imgGen.lastConfig().APIKey + ".png", MIME: "image/png"}, nil
	}

	store := seedStore(t,
		provider.Config{ID: "cfg-llm-a", Name: "fake-llm", Capability: provider.CapabilityText, APIKey: "k-llm-a", Enabled: true},
		provider.Config{ID: "cfg-llm-b", Name: "fake-llm", Capability: provider.CapabilityText, APIKey: "k-llm-b"},
		provider.Config{ID: "cfg-img-a", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k-img-a", Enabled: true},
		provider.Config{ID: "cfg-img-b", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k-img-b"},
	)
	svc := newTestService(t, store, textGen, imgGen)

	const rounds = 20
	keys := map[string]string{"cfg-llm-a": "k-llm-a", "cfg-llm-b": "k-llm-b", "cfg-img-a": "k-img-a", "cfg-img-b": "k-img-b"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ids := []string{"cfg-llm-a", "cfg-llm-b"}
		for i := 0; i < rounds; i++ {
			id := ids[i%2]
			got, err := svc.GenerateText(context.Background(), TextInput{
				Prompt: "p",
				Scope:  provider.Scope{RequestConfigID: id},
			})
			if assert.NoError(t, err) {
				assert.Equal(t, keys[id], got)
			}
		}
	}()
	go func() {
		defer wg.Done()
		ids := []string{"cfg-img-a", "cfg-img-b"}
		for i := 0; i < rounds; i++ {
			id := ids[i%2]
			a, err := svc.GenerateImage(context.Background(), ImageInput{
				Prompt: "p",
				Scope:  provider.Scope{RequestConfigID: id},
			})
			if assert.NoError(t, err) {
				assert.Equal(t, "https://cdn.example.com/"+keys[id]+".png", a.Location())
			}
		}
	}()
	wg.Wait()

	// Neither adapter was ever handed the other capability's credential.
	textGen.mu.Lock()
	for _, cfg := range textGen.configs {
		assert.Equal(t, provider.CapabilityText, cfg.Capability)
		assert.Contains(t, cfg.APIKey, "k-llm")
	}
	textGen.mu.Unlock()
	imgGen.mu.Lock()
	for _, cfg := range imgGen.configs {
		assert.Equal(t, provider.CapabilityImage, cfg.Capability)
		assert.Contains(t, cfg.APIKey, "k-img")
	}
	imgGen.mu.Unlock()
}

func TestGenerateImage_RetriesOnlyRateLimits(t *testing.T) {
	calls := 0
	gen := &fakeImageGen{
		fakeCore: fakeCore{name: "fake-img", caps: []provider.Capability{provider.CapabilityImage}, refForm: asset.FormURL},
		nup:      true,
		generate: func(context.Context, backend.ImageRequest) (backend.ImageResult, error) {
			calls++
			if calls < 3 {
				return backend.ImageResult{}, genfail.New(genfail.KindRateLimited, "fake-img", "text2image", "429")
			}
			return backend.ImageResult{URL: "https://cdn.example.com/img.png", MIME: "image/png"}, nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-img", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, gen)

	a, err := svc.GenerateImage(context.Background(), ImageInput{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "https://cdn.example.com/img.png", a.Location())
}

func TestGenerateImage_NonRateLimitFailsFast(t *testing.T) {
	calls := 0
	gen := &fakeImageGen{
		fakeCore: fakeCore{name: "fake-img", caps: []provider.Capability{provider.CapabilityImage}},
		nup:      true,
		generate: func(context.Context, backend.ImageRequest) (backend.ImageResult, error) {
			calls++
			return backend.ImageResult{}, genfail.New(genfail.KindBackendRejected, "fake-img", "text2image", "bad prompt")
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-img", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, gen)

	_, err := svc.GenerateImage(context.Background(), ImageInput{Prompt: "a fox"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, genfail.Is(err, genfail.KindBackendRejected))
}

func TestGenerateImage_NupSynthesis(t *testing.T) {
	gen := &fakeImageGen{
		fakeCore: fakeCore{name: "fake-img", caps: []provider.Capability{provider.CapabilityImage}, refForm: asset.FormInline},
		nup:      false,
		generate: func(_ context.Context, req backend.ImageRequest) (backend.ImageResult, error) {
			return backend.ImageResult{Base64: "cGFuZWw=", MIME: "image/png"}, nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-img", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, gen)

	a, err := svc.GenerateImage(context.Background(), ImageInput{
		Prompt:      "three panels of a chase",
		Count:       3,
		AspectRatio: "16:9",
	})
	require.NoError(t, err)
	require.NotNil(t, a)

	// Three panel generations plus one composition call.
	require.Len(t, gen.requests, 4)
	for _, req := range gen.requests[:3] {
		assert.Equal(t, "three panels of a chase", req.Prompt)
		assert.Equal(t, 1, req.Count)
	}
	tile := gen.requests[3]
	assert.Contains(t, tile.Prompt, "Combine the 3 attached images")
	assert.Contains(t, tile.Prompt, "16:9")
	assert.Len(t, tile.Refs, 3)
	for _, ref := range tile.Refs {
		assert.Equal(t, asset.FormInline, ref.Form())
	}
}

func TestGenerateImage_NativeNupSingleCall(t *testing.T) {
	gen := &fakeImageGen{
		fakeCore: fakeCore{name: "fake-img", caps: []provider.Capability{provider.CapabilityImage}},
		nup:      true,
		generate: func(_ context.Context, req backend.ImageRequest) (backend.ImageResult, error) {
			assert.Equal(t, 3, req.Count)
			return backend.ImageResult{URL: "https://cdn.example.com/grid.png"}, nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-img", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, gen)

	_, err := svc.GenerateImage(context.Background(), ImageInput{Prompt: "grid", Count: 3})
	require.NoError(t, err)
	assert.Len(t, gen.requests, 1)
}

func TestGenerateImage_Async(t *testing.T) {
	sub := &fakeImageSub{
		fakeCore: fakeCore{name: "fake-async", caps: []provider.Capability{provider.CapabilityImage}},
		submit: func(context.Context, backend.ImageRequest) (task.Handle, error) {
			return runningHandle("t-1",
				task.Update{Status: task.StatusRunning},
				task.Update{Status: task.StatusSucceeded, Result: task.Result{URL: "https://delivery.example.com/img.png", MIME: "image/png"}},
			), nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-async", Name: "fake-async", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, sub)

	a, err := svc.GenerateImage(context.Background(), ImageInput{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, "https://delivery.example.com/img.png", a.Location())
	assert.Equal(t, provider.Name("fake-async"), a.Provider)
}

func TestGenerateImage_AsyncTimeoutIsNotFailure(t *testing.T) {
	sub := &fakeImageSub{
		fakeCore: fakeCore{name: "fake-async", caps: []provider.Capability{provider.CapabilityImage}},
		submit: func(context.Context, backend.ImageRequest) (task.Handle, error) {
			h := runningHandle("t-2", task.Update{Status: task.StatusRunning})
			h.MaxAttempts = 2
			return h, nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-async", Name: "fake-async", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, sub)

	_, err := svc.GenerateImage(context.Background(), ImageInput{Prompt: "a fox"})
	require.Error(t, err)
	assert.True(t, genfail.Is(err, genfail.KindTaskTimedOut))
	assert.False(t, genfail.Is(err, genfail.KindTaskFailed))
}

func TestGenerateVideo(t *testing.T) {
	sub := &fakeVideoSub{
		fakeCore: fakeCore{name: "fake-video", caps: []provider.Capability{provider.CapabilityVideo}, refForm: asset.FormURL},
		submit: func(context.Context, backend.VideoRequest) (task.Handle, error) {
			h := runningHandle("t-3",
				task.Update{Status: task.StatusRunning},
				task.Update{Status: task.StatusSucceeded, Result: task.Result{URL: "https://delivery.example.com/v.mp4", MIME: "video/mp4"}},
			)
			h.Capability = string(provider.CapabilityVideo)
			return h, nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-video", Name: "fake-video", Capability: provider.CapabilityVideo, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, sub)

	end := asset.Asset{URL: "https://img.example.com/end.png"}
	a, err := svc.GenerateVideo(context.Background(), VideoInput{
		Prompt:   "slow pan",
		Start:    asset.Asset{URL: "https://img.example.com/start.png"},
		End:      &end,
		Duration: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://delivery.example.com/v.mp4", a.Location())

	require.Len(t, sub.requests, 1)
	req := sub.requests[0]
	assert.Equal(t, "https://img.example.com/start.png", req.Start.URL)
	require.NotNil(t, req.End)
	assert.Equal(t, "https://img.example.com/end.png", req.End.URL)
}

func TestGenerateVideo_WrongCapabilityAdapter(t *testing.T) {
	gen := &fakeTextGen{
		fakeCore: fakeCore{name: "fake-llm", caps: []provider.Capability{provider.CapabilityText}},
		generate: func(context.Context, backend.TextRequest) (string, error) { return "", nil },
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-bad", Name: "fake-llm", Capability: provider.CapabilityVideo, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, gen)

	_, err := svc.GenerateVideo(context.Background(), VideoInput{Start: asset.Asset{URL: "https://x/s.png"}})
	require.Error(t, err)
	assert.True(t, genfail.Is(err, genfail.KindNoProviderConfigured))
}

func TestGenerateImageBatch_RecordsPerItemFailures(t *testing.T) {
	calls := 0
	gen := &fakeImageGen{
		fakeCore: fakeCore{name: "fake-img", caps: []provider.Capability{provider.CapabilityImage}},
		nup:      true,
		generate: func(_ context.Context, req backend.ImageRequest) (backend.ImageResult, error) {
			calls++
			if strings.Contains(req.Prompt, "bad") {
				return backend.ImageResult{}, genfail.New(genfail.KindBackendRejected, "fake-img", "text2image", "rejected")
			}
			return backend.ImageResult{URL: "https://cdn.example.com/img.png"}, nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-img", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, gen)

	items := svc.GenerateImageBatch(context.Background(), []ImageInput{
		{Prompt: "panel one"},
		{Prompt: "bad panel"},
		{Prompt: "panel three"},
	})
	require.Len(t, items, 3)
	assert.NoError(t, items[0].Err)
	assert.Error(t, items[1].Err)
	assert.NoError(t, items[2].Err)
	assert.Equal(t, 3, calls)
	assert.NotNil(t, items[2].Artifact)
}

func TestGenerateImageBatch_CancelledContext(t *testing.T) {
	gen := &fakeImageGen{
		fakeCore: fakeCore{name: "fake-img", caps: []provider.Capability{provider.CapabilityImage}},
		nup:      true,
		generate: func(context.Context, backend.ImageRequest) (backend.ImageResult, error) {
			return backend.ImageResult{URL: "u"}, nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-img", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	svc := newTestService(t, store, gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := svc.GenerateImageBatch(ctx, []ImageInput{{Prompt: "a"}, {Prompt: "b"}})
	require.Len(t, items, 2)
	assert.Error(t, items[0].Err)
	assert.Error(t, items[1].Err)
	assert.Empty(t, gen.requests)
}

func TestGenerateImage_PersistedLocationRewritten(t *testing.T) {
	uploads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, artifact.CategoryImage, r.FormValue("category"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]string{"url": "https://bucket.internal/assets/img.png?sig=abc"},
		})
	}))
	defer uploads.Close()

	fs, err := artifact.NewFormStore(uploads.URL, artifact.WithFormHTTPClient(uploads.Client()))
	require.NoError(t, err)
	pipeline := artifact.NewPipeline(fs, "media.example.com", testLogger())

	gen := &fakeImageGen{
		fakeCore: fakeCore{name: "fake-img", caps: []provider.Capability{provider.CapabilityImage}},
		nup:      true,
		generate: func(context.Context, backend.ImageRequest) (backend.ImageResult, error) {
			return backend.ImageResult{URL: "https://origin.example.com/img.png"}, nil
		},
	}
	store := seedStore(t, provider.Config{
		ID: "cfg-img", Name: "fake-img", Capability: provider.CapabilityImage, APIKey: "k", Enabled: true,
	})
	registry := backend.NewRegistry()
	registry.Register(gen)
	svc := NewService(store, registry, testLogger(), WithPipeline(pipeline))

	a, err := svc.GenerateImage(context.Background(), ImageInput{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/assets/img.png", a.Location())
	assert.Equal(t, "https://origin.example.com/img.png", a.URL)
}
