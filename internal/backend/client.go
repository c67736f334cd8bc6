package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
)

// base carries the state and HTTP plumbing shared by every adapter: the
// per-capability runtime configuration installed by the resolver and a JSON
// request helper that classifies failures into the common taxonomy.
type base struct {
	name       provider.Name
	mu         sync.RWMutex
	configs    map[provider.Capability]provider.Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures an adapter.
type Option func(*base)

// WithHTTPClient sets a custom HTTP client, used by tests to point adapters
// at fake backends.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) {
		b.httpClient = c
	}
}

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		b.logger = l
	}
}

func newBase(name provider.Name, opts ...Option) base {
	b := base{
		name:       name,
		configs:    make(map[provider.Capability]provider.Config),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Name returns the backend name.
func (b *base) Name() provider.Name { return b.name }

// Configure installs the resolved configuration for its capability. Configs
// are keyed by capability so a text resolution never clobbers the image
// credentials mid-call.
func (b *base) Configure(cfg provider.Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs[cfg.Capability] = cfg
}

// runtime snapshots the configuration for one capability. Callers close the
// snapshot over any asynchronous work so later reconfiguration cannot reach
// an in-flight task.
func (b *base) runtime(capability provider.Capability, defaultBaseURL string) provider.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cfg := b.configs[capability]
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return cfg
}

// doJSON performs one JSON round trip against a backend. Non-2xx responses
// are classified by status code and body; 2xx responses are decoded into out.
func (b *base) doJSON(ctx context.Context, capability provider.Capability, method, url string, headers map[string]string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", b.name, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", b.name, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request: %w", b.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", b.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return genfail.FromHTTP(string(b.name), string(capability), resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", b.name, err)
		}
	}
	return nil
}

// bearer builds a standard Authorization header.
func bearer(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

// parseSize splits a "WxH" size string, falling back to 1024x1024.
func parseSize(size string) (width, height int) {
	width, height = 1024, 1024
	w, h, found := strings.Cut(size, "x")
	if !found {
		return width, height
	}
	if n, err := strconv.Atoi(w); err == nil && n > 0 {
		width = n
	}
	if n, err := strconv.Atoi(h); err == nil && n > 0 {
		height = n
	}
	return width, height
}
