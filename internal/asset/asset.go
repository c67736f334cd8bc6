// Package asset normalizes heterogeneous reference-image inputs. Callers
// hand the core either a remote URL or inline base64 data; each backend
// wants one specific form. Conversion is best effort: a failed fetch passes
// the original asset through rather than aborting the generation request.
package asset

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Form is the representation a reference asset is supplied in.
type Form string

const (
	// FormURL is a remote reference fetched by the backend.
	FormURL Form = "url"
	// FormInline is base64 payload embedded in the request.
	FormInline Form = "inline"
)

// ErrEmptyAsset is returned when an asset carries neither URL nor data.
var ErrEmptyAsset = errors.New("asset: neither url nor inline data present")

// Asset is one reference image in either form.
type Asset struct {
	URL  string
	Data string // base64, no data-URI prefix
	MIME string
}

// Form returns the representation the asset currently carries. Inline data
// wins when both are present.
func (a Asset) Form() Form {
	if a.Data != "" {
		return FormInline
	}
	return FormURL
}

// Empty reports whether the asset carries no reference at all.
func (a Asset) Empty() bool {
	return a.URL == "" && a.Data == ""
}

// DataURI renders the inline payload as a data URI.
func (a Asset) DataURI() string {
	if a.Data == "" {
		return ""
	}
	mime := a.MIME
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, a.Data)
}

// FromDataURI parses a data URI into an inline asset. Non-data-URI input is
// treated as raw base64 with an unknown MIME type.
func FromDataURI(s string) Asset {
	if !strings.HasPrefix(s, "data:") {
		return Asset{Data: s}
	}
	rest := strings.TrimPrefix(s, "data:")
	mime, payload, found := strings.Cut(rest, ";base64,")
	if !found {
		return Asset{Data: s}
	}
	return Asset{Data: payload, MIME: mime}
}

// Publisher stores inline data somewhere reachable by URL. The persistence
// pipeline satisfies this; it is optional.
type Publisher interface {
	Publish(ctx context.Context, data, mime string) (url string, err error)
}

// Normalizer converts assets between forms.
type Normalizer struct {
	httpClient *http.Client
	publisher  Publisher
	logger     *slog.Logger
	maxFetch   int64
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithHTTPClient sets a custom HTTP client for remote fetches.
func WithHTTPClient(c *http.Client) NormalizerOption {
	return func(n *Normalizer) {
		n.httpClient = c
	}
}

// WithPublisher enables inline→URL conversion through the given publisher.
func WithPublisher(p Publisher) NormalizerOption {
	return func(n *Normalizer) {
		n.publisher = p
	}
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *slog.Logger, opts ...NormalizerOption) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		maxFetch:   32 << 20, // 32 MiB cap on fetched references
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts an asset to the target form. Assets already in the
// target form pass through unchanged. Conversion failures degrade to the
// original asset with a log line; adapters must tolerate receiving an asset
// in the other form.
func (n *Normalizer) Normalize(ctx context.Context, a Asset, target Form) Asset {
	if a.Empty() || a.Form() == target {
		return a
	}

	switch target {
	case FormInline:
		inline, err := n.fetchInline(ctx, a.URL)
		if err != nil {
			n.logger.Warn("reference fetch failed, passing original through",
				slog.String("url", a.URL),
				slog.String("error", err.Error()),
			)
			return a
		}
		return inline

	case FormURL:
		if n.publisher == nil {
			return a
		}
		url, err := n.publisher.Publish(ctx, a.Data, a.MIME)
		if err != nil {
			n.logger.Warn("reference publish failed, passing original through",
				slog.String("error", err.Error()),
			)
			return a
		}
		return Asset{URL: url, MIME: a.MIME}
	}
	return a
}

func (n *Normalizer) fetchInline(ctx context.Context, url string) (Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Asset{}, fmt.Errorf("asset: build request: %w", err)
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("asset: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Asset{}, fmt.Errorf("asset: fetch returned http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, n.maxFetch))
	if err != nil {
		return Asset{}, fmt.Errorf("asset: read body: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}

	return Asset{Data: base64.StdEncoding.EncodeToString(raw), MIME: mime}, nil
}
