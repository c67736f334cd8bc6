package artifact

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
)

// Static errors for pipeline operations.
var (
	// ErrNoStore is returned by Publish when persistence is not configured.
	ErrNoStore = errors.New("artifact: no store configured")
	// ErrNoHost is returned when a stored URL carries no network authority.
	ErrNoHost = errors.New("artifact: stored url has no host")
)

// Upload is one persistence request handed to a Store.
type Upload struct {
	// Category tags the artifact kind (e.g. "image", "video", "reference").
	Category string
	// SourceURL asks the store to fetch and keep a remote object.
	SourceURL string
	// Data is an inline base64 payload, used when SourceURL is empty.
	Data string
	// Filename carries the inferred name for inline payloads.
	Filename string
}

// Store uploads one artifact payload and returns the stored object's URL.
type Store interface {
	Upload(ctx context.Context, up Upload) (storedURL string, err error)
}

// Pipeline relocates finished artifacts to a storage endpoint and rewrites
// their public URL. With no store configured it is a no-op that returns the
// original location.
type Pipeline struct {
	store        Store
	accessDomain string
	logger       *slog.Logger
}

// NewPipeline creates a Pipeline. A nil store disables persistence entirely.
// accessDomain, when set, replaces the network authority of stored URLs so
// artifacts are served from a stable domain.
func NewPipeline(store Store, accessDomain string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, accessDomain: accessDomain, logger: logger}
}

// Persist uploads the artifact and records its rewritten public URL. It
// always returns a usable location: on any failure (no store, upload error,
// malformed response URL) the original location comes back unchanged and the
// failure is only logged.
func (p *Pipeline) Persist(ctx context.Context, a *Artifact, category string) string {
	if a == nil {
		return ""
	}
	if p.store == nil {
		return a.URL
	}

	up := Upload{Category: category}
	switch {
	case a.URL != "":
		up.SourceURL = a.URL
	case a.Base64 != "":
		up.Data = a.Base64
		up.Filename = uuid.New().String() + ExtensionFor(a.MIME)
	default:
		return ""
	}

	storedURL, err := p.store.Upload(ctx, up)
	if err != nil {
		p.logger.Warn("artifact persistence failed, keeping original location",
			slog.String("artifact_id", a.ID),
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return a.URL
	}

	public, err := p.rewrite(storedURL)
	if err != nil {
		p.logger.Warn("stored url unusable, keeping original location",
			slog.String("artifact_id", a.ID),
			slog.String("stored_url", storedURL),
			slog.String("error", err.Error()),
		)
		return a.URL
	}

	a.PublicURL = public
	return public
}

// rewrite keeps the stored URL's path, swaps its authority for the access
// domain, and strips any query string so the reference stays stable and
// shareable rather than a time-limited signed URL.
func (p *Pipeline) rewrite(storedURL string) (string, error) {
	u, err := url.Parse(storedURL)
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.Fragment = ""
	if p.accessDomain != "" {
		u.Host = p.accessDomain
		if u.Scheme == "" {
			u.Scheme = "https"
		}
	}
	if u.Host == "" {
		return "", ErrNoHost
	}
	return u.String(), nil
}

// Publish satisfies asset.Publisher: it stores inline reference data and
// returns its public URL, letting the normalizer convert inline assets to
// URL form through the same storage endpoint artifacts use.
func (p *Pipeline) Publish(ctx context.Context, data, mime string) (string, error) {
	if p.store == nil {
		return "", ErrNoStore
	}
	storedURL, err := p.store.Upload(ctx, Upload{
		Category: "reference",
		Data:     data,
		Filename: uuid.New().String() + ExtensionFor(mime),
	})
	if err != nil {
		return "", err
	}
	return p.rewrite(storedURL)
}

// Strings below keep the pipeline's category names consistent across callers.
const (
	CategoryImage     = "image"
	CategoryVideo     = "video"
	CategoryReference = "reference"
)
