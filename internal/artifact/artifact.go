// Package artifact holds the final media object a generation call produces
// and the best-effort persistence pipeline that relocates it to configured
// storage. Persistence never fails a generation request: every failure path
// degrades to returning the artifact's original location.
package artifact

import (
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/mediagen/internal/provider"
)

// Artifact is one produced media object before or after persistence.
type Artifact struct {
	ID         string
	Capability provider.Capability
	Provider   provider.Name
	// URL is the origin location as the backend returned it.
	URL string
	// Base64 is the inline payload for backends that return data directly.
	Base64 string
	MIME   string
	// PublicURL is the rewritten location after persistence, empty when the
	// artifact was not (or could not be) persisted.
	PublicURL string
	CreatedAt time.Time
}

// New creates an artifact for a generation result.
func New(name provider.Name, capability provider.Capability) *Artifact {
	return &Artifact{
		ID:         uuid.New().String(),
		Provider:   name,
		Capability: capability,
		CreatedAt:  time.Now(),
	}
}

// Location returns the artifact's best available reference: the persisted
// public URL when present, otherwise the origin URL.
func (a *Artifact) Location() string {
	if a.PublicURL != "" {
		return a.PublicURL
	}
	return a.URL
}

// extensions maps MIME types to the filename extension inferred for inline
// uploads.
var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// ExtensionFor infers a filename extension from a MIME type, defaulting to
// .png for images of unknown subtype and .bin otherwise.
func ExtensionFor(mime string) string {
	if ext, ok := extensions[mime]; ok {
		return ext
	}
	if len(mime) >= 6 && mime[:6] == "image/" {
		return ".png"
	}
	return ".bin"
}
