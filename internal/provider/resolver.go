package provider

import (
	"fmt"

	"github.com/storyforge/mediagen/internal/genfail"
)

// Scope carries the optional override levels consulted when resolving which
// configuration serves a call: request-level is most specific, then
// project-level, then the globally enabled configuration for the capability.
type Scope struct {
	// RequestConfigID names a configuration for this one call.
	RequestConfigID string
	// ProjectConfigID names a configuration for the surrounding project.
	ProjectConfigID string
}

// Resolver picks exactly one provider configuration for a capability.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve applies the override precedence: request scope, then project
// scope, then the single enabled configuration for the capability. Scoped
// picks are honored only when the named configuration exists, serves the
// requested capability, and carries a credential. When nothing matches, a
// typed no-provider error is returned; callers decide their own fallback.
func (r *Resolver) Resolve(capability Capability, scope Scope) (Config, error) {
	if cfg, ok := r.scopedConfig(capability, scope.RequestConfigID); ok {
		return cfg, nil
	}
	if cfg, ok := r.scopedConfig(capability, scope.ProjectConfigID); ok {
		return cfg, nil
	}
	if cfg, ok := r.store.Enabled(capability); ok {
		return cfg, nil
	}
	return Config{}, genfail.New(
		genfail.KindNoProviderConfigured,
		"", string(capability),
		fmt.Sprintf("no enabled configuration for capability %q", capability),
	)
}

func (r *Resolver) scopedConfig(capability Capability, id string) (Config, bool) {
	if id == "" {
		return Config{}, false
	}
	cfg, ok := r.store.Get(id)
	if !ok || cfg.Capability != capability || !cfg.HasCredential() {
		return Config{}, false
	}
	return cfg, true
}
