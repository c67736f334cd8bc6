package backend

import (
	"sort"
	"sync"

	"github.com/storyforge/mediagen/internal/provider"
)

// Registry is a thread-safe map from provider name to adapter instance. The
// orchestrator dispatches through it instead of a conditional chain.
type Registry struct {
	mu       sync.RWMutex
	adapters map[provider.Name]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[provider.Name]Adapter)}
}

// Register adds an adapter, replacing any previous adapter of the same name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get retrieves an adapter by provider name.
func (r *Registry) Get(name provider.Name) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the sorted names of all registered adapters.
func (r *Registry) Names() []provider.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]provider.Name, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// NewDefaultRegistry registers every supported backend.
func NewDefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry()
	r.Register(NewOpenAI(opts...))
	r.Register(NewDeepSeek(opts...))
	r.Register(NewGemini(opts...))
	r.Register(NewFlux(opts...))
	r.Register(NewDoubao(opts...))
	r.Register(NewKling(opts...))
	r.Register(NewVidu(opts...))
	r.Register(NewRunway(opts...))
	r.Register(NewMiniMax(opts...))
	return r
}
