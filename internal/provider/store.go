package provider

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
)

// Store is the read surface the orchestration core uses to reach provider
// configurations, plus the one mutation the configuration component needs:
// an atomic enable that keeps enablement exclusive per capability.
type Store interface {
	// Get retrieves a configuration by id.
	Get(id string) (Config, bool)

	// Enabled returns the single enabled configuration for a capability.
	Enabled(capability Capability) (Config, bool)

	// List returns all configurations, sorted by id.
	List() []Config

	// Put inserts or replaces a configuration.
	Put(cfg Config) error

	// SetEnabled enables the configuration with the given id and disables
	// every sibling of the same capability in the same atomic step.
	SetEnabled(id string) error
}

// MemoryStore is an in-memory Store implementation guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]Config)}
}

// Get retrieves a configuration by id.
func (s *MemoryStore) Get(id string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	return cfg, ok
}

// Enabled returns the single enabled configuration for a capability.
func (s *MemoryStore) Enabled(capability Capability) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cfg := range s.configs {
		if cfg.Capability == capability && cfg.Enabled {
			return cfg, true
		}
	}
	return Config{}, false
}

// List returns all configurations sorted by id.
func (s *MemoryStore) List() []Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Config, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put inserts or replaces a configuration. Inserting a configuration with
// Enabled set runs the same sibling-clearing step as SetEnabled so the
// exclusivity invariant holds after every write path.
func (s *MemoryStore) Put(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Enabled {
		s.disableSiblingsLocked(cfg.Capability, cfg.ID)
	}
	s.configs[cfg.ID] = cfg
	return nil
}

// SetEnabled enables one configuration and disables all siblings sharing its
// capability, atomically.
func (s *MemoryStore) SetEnabled(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return ErrConfigNotFound
	}
	s.disableSiblingsLocked(cfg.Capability, id)
	cfg.Enabled = true
	s.configs[id] = cfg
	return nil
}

func (s *MemoryStore) disableSiblingsLocked(capability Capability, keepID string) {
	for otherID, other := range s.configs {
		if otherID != keepID && other.Capability == capability && other.Enabled {
			other.Enabled = false
			s.configs[otherID] = other
		}
	}
}

// seedFile is the on-disk shape of a provider seed list.
type seedFile struct {
	Providers []seedEntry `json:"providers"`
}

type seedEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Capability string `json:"capability"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url"`
	Enabled    bool   `json:"enabled"`
}

// LoadFile reads provider configurations from a JSON seed file and inserts
// them into the store. Used at startup so the server boots with a usable
// configuration set.
func LoadFile(path string, store Store) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return err
	}
	for _, e := range seed.Providers {
		cfg := Config{
			ID:         e.ID,
			Name:       Name(e.Name),
			Capability: Capability(e.Capability),
			Model:      e.Model,
			APIKey:     e.APIKey,
			BaseURL:    e.BaseURL,
			Enabled:    e.Enabled,
		}
		if err := store.Put(cfg); err != nil {
			return err
		}
	}
	return nil
}
