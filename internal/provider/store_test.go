package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(id string, capability Capability, enabled bool) Config {
	return Config{
		ID:         id,
		Name:       NameOpenAI,
		Capability: capability,
		Model:      "test-model",
		APIKey:     "sk-test",
		Enabled:    enabled,
	}
}

func TestMemoryStore_SetEnabled_Exclusive(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(testConfig("a", CapabilityImage, true)))
	require.NoError(t, store.Put(testConfig("b", CapabilityImage, false)))
	require.NoError(t, store.Put(testConfig("c", CapabilityImage, false)))
	require.NoError(t, store.Put(testConfig("v", CapabilityVideo, true)))

	// Toggle through every sibling; exactly one must be enabled after each.
	for _, id := range []string{"b", "c", "a", "b"} {
		require.NoError(t, store.SetEnabled(id))

		enabledCount := 0
		for _, cfg := range store.List() {
			if cfg.Capability == CapabilityImage && cfg.Enabled {
				enabledCount++
				assert.Equal(t, id, cfg.ID)
			}
		}
		assert.Equal(t, 1, enabledCount)
	}

	// Other capabilities are untouched by image toggles.
	videoCfg, ok := store.Enabled(CapabilityVideo)
	require.True(t, ok)
	assert.Equal(t, "v", videoCfg.ID)
}

func TestMemoryStore_Put_EnabledClearsSiblings(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(testConfig("a", CapabilityText, true)))
	require.NoError(t, store.Put(testConfig("b", CapabilityText, true)))

	cfg, ok := store.Enabled(CapabilityText)
	require.True(t, ok)
	assert.Equal(t, "b", cfg.ID)

	a, _ := store.Get("a")
	assert.False(t, a.Enabled)
}

func TestMemoryStore_SetEnabled_UnknownID(t *testing.T) {
	store := NewMemoryStore()
	assert.ErrorIs(t, store.SetEnabled("missing"), ErrConfigNotFound)
}

func TestMemoryStore_Put_Invalid(t *testing.T) {
	store := NewMemoryStore()
	assert.ErrorIs(t, store.Put(Config{ID: "x"}), ErrConfigInvalid)
	assert.ErrorIs(t, store.Put(Config{Name: NameVidu, Capability: "bogus", ID: "y"}), ErrConfigInvalid)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	payload := `{
		"providers": [
			{"id": "p1", "name": "openai", "capability": "text2image", "model": "gpt-image-1", "api_key": "sk-1", "enabled": true},
			{"id": "p2", "name": "kling", "capability": "image2video", "model": "kling-v1-6", "api_key": "ak:sk", "base_url": "https://api.klingai.com", "enabled": true}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	store := NewMemoryStore()
	require.NoError(t, LoadFile(path, store))

	img, ok := store.Enabled(CapabilityImage)
	require.True(t, ok)
	assert.Equal(t, "p1", img.ID)
	assert.Equal(t, NameOpenAI, img.Name)

	vid, ok := store.Enabled(CapabilityVideo)
	require.True(t, ok)
	assert.Equal(t, "https://api.klingai.com", vid.BaseURL)
}
