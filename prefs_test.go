package parley

import (
	"sync"
	"testing"
	"time"

	"github.com/casualjim/parley/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (kv *fakeKV) Get(key string) (string, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.data[key]
	return v, ok
}

func (kv *fakeKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = value
	return nil
}

func TestPreferencesRoundTrip(t *testing.T) {
	kv := newFakeKV()

	p := Preferences{
		Provider:        provider.TagGoogle,
		Model:           "gemini-2.5-flash",
		StreamMode:      StreamFrameSync,
		StreamInterval:  80 * time.Millisecond,
		Temperature:     0.3,
		MaxOutputTokens: 2048,
	}
	require.NoError(t, p.Save(kv))

	got := LoadPreferences(kv)
	assert.Equal(t, p, got)
}

func TestLoadPreferencesDefaultsWhenEmpty(t *testing.T) {
	got := LoadPreferences(newFakeKV())
	assert.Equal(t, DefaultPreferences(), got)
}

func TestLoadPreferencesToleratesLegacyRecords(t *testing.T) {
	kv := newFakeKV()
	// An old record knowing only about provider and temperature.
	require.NoError(t, kv.Set(preferencesKey, `{"provider":"deepseek","temperature":0.7}`))

	got := LoadPreferences(kv)
	def := DefaultPreferences()
	assert.Equal(t, provider.TagDeepSeek, got.Provider)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, def.Model, got.Model)
	assert.Equal(t, def.StreamMode, got.StreamMode)
	assert.Equal(t, def.StreamInterval, got.StreamInterval)
}

func TestLoadPreferencesIgnoresBogusStreamMode(t *testing.T) {
	kv := newFakeKV()
	require.NoError(t, kv.Set(preferencesKey, `{"stream_mode":"warp-speed"}`))

	got := LoadPreferences(kv)
	assert.Equal(t, DefaultPreferences().StreamMode, got.StreamMode)
}

func TestRunStateStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "canceled", StateCanceled.String())
	assert.False(t, StateStreaming.Terminal())
	assert.True(t, StateFailed.Terminal())
}
