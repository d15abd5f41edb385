package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	kv := newMemKV()

	src := NewStore(provider.TagOpenAI, "gpt-4o-mini")
	a := src.Create("gpt-4o", provider.TagOpenAI, "be terse")
	src.Append(a.ID, messages.User("hello"))
	src.Append(a.ID, assistantMessage("hi there"))
	b := src.Create("gemini-2.5-flash", provider.TagGoogle, "")
	require.NoError(t, src.SetTitle(b.ID, "Gemini chat"))
	require.NoError(t, src.Select(a.ID))

	require.NoError(t, src.Save(kv))

	dst := NewStore(provider.TagOpenAI, "gpt-4o-mini")
	loaded, err := dst.Load(kv)
	require.NoError(t, err)
	require.True(t, loaded)

	assert.Equal(t, 2, dst.Len())
	active, ok := dst.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)

	got, ok := dst.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "be terse", got.SystemPrompt)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, messages.RoleAssistant, got.Messages[1].Role)

	// Timestamps survive the textual round trip in order.
	assert.False(t, time.Time(got.Messages[1].CreatedAt).Before(time.Time(got.Messages[0].CreatedAt)))

	other, _ := dst.Get(b.ID)
	assert.Equal(t, "Gemini chat", other.Title)
}

func TestLoadMissingKey(t *testing.T) {
	st := NewStore(provider.TagOpenAI, "gpt-4o-mini")
	loaded, err := st.Load(newMemKV())
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Zero(t, st.Len())
}

func TestLoadLegacyRecordAppliesDefaults(t *testing.T) {
	kv := newMemKV()
	// An old record: no title, no timestamps, a message saved mid-stream,
	// and no active pointer.
	legacy := `{"sessions":[{"id":"018f8b4e-7b3a-7d11-a000-000000000001","messages":[{"id":"018f8b4e-7b3a-7d11-a000-000000000002","role":"assistant","content":"partial","streaming":true}]}]}`
	require.NoError(t, kv.Set(collectionKey, legacy))

	st := NewStore(provider.TagOpenAI, "gpt-4o-mini")
	loaded, err := st.Load(kv)
	require.NoError(t, err)
	require.True(t, loaded)

	active, ok := st.Active()
	require.True(t, ok)
	assert.Equal(t, DefaultTitle, active.Title)
	assert.False(t, time.Time(active.CreatedAt).IsZero())
	require.Len(t, active.Messages, 1)
	assert.Equal(t, "partial", active.Messages[0].Content)
	// Never resurrect as still streaming.
	assert.False(t, active.Messages[0].Streaming)
}

func TestLoadBareArrayRecord(t *testing.T) {
	kv := newMemKV()
	legacy := `[{"id":"018f8b4e-7b3a-7d11-a000-000000000001","title":"old days"}]`
	require.NoError(t, kv.Set(collectionKey, legacy))

	st := NewStore(provider.TagOpenAI, "gpt-4o-mini")
	loaded, err := st.Load(kv)
	require.NoError(t, err)
	require.True(t, loaded)

	active, ok := st.Active()
	require.True(t, ok)
	assert.Equal(t, "old days", active.Title)
}

func TestLoadStaleActivePointerFallsBack(t *testing.T) {
	kv := newMemKV()
	record := fmt.Sprintf(
		`{"sessions":[{"id":"018f8b4e-7b3a-7d11-a000-000000000001","title":"kept"}],"active_id":%q}`,
		"018f8b4e-7b3a-7d11-a000-00000000dead")
	require.NoError(t, kv.Set(collectionKey, record))

	st := NewStore(provider.TagOpenAI, "gpt-4o-mini")
	loaded, err := st.Load(kv)
	require.NoError(t, err)
	require.True(t, loaded)

	active, ok := st.Active()
	require.True(t, ok)
	assert.Equal(t, "kept", active.Title)
}

func TestLoadRejectsGarbage(t *testing.T) {
	kv := newMemKV()
	require.NoError(t, kv.Set(collectionKey, "not json at all {"))

	st := NewStore(provider.TagOpenAI, "gpt-4o-mini")
	_, err := st.Load(kv)
	assert.Error(t, err)
}
