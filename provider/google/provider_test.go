package google

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casualjim/parley/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() provider.Credentials {
	return provider.CredentialFunc(func(tag string) (string, bool) {
		if tag == provider.TagGoogle {
			return "test-key", true
		}
		return "", false
	})
}

func noCreds() provider.Credentials {
	return provider.CredentialFunc(func(string) (string, bool) { return "", false })
}

func collect(t *testing.T, events <-chan provider.StreamEvent) []provider.StreamEvent {
	t.Helper()
	var out []provider.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func sseBody(snapshots ...string) string {
	var body string
	for _, s := range snapshots {
		body += "data: " + s + "\n\n"
	}
	return body
}

func TestChatCompletionStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, "streamGenerateContent")

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"He"}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello"}]},"finishReason":"STOP"}]}`,
		))
	}))
	defer server.Close()

	p := New(testCreds(), WithBaseURL(server.URL))
	events, err := p.ChatCompletion(context.Background(), provider.CompletionParams{
		Model:  "gemini-2.0-flash",
		Stream: true,
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 5)

	assert.Equal(t, "start", got[0].(provider.Delim).Delim)
	assert.Equal(t, "He", got[1].(provider.Chunk).Text)
	assert.Equal(t, provider.ChannelMain, got[1].(provider.Chunk).Channel)
	assert.Equal(t, "llo", got[2].(provider.Chunk).Text)
	assert.Equal(t, "end", got[3].(provider.Delim).Delim)

	resp := got[4].(provider.Response)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestChatCompletionStreamThinking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"hmm","thought":true}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"hmm","thought":true},{"text":"42"}]},"finishReason":"STOP"}]}`,
		))
	}))
	defer server.Close()

	p := New(testCreds(), WithBaseURL(server.URL))
	events, err := p.ChatCompletion(context.Background(), provider.CompletionParams{
		Model:  "gemini-2.5-pro",
		Stream: true,
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 5)

	assert.Equal(t, provider.ChannelAuxiliary, got[1].(provider.Chunk).Channel)
	assert.Equal(t, "hmm", got[1].(provider.Chunk).Text)
	assert.Equal(t, provider.ChannelMain, got[2].(provider.Chunk).Channel)
	assert.Equal(t, "42", got[2].(provider.Chunk).Text)

	resp := got[4].(provider.Response)
	assert.Equal(t, "42", resp.Content)
	assert.Equal(t, "hmm", resp.Auxiliary)
}

func TestChatCompletionStreamMidStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"He"}]}}]}`,
			`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`,
		))
	}))
	defer server.Close()

	p := New(testCreds(), WithBaseURL(server.URL))
	events, err := p.ChatCompletion(context.Background(), provider.CompletionParams{
		Model:  "gemini-2.0-flash",
		Stream: true,
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)

	// The chunk received before the failure was delivered.
	assert.Equal(t, "He", got[1].(provider.Chunk).Text)

	errEvent, ok := got[2].(provider.Error)
	require.True(t, ok)
	assert.True(t, provider.IsKind(errEvent.Err, provider.FaultRefusal))
}

func TestChatCompletionNonStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello"}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	p := New(testCreds(), WithBaseURL(server.URL))
	events, err := p.ChatCompletion(context.Background(), provider.CompletionParams{
		Model: "gemini-2.0-flash",
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, "Hello", got[0].(provider.Response).Content)
}

func TestChatCompletionConfigurationFaults(t *testing.T) {
	t.Run("unknown model", func(t *testing.T) {
		p := New(testCreds())
		_, err := p.ChatCompletion(context.Background(), provider.CompletionParams{Model: "gpt-4o"})
		require.Error(t, err)
		assert.True(t, provider.IsKind(err, provider.FaultConfiguration))
	})

	t.Run("missing credential", func(t *testing.T) {
		p := New(noCreds())
		_, err := p.ChatCompletion(context.Background(), provider.CompletionParams{Model: "gemini-2.0-flash"})
		require.Error(t, err)
		assert.True(t, provider.IsKind(err, provider.FaultConfiguration))
	})
}

func TestChatCompletionAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	}))
	defer server.Close()

	p := New(testCreds(), WithBaseURL(server.URL))
	events, err := p.ChatCompletion(context.Background(), provider.CompletionParams{
		Model:  "gemini-2.0-flash",
		Stream: true,
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	errEvent := got[0].(provider.Error)
	assert.True(t, provider.IsKind(errEvent.Err, provider.FaultConfiguration))
}

func TestProbe(t *testing.T) {
	t.Run("available", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"p"}]},"finishReason":"MAX_TOKENS"}]}`)
		}))
		defer server.Close()

		p := New(testCreds(), WithBaseURL(server.URL))
		avail, err := p.Probe(context.Background(), "gemini-2.0-flash")
		require.NoError(t, err)
		assert.True(t, avail.Available)
		assert.True(t, avail.SupportsStreaming)
	})

	t.Run("missing credential is not an error", func(t *testing.T) {
		p := New(noCreds())
		avail, err := p.Probe(context.Background(), "gemini-2.0-flash")
		require.NoError(t, err)
		assert.False(t, avail.Available)
	})

	t.Run("invalid key is not an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":401,"message":"invalid key","status":"UNAUTHENTICATED"}}`)
		}))
		defer server.Close()

		p := New(testCreds(), WithBaseURL(server.URL))
		avail, err := p.Probe(context.Background(), "gemini-2.0-flash")
		require.NoError(t, err)
		assert.False(t, avail.Available)
	})

	t.Run("unknown model is not an error", func(t *testing.T) {
		p := New(testCreds())
		avail, err := p.Probe(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, avail.Available)
	})
}
