package openaicompat

import (
	"context"
	"errors"
	"testing"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	json "github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func staticCreds(pairs map[string]string) provider.Credentials {
	return provider.CredentialFunc(func(tag string) (string, bool) {
		v, ok := pairs[tag]
		return v, ok
	})
}

func marshalAll(t *testing.T, parts []openai.ChatCompletionMessageParamUnion) []string {
	t.Helper()
	out := make([]string, len(parts))
	for i, p := range parts {
		data, err := json.Marshal(p)
		require.NoError(t, err)
		out[i] = string(data)
	}
	return out
}

func TestHistoryToOpenAI(t *testing.T) {
	history := []messages.Message{
		messages.User("hi"),
		func() messages.Message {
			m := messages.Placeholder()
			m.Content = "hello!"
			m.Streaming = false
			return m
		}(),
		messages.User("how are you"),
	}

	t.Run("system role supported", func(t *testing.T) {
		result := historyToOpenAI("Be terse", true, history)
		require.Len(t, result, 4)

		raw := marshalAll(t, result)
		assert.Equal(t, "system", gjson.Get(raw[0], "role").String())
		assert.Contains(t, raw[0], "Be terse")
		assert.Equal(t, "user", gjson.Get(raw[1], "role").String())
		assert.NotContains(t, raw[1], "Be terse")
	})

	t.Run("system prompt folded into first user turn", func(t *testing.T) {
		result := historyToOpenAI("Be terse", false, history)
		require.Len(t, result, 3)

		raw := marshalAll(t, result)
		assert.Equal(t, "user", gjson.Get(raw[0], "role").String())
		assert.Contains(t, raw[0], "Be terse")
		assert.Contains(t, raw[0], "hi")
		// folded exactly once
		assert.NotContains(t, raw[2], "Be terse")
	})

	t.Run("no instructions", func(t *testing.T) {
		result := historyToOpenAI("", false, history)
		assert.Len(t, result, 3)
	})

	t.Run("system-prompt-only call without system role", func(t *testing.T) {
		result := historyToOpenAI("Be terse", false, nil)
		require.Len(t, result, 1)
		raw := marshalAll(t, result)
		assert.Equal(t, "user", gjson.Get(raw[0], "role").String())
		assert.Contains(t, raw[0], "Be terse")
	})

	t.Run("empty assistant turns are skipped", func(t *testing.T) {
		withPlaceholder := append(history, messages.Placeholder())
		result := historyToOpenAI("", true, withPlaceholder)
		assert.Len(t, result, 3)
	})
}

func TestBuildRequest(t *testing.T) {
	p := DeepSeek(staticCreds(map[string]string{provider.TagDeepSeek: "sk-test"}))

	t.Run("unknown model is a configuration fault", func(t *testing.T) {
		_, err := p.buildRequest(&provider.CompletionParams{Model: "gpt-4o"})
		require.Error(t, err)
		assert.True(t, provider.IsKind(err, provider.FaultConfiguration))
	})

	t.Run("known model builds params", func(t *testing.T) {
		params, err := p.buildRequest(&provider.CompletionParams{
			Model:   "deepseek-chat",
			History: []messages.Message{messages.User("hi")},
			Params:  provider.GenerationParams{Temperature: 0.7, MaxOutputTokens: 256},
		})
		require.NoError(t, err)
		assert.Equal(t, "deepseek-chat", params.Model.Value)
		assert.InDelta(t, 0.7, params.Temperature.Value, 1e-9)
		assert.EqualValues(t, 256, params.MaxTokens.Value)
	})

	t.Run("reasoner folds system prompt", func(t *testing.T) {
		params, err := p.buildRequest(&provider.CompletionParams{
			Model:        "deepseek-reasoner",
			Instructions: "Be terse",
			History:      []messages.Message{messages.User("hi")},
		})
		require.NoError(t, err)
		require.Len(t, params.Messages.Value, 1)
		data, err := json.Marshal(params.Messages.Value[0])
		require.NoError(t, err)
		assert.Equal(t, "user", gjson.GetBytes(data, "role").String())
		assert.Contains(t, string(data), "Be terse")
	})
}

func TestChatCompletionMissingCredential(t *testing.T) {
	p := OpenAI(staticCreds(nil))
	_, err := p.ChatCompletion(context.Background(), provider.CompletionParams{
		Model:   "gpt-4o-mini",
		History: []messages.Message{messages.User("hi")},
	})
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.FaultConfiguration))
}

func TestProbeNotConfigured(t *testing.T) {
	p := XAI(staticCreds(nil))

	t.Run("missing credential reports unavailable without error", func(t *testing.T) {
		avail, err := p.Probe(context.Background(), "grok-2")
		require.NoError(t, err)
		assert.False(t, avail.Available)
	})

	t.Run("unknown model reports unavailable without error", func(t *testing.T) {
		avail, err := p.Probe(context.Background(), "gpt-4o")
		require.NoError(t, err)
		assert.False(t, avail.Available)
	})
}

func TestClassify(t *testing.T) {
	p := OpenAI(staticCreds(nil))

	t.Run("deadline is a timeout fault", func(t *testing.T) {
		err := p.classify(context.DeadlineExceeded)
		assert.True(t, provider.IsKind(err, provider.FaultTimeout))
	})

	t.Run("plain network error is transport", func(t *testing.T) {
		err := p.classify(errors.New("connection reset by peer"))
		assert.True(t, provider.IsKind(err, provider.FaultTransport))
	})
}

func TestFamilyTags(t *testing.T) {
	creds := staticCreds(nil)
	assert.Equal(t, provider.TagOpenAI, OpenAI(creds).Tag())
	assert.Equal(t, provider.TagXAI, XAI(creds).Tag())
	assert.Equal(t, provider.TagDeepSeek, DeepSeek(creds).Tag())
	assert.Contains(t, DeepSeek(creds).Models(), "deepseek-reasoner")
}
