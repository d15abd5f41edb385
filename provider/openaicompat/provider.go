package openaicompat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

const (
	xaiBaseURL      = "https://api.x.ai/v1"
	deepseekBaseURL = "https://api.deepseek.com/v1"

	probePrompt = "ping"
)

// family describes one OpenAI-compatible service.
type family struct {
	tag     string
	baseURL string
	models  map[string]struct{}
}

func modelSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

var (
	openAIFamily = family{
		tag: provider.TagOpenAI,
		models: modelSet(
			"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini",
			"o1", "o1-mini", "o1-preview",
		),
	}
	xaiFamily = family{
		tag:     provider.TagXAI,
		baseURL: xaiBaseURL,
		models:  modelSet("grok-2", "grok-2-mini", "grok-beta", "grok-3", "grok-3-mini"),
	}
	deepseekFamily = family{
		tag:     provider.TagDeepSeek,
		baseURL: deepseekBaseURL,
		models:  modelSet("deepseek-chat", "deepseek-reasoner"),
	}
)

// Provider adapts one OpenAI-compatible family to the provider contract.
type Provider struct {
	family family
	creds  provider.Credentials
	opts   []option.RequestOption
}

// OpenAI returns the adapter for api.openai.com.
func OpenAI(creds provider.Credentials, opts ...option.RequestOption) *Provider {
	return &Provider{family: openAIFamily, creds: creds, opts: opts}
}

// XAI returns the adapter for api.x.ai.
func XAI(creds provider.Credentials, opts ...option.RequestOption) *Provider {
	return &Provider{family: xaiFamily, creds: creds, opts: opts}
}

// DeepSeek returns the adapter for api.deepseek.com.
func DeepSeek(creds provider.Credentials, opts ...option.RequestOption) *Provider {
	return &Provider{family: deepseekFamily, creds: creds, opts: opts}
}

func (p *Provider) Tag() string { return p.family.tag }

// Models returns the model names this adapter recognizes.
func (p *Provider) Models() []string {
	names := make([]string, 0, len(p.family.models))
	for name := range p.family.models {
		names = append(names, name)
	}
	return names
}

func (p *Provider) client() (*openai.Client, error) {
	key, ok := p.creds.Lookup(p.family.tag)
	if !ok || key == "" {
		return nil, provider.ConfigurationFault(p.family.tag, "missing credential")
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if p.family.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.family.baseURL))
	}
	opts = append(opts, p.opts...)
	return openai.NewClient(opts...), nil
}

func (p *Provider) buildRequest(params *provider.CompletionParams) (openai.ChatCompletionNewParams, error) {
	if _, known := p.family.models[params.Model]; !known {
		return openai.ChatCompletionNewParams{}, provider.ConfigurationFault(p.family.tag, "unknown model %q", params.Model)
	}

	caps := provider.Capabilities(p.family.tag, params.Model)
	result := historyToOpenAI(params.Instructions, caps.SupportsSystemRole, params.History)

	oaiParams := openai.ChatCompletionNewParams{
		Messages: openai.F(result),
		Model:    openai.F(params.Model),
		N:        openai.Int(1),
	}
	if params.Params.Temperature > 0 {
		oaiParams.Temperature = openai.Float(params.Params.Temperature)
	}
	if params.Params.MaxOutputTokens > 0 {
		oaiParams.MaxTokens = openai.Int(params.Params.MaxOutputTokens)
	}
	return oaiParams, nil
}

func (p *Provider) ChatCompletion(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	chatParams, err := p.buildRequest(&params)
	if err != nil {
		return nil, err
	}

	client, err := p.client()
	if err != nil {
		return nil, err
	}

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		if params.Stream {
			p.runStream(ctx, client, chatParams, &params, events)
		} else {
			p.runOnce(ctx, client, chatParams, &params, events)
		}
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, client *openai.Client, chatParams openai.ChatCompletionNewParams, params *provider.CompletionParams, events chan<- provider.StreamEvent) {
	strm := client.Chat.Completions.NewStreaming(ctx, chatParams)

	if strm.Err() != nil {
		events <- provider.Error{
			RunID:     params.RunID,
			Err:       p.classify(strm.Err()),
			Timestamp: strfmt.DateTime(time.Now()),
		}
		strm.Close()
		return
	}

	// Ensure cleanup on all exit paths
	defer func() {
		strm.Close()
		if err := ctx.Err(); err != nil {
			events <- provider.Error{
				RunID:     params.RunID,
				Err:       err,
				Timestamp: strfmt.DateTime(time.Now()),
			}
		}
	}()

	var notFirst bool
	var aux strings.Builder
	var acc openai.ChatCompletionAccumulator

	for strm.Next() {
		if err := ctx.Err(); err != nil {
			return
		}

		if !notFirst {
			notFirst = true
			events <- provider.Delim{RunID: params.RunID, Delim: "start"}
		}

		chunk := strm.Current()
		if strm.Err() != nil {
			events <- provider.Error{
				RunID:     params.RunID,
				Err:       p.classify(strm.Err()),
				Timestamp: strfmt.DateTime(time.Now()),
			}
			return
		}

		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if reasoning := reasoningDelta(chunk); reasoning != "" {
			aux.WriteString(reasoning)
			events <- provider.Chunk{
				RunID:     params.RunID,
				Channel:   provider.ChannelAuxiliary,
				Text:      reasoning,
				Timestamp: strfmt.DateTime(time.Now()),
			}
		}

		if delta.Content != "" {
			events <- provider.Chunk{
				RunID:     params.RunID,
				Channel:   provider.ChannelMain,
				Text:      delta.Content,
				Timestamp: strfmt.DateTime(time.Now()),
			}
		}
	}

	if err := strm.Err(); err != nil {
		events <- provider.Error{
			RunID:     params.RunID,
			Err:       p.classify(err),
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	if notFirst && ctx.Err() == nil {
		events <- provider.Delim{RunID: params.RunID, Delim: "end"}
		events <- completionToResponse(&acc.ChatCompletion, aux.String(), params)
	}
}

func (p *Provider) runOnce(ctx context.Context, client *openai.Client, chatParams openai.ChatCompletionNewParams, params *provider.CompletionParams, events chan<- provider.StreamEvent) {
	chat, err := client.Chat.Completions.New(ctx, chatParams)
	if err != nil {
		events <- provider.Error{
			RunID:     params.RunID,
			Err:       p.classify(err),
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	events <- completionToResponse(chat, reasoningContent(chat), params)
}

// Probe makes a minimal one-token round trip. Expected not-configured
// conditions report unavailability rather than an error.
func (p *Provider) Probe(ctx context.Context, model string) (provider.Availability, error) {
	if _, known := p.family.models[model]; !known {
		return provider.Availability{}, nil
	}
	client, err := p.client()
	if err != nil {
		return provider.Availability{}, nil
	}

	_, err = client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:  openai.F([]openai.ChatCompletionMessageParamUnion{openai.UserMessage(probePrompt)}),
		Model:     openai.F(model),
		MaxTokens: openai.Int(1),
	})
	if err != nil {
		fault := p.classify(err)
		if f, ok := provider.AsFault(fault); ok && (f.Kind == provider.FaultConfiguration || f.Kind == provider.FaultRefusal) {
			return provider.Availability{}, nil
		}
		return provider.Availability{}, fault
	}
	return provider.Availability{Available: true, SupportsStreaming: true}, nil
}

// classify maps SDK errors onto the fault taxonomy.
func (p *Provider) classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 401, 403:
			return provider.ConfigurationFault(p.family.tag, "authentication failed")
		case 404:
			return provider.ConfigurationFault(p.family.tag, "model unavailable")
		default:
			return provider.RefusalFault(p.family.tag, apierr.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.TimeoutFault(p.family.tag, err.Error())
	}
	return provider.TransportFault(p.family.tag, err)
}

// historyToOpenAI converts engine history to wire messages. When the model
// supports a system role the instructions lead as a system message;
// otherwise they are folded into the first user turn.
func historyToOpenAI(instructions string, systemRole bool, history []messages.Message) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion

	fold := instructions != "" && !systemRole
	if instructions != "" && systemRole {
		result = append(result, openai.SystemMessage(instructions))
	}

	for _, msg := range history {
		switch msg.Role {
		case messages.RoleUser:
			content := msg.Content
			if fold {
				content = instructions + "\n\n" + content
				fold = false
			}
			result = append(result, openai.UserMessage(content))
		case messages.RoleAssistant:
			if msg.Content != "" {
				result = append(result, openai.AssistantMessage(msg.Content))
			}
		}
	}

	// System-prompt-only call against a model without system-role support:
	// the prompt still has to reach the model somehow.
	if fold {
		result = append(result, openai.UserMessage(instructions))
	}

	return result
}

func completionToResponse(chat *openai.ChatCompletion, auxiliary string, params *provider.CompletionParams) provider.StreamEvent {
	if len(chat.Choices) == 0 {
		return provider.Delim{RunID: params.RunID, Delim: "empty"}
	}

	choice := chat.Choices[0]
	return provider.Response{
		RunID:        params.RunID,
		Content:      choice.Message.Content,
		Auxiliary:    auxiliary,
		FinishReason: string(choice.FinishReason),
		Timestamp:    strfmt.DateTime(time.Now()),
	}
}

// reasoningDelta extracts the DeepSeek/xAI reasoning_content field from a
// raw chunk. The SDK has no typed field for it, so it is read from the raw
// JSON the way the rest of the engine reads loosely-typed payloads.
func reasoningDelta(chunk openai.ChatCompletionChunk) string {
	return gjson.Get(chunk.JSON.RawJSON(), "choices.0.delta.reasoning_content").String()
}

func reasoningContent(chat *openai.ChatCompletion) string {
	return gjson.Get(chat.JSON.RawJSON(), "choices.0.message.reasoning_content").String()
}

var _ provider.Provider = (*Provider)(nil)
