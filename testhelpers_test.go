package parley

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/session"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays a fixed event sequence. With block set it
// emits its events and then holds the stream open until the context ends.
type scriptedProvider struct {
	tag      string
	events   []provider.StreamEvent
	startErr error
	block    bool

	calls  atomic.Int32
	mu     sync.Mutex
	params []provider.CompletionParams
}

func (p *scriptedProvider) Tag() string { return p.tag }

func (p *scriptedProvider) ChatCompletion(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.params = append(p.params, params)
	p.mu.Unlock()

	if p.startErr != nil {
		return nil, p.startErr
	}

	ch := make(chan provider.StreamEvent, len(p.events)+1)
	go func() {
		defer close(ch)
		for _, ev := range p.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if p.block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (p *scriptedProvider) Probe(context.Context, string) (provider.Availability, error) {
	return provider.Availability{Available: true, SupportsStreaming: true}, nil
}

func (p *scriptedProvider) lastParams(t *testing.T) provider.CompletionParams {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.params)
	return p.params[len(p.params)-1]
}

func install(t *testing.T, p *scriptedProvider) {
	t.Helper()
	provider.Register(p)
	t.Cleanup(func() { provider.Deregister(p.tag) })
}

func helloEvents() []provider.StreamEvent {
	runID := uuid.New()
	now := strfmt.DateTime(time.Now())
	return []provider.StreamEvent{
		provider.Delim{RunID: runID, Delim: "start"},
		provider.Chunk{RunID: runID, Channel: provider.ChannelMain, Text: "He"},
		provider.Chunk{RunID: runID, Channel: provider.ChannelMain, Text: "llo"},
		provider.Delim{RunID: runID, Delim: "end"},
		provider.Response{RunID: runID, Content: "Hello", FinishReason: "stop", Timestamp: now},
	}
}

func assistantReply(content string) messages.Message {
	return messages.Message{
		ID:        uuid.New(),
		Role:      messages.RoleAssistant,
		Content:   content,
		CreatedAt: strfmt.DateTime(time.Now()),
	}
}

// recordingHook captures every callback for assertions.
type recordingHook struct {
	mu     sync.Mutex
	deltas []string
	auxes  []string
	finals []messages.Message
	errs   []error
	titles []string
}

func (h *recordingHook) OnAssistantDelta(_ context.Context, _, _ uuid.UUID, main, aux string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if main != "" {
		h.deltas = append(h.deltas, main)
	}
	if aux != "" {
		h.auxes = append(h.auxes, aux)
	}
}

func (h *recordingHook) OnMessageFinal(_ context.Context, _ uuid.UUID, msg messages.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finals = append(h.finals, msg)
}

func (h *recordingHook) OnError(_ context.Context, _ uuid.UUID, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *recordingHook) OnTitle(_ context.Context, _ uuid.UUID, title string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.titles = append(h.titles, title)
}

func (h *recordingHook) snapshot() (deltas []string, finals []messages.Message, errs []error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.deltas...),
		append([]messages.Message(nil), h.finals...),
		append([]error(nil), h.errs...)
}

// instantPrefs makes every flush synchronous so tests are deterministic.
func instantPrefs(tag string) Preferences {
	p := DefaultPreferences()
	p.Provider = tag
	p.Model = "scripted-model"
	p.StreamMode = StreamInterval
	p.StreamInterval = time.Millisecond
	return p
}

func newTestEngine(t *testing.T, tag string, extra ...opts.Option[Engine]) (*Engine, *session.Store, *recordingHook) {
	t.Helper()
	store := session.NewStore(tag, "scripted-model")
	hook := &recordingHook{}
	options := append([]opts.Option[Engine]{
		WithHook(hook),
		WithPreferences(instantPrefs(tag)),
	}, extra...)
	engine, err := New(store, options...)
	require.NoError(t, err)
	return engine, store, hook
}

func waitDone(t *testing.T, r *Run) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not settle in time")
	}
}
