package parley

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/session"
	"github.com/casualjim/parley/throttle"
	"github.com/fogfish/opts"
	"github.com/google/uuid"
)

// DefaultFirstTokenTimeout bounds how long a run waits for the first
// delta before giving up. Distinct from mid-stream failures: hitting it
// means the provider never answered at all.
const DefaultFirstTokenTimeout = 30 * time.Second

// errorFallback is what a failed run's placeholder ends up showing,
// appended after whatever content had already streamed in.
const errorFallback = "Something went wrong while generating this reply. Please try again."

var (
	// WithHook installs the UI callback surface.
	WithHook = opts.ForName[Engine, Hook]("hook")
	// WithPreferences replaces the default preference set.
	WithPreferences = opts.ForName[Engine, Preferences]("prefs")
	// WithTitler installs the background title-generation collaborator.
	WithTitler = opts.ForName[Engine, session.Titler]("titler")
	// WithFirstTokenTimeout overrides DefaultFirstTokenTimeout.
	WithFirstTokenTimeout = opts.ForName[Engine, time.Duration]("firstToken")
)

// WithScheduler overrides how frame-sync runs obtain their flush
// scheduler. GUI hosts plug their display-refresh callback in here; the
// default is a fixed-rate frame timer.
func WithScheduler(factory func() throttle.Scheduler) opts.Option[Engine] {
	return opts.Type[Engine](func(e *Engine) error {
		e.newScheduler = factory
		return nil
	})
}

// Engine orchestrates generations: it owns the per-request lifecycle from
// user input to finalized assistant message, one in-flight run per
// session at most, any number of sessions concurrently.
type Engine struct {
	store      *session.Store
	hook       Hook
	titler     session.Titler
	firstToken time.Duration

	prefsMu sync.RWMutex
	prefs   Preferences

	newScheduler func() throttle.Scheduler
	inflight     *haxmap.Map[string, *Run]
}

// New builds an engine around a session store. Providers are resolved
// through the package registry by each session's provider tag; register
// them before sending.
func New(store *session.Store, options ...opts.Option[Engine]) (*Engine, error) {
	e := &Engine{
		store:      store,
		hook:       NoopHook{},
		prefs:      DefaultPreferences(),
		firstToken: DefaultFirstTokenTimeout,
		newScheduler: func() throttle.Scheduler {
			return throttle.NewFrameScheduler(throttle.DefaultFramePeriod)
		},
		inflight: haxmap.New[string, *Run](),
	}
	if err := opts.Apply(e, options); err != nil {
		return nil, err
	}
	return e, nil
}

// Store exposes the engine's session store.
func (e *Engine) Store() *session.Store { return e.store }

// Preferences returns the engine's current preference set.
func (e *Engine) Preferences() Preferences {
	e.prefsMu.RLock()
	defer e.prefsMu.RUnlock()
	return e.prefs
}

// SetPreferences swaps the preference set for subsequent runs. In-flight
// runs keep the settings they started with. Safe to call while other
// sessions are streaming.
func (e *Engine) SetPreferences(p Preferences) {
	e.prefsMu.Lock()
	e.prefs = p
	e.prefsMu.Unlock()
}

// SendMessage starts a generation on the given session. Blank or
// whitespace-only input is a no-op returning a nil run. The returned Run
// settles asynchronously; watch its Done channel or the engine's hook.
//
// At most one run may be in flight per session; a second send on a busy
// session is rejected with a validation fault.
func (e *Engine) SendMessage(ctx context.Context, sessionID uuid.UUID, text string) (*Run, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if _, ok := e.store.Get(sessionID); !ok {
		return nil, provider.ValidationFault("unknown session %s", sessionID)
	}

	r := newRun(ctx, sessionID)
	if err := e.reserve(r); err != nil {
		return nil, err
	}

	if _, err := e.store.Append(sessionID, messages.User(text)); err != nil {
		e.release(r)
		return nil, err
	}
	if err := e.begin(r); err != nil {
		e.release(r)
		return nil, err
	}
	return r, nil
}

// RegenerateFromMessage rewrites an existing user message in place,
// drops the stale assistant turns that followed it while keeping any
// later user turns, and streams a fresh reply using the truncated
// history. Editing an assistant message only truncates; no generation is
// started and a nil run is returned.
func (e *Engine) RegenerateFromMessage(ctx context.Context, sessionID, messageID uuid.UUID, newContent string) (*Run, error) {
	if _, ok := e.store.Get(sessionID); !ok {
		return nil, provider.ValidationFault("unknown session %s", sessionID)
	}

	r := newRun(ctx, sessionID)
	if err := e.reserve(r); err != nil {
		return nil, err
	}

	edited, err := e.store.TruncateForRegenerate(sessionID, messageID, newContent)
	if err != nil {
		e.release(r)
		return nil, err
	}
	if edited.Role != messages.RoleUser {
		e.release(r)
		return nil, nil
	}
	if err := e.begin(r); err != nil {
		e.release(r)
		return nil, err
	}
	return r, nil
}

// BranchFromMessage copies the history strictly before the given message
// into a new session and makes it active. Branching never generates.
func (e *Engine) BranchFromMessage(sessionID, messageID uuid.UUID) (session.Session, error) {
	branch, err := e.store.Branch(sessionID, messageID)
	if err != nil {
		return session.Session{}, err
	}
	if err := e.store.Select(branch.ID); err != nil {
		return session.Session{}, err
	}
	return branch, nil
}

// Cancel stops the session's in-flight run, if any. The placeholder
// keeps whatever content had accumulated and ends non-streaming.
func (e *Engine) Cancel(sessionID uuid.UUID) bool {
	r, ok := e.inflight.Get(sessionID.String())
	if !ok {
		return false
	}
	r.canceled.Store(true)
	r.cancel()
	return true
}

// Busy reports whether the session has a run in flight.
func (e *Engine) Busy(sessionID uuid.UUID) bool {
	_, ok := e.inflight.Get(sessionID.String())
	return ok
}

// State returns the session's in-flight run state, or StateIdle.
func (e *Engine) State(sessionID uuid.UUID) RunState {
	r, ok := e.inflight.Get(sessionID.String())
	if !ok {
		return StateIdle
	}
	return r.State()
}

func (e *Engine) reserve(r *Run) error {
	if _, loaded := e.inflight.GetOrSet(r.sessionID.String(), r); loaded {
		return provider.ValidationFault("a generation is already in flight for session %s", r.sessionID)
	}
	return nil
}

func (e *Engine) release(r *Run) {
	e.inflight.Del(r.sessionID.String())
	r.cancel()
}

// begin appends the streaming placeholder, snapshots the request once,
// and dispatches the run goroutine. The session's system prompt, model
// and parameters are resolved here, once per request, never per delta.
func (e *Engine) begin(r *Run) error {
	s, ok := e.store.Get(r.sessionID)
	if !ok {
		return provider.ValidationFault("unknown session %s", r.sessionID)
	}
	prov, ok := provider.Get(s.Provider)
	if !ok {
		return provider.ConfigurationFault(s.Provider, "no adapter registered for provider %q", s.Provider)
	}

	history := make([]messages.Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if !m.Streaming {
			history = append(history, m)
		}
	}

	placeholder, err := e.store.Append(r.sessionID, messages.Placeholder())
	if err != nil {
		return err
	}
	r.messageID = placeholder.ID

	params := provider.CompletionParams{
		RunID:        r.id,
		Instructions: s.SystemPrompt,
		History:      history,
		Model:        s.Model,
		Params:       e.generationParams(s),
		Stream:       true,
	}

	r.setState(StateSending)
	th := e.newThrottler(e.flushInto(r))
	go e.runStream(r, prov, s, params, th)
	return nil
}

// flushInto routes throttled output to the placeholder message and the
// hook. Each flush carries only the text added since the previous one;
// the store always receives the full accumulated value.
func (e *Engine) flushInto(r *Run) throttle.FlushFunc {
	return func(f throttle.Flush) {
		if f.Empty() {
			return
		}
		mainTotal, auxTotal := r.accumulate(f.Main, f.Auxiliary)
		if f.Main != "" {
			if err := e.store.UpdateContent(r.sessionID, r.messageID, mainTotal); err != nil {
				slog.Warn("dropping flush for vanished message", slogx.Error(err))
				return
			}
		}
		if f.Auxiliary != "" {
			if err := e.store.UpdateAuxiliary(r.sessionID, r.messageID, auxTotal); err != nil {
				return
			}
		}
		e.hook.OnAssistantDelta(r.ctx, r.sessionID, r.messageID, f.Main, f.Auxiliary)
	}
}

func (e *Engine) generationParams(s session.Session) provider.GenerationParams {
	if s.Params != (provider.GenerationParams{}) {
		return s.Params
	}
	return e.Preferences().GenerationParams()
}

func (e *Engine) newThrottler(flush throttle.FlushFunc) *throttle.Throttler {
	prefs := e.Preferences()
	if prefs.StreamMode == StreamFrameSync {
		return throttle.NewFrameSync(e.newScheduler(), flush)
	}
	return throttle.NewIntervalBatched(prefs.StreamInterval, throttle.DefaultImmediateThreshold, flush)
}

// runStream consumes the adapter's event channel through the throttler
// until the run settles. It is the only goroutine that mutates the
// placeholder message.
func (e *Engine) runStream(r *Run, prov provider.Provider, sess session.Session, params provider.CompletionParams, th *throttle.Throttler) {
	ctx := r.ctx
	defer close(r.done)
	defer e.inflight.Del(r.sessionID.String())
	defer r.cancel()

	ch, err := prov.ChatCompletion(ctx, params)
	if err != nil {
		th.Abort()
		e.fail(ctx, r, sess, err)
		return
	}

	firstToken := time.NewTimer(e.firstToken)
	defer firstToken.Stop()

	var streamErr error
	first := true

recv:
	for {
		var ev provider.StreamEvent
		var open bool

		if first {
			select {
			case <-firstToken.C:
				r.cancel()
				streamErr = provider.TimeoutFault(sess.Provider,
					fmt.Sprintf("no response from %s within %s", sess.Model, e.firstToken))
				break recv
			case ev, open = <-ch:
			}
		} else {
			ev, open = <-ch
		}
		if !open {
			break recv
		}

		switch event := ev.(type) {
		case provider.Delim:
			// stream framing only
		case provider.Chunk:
			if first {
				first = false
				r.setState(StateStreaming)
			}
			th.Push(throttle.Delta{Channel: event.Channel, Text: event.Text})
		case provider.Response:
			first = false
			r.finalResponse = &event
		case provider.Error:
			first = false
			streamErr = event.Err
		}
	}

	switch {
	case r.canceled.Load():
		// Keep what accumulated, drop what never reached the UI.
		th.Abort()
		e.settle(ctx, r, sess, StateCanceled, nil)
	case streamErr != nil:
		th.Close()
		e.fail(ctx, r, sess, streamErr)
	default:
		th.Close()
		e.finalize(ctx, r, sess)
	}
}

// finalize ends a successful run: stamp provider/model, clear streaming,
// kick off title generation.
func (e *Engine) finalize(ctx context.Context, r *Run, sess session.Session) {
	main, aux := r.snapshot()
	if final := r.finalResponse; final != nil {
		// The terminal response is authoritative when deltas went missing.
		if main == "" && final.Content != "" {
			main = final.Content
			_ = e.store.UpdateContent(r.sessionID, r.messageID, main)
		}
		if aux == "" && final.Auxiliary != "" {
			_ = e.store.UpdateAuxiliary(r.sessionID, r.messageID, final.Auxiliary)
		}
	}
	e.settle(ctx, r, sess, StateFinalized, nil)

	if e.titler != nil {
		tctx := context.WithoutCancel(ctx)
		go func() {
			if e.store.RefreshTitle(tctx, e.titler, r.sessionID) {
				if s, ok := e.store.Get(r.sessionID); ok {
					e.hook.OnTitle(tctx, r.sessionID, s.Title)
				}
			}
		}()
	}
}

// fail converts any run failure into a displayable message mutation.
// Partial content is preserved ahead of the fallback text.
func (e *Engine) fail(ctx context.Context, r *Run, sess session.Session, err error) {
	main, _ := r.snapshot()
	content := errorFallback
	if main != "" {
		content = main + "\n\n" + errorFallback
	}
	if uerr := e.store.UpdateContent(r.sessionID, r.messageID, content); uerr != nil {
		slog.Error("failed to record run failure", slogx.Error(uerr))
	}
	slog.Error("generation failed",
		slogx.Stringer("session", r.sessionID), "provider", sess.Provider, "model", sess.Model, slogx.Error(err))
	e.settle(ctx, r, sess, StateFailed, err)
}

// settle is the single exit point: every run ends here exactly once,
// with the placeholder no longer streaming.
func (e *Engine) settle(ctx context.Context, r *Run, sess session.Session, state RunState, err error) {
	if ferr := e.store.Finalize(r.sessionID, r.messageID, sess.Provider, sess.Model); ferr != nil {
		slog.Warn("finalize on vanished message", slogx.Error(ferr))
	}
	r.setErr(err)
	r.setState(state)

	if err != nil {
		e.hook.OnError(ctx, r.sessionID, err)
	}
	if s, ok := e.store.Get(r.sessionID); ok {
		if idx := messageIndex(s.Messages, r.messageID); idx >= 0 {
			e.hook.OnMessageFinal(ctx, r.sessionID, s.Messages[idx])
		}
	}
}

func messageIndex(msgs []messages.Message, id uuid.UUID) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// Run is the handle for one in-flight generation.
type Run struct {
	id        uuid.UUID
	sessionID uuid.UUID
	messageID uuid.UUID

	ctx      context.Context
	cancel   context.CancelFunc
	canceled atomic.Bool
	state    atomic.Int32
	done     chan struct{}

	finalResponse *provider.Response

	mu   sync.Mutex
	main strings.Builder
	aux  strings.Builder
	err  error
}

// newRun detaches from the caller's context: a run outlives the UI event
// that started it and ends only by completion, cancel or timeout.
func newRun(ctx context.Context, sessionID uuid.UUID) *Run {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Run{
		id:        uuidx.New(),
		sessionID: sessionID,
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// ID is the run's identity, carried on every stream event it produced.
func (r *Run) ID() uuid.UUID { return r.id }

// SessionID names the session this run streams into.
func (r *Run) SessionID() uuid.UUID { return r.sessionID }

// MessageID names the placeholder assistant message the run streams into.
func (r *Run) MessageID() uuid.UUID { return r.messageID }

// Done closes when the run has settled.
func (r *Run) Done() <-chan struct{} { return r.done }

// State reports where the run is in its lifecycle.
func (r *Run) State() RunState { return RunState(r.state.Load()) }

// Err returns the failure after Done closes, nil on success or cancel.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) setState(s RunState) { r.state.Store(int32(s)) }

func (r *Run) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Run) accumulate(main, aux string) (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.main.WriteString(main)
	r.aux.WriteString(aux)
	return r.main.String(), r.aux.String()
}

func (r *Run) snapshot() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.main.String(), r.aux.String()
}
