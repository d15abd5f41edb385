package provider

import (
	"context"
	"io"
	"log/slog"
	"sync"

	json "github.com/goccy/go-json"
)

// Traced decorates a provider so every stream event is appended to a
// writer, one JSON line per event, before being passed through to the
// consumer. Tracing never alters the stream: a marshal or write failure
// is logged and the event is delivered anyway.
type Traced struct {
	inner Provider

	mu sync.Mutex
	w  io.Writer
}

// Trace wraps a provider with stream-event tracing. The writer is
// shared across concurrent streams; lines are written whole.
func Trace(p Provider, w io.Writer) *Traced {
	return &Traced{inner: p, w: w}
}

func (t *Traced) Tag() string { return t.inner.Tag() }

func (t *Traced) Probe(ctx context.Context, model string) (Availability, error) {
	return t.inner.Probe(ctx, model)
}

func (t *Traced) ChatCompletion(ctx context.Context, params CompletionParams) (<-chan StreamEvent, error) {
	ch, err := t.inner.ChatCompletion(ctx, params)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		for ev := range ch {
			t.record(ev)
			out <- ev
		}
	}()
	return out, nil
}

func (t *Traced) record(ev StreamEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("tracing stream event failed", "provider", t.inner.Tag(), "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(append(line, '\n')); err != nil {
		slog.Warn("writing stream trace failed", "provider", t.inner.Tag(), "error", err)
	}
}
