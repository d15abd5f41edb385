package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/casualjim/parley"
	"github.com/casualjim/parley/messages"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/google/uuid"
)

var glam *glamour.TermRenderer

func init() {
	var err error
	glam, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		panic(err)
	}
}

var (
	faint     = color.New(color.Faint)
	assistant = color.New(color.FgMagenta)
	errline   = color.New(color.FgRed)
)

// consoleHook streams deltas straight to the terminal and re-renders the
// finished reply through glamour.
type consoleHook struct {
	parley.NoopHook

	mu      sync.Mutex
	started bool
	inAux   bool
}

func (h *consoleHook) OnAssistantDelta(_ context.Context, _, _ uuid.UUID, main, aux string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		h.started = true
		fmt.Fprint(os.Stdout, assistant.Sprint("assistant")+": ")
	}
	if aux != "" {
		if !h.inAux {
			h.inAux = true
			faint.Fprint(os.Stdout, "\n[thinking] ")
		}
		faint.Fprint(os.Stdout, aux)
	}
	if main != "" {
		if h.inAux {
			h.inAux = false
			fmt.Fprintln(os.Stdout)
		}
		fmt.Fprint(os.Stdout, main)
	}
}

func (h *consoleHook) OnMessageFinal(_ context.Context, _ uuid.UUID, msg messages.Message) {
	h.mu.Lock()
	h.started = false
	h.inAux = false
	h.mu.Unlock()

	fmt.Fprintln(os.Stdout)
	if msg.Content == "" {
		return
	}
	if pretty, err := glam.Render(msg.Content); err == nil {
		fmt.Fprint(os.Stdout, pretty)
	}
}

func (h *consoleHook) OnError(_ context.Context, _ uuid.UUID, err error) {
	errline.Fprintf(os.Stdout, "\nerror: %v\n", err)
}

func (h *consoleHook) OnTitle(_ context.Context, _ uuid.UUID, title string) {
	faint.Fprintf(os.Stdout, "(conversation titled %q)\n", title)
}
