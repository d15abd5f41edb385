// Command parley is a terminal chat client for the parley engine. It
// talks to any configured provider, streams replies as they generate, and
// keeps its sessions in a local state file between runs.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	// Ensure API keys are loaded
	_ "github.com/joho/godotenv/autoload"

	"github.com/casualjim/parley"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/provider/google"
	"github.com/casualjim/parley/provider/openaicompat"
	"github.com/casualjim/parley/session"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
	))
}

var envCredentials = map[string]string{
	provider.TagOpenAI:   "OPENAI_API_KEY",
	provider.TagXAI:      "XAI_API_KEY",
	provider.TagDeepSeek: "DEEPSEEK_API_KEY",
	provider.TagGoogle:   "GEMINI_API_KEY",
}

func credentials() provider.Credentials {
	return provider.CredentialFunc(func(tag string) (string, bool) {
		name, ok := envCredentials[tag]
		if !ok {
			return "", false
		}
		v := os.Getenv(name)
		return v, v != ""
	})
}

// openTrace opens the stream-trace file named by PARLEY_TRACE, one JSON
// line per stream event, appending across runs. Empty means no tracing.
func openTrace(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	return f, nil
}

func main() {
	if err := mainE(context.Background()); err != nil {
		slog.Error("parley exited", slogx.Error(err))
		os.Exit(1)
	}
}

func mainE(ctx context.Context) error {
	kv, err := openFileKV(defaultStatePath())
	if err != nil {
		return err
	}

	creds := credentials()
	adapters := []provider.Provider{
		openaicompat.OpenAI(creds),
		openaicompat.XAI(creds),
		openaicompat.DeepSeek(creds),
		google.New(creds),
	}
	trace, err := openTrace(os.Getenv("PARLEY_TRACE"))
	if err != nil {
		return err
	}
	for _, p := range adapters {
		if trace != nil {
			p = provider.Trace(p, trace)
		}
		provider.Register(p)
	}

	prefs := parley.LoadPreferences(kv)
	store := session.NewStore(prefs.Provider, prefs.Model)
	if _, err := store.Load(kv); err != nil {
		slog.Warn("starting with a fresh session list", slogx.Error(err))
	}
	if store.Len() == 0 {
		store.Create(prefs.Model, prefs.Provider, "")
	}

	engine, err := parley.New(store,
		parley.WithHook(&consoleHook{}),
		parley.WithPreferences(prefs),
		parley.WithTitler(newTitler(prefs)),
	)
	if err != nil {
		return err
	}

	repl := &repl{engine: engine, store: store, kv: kv}
	return repl.run(ctx)
}

type repl struct {
	engine *parley.Engine
	store  *session.Store
	kv     *fileKV
}

func (r *repl) run(ctx context.Context) error {
	fmt.Println("parley — /help for commands, /quit to exit")
	r.printActive()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Printf("%s: ", color.CyanString("you"))
		if !scanner.Scan() {
			break
		}
		input := scanner.Text()

		if strings.HasPrefix(strings.TrimSpace(input), "/") {
			if quit := r.command(ctx, strings.TrimSpace(input)); quit {
				break
			}
			continue
		}

		r.send(ctx, input)
	}

	return r.persist()
}

func (r *repl) send(ctx context.Context, input string) {
	active, ok := r.store.Active()
	if !ok {
		errline.Fprintln(os.Stdout, "no active session")
		return
	}

	run, err := r.engine.SendMessage(ctx, active.ID, input)
	if err != nil {
		errline.Fprintf(os.Stdout, "error: %v\n", err)
		return
	}
	if run == nil {
		return
	}
	<-run.Done()
	if err := r.persist(); err != nil {
		slog.Warn("saving state", slogx.Error(err))
	}
}

func (r *repl) command(ctx context.Context, input string) (quit bool) {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Print(helpText)

	case "/new":
		prefs := r.engine.Preferences()
		s := r.store.Create(prefs.Model, prefs.Provider, rest)
		fmt.Printf("started session %s\n", shortID(s.ID.String()))

	case "/sessions":
		active, _ := r.store.Active()
		for i, s := range r.store.List() {
			marker := "  "
			if s.ID == active.ID {
				marker = color.GreenString("* ")
			}
			fmt.Printf("%s%2d  %-30s %s/%s  %d messages\n",
				marker, i+1, s.Title, s.Provider, s.Model, len(s.Messages))
		}

	case "/switch":
		if s, ok := r.sessionAt(rest); ok {
			if err := r.store.Select(s.ID); err != nil {
				errline.Fprintf(os.Stdout, "error: %v\n", err)
				break
			}
			r.printActive()
		}

	case "/delete":
		if s, ok := r.sessionAt(rest); ok {
			if err := r.store.Delete(s.ID); err != nil {
				errline.Fprintf(os.Stdout, "error: %v\n", err)
			}
			r.printActive()
		}

	case "/model":
		active, _ := r.store.Active()
		if rest == "" {
			fmt.Printf("%s/%s\n", active.Provider, active.Model)
			break
		}
		if err := r.store.SetModel(active.ID, active.Provider, rest); err != nil {
			errline.Fprintf(os.Stdout, "error: %v\n", err)
		}

	case "/provider":
		active, _ := r.store.Active()
		tag, model, _ := strings.Cut(rest, " ")
		if tag == "" {
			fmt.Println(strings.Join(provider.Tags(), ", "))
			break
		}
		if model == "" {
			model = active.Model
		}
		if err := r.store.SetModel(active.ID, tag, strings.TrimSpace(model)); err != nil {
			errline.Fprintf(os.Stdout, "error: %v\n", err)
		}

	case "/system":
		active, _ := r.store.Active()
		if err := r.store.SetSystemPrompt(active.ID, rest); err != nil {
			errline.Fprintf(os.Stdout, "error: %v\n", err)
		}

	case "/branch":
		active, _ := r.store.Active()
		if msg, ok := r.messageAt(active, rest); ok {
			branch, err := r.engine.BranchFromMessage(active.ID, msg.ID)
			if err != nil {
				errline.Fprintf(os.Stdout, "error: %v\n", err)
				break
			}
			fmt.Printf("branched into session %s with %d messages\n",
				shortID(branch.ID.String()), len(branch.Messages))
		}

	case "/edit":
		active, _ := r.store.Active()
		numArg, newText, _ := strings.Cut(rest, " ")
		msg, ok := r.messageAt(active, numArg)
		if !ok {
			break
		}
		run, err := r.engine.RegenerateFromMessage(ctx, active.ID, msg.ID, strings.TrimSpace(newText))
		if err != nil {
			errline.Fprintf(os.Stdout, "error: %v\n", err)
			break
		}
		if run != nil {
			<-run.Done()
		}
		if err := r.persist(); err != nil {
			slog.Warn("saving state", slogx.Error(err))
		}

	case "/stop":
		active, _ := r.store.Active()
		if !r.engine.Cancel(active.ID) {
			fmt.Println("nothing to stop")
		}

	case "/speed":
		r.setSpeed(rest)

	case "/probe":
		r.probe(ctx, rest)

	case "/dump":
		if active, ok := r.store.Active(); ok {
			pp.Println(active)
		}

	default:
		fmt.Printf("unknown command %s, /help lists everything\n", cmd)
	}
	return false
}

func (r *repl) setSpeed(arg string) {
	prefs := r.engine.Preferences()
	switch arg {
	case "frame":
		prefs.StreamMode = parley.StreamFrameSync
	case "instant":
		prefs.StreamMode = parley.StreamInterval
		prefs.StreamInterval = time.Millisecond
	case "":
		fmt.Printf("%s (interval %s)\n", prefs.StreamMode, prefs.StreamInterval)
		return
	default:
		d, err := time.ParseDuration(arg)
		if err != nil {
			errline.Fprintln(os.Stdout, "usage: /speed frame|instant|<interval, e.g. 50ms>")
			return
		}
		prefs.StreamMode = parley.StreamInterval
		prefs.StreamInterval = d
	}
	r.engine.SetPreferences(prefs)
	if err := prefs.Save(r.kv); err != nil {
		slog.Warn("saving preferences", slogx.Error(err))
	}
}

func (r *repl) probe(ctx context.Context, model string) {
	active, _ := r.store.Active()
	if model == "" {
		model = active.Model
	}
	prov, ok := provider.Get(active.Provider)
	if !ok {
		errline.Fprintf(os.Stdout, "no adapter for %q\n", active.Provider)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	avail, err := prov.Probe(pctx, model)
	if err != nil {
		errline.Fprintf(os.Stdout, "probe failed: %v\n", err)
		return
	}
	fmt.Printf("%s/%s available=%v streaming=%v\n",
		active.Provider, model, avail.Available, avail.SupportsStreaming)
}

func (r *repl) sessionAt(arg string) (session.Session, bool) {
	list := r.store.List()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		errline.Fprintf(os.Stdout, "expected a session number between 1 and %d\n", len(list))
		return session.Session{}, false
	}
	return list[n-1], true
}

func (r *repl) messageAt(s session.Session, arg string) (messages.Message, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.Messages) {
		errline.Fprintf(os.Stdout, "expected a message number between 1 and %d\n", len(s.Messages))
		return messages.Message{}, false
	}
	return s.Messages[n-1], true
}

func (r *repl) printActive() {
	if active, ok := r.store.Active(); ok {
		fmt.Printf("session %q on %s/%s\n", active.Title, active.Provider, active.Model)
	}
}

func (r *repl) persist() error {
	if err := r.store.Save(r.kv); err != nil {
		return err
	}
	return r.engine.Preferences().Save(r.kv)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

const helpText = `commands:
  /new [system prompt]     start a session
  /sessions                list sessions
  /switch N                make session N active
  /delete N                delete session N
  /model [name]            show or set the model
  /provider [tag] [model]  show tags or switch provider
  /system <prompt>         set the system prompt
  /branch N                branch before message N
  /edit N <text>           rewrite message N and regenerate
  /stop                    cancel the in-flight reply
  /speed frame|instant|dur streaming cadence
  /probe [model]           check provider availability
  /dump                    dump the active session
  /quit                    save and exit
`
