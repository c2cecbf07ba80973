// Command tunacode is the stdio entrypoint: it speaks the NDJSON protocol
// of internal/engine/protocol over stdin/stdout, translating each
// user_message into an internal/orchestrator.ProcessRequest call and
// streaming the result back as protocol events.
//
// GROUNDED on the teacher's cmd/repl (same NDJSON-over-stdio shape, same
// config.Manager-driven setup), rewired onto the new
// orchestrator/sessionstore/tool/streamfn packages in place of the old
// engine.Agent + coder.CoderAgent wiring.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tunacode-sh/tunacode/internal/callback"
	"github.com/tunacode-sh/tunacode/internal/config"
	"github.com/tunacode-sh/tunacode/internal/engine"
	"github.com/tunacode-sh/tunacode/internal/engine/protocol"
	"github.com/tunacode-sh/tunacode/internal/indexer"
	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/orchestrator"
	"github.com/tunacode-sh/tunacode/internal/prompts"
	"github.com/tunacode-sh/tunacode/internal/providers"
	"github.com/tunacode-sh/tunacode/internal/sessionstore"
	"github.com/tunacode-sh/tunacode/internal/streamfn"
	"github.com/tunacode-sh/tunacode/internal/tool"
	"github.com/tunacode-sh/tunacode/internal/tools"
	"github.com/tunacode-sh/tunacode/internal/tunalog"
)

func main() {
	applog := tunalog.New(os.Stderr, "tunacode")

	repoRoot, err := os.Getwd()
	if err != nil {
		fatal(applog, "getwd", err)
	}

	mgr, err := config.NewManager()
	if err != nil {
		fatal(applog, "config manager", err)
	}
	cfg, err := mgr.Load()
	if err != nil {
		fatal(applog, "load config", err)
	}
	if cfg.LLMProvider != "" {
		os.Setenv("LLM_PROVIDER", cfg.LLMProvider)
	}

	streamFn, defaultModel, err := providers.NewStreamFnFromEnv()
	if err != nil {
		fmt.Println(mustMarshal(protocol.NewSetupRequiredEvent()))
		fatal(applog, "provider setup", err)
	}
	if cfg.Model != "" {
		defaultModel = cfg.Model
	}

	configDir, cfgErr := os.UserConfigDir()
	if cfgErr != nil {
		configDir = "."
	}
	store := sessionstore.NewStore(filepath.Join(configDir, "tunacode", "sessions"))

	idxCtx, idxCancel := context.WithCancel(context.Background())
	defer idxCancel()
	retrieval, err := newRetrieval(idxCtx, repoRoot, filepath.Join(configDir, "tunacode", "index.db"), applog)
	if err != nil {
		applog.Warn("semantic index disabled", tunalog.Fields{"error": err})
	}

	engineRegistry, err := tools.NewToolRegistry(repoRoot, retrieval, engine.ToolSet{
		Filesystem: true, Search: true, Execution: true, Editing: true, Meta: true, Semantic: retrieval != nil,
	})
	if err != nil {
		fatal(applog, "build tool registry", err)
	}
	toolReg := tool.FromEngineRegistry(engineRegistry)

	r := &repl{
		store:        store,
		toolReg:      toolReg,
		streamFn:     streamFn,
		defaultModel: defaultModel,
		summarize:    providers.NewLLMSummarizer(streamFn, defaultModel),
		titleGen:     sessionstore.NewLLMTitleGenerator(streamFn, defaultModel),
		sessions:     make(map[string]*sessionstore.Session),
		cancels:      make(map[string]context.CancelFunc),
		log:          applog,
	}
	r.run()
}

// repl is the stdio command loop: one process, many concurrent sessions,
// one orchestrator shared across all of them (the agent cache and session
// store are the only shared mutable state, and both are already safe for
// concurrent use).
type repl struct {
	mu           sync.Mutex
	store        *sessionstore.Store
	toolReg      tool.Registry
	streamFn     streamfn.StreamFn
	defaultModel string
	summarize    func(ctx context.Context, transcript, prevSummary string) (string, error)
	titleGen     sessionstore.TitleGenerator
	sessions     map[string]*sessionstore.Session
	cancels      map[string]context.CancelFunc
	orch         *orchestrator.Orchestrator
	log          *tunalog.Logger
}

func (r *repl) run() {
	sink := callback.Multi{stdioSink{}, tunalog.NewCallbackSink(r.log)}
	r.orch = orchestrator.New(r.store, sink, r.summarize)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cmd, err := protocol.DecodeCommand(line)
		if err != nil {
			fmt.Println(mustMarshal(protocol.NewErrorEvent("", err.Error(), "decode_error", "")))
			continue
		}
		r.dispatch(cmd)
	}
}

func (r *repl) dispatch(cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.StartSessionCommand:
		r.handleStartSession(c)
	case protocol.UserMessageCommand:
		go r.handleUserMessage(c)
	case protocol.CancelRequestCommand:
		r.handleCancel(c)
	default:
		fmt.Println(mustMarshal(protocol.NewErrorEvent("", "unsupported command", "unsupported_command", "")))
	}
}

func (r *repl) handleStartSession(c protocol.StartSessionCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sess *sessionstore.Session
	if c.SessionID != "" {
		if loaded, err := r.store.Load(c.SessionID); err == nil {
			sess = loaded
		}
	}
	if sess == nil {
		id, err := sessionstore.NewSessionID("new session", time.Now().UTC())
		if err != nil {
			fmt.Println(mustMarshal(protocol.NewErrorEvent("", err.Error(), "session_init_error", "")))
			return
		}
		sess = sessionstore.New(id, r.defaultModel)

		systemPrompt, err := r.systemPrompt()
		if err != nil {
			fmt.Println(mustMarshal(protocol.NewErrorEvent(sess.SessionID, err.Error(), "prompt_build_error", "")))
			return
		}
		sess.AppendMessage(message.Message{Role: message.RoleSystem, Parts: []message.Part{message.NewText(systemPrompt)}})
	}
	r.sessions[sess.SessionID] = sess
	fmt.Println(mustMarshal(protocol.NewStatusEvent(sess.SessionID, "ready", "")))
}

// systemPrompt builds the coding assistant's system prompt from the
// registered "coding" prompt (internal/prompts/coding.go), the same way
// the teacher's agent builder resolved its system prompt before starting
// a conversation.
func (r *repl) systemPrompt() (string, error) {
	builder, err := prompts.NewPromptBuilder(prompts.DefaultRegistry(), "coding", prompts.PromptV1)
	if err != nil {
		return "", fmt.Errorf("build system prompt: %w", err)
	}
	return builder.Build()
}

func (r *repl) handleUserMessage(c protocol.UserMessageCommand) {
	r.mu.Lock()
	sess, ok := r.sessions[c.SessionID]
	if !ok {
		r.mu.Unlock()
		fmt.Println(mustMarshal(protocol.NewErrorEvent(c.SessionID, "unknown session_id", "unknown_session", "")))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancels[c.SessionID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, c.SessionID)
		r.mu.Unlock()
		cancel()
	}()

	factory := func(ctx context.Context, model string) (*orchestrator.Agent, error) {
		return &orchestrator.Agent{Model: model, StreamFn: r.streamFn, Tools: r.toolReg}, nil
	}

	opts := orchestrator.DefaultOptions()
	opts.GlobalRequestTimeout = 10 * time.Minute

	outcome := r.orch.ProcessRequest(ctx, sess, c.Message, factory, sess.CurrentModel, opts)

	switch outcome.Status {
	case orchestrator.StatusCancelled:
		fmt.Println(mustMarshal(protocol.NewCancelledEvent(c.SessionID, "aborted")))
	case orchestrator.StatusTimeout:
		fmt.Println(mustMarshal(protocol.NewErrorEvent(c.SessionID, outcome.Err.Error(), "timeout", "")))
	case orchestrator.StatusIterationLimit:
		fmt.Println(mustMarshal(protocol.NewStatusEvent(c.SessionID, "iteration_limit_reached", "")))
	case orchestrator.StatusError:
		fmt.Println(mustMarshal(protocol.NewErrorEvent(c.SessionID, outcome.Err.Error(), "agent_error", "")))
	default:
		fmt.Println(mustMarshal(protocol.NewDoneEvent(c.SessionID, "", sess.SortedFilesInContext())))
		r.maybeTitleSession(sess)
	}
}

// maybeTitleSession names a session after its first completed exchange,
// distinct from the Compaction Controller's mid-conversation summary
// (internal/compaction). Runs fire-and-forget: a title is cosmetic, never
// worth blocking or failing the turn over.
func (r *repl) maybeTitleSession(sess *sessionstore.Session) {
	if sess.Title != "" || r.titleGen == nil {
		return
	}
	go func() {
		title, err := r.titleGen(context.Background(), sess.SnapshotMessages())
		if err != nil {
			r.log.Warn("session title generation failed", tunalog.Fields{"session_id": sess.SessionID, "error": err})
			return
		}
		sess.SetTitle(title)
		if err := r.store.Save(sess); err != nil {
			r.log.Warn("session title save failed", tunalog.Fields{"session_id": sess.SessionID, "error": err})
		}
	}()
}

func (r *repl) handleCancel(c protocol.CancelRequestCommand) {
	r.mu.Lock()
	cancel, ok := r.cancels[c.SessionID]
	sess := r.sessions[c.SessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	if sess != nil {
		sess.Runtime.Registry.CancelAllNonTerminal()
	}
}

// stdioSink adapts the callback.EventSink contract onto NDJSON protocol
// events written to stdout — it carries no session id of its own, since
// the bus is shared across sessions; handleUserMessage correlates replies
// by reading session state directly rather than through this sink.
type stdioSink struct{}

func (stdioSink) StreamingText(chunk string) {
	fmt.Println(mustMarshal(protocol.NewAssistantTextEvent("", chunk, "model", false)))
}
func (stdioSink) StreamingThinking(string) {}
func (stdioSink) ToolStart(id, name string, args map[string]any) {
	fmt.Println(mustMarshal(protocol.NewToolEvent("", name, "start", nil, id)))
}
func (stdioSink) ToolResult(id, name, resultOrError string, durationMS int64, isError bool) {
	fmt.Println(mustMarshal(protocol.NewToolOutputEvent("", id, name, resultOrError, isError, "result")))
}
func (stdioSink) Notice(level callback.Level, code callback.Code, msg string, detail map[string]any) {
	fmt.Println(mustMarshal(protocol.NewStatusEvent("", string(code), msg)))
}

// newRetrieval starts the background indexer (bleve/sqlite-backed BM25 +
// embeddings, §DOMAIN STACK) for the current repo root and returns it as
// an indexer.Retrieval for the codebase_search/read_span tools. A failure
// here is non-fatal: the registry falls back to grep-only search.
func newRetrieval(ctx context.Context, repoRoot, dbPath string, applog *tunalog.Logger) (indexer.Retrieval, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	mgr, err := indexer.NewManager(ctx, indexer.ManagerConfig{
		DBPath:            dbPath,
		RepoID:            repoRoot,
		RepoRoot:          repoRoot,
		EnableFileWatcher: true,
		Log:               applog,
	})
	if err != nil {
		return nil, err
	}
	if err := mgr.Start(); err != nil {
		return nil, err
	}
	go func() {
		if err := mgr.InitialIndex(ctx); err != nil {
			applog.Error("initial index scan failed", tunalog.Fields{"error": err})
		}
	}()
	return mgr, nil
}

// fatal logs a startup error as a structured line and exits, mirroring
// log.Fatalf but going through the same logger as everything else.
func fatal(l *tunalog.Logger, msg string, err error) {
	l.Error(msg, tunalog.Fields{"error": err})
	os.Exit(1)
}

func mustMarshal(e protocol.Event) string {
	raw, err := protocol.MarshalEvent(e)
	if err != nil {
		return `{"type":"error","message":"marshal failure"}`
	}
	return string(raw)
}
