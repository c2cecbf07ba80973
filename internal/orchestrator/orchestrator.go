package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tunacode-sh/tunacode/internal/callback"
	"github.com/tunacode-sh/tunacode/internal/compaction"
	"github.com/tunacode-sh/tunacode/internal/engine"
	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/sessionstore"
	"github.com/tunacode-sh/tunacode/internal/streamfn"
	"github.com/tunacode-sh/tunacode/internal/tool"
	"github.com/tunacode-sh/tunacode/internal/tunaerr"
)

// engineStateKey is the context key the retained engine.State bookkeeping
// (mini-plan, phase, soft-cap counters) is attached under. It must be the
// literal string "engine_state": internal/tools/reasoning/plan.go already
// reads ctx.Value("engine_state") to find the mini-plan.
const engineStateKey = "engine_state"

// Status is the closed set of terminal statuses process_request can return.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusTimeout        Status = "timeout"
	StatusIterationLimit Status = "iteration_limit_reached"
	StatusError          Status = "error"
)

// RequestOutcome is process_request's return value (§6.2).
type RequestOutcome struct {
	Status    Status
	Err       error
	RequestID string
}

// Options is the configuration surface of §6.3.
type Options struct {
	MaxIterations        int
	MaxRetries           int
	GlobalRequestTimeout time.Duration // 0 disables
	RequestDelay         time.Duration
	Compaction           compaction.Config
	MaxOutputTokens      int

	// EnforcePlanning gates edit/write tools behind a prior plan tool call
	// (internal/tools/reasoning/plan.go), a supplemental feature kept from
	// the teacher and not part of the four core subsystems: the core
	// invariants hold identically whether or not this is enabled.
	EnforcePlanning bool
}

// DefaultOptions mirrors the defaults named in §6.3.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 20,
		MaxRetries:    3,
	}
}

// Orchestrator drives process_request (§4.3). It owns the agent cache and a
// reference to the session store for the single shared writer path that
// persists every successful/cancelled exit.
type Orchestrator struct {
	Cache     *AgentCache
	Store     *sessionstore.Store
	Sink      callback.EventSink
	Summarize compaction.SummaryGenerator
}

func New(store *sessionstore.Store, sink callback.EventSink, summarize compaction.SummaryGenerator) *Orchestrator {
	if sink == nil {
		sink = callback.Nop{}
	}
	return &Orchestrator{Cache: NewAgentCache(), Store: store, Sink: sink, Summarize: summarize}
}

// ProcessRequest is the primary entry point (§4.3, §6.2).
func (o *Orchestrator) ProcessRequest(ctx context.Context, sess *sessionstore.Session, userText string, factory Factory, configForHash any, opts Options) RequestOutcome {
	requestID := uuid.NewString()
	sess.Runtime.Iteration = 0

	abortCtx := ctx
	var cancel context.CancelFunc
	if opts.GlobalRequestTimeout > 0 {
		abortCtx, cancel = context.WithTimeout(ctx, opts.GlobalRequestTimeout)
	} else {
		abortCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	hash, err := VersionHash(configForHash)
	if err != nil {
		return RequestOutcome{Status: StatusError, Err: err, RequestID: requestID}
	}

	agent, err := o.Cache.GetOrCreate(ctx, sess.CurrentModel, hash, factory)
	if err != nil {
		return RequestOutcome{Status: StatusError, Err: tunaerr.WithRequestContext(err, requestID, sess.CurrentModel, 0), RequestID: requestID}
	}

	sess.AppendMessage(message.Message{Role: message.RoleUser, Parts: []message.Part{message.NewText(userText)}})

	if compaction.ShouldCompact(opts.Compaction, sess.SnapshotMessages()) {
		o.applyCompaction(ctx, sess, opts, false)
	}

	outcome := o.runStream(abortCtx, sess, agent, requestID, opts)

	if tunaerr.IsOverflow(outcome.Err) {
		o.Sink.Notice(callback.LevelWarning, callback.CodeOverflowRetry, "context overflow detected, forcing compaction and retrying once", nil)
		rec := o.applyCompaction(ctx, sess, opts, true)
		if rec.Status == compaction.StatusFailed {
			outcome = RequestOutcome{Status: StatusError, Err: &tunaerr.FatalCompactionError{Reason: rec.Reason}, RequestID: requestID}
		} else {
			outcome = o.runStream(abortCtx, sess, agent, requestID, opts)
			if tunaerr.IsOverflow(outcome.Err) {
				outcome = RequestOutcome{Status: StatusError, Err: &tunaerr.FatalCompactionError{Reason: "second overflow after recovery compaction"}, RequestID: requestID}
			}
		}
	}

	if tunaerr.IsUserAbort(outcome.Err) || outcome.Status == StatusTimeout {
		o.Cache.Invalidate(sess.CurrentModel)
	}

	switch outcome.Status {
	case StatusCompleted, StatusCancelled, StatusIterationLimit, StatusTimeout:
		if saveErr := o.Store.Save(sess); saveErr != nil && outcome.Err == nil {
			outcome.Err = saveErr
			outcome.Status = StatusError
		}
	}

	return outcome
}

// applyCompaction runs the pure Compaction Controller and applies its
// outcome through the single shared writer path (§4.5's "the orchestrator
// applies the returned messages via a single shared writer path").
func (o *Orchestrator) applyCompaction(ctx context.Context, sess *sessionstore.Session, opts Options, overflow bool) compaction.Outcome {
	msgs := sess.SnapshotMessages()
	prevSummary := ""
	if sess.Compaction != nil {
		prevSummary = sess.Compaction.SummaryText
	}

	var out compaction.Outcome
	if overflow {
		out = compaction.RunOverflowRecovery(ctx, opts.Compaction, msgs, prevSummary, o.Summarize)
	} else {
		out = compaction.Run(ctx, opts.Compaction, msgs, prevSummary, o.Summarize)
	}

	switch out.Status {
	case compaction.StatusCompacted:
		boundary := len(msgs) - (out.RetainedMessageCount - 1)
		if boundary < 0 {
			boundary = 0
		}
		sess.ReplacePrefix(boundary, out.Messages[0], sessionstore.CompactionRecord{
			SummaryText:          out.SummaryText,
			CompactedAt:          compaction.NowUTC(),
			OriginalMessageCount: out.OriginalMessageCount,
			RetainedMessageCount: out.RetainedMessageCount,
			TokensBefore:         out.TokensBefore,
			TokensAfter:          out.TokensAfter,
		})
		o.Sink.Notice(callback.LevelInfo, callback.CodeCompactionApplied, "conversation history compacted", map[string]any{
			"tokens_before": out.TokensBefore, "tokens_after": out.TokensAfter,
		})
	case compaction.StatusSkipped:
		o.Sink.Notice(callback.LevelInfo, callback.CodeCompactionSkipped, out.Reason, map[string]any{"detail": out.Detail})
	case compaction.StatusFailed:
		o.Sink.Notice(callback.LevelError, callback.CodeCompactionSkipped, "compaction failed", map[string]any{"reason": out.Reason})
	}
	return out
}

// runStream implements _run_stream (§4.3): the event loop that drives one
// or more assistant turns until a terminal condition.
func (o *Orchestrator) runStream(ctx context.Context, sess *sessionstore.Session, agent *Agent, requestID string, opts Options) RequestOutcome {
	state := NewStreamState()
	maxIter := opts.MaxIterations
	if maxIter == 0 {
		maxIter = 20
	}

	engineState := &engine.State{
		Model:           agent.Model,
		MaxSteps:        maxIter,
		FailureCounts:   map[string]int{},
		FileReadCache:   map[string]bool{},
		EditToolBlocked: opts.EnforcePlanning,
	}
	ctx = context.WithValue(ctx, engineStateKey, engineState)

	var lastPhase engine.Phase
	for {
		if ctx.Err() != nil {
			return o.cleanupForContext(ctx, sess, requestID)
		}

		state.Iteration++
		sess.Runtime.Iteration = state.Iteration
		if state.Iteration > maxIter {
			o.Sink.Notice(callback.LevelWarning, callback.CodeIterationLimit, "iteration bound reached", nil)
			return RequestOutcome{Status: StatusIterationLimit, RequestID: requestID}
		}

		state.resetTurnText()
		state.Turn = TurnAssistant

		history := sess.SnapshotMessages()
		events, errCh := agent.StreamFn.Stream(ctx, history, agent.Tools, streamfn.Options{
			Model: agent.Model, MaxOutputTokens: opts.MaxOutputTokens, Abort: tool.NewAbortSignal(ctx),
		})

		agentEnded := false
		for ev := range events {
			if ctx.Err() != nil {
				return o.cleanupForContext(ctx, sess, requestID)
			}
			ended, err := o.dispatch(sess, state, ev)
			if err != nil {
				sess.Runtime.Registry.CancelAllNonTerminal()
				return RequestOutcome{Status: StatusError, Err: tunaerr.WithRequestContext(err, requestID, agent.Model, state.Iteration), RequestID: requestID}
			}
			if ended {
				agentEnded = true
			}
		}

		if err := <-errCh; err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return o.cleanupForContext(ctx, sess, requestID)
			}
			return RequestOutcome{Status: StatusError, Err: err, RequestID: requestID}
		}

		toolCalls := o.finalizeAssistantTurn(sess, state)

		if phase := engine.DetectPhase(toChatMessages(sess.SnapshotMessages())); phase != lastPhase {
			lastPhase = phase
			engineState.Phase = phase
			o.Sink.Notice(callback.LevelInfo, callback.CodePhaseDetected, string(phase), nil)
		}

		if agentEnded && len(toolCalls) == 0 {
			return RequestOutcome{Status: StatusCompleted, RequestID: requestID}
		}

		if len(toolCalls) == 0 {
			if state.AssistantText == "" && state.AssistantThinking == "" {
				if state.EmptyResponseIntervened {
					return RequestOutcome{Status: StatusIterationLimit, RequestID: requestID}
				}
				state.EmptyResponseIntervened = true
				sess.AppendMessage(message.Message{
					Role:  message.RoleUser,
					Parts: []message.Part{message.NewText("no visible output was produced; either summarize or call a tool")},
				})
				o.Sink.Notice(callback.LevelInfo, callback.CodeEmptyResponseRetried, "empty assistant turn, intervening once", nil)
				continue
			}
			return RequestOutcome{Status: StatusCompleted, RequestID: requestID}
		}

		o.executeTools(ctx, sess, agent, toolCalls, engineState)

		if err := engine.CheckSoftCaps(engineState); err != nil {
			o.Sink.Notice(callback.LevelWarning, callback.CodeSoftCapReached, err.Error(), nil)
		}
		// loop continues: the model sees the new tool_result messages next turn.
	}
}

// dispatch handles one streamfn.Event per §4.3's typed handler table.
// Returns true when agent_end has been observed, or a non-nil err when the
// event itself is fatal (e.g. a usage payload violating the canonical
// schema, §8 invariant 11) — the caller aborts the request rather than
// continuing the loop.
func (o *Orchestrator) dispatch(sess *sessionstore.Session, state *StreamState, ev streamfn.Event) (bool, error) {
	switch ev.Kind {
	case streamfn.EventMessageStart:
		state.Turn = TurnAssistant
	case streamfn.EventTextDelta:
		state.AssistantText += ev.Delta
		o.Sink.StreamingText(ev.Delta)
	case streamfn.EventThinkingDelta:
		state.AssistantThinking += ev.Delta
		o.Sink.StreamingThinking(ev.Delta)
	case streamfn.EventToolCallStart:
		state.beginToolCall(ev.ToolCallID, ev.ToolName)
	case streamfn.EventToolCallDelta:
		state.appendToolCallArgs(ev.ToolCallID, ev.ArgsJSONFragment)
	case streamfn.EventToolCallEnd:
		if p, ok := state.ToolCallPartials[ev.ToolCallID]; ok {
			args := map[string]any{}
			if p.argsJSON != "" {
				_ = json.Unmarshal([]byte(p.argsJSON), &args)
			}
			sess.Runtime.Registry.Register(ev.ToolCallID, p.name, args)
		}
	case streamfn.EventMessageEnd:
		if err := o.recordUsage(sess, ev.UsageID, ev.UsageRaw); err != nil {
			return false, err
		}
	case streamfn.EventTurnEnd:
		if err := o.recordUsage(sess, ev.UsageID, ev.UsageRaw); err != nil {
			return false, err
		}
	case streamfn.EventAgentEnd:
		return true, nil
	}
	return false, nil
}

// recordUsage parses a raw usage payload and records it against sess.
// Per §4.2/§8 invariant 11, a payload failing ParseUsage's schema
// validation is fail-loud: it is never degraded to a notice or recorded as
// zero, it aborts the request as an *tunaerr.AgentError.
func (o *Orchestrator) recordUsage(sess *sessionstore.Session, usageID string, raw map[string]any) error {
	if raw == nil {
		return nil
	}
	u, err := message.ParseUsage(raw)
	if err != nil {
		return &tunaerr.AgentError{Provider: sess.CurrentModel, Err: fmt.Errorf("invalid usage payload: %w", err)}
	}
	sess.AddUsage(usageID, u)
	return nil
}

// finalizeAssistantTurn builds the assistant message for this turn (text +
// thinking + tool_call parts, in the order they were announced) and appends
// it to the session. Returns the tool calls that still need execution.
func (o *Orchestrator) finalizeAssistantTurn(sess *sessionstore.Session, state *StreamState) []toolCallPartial {
	var parts []message.Part
	if state.AssistantThinking != "" {
		parts = append(parts, message.NewThinking(state.AssistantThinking))
	}
	if state.AssistantText != "" {
		parts = append(parts, message.NewText(state.AssistantText))
	}
	var calls []toolCallPartial
	for _, id := range state.toolCallOrder {
		p := state.ToolCallPartials[id]
		args := map[string]any{}
		if p.argsJSON != "" {
			_ = json.Unmarshal([]byte(p.argsJSON), &args)
		}
		parts = append(parts, message.NewToolCall(p.id, p.name, args))
		calls = append(calls, toolCallPartial{id: p.id, name: p.name, argsJSON: p.argsJSON})
	}
	if len(parts) > 0 {
		sess.AppendMessage(message.Message{Role: message.RoleAssistant, Parts: parts})
	}
	return calls
}

// executeTools runs every pending tool call sequentially, in announcement
// order, per §5's ordering guarantee: each tool_result immediately follows
// its issuing tool_call in the persisted message list.
func (o *Orchestrator) executeTools(ctx context.Context, sess *sessionstore.Session, agent *Agent, calls []toolCallPartial, engineState *engine.State) {
	abort := tool.NewAbortSignal(ctx)
	for i, c := range calls {
		args := map[string]any{}
		if c.argsJSON != "" {
			_ = json.Unmarshal([]byte(c.argsJSON), &args)
		}

		sess.Runtime.Registry.MarkRunning(c.id)
		o.Sink.ToolStart(c.id, c.name, args)
		start := time.Now()

		entry, _ := sess.Runtime.Registry.Get(c.id)
		result := agent.Tools.Call(ctx, c.id, c.name, args, abort, nil, entry.Attempts)

		sess.Runtime.Registry.MarkDone(c.id, result.Content, result.IsError)
		o.Sink.ToolResult(c.id, c.name, result.Content, time.Since(start).Milliseconds(), result.IsError)

		engineState.ToolCallCount++
		if result.IsError {
			key := c.name
			if c.name == "search_replace" {
				if p, ok := args["file_path"].(string); ok {
					key = "search_replace:" + p
				}
			}
			engineState.FailureCounts[key]++
		}

		sess.AppendMessage(message.Message{
			Role:  message.RoleToolResult,
			Parts: []message.Part{message.NewToolResult(c.id, result.Content, result.IsError)},
		})

		if ctx.Err() != nil {
			o.cancelRemainingToolCalls(sess, calls[i+1:])
			return
		}
	}
}

// cancelRemainingToolCalls appends a cancelled tool_result for every call
// that never ran because the request was aborted mid-turn. Without this,
// the tool_call parts finalizeAssistantTurn already wrote for these calls
// would be left without a matching tool_result in the persisted history,
// violating §8 invariants 1 and 8 (mirrors S6's abort-mid-turn scenario).
func (o *Orchestrator) cancelRemainingToolCalls(sess *sessionstore.Session, remaining []toolCallPartial) {
	for _, c := range remaining {
		sess.AppendMessage(message.Message{
			Role:  message.RoleToolResult,
			Parts: []message.Part{message.NewToolResult(c.id, "cancelled", true)},
		})
	}
	sess.Runtime.Registry.CancelAllNonTerminal()
}

// toChatMessages renders the canonical session history into the engine
// package's lighter ChatMessage shape, which is all DetectPhase needs.
func toChatMessages(msgs []message.Message) []engine.ChatMessage {
	out := make([]engine.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := engine.RoleUser
		switch m.Role {
		case message.RoleAssistant:
			role = engine.RoleAssistant
		case message.RoleSystem:
			role = engine.RoleSystem
		case message.RoleToolResult:
			role = engine.RoleTool
		}
		var text string
		var calls []engine.ToolCall
		for _, p := range m.Parts {
			switch p.Kind {
			case message.PartText, message.PartThinking:
				text += p.Text
			case message.PartToolCall:
				calls = append(calls, engine.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Args: p.Args})
			}
		}
		cm := engine.ChatMessage{Role: role, Content: text, ToolCalls: calls}
		if role == engine.RoleTool {
			cm.Name = "tool_result"
		}
		out = append(out, cm)
	}
	return out
}

// cleanupForContext performs the abort cleanup of §5 (cancel in-flight
// work, mark non-terminal registry entries CANCELLED) and distinguishes a
// wall-clock timeout (fatal, §7) from a plain user-initiated abort (clean
// terminal status, §5) by inspecting why ctx ended.
func (o *Orchestrator) cleanupForContext(ctx context.Context, sess *sessionstore.Session, requestID string) RequestOutcome {
	sess.Runtime.Registry.CancelAllNonTerminal()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		o.Sink.Notice(callback.LevelError, callback.CodeTimeout, "global request timeout", nil)
		return RequestOutcome{Status: StatusTimeout, Err: &tunaerr.GlobalRequestTimeoutError{}, RequestID: requestID}
	}
	o.Sink.Notice(callback.LevelInfo, callback.CodeCancelled, "request cancelled", nil)
	return RequestOutcome{Status: StatusCancelled, Err: &tunaerr.UserAbort{}, RequestID: requestID}
}
