package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/tunacode-sh/tunacode/internal/callback"
	"github.com/tunacode-sh/tunacode/internal/compaction"
	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/sessionstore"
	"github.com/tunacode-sh/tunacode/internal/streamfn"
	"github.com/tunacode-sh/tunacode/internal/tool"
)

func usageDict(input, output int) map[string]any {
	return map[string]any{
		"input_tokens": input, "output_tokens": output,
		"cache_read_tokens": 0, "cache_write_tokens": 0, "total_tokens": input + output,
		"cost": map[string]any{"input": 0.0, "output": 0.0, "total": 0.0},
	}
}

// scriptedStream replays a fixed event sequence, once per call, ignoring
// history/opts, modeling S1/S2/S6 from spec §8.
type scriptedStream struct {
	turns [][]streamfn.Event
	n     int
}

func (s *scriptedStream) Stream(ctx context.Context, history []message.Message, tools tool.Registry, opts streamfn.Options) (<-chan streamfn.Event, <-chan error) {
	evCh := make(chan streamfn.Event, 16)
	errCh := make(chan error, 1)
	var turn []streamfn.Event
	if s.n < len(s.turns) {
		turn = s.turns[s.n]
	}
	s.n++
	go func() {
		defer close(evCh)
		defer close(errCh)
		for _, e := range turn {
			evCh <- e
		}
	}()
	return evCh, errCh
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *sessionstore.Session) {
	t.Helper()
	store := sessionstore.NewStore(t.TempDir())
	o := New(store, callback.Nop{}, nil)
	sess := sessionstore.New("2026-07-31_00-00-00_test_abc123", "anthropic:claude-3")
	return o, sess
}

func TestS1SingleTurnText(t *testing.T) {
	o, sess := newTestOrchestrator(t)
	stream := &scriptedStream{turns: [][]streamfn.Event{
		{
			{Kind: streamfn.EventMessageStart, Role: message.RoleAssistant},
			{Kind: streamfn.EventTextDelta, Delta: "hi"},
			{Kind: streamfn.EventMessageEnd, UsageID: "p1", UsageRaw: usageDict(5, 1)},
			{Kind: streamfn.EventTurnEnd},
			{Kind: streamfn.EventAgentEnd},
		},
	}}
	factory := func(ctx context.Context, model string) (*Agent, error) {
		return &Agent{StreamFn: stream, Tools: tool.Registry{}}, nil
	}

	outcome := o.ProcessRequest(context.Background(), sess, "hello", factory, struct{}{}, DefaultOptions())
	if outcome.Status != StatusCompleted {
		t.Fatalf("expected completed, got %+v (err=%v)", outcome, outcome.Err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(sess.Messages))
	}
	if sess.SessionTotalUsage.TotalTokens != 6 {
		t.Fatalf("expected total_tokens=6, got %d", sess.SessionTotalUsage.TotalTokens)
	}
}

func TestS2ToolRoundtrip(t *testing.T) {
	o, sess := newTestOrchestrator(t)
	stream := &scriptedStream{turns: [][]streamfn.Event{
		{
			{Kind: streamfn.EventMessageStart, Role: message.RoleAssistant},
			{Kind: streamfn.EventToolCallStart, ToolCallID: "t1", ToolName: "read_file"},
			{Kind: streamfn.EventToolCallDelta, ToolCallID: "t1", ArgsJSONFragment: `{"path":"a.txt"}`},
			{Kind: streamfn.EventToolCallEnd, ToolCallID: "t1"},
			{Kind: streamfn.EventMessageEnd},
			{Kind: streamfn.EventTurnEnd},
		},
		{
			{Kind: streamfn.EventMessageStart, Role: message.RoleAssistant},
			{Kind: streamfn.EventTextDelta, Delta: "done"},
			{Kind: streamfn.EventMessageEnd},
			{Kind: streamfn.EventTurnEnd},
			{Kind: streamfn.EventAgentEnd},
		},
	}}
	readFile := tool.Tool{
		Name:       "read_file",
		SchemaJSON: `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
		Execute: func(ctx context.Context, toolCallID string, args map[string]any, abort tool.AbortSignal, onUpdate tool.OnUpdate) tool.AgentToolResult {
			return tool.AgentToolResult{ToolCallID: toolCallID, Content: "abc"}
		},
	}
	factory := func(ctx context.Context, model string) (*Agent, error) {
		return &Agent{StreamFn: stream, Tools: tool.Registry{"read_file": readFile}}, nil
	}

	outcome := o.ProcessRequest(context.Background(), sess, "read a.txt", factory, struct{}{}, DefaultOptions())
	if outcome.Status != StatusCompleted {
		t.Fatalf("expected completed, got %+v (err=%v)", outcome, outcome.Err)
	}
	if len(sess.Messages) != 4 {
		t.Fatalf("expected [user, assistant(tool_call), tool_result, assistant(text)], got %d: %+v", len(sess.Messages), sess.Messages)
	}
	entry, ok := sess.Runtime.Registry.Get("t1")
	if !ok || entry.Status != sessionstore.StatusCompleted {
		t.Fatalf("expected t1 COMPLETED, got %+v (ok=%v)", entry, ok)
	}
}

func TestS6CancellationMidTool(t *testing.T) {
	o, sess := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())

	blocking := tool.Tool{
		Name:       "slow",
		SchemaJSON: `{"type":"object"}`,
		Execute: func(execCtx context.Context, toolCallID string, args map[string]any, abort tool.AbortSignal, onUpdate tool.OnUpdate) tool.AgentToolResult {
			cancel() // simulate abort firing while the tool is running
			<-execCtx.Done()
			return tool.AgentToolResult{ToolCallID: toolCallID, Content: "cancelled", IsError: true}
		},
	}
	stream := &scriptedStream{turns: [][]streamfn.Event{
		{
			{Kind: streamfn.EventMessageStart, Role: message.RoleAssistant},
			{Kind: streamfn.EventToolCallStart, ToolCallID: "t1", ToolName: "slow"},
			{Kind: streamfn.EventToolCallEnd, ToolCallID: "t1"},
			{Kind: streamfn.EventMessageEnd},
			{Kind: streamfn.EventTurnEnd},
		},
	}}
	factory := func(fctx context.Context, model string) (*Agent, error) {
		return &Agent{StreamFn: stream, Tools: tool.Registry{"slow": blocking}}, nil
	}

	outcome := o.ProcessRequest(ctx, sess, "go slow", factory, struct{}{}, DefaultOptions())
	if outcome.Status != StatusCancelled && outcome.Status != StatusCompleted {
		// Either a clean cancelled status or (if the race lands after the
		// last tool) a completed turn is acceptable; what must never happen
		// is an orphaned RUNNING entry or an exception-style error status.
		t.Fatalf("unexpected status: %+v", outcome)
	}
	entry, ok := sess.Runtime.Registry.Get("t1")
	if ok && entry.Status == sessionstore.StatusRunning {
		t.Fatalf("tool entry must never remain RUNNING after cancellation, got %+v", entry)
	}
}

func TestIterationBoundNeverExceeded(t *testing.T) {
	o, sess := newTestOrchestrator(t)
	turn := []streamfn.Event{
		{Kind: streamfn.EventMessageStart, Role: message.RoleAssistant},
		{Kind: streamfn.EventToolCallStart, ToolCallID: "loop", ToolName: "noop"},
		{Kind: streamfn.EventToolCallEnd, ToolCallID: "loop"},
		{Kind: streamfn.EventMessageEnd},
		{Kind: streamfn.EventTurnEnd},
	}
	var turns [][]streamfn.Event
	for i := 0; i < 50; i++ {
		t2 := make([]streamfn.Event, len(turn))
		copy(t2, turn)
		t2[1].ToolCallID = "loop"
		turns = append(turns, t2)
	}
	stream := &scriptedStream{turns: turns}
	noop := tool.Tool{
		Name:       "noop",
		SchemaJSON: `{"type":"object"}`,
		Execute: func(ctx context.Context, toolCallID string, args map[string]any, abort tool.AbortSignal, onUpdate tool.OnUpdate) tool.AgentToolResult {
			return tool.AgentToolResult{ToolCallID: toolCallID, Content: "ok"}
		},
	}
	factory := func(ctx context.Context, model string) (*Agent, error) {
		return &Agent{StreamFn: stream, Tools: tool.Registry{"noop": noop}}, nil
	}

	opts := DefaultOptions()
	opts.MaxIterations = 5
	outcome := o.ProcessRequest(context.Background(), sess, "loop forever", factory, struct{}{}, opts)
	if outcome.Status != StatusIterationLimit {
		t.Fatalf("expected iteration_limit_reached, got %+v", outcome)
	}
	if sess.Runtime.Iteration > opts.MaxIterations+1 {
		t.Fatalf("iteration bound exceeded: %d > %d", sess.Runtime.Iteration, opts.MaxIterations)
	}
}

func TestAgentCacheReusesSameHash(t *testing.T) {
	c := NewAgentCache()
	calls := 0
	factory := func(ctx context.Context, model string) (*Agent, error) {
		calls++
		return &Agent{}, nil
	}
	hash, _ := VersionHash(map[string]any{"max_retries": 3})
	ctx := context.Background()
	if _, err := c.GetOrCreate(ctx, "m1", hash, factory); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrCreate(ctx, "m1", hash, factory); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected factory called once, got %d", calls)
	}

	otherHash, _ := VersionHash(map[string]any{"max_retries": 4})
	if _, err := c.GetOrCreate(ctx, "m1", otherHash, factory); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected config change to invalidate cache entry, factory called %d times", calls)
	}
}

func TestCompactionTriggeredEndToEnd(t *testing.T) {
	o, sess := newTestOrchestrator(t)
	// Pre-seed history heavy enough to sit at the inclusive threshold.
	for i := 0; i < 5; i++ {
		sess.AppendMessage(message.Message{Role: message.RoleUser, Parts: []message.Part{message.NewText(
			"this is a long filler message meant to push the estimated token count up toward the compaction threshold",
		)}})
	}
	stream := &scriptedStream{turns: [][]streamfn.Event{
		{
			{Kind: streamfn.EventMessageStart, Role: message.RoleAssistant},
			{Kind: streamfn.EventTextDelta, Delta: "ok"},
			{Kind: streamfn.EventMessageEnd},
			{Kind: streamfn.EventTurnEnd},
			{Kind: streamfn.EventAgentEnd},
		},
	}}
	factory := func(ctx context.Context, model string) (*Agent, error) {
		return &Agent{StreamFn: stream, Tools: tool.Registry{}}, nil
	}

	opts := DefaultOptions()
	opts.Compaction = compaction.Config{Enabled: true, MaxTokens: 50, ReserveTokens: 0, KeepRecentTokens: 5}
	summarizerCalled := false
	o.Summarize = func(ctx context.Context, transcript, prev string) (string, error) {
		summarizerCalled = true
		return "summary", nil
	}

	_ = o.ProcessRequest(context.Background(), sess, "continue", factory, struct{}{}, opts)
	if !summarizerCalled {
		t.Fatal("expected compaction to trigger and call the summarizer")
	}
	if sess.Compaction == nil {
		t.Fatal("expected a CompactionRecord to be recorded")
	}
}

func TestGlobalRequestTimeoutFires(t *testing.T) {
	o, sess := newTestOrchestrator(t)
	factory := func(ctx context.Context, model string) (*Agent, error) {
		return &Agent{StreamFn: &blockingStream{}, Tools: tool.Registry{}}, nil
	}
	opts := DefaultOptions()
	opts.GlobalRequestTimeout = 30 * time.Millisecond
	outcome := o.ProcessRequest(context.Background(), sess, "hang", factory, struct{}{}, opts)
	if outcome.Status != StatusTimeout {
		t.Fatalf("expected global request timeout status, got %+v", outcome)
	}
}

// blockingStream never sends agent_end and never closes until ctx is done,
// modeling a provider stream that hangs past global_request_timeout.
type blockingStream struct{}

func (b *blockingStream) Stream(ctx context.Context, history []message.Message, tools tool.Registry, opts streamfn.Options) (<-chan streamfn.Event, <-chan error) {
	evCh := make(chan streamfn.Event)
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		close(evCh)
		errCh <- ctx.Err()
		close(errCh)
	}()
	return evCh, errCh
}
