package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/streamfn"
	"github.com/tunacode-sh/tunacode/internal/tool"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicStream implements streamfn.StreamFn by calling the Anthropic SDK's
// streaming Messages endpoint directly.
//
// GROUNDED on the teacher's providers/anthropic.go AnthropicClient.Stream:
// the tool_use/tool_result block-ordering tracking (prevAssistantHadToolCalls)
// and the OnContentBlockDelta/OnContentBlockStop callback wiring are kept,
// retargeted from engine.ChatMessage/engine.StreamEvent onto
// message.Message/streamfn.Event.
type AnthropicStream struct {
	client *anthropic.Client
}

func NewAnthropicStream(apiKey string) *AnthropicStream {
	return &AnthropicStream{client: anthropic.NewClient(apiKey)}
}

func (c *AnthropicStream) Stream(ctx context.Context, history []message.Message, tools tool.Registry, opts streamfn.Options) (<-chan streamfn.Event, <-chan error) {
	eventCh := make(chan streamfn.Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		var systemParts []anthropic.MessageSystemPart
		var msgs []anthropic.Message
		var prevAssistantHadToolCalls bool

		for _, m := range history {
			switch m.Role {
			case message.RoleSystem:
				systemParts = append(systemParts, anthropic.MessageSystemPart{Type: "text", Text: m.Text()})
				prevAssistantHadToolCalls = false
			case message.RoleUser:
				msgs = append(msgs, anthropic.Message{
					Role:    anthropic.RoleUser,
					Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Text())},
				})
				prevAssistantHadToolCalls = false
			case message.RoleAssistant:
				var content []anthropic.MessageContent
				hadToolCalls := false
				for _, p := range m.Parts {
					switch p.Kind {
					case message.PartText:
						if p.Text != "" {
							content = append(content, anthropic.NewTextMessageContent(p.Text))
						}
					case message.PartToolCall:
						argsJSON, _ := json.Marshal(p.Args)
						content = append(content, anthropic.NewToolUseMessageContent(p.ToolCallID, p.ToolName, json.RawMessage(argsJSON)))
						hadToolCalls = true
					}
				}
				msgs = append(msgs, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
				prevAssistantHadToolCalls = hadToolCalls
			case message.RoleToolResult:
				if !prevAssistantHadToolCalls {
					continue
				}
				for _, p := range m.Parts {
					if p.Kind != message.PartToolResult {
						continue
					}
					text := p.ToolResultContent
					if text == "" {
						text = "{}"
					}
					msgs = append(msgs, anthropic.Message{
						Role:    anthropic.RoleUser,
						Content: []anthropic.MessageContent{anthropic.NewToolResultMessageContent(p.ToolCallID, text, p.IsError)},
					})
				}
				prevAssistantHadToolCalls = false
			}
		}

		var toolDefs []anthropic.ToolDefinition
		for _, ts := range tools.Schemas() {
			var schemaObj map[string]any
			if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
				errCh <- fmt.Errorf("providers: invalid schema for %s: %w", ts.Name, err)
				return
			}
			toolDefs = append(toolDefs, anthropic.ToolDefinition{Name: ts.Name, Description: ts.Description, InputSchema: schemaObj})
		}

		maxTokens := 4096
		if opts.MaxOutputTokens > 0 {
			maxTokens = opts.MaxOutputTokens
		}
		temperature := float32(0.1)

		req := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:       anthropic.Model(opts.Model),
				Messages:    msgs,
				MaxTokens:   maxTokens,
				Temperature: &temperature,
			},
		}
		if len(systemParts) > 0 {
			req.MultiSystem = systemParts
		}
		if len(toolDefs) > 0 {
			req.Tools = toolDefs
		}

		send := func(e streamfn.Event) bool {
			select {
			case eventCh <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		send(streamfn.Event{Kind: streamfn.EventMessageStart, Role: message.RoleAssistant})

		req.OnError = func(errResp anthropic.ErrorResponse) {
			errCh <- fmt.Errorf("anthropic stream: %s", errResp.Error.Message)
		}
		req.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				send(streamfn.Event{Kind: streamfn.EventTextDelta, Delta: *delta.Delta.Text})
			}
		}
		req.OnContentBlockStop = func(stop anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			if content.Type != "tool_use" || content.MessageContentToolUse == nil {
				return
			}
			tc := content.MessageContentToolUse
			argsJSON := "{}"
			if len(tc.Input) > 0 {
				argsJSON = string(tc.Input)
			}
			send(streamfn.Event{Kind: streamfn.EventToolCallStart, ToolCallID: tc.ID, ToolName: tc.Name})
			send(streamfn.Event{Kind: streamfn.EventToolCallDelta, ToolCallID: tc.ID, ArgsJSONFragment: argsJSON})
			send(streamfn.Event{Kind: streamfn.EventToolCallEnd, ToolCallID: tc.ID})
		}

		resp, err := c.client.CreateMessagesStream(ctx, req)
		if err != nil {
			httpStatus, retryAfter := extractErrorMetadata(err)
			errCh <- wrapProviderError(err, httpStatus, retryAfter)
			return
		}

		raw := map[string]any{
			"input_tokens":        resp.Usage.InputTokens,
			"output_tokens":       resp.Usage.OutputTokens,
			"cache_read_tokens":   resp.Usage.CacheReadInputTokens,
			"cache_write_tokens":  resp.Usage.CacheCreationInputTokens,
			"total_tokens":        resp.Usage.InputTokens + resp.Usage.OutputTokens,
			"cost_input":          0.0,
			"cost_output":         0.0,
		}
		send(streamfn.Event{Kind: streamfn.EventMessageEnd, UsageRaw: raw, UsageID: fmt.Sprintf("anthropic:%s", resp.ID)})
		send(streamfn.Event{Kind: streamfn.EventTurnEnd})
	}()

	return eventCh, errCh
}
