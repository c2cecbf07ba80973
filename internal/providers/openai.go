package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/streamfn"
	"github.com/tunacode-sh/tunacode/internal/tool"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIStream implements streamfn.StreamFn against any OpenAI-compatible
// chat completions endpoint (OpenAI itself, or one of the compatible
// providers internal/providers/factory.go wires up: Kimi, Groq, DeepSeek,
// GLM, MiniMax, Gemini, Ollama, LM Studio).
//
// GROUNDED on the teacher's providers/openai.go OpenAIClient.Stream: the
// delta-accumulation-by-ID/index tracking for tool calls is kept, but the
// accumulated JSON is now forwarded as raw fragments (EventToolCallDelta)
// rather than parsed here — StreamState (internal/orchestrator) owns
// assembling the final arguments, per §4.2's explicit event vocabulary.
type OpenAIStream struct {
	client *openai.Client
}

func NewOpenAIStream(apiKey, baseURL string) *OpenAIStream {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIStream{client: openai.NewClientWithConfig(config)}
}

func (c *OpenAIStream) Stream(ctx context.Context, history []message.Message, tools tool.Registry, opts streamfn.Options) (<-chan streamfn.Event, <-chan error) {
	eventCh := make(chan streamfn.Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		msgs := make([]openai.ChatCompletionMessage, 0, len(history))
		var systemMsg string

		for _, m := range history {
			switch m.Role {
			case message.RoleSystem:
				systemMsg = m.Text()
			case message.RoleUser:
				msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text()})
			case message.RoleAssistant:
				content := m.Text()
				var toolCalls []openai.ToolCall
				for _, p := range m.Parts {
					if p.Kind != message.PartToolCall {
						continue
					}
					argsJSON, _ := json.Marshal(p.Args)
					toolCalls = append(toolCalls, openai.ToolCall{
						ID: p.ToolCallID, Type: "function",
						Function: openai.FunctionCall{Name: p.ToolName, Arguments: string(argsJSON)},
					})
				}
				if content == "" && len(toolCalls) > 0 {
					content = " "
				}
				msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content, ToolCalls: toolCalls})
			case message.RoleToolResult:
				for _, p := range m.Parts {
					if p.Kind != message.PartToolResult {
						continue
					}
					content := p.ToolResultContent
					if content == "" {
						content = "{}"
					}
					msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, ToolCallID: p.ToolCallID, Content: content})
				}
			}
		}
		if systemMsg != "" {
			msgs = append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemMsg}}, msgs...)
		}

		var toolDefs []openai.Tool
		for _, ts := range tools.Schemas() {
			var schemaObj map[string]any
			if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
				errCh <- fmt.Errorf("providers: invalid schema for %s: %w", ts.Name, err)
				return
			}
			toolDefs = append(toolDefs, openai.Tool{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{
				Name: ts.Name, Description: ts.Description, Parameters: schemaObj,
			}})
		}

		req := openai.ChatCompletionRequest{
			Model:         opts.Model,
			Messages:      msgs,
			Stream:        true,
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		}
		if len(toolDefs) > 0 {
			req.Tools = toolDefs
			req.ToolChoice = "auto"
		}
		if opts.MaxOutputTokens > 0 {
			req.MaxTokens = opts.MaxOutputTokens
		}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			httpStatus, retryAfter := extractErrorMetadata(err)
			errCh <- wrapProviderError(err, httpStatus, retryAfter)
			return
		}
		defer stream.Close()

		send := func(e streamfn.Event) bool {
			select {
			case eventCh <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}
		send(streamfn.Event{Kind: streamfn.EventMessageStart, Role: message.RoleAssistant})

		seen := map[string]bool{}
		idByIndex := map[int]string{}
		var order []string
		var finalUsage map[string]any
		var respID string

		for {
			resp, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && !strings.Contains(err.Error(), "EOF") {
					httpStatus, retryAfter := extractErrorMetadata(err)
					errCh <- wrapProviderError(err, httpStatus, retryAfter)
					return
				}
				break
			}

			if resp.ID != "" {
				respID = resp.ID
			}
			if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
				finalUsage = map[string]any{
					"input_tokens": resp.Usage.PromptTokens, "output_tokens": resp.Usage.CompletionTokens,
					"cache_read_tokens": 0, "cache_write_tokens": 0, "total_tokens": resp.Usage.TotalTokens,
					"cost_input": 0.0, "cost_output": 0.0,
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				if !send(streamfn.Event{Kind: streamfn.EventTextDelta, Delta: delta.Content}) {
					return
				}
			}
			for _, tcDelta := range delta.ToolCalls {
				id := tcDelta.ID
				if id == "" && tcDelta.Index != nil {
					if existing, ok := idByIndex[*tcDelta.Index]; ok {
						id = existing
					} else {
						id = fmt.Sprintf("temp_%d", *tcDelta.Index)
						idByIndex[*tcDelta.Index] = id
					}
				}
				if id == "" {
					continue
				}
				if !seen[id] {
					seen[id] = true
					order = append(order, id)
					if !send(streamfn.Event{Kind: streamfn.EventToolCallStart, ToolCallID: id, ToolName: tcDelta.Function.Name}) {
						return
					}
				}
				if tcDelta.Function.Arguments != "" {
					if !send(streamfn.Event{Kind: streamfn.EventToolCallDelta, ToolCallID: id, ArgsJSONFragment: tcDelta.Function.Arguments}) {
						return
					}
				}
			}
		}

		for _, id := range order {
			if !send(streamfn.Event{Kind: streamfn.EventToolCallEnd, ToolCallID: id}) {
				return
			}
		}
		if finalUsage != nil {
			usageID := fmt.Sprintf("openai:%s:%d", opts.Model, len(order))
			if respID != "" {
				usageID = "openai:" + respID
			}
			send(streamfn.Event{Kind: streamfn.EventMessageEnd, UsageRaw: finalUsage, UsageID: usageID})
		}
		send(streamfn.Event{Kind: streamfn.EventTurnEnd})
	}()

	return eventCh, errCh
}

// extractErrorMetadata extracts an HTTP status code and Retry-After hint
// from an SDK error's message text — the go-openai fork and go-anthropic/v2
// both surface these only as formatted strings, not typed fields.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	errStr := err.Error()
	var httpStatus int
	switch {
	case strings.Contains(errStr, "429"):
		httpStatus = http.StatusTooManyRequests
	case strings.Contains(errStr, "500"):
		httpStatus = http.StatusInternalServerError
	case strings.Contains(errStr, "502"):
		httpStatus = http.StatusBadGateway
	case strings.Contains(errStr, "503"):
		httpStatus = http.StatusServiceUnavailable
	case strings.Contains(errStr, "504"):
		httpStatus = http.StatusGatewayTimeout
	case strings.Contains(errStr, "401"):
		httpStatus = http.StatusUnauthorized
	case strings.Contains(errStr, "403"):
		httpStatus = http.StatusForbidden
	case strings.Contains(errStr, "400"):
		httpStatus = http.StatusBadRequest
	}

	var retryAfter string
	lower := strings.ToLower(errStr)
	if idx := strings.Index(lower, "retry-after"); idx != -1 {
		if parts := strings.Fields(errStr[idx+11:]); len(parts) > 0 {
			retryAfter = parts[0]
		}
	} else if idx := strings.Index(lower, "retry after"); idx != -1 {
		if parts := strings.Fields(errStr[idx+12:]); len(parts) > 0 {
			retryAfter = parts[0]
		}
	}
	return httpStatus, retryAfter
}
