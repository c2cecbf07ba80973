package tunalog

import "github.com/tunacode-sh/tunacode/internal/callback"

// loggingSink adapts a Logger onto callback.EventSink, mirroring
// engine/hook_logger.go's LoggerHook but against the 5-method bus instead of
// the teacher's 15-method Hook interface. Streaming text/thinking deltas are
// intentionally not logged line-by-line (that would flood the log with one
// line per token); everything else gets a structured line.
type loggingSink struct {
	log *Logger
}

// NewCallbackSink returns a callback.EventSink that renders tool starts,
// tool results, and notices as structured log lines through l.
func NewCallbackSink(l *Logger) callback.EventSink {
	return loggingSink{log: l}
}

func (s loggingSink) StreamingText(string)     {}
func (s loggingSink) StreamingThinking(string) {}

func (s loggingSink) ToolStart(id, name string, args map[string]any) {
	s.log.Info("tool_start", Fields{"id": id, "name": name, "args": args})
}

func (s loggingSink) ToolResult(id, name, resultOrError string, durationMS int64, isError bool) {
	preview := resultOrError
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	level := Info
	if isError {
		level = Warn
	}
	s.log.log(level, "tool_result", Fields{
		"id": id, "name": name, "duration_ms": durationMS, "is_error": isError, "result": preview,
	})
}

func (s loggingSink) Notice(level callback.Level, code callback.Code, message string, detail map[string]any) {
	fields := Fields{"code": string(code)}
	for k, v := range detail {
		fields[k] = v
	}
	switch level {
	case callback.LevelError:
		s.log.Error(message, fields)
	case callback.LevelWarning:
		s.log.Warn(message, fields)
	default:
		s.log.Info(message, fields)
	}
}
