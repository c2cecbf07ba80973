// Package tunalog implements the structured logger named in the AMBIENT
// STACK: a Logger backed by stdlib log.Logger that writes one key=value line
// per call instead of the free-form, emoji-laden Printf strings scattered
// through the teacher's hook. NewCallbackSink adapts a Logger onto
// callback.EventSink so orchestrator notices and tool starts/results go
// through the same structured line format; streaming deltas are not logged.
package tunalog

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
)

// Level mirrors callback.Level's three severities plus Debug, which has no
// callback.Level equivalent and is only ever emitted directly by callers.
type Level string

const (
	Debug Level = "debug"
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
)

// Logger writes structured key=value lines through a stdlib *log.Logger.
// It is safe for concurrent use because *log.Logger already serializes
// writes to its destination.
type Logger struct {
	std *log.Logger
}

// New returns a Logger writing to w with the given component prefix
// (e.g. "indexer", "sandbox"). Timestamps are left to the stdlib logger's
// default flags.
func New(w io.Writer, component string) *Logger {
	return &Logger{std: log.New(w, "["+component+"] ", log.LstdFlags)}
}

// Fields is a set of structured key=value pairs attached to a log line.
// Keys are sorted before rendering so identical field sets always produce
// byte-identical lines.
type Fields map[string]any

func (l *Logger) log(level Level, msg string, fields Fields) {
	var b strings.Builder
	b.WriteString("level=")
	b.WriteString(string(level))
	b.WriteString(" msg=")
	b.WriteString(quote(msg))
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(quote(fmt.Sprintf("%v", fields[k])))
		}
	}
	l.std.Print(b.String())
}

func quote(s string) string {
	if strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func (l *Logger) Debug(msg string, fields Fields) { l.log(Debug, msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.log(Info, msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.log(Warn, msg, fields) }
func (l *Logger) Error(msg string, fields Fields) { l.log(Error, msg, fields) }
