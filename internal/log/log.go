// Package log implements the structured logger used throughout mxstsd.
//
// Logger is a small, name-scoped wrapper that formats each message as
// "name: message\t{json fields}" and hands it to a pluggable Output sink.
// A Logger can also back a *zap.Logger (see Zap) for code that wants one;
// that adapter routes zap entries through the same formatting and Output.
package log

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Output is where formatted log lines go.
type Output interface {
	Write(stamp time.Time, debug bool, msg string)
	Close() error
}

// Logger writes formatted output to the underlying Output.
//
// Logger is stateless and can be copied freely; the underlying Output is
// not copied and must provide its own goroutine-safety if shared.
type Logger struct {
	Out   Output
	Name  string
	Debug bool

	// Fields are merged into every message emitted through this Logger.
	Fields map[string]interface{}
}

// Zap exposes this Logger as a *zap.Logger for code that expects one.
func (l Logger) Zap() *zap.Logger {
	return zap.New(zapCore{l: l})
}

// With returns a copy of the Logger with additional fields merged in.
func (l Logger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.Fields)+len(fields))
	for k, v := range l.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.Fields = merged
	return l
}

func (l Logger) Debugln(val ...interface{}) {
	if !l.Debug {
		return
	}
	l.log(true, l.formatMsg(strings.TrimRight(fmt.Sprintln(val...), "\n"), nil))
}

func (l Logger) Println(val ...interface{}) {
	l.log(false, l.formatMsg(strings.TrimRight(fmt.Sprintln(val...), "\n"), nil))
}

// Msg writes an informational, field-tagged message.
func (l Logger) Msg(msg string, fields ...interface{}) {
	m := make(map[string]interface{}, len(fields)/2)
	fieldsToMap(fields, m)
	l.log(false, l.formatMsg(msg, m))
}

// DebugMsg is like Msg but suppressed unless Debug is set.
func (l Logger) DebugMsg(msg string, fields ...interface{}) {
	if !l.Debug {
		return
	}
	m := make(map[string]interface{}, len(fields)/2)
	fieldsToMap(fields, m)
	l.log(true, l.formatMsg(msg, m))
}

// fielder is implemented by errors that carry structured context.
type fielder interface {
	Fields() map[string]interface{}
}

// Error writes a message describing a failure, pulling in any structured
// fields the error itself carries.
func (l Logger) Error(msg string, err error, fields ...interface{}) {
	if err == nil {
		return
	}

	allFields := map[string]interface{}{}
	if f, ok := err.(fielder); ok {
		for k, v := range f.Fields() {
			allFields[k] = v
		}
	}
	if allFields["reason"] == nil {
		allFields["reason"] = err.Error()
	}
	fieldsToMap(fields, allFields)

	l.log(false, l.formatMsg(msg, allFields))
}

func fieldsToMap(fields []interface{}, out map[string]interface{}) {
	var lastKey string
	for i, val := range fields {
		if i%2 == 0 {
			key, ok := val.(string)
			if !ok {
				out[fmt.Sprint("field", i)] = val
				continue
			}
			lastKey = key
		} else {
			out[lastKey] = val
		}
	}
}

func (l Logger) formatMsg(msg string, fields map[string]interface{}) string {
	b := strings.Builder{}
	b.WriteString(msg)

	if len(l.Fields)+len(fields) != 0 {
		b.WriteRune('\t')
		if fields == nil {
			fields = make(map[string]interface{})
		}
		for k, v := range l.Fields {
			fields[k] = v
		}
		encoded, err := json.Marshal(normalizeFields(fields))
		if err != nil {
			return fmt.Sprintf("[unencodable fields: %v] %s %+v", err, msg, fields)
		}
		b.Write(encoded)
	}

	return b.String()
}

// normalizeFields converts values the encoding/json package otherwise
// renders uselessly (errors, durations, timestamps) into strings.
func normalizeFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case error:
			out[k] = val.Error()
		case time.Duration:
			out[k] = val.String()
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339)
		case fmt.Stringer:
			out[k] = val.String()
		default:
			out[k] = v
		}
	}
	return out
}

func (l Logger) log(debug bool, s string) {
	if l.Name != "" {
		s = l.Name + ": " + s
	}
	if l.Out != nil {
		l.Out.Write(time.Now(), debug, s)
		return
	}
	if DefaultLogger.Out != nil {
		DefaultLogger.Out.Write(time.Now(), debug, s)
	}
}

// DefaultLogger is used by code that has no more specific Logger to hand.
var DefaultLogger = Logger{Out: WriterOutput(nil, true)}

func Println(val ...interface{}) { DefaultLogger.Println(val...) }
