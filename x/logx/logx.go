// Package logx is the logging front end shared by firmware and host builds.
// Lines read "[component] message key=value ..."; the sink is println on
// TinyGo and glog elsewhere.
package logx

import (
	"strconv"
)

type severity uint8

const (
	sevInfo severity = iota
	sevWarn
	sevError
)

// Logger tags every line with a component name.
type Logger struct {
	tag string
}

func New(component string) Logger { return Logger{tag: component} }

func (l Logger) Info(msg string, kv ...any)  { emit(sevInfo, l.line(msg, kv)) }
func (l Logger) Warn(msg string, kv ...any)  { emit(sevWarn, l.line(msg, kv)) }
func (l Logger) Error(msg string, kv ...any) { emit(sevError, l.line(msg, kv)) }

// Debug logs at verbosity 2.
func (l Logger) Debug(msg string, kv ...any) {
	if enabled(2) {
		emit(sevInfo, l.line(msg, kv))
	}
}

// V reports whether verbosity level is on.
func (l Logger) V(level int) bool { return enabled(level) }

func (l Logger) line(msg string, kv []any) string {
	b := make([]byte, 0, 64)
	b = append(b, '[')
	b = append(b, l.tag...)
	b = append(b, "] "...)
	b = append(b, msg...)
	for i := 0; i < len(kv); i += 2 {
		b = append(b, ' ')
		b = appendValue(b, kv[i])
		b = append(b, '=')
		if i+1 < len(kv) {
			b = appendValue(b, kv[i+1])
		} else {
			b = append(b, '?')
		}
	}
	return string(b)
}

type stringer interface{ String() string }

func appendValue(b []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(b, "nil"...)
	case string:
		return append(b, x...)
	case []byte:
		return strconv.AppendQuote(b, string(x))
	case error:
		return append(b, x.Error()...)
	case stringer:
		return append(b, x.String()...)
	case bool:
		return strconv.AppendBool(b, x)
	case int:
		return strconv.AppendInt(b, int64(x), 10)
	case int8:
		return strconv.AppendInt(b, int64(x), 10)
	case int16:
		return strconv.AppendInt(b, int64(x), 10)
	case int32:
		return strconv.AppendInt(b, int64(x), 10)
	case int64:
		return strconv.AppendInt(b, x, 10)
	case uint:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint8:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint16:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint32:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint64:
		return strconv.AppendUint(b, x, 10)
	}
	return append(b, '?')
}
