package core

import (
	"gopkg.in/yaml.v3"

	"uarthal/errcode"
)

// As[T] asserts a payload to the concrete value type T.
// Pointers are not accepted. A nil payload is treated as the zero value of T.
func As[T any](v any) (T, errcode.Code) {
	var zero T
	if v == nil {
		return zero, ""
	}
	t, ok := v.(T)
	if !ok {
		return zero, errcode.InvalidPayload
	}
	return t, ""
}

// DecodeParams accepts device params either as T (set up in Go) or as the
// generic maps produced by a YAML config, which are re-encoded into T.
func DecodeParams[T any](v any) (T, error) {
	var out T
	switch p := v.(type) {
	case nil:
		return out, nil
	case T:
		return p, nil
	case *T:
		if p != nil {
			out = *p
		}
		return out, nil
	}
	raw, err := yaml.Marshal(v)
	if err != nil {
		return out, &errcode.E{C: errcode.InvalidParams, Op: "decode_params", Err: err}
	}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return out, &errcode.E{C: errcode.InvalidParams, Op: "decode_params", Err: err}
	}
	return out, nil
}
