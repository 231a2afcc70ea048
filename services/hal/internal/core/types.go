package core

import (
	"context"

	"uarthal/errcode"
	"uarthal/types"
)

// ---- Capability & device model ----

// CapAddr is the public address of one capability.
type CapAddr struct {
	Domain string
	Kind   types.Kind
	Name   string
}

type CapabilitySpec struct {
	Domain string // empty => inferred from Kind
	Kind   types.Kind
	Name   string // empty => device ID
	Info   types.Info
}

// EnqueueResult is a device's synchronous answer to a control. OK means the
// request was accepted; its outcome may follow as an Event.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

// Device is driven only from the HAL goroutine. Control must not block.
type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error // releases claimed resources
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}

// OK and Fail keep Control bodies short.
func OK() EnqueueResult { return EnqueueResult{OK: true} }

func Fail(code errcode.Code) EnqueueResult { return EnqueueResult{OK: false, Error: code} }
