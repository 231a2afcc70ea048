package core

import (
	"uarthal/drivers/uartengine"
)

type ResourceID string // e.g. "uart0"

// ---- GPIO handles ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

type GPIOHandle interface {
	Number() int
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(bool)
	Get() bool
	Toggle()
}

// ---- UART channels ----

// UARTClaim selects per-device options applied when the provider opens the
// engine channel for a claim.
type UARTClaim struct {
	Flow          bool // wire the plan's RTS/CTS pins into the channel
	FlowThreshold int
}

// UARTPort is a claimed engine channel. The provider owns the vector and, when
// flow control is on, forwards CTS edges to the channel.
type UARTPort interface {
	Bus() string
	Channel() *uartengine.Channel
	Flow() bool
}

// Optional configurators a UARTPort may implement.
type SerialConfigurator interface {
	SetBaudRate(br uint32) error
}

type SerialFormatConfigurator interface {
	SetFormat(databits, stopbits uint8, parity string) error
}

// ---- Device → HAL telemetry (single shape) ----
// By default an Event is a value update that HAL publishes retained to
// .../value. IsEvent (or a non-empty EventTag) publishes to .../event
// instead. A non-empty Err publishes only .../status=degraded.

type Event struct {
	Addr     CapAddr
	Payload  any
	TSms     int64
	Err      string
	IsEvent  bool
	EventTag string // optional subtopic, e.g. "rx_complete"
}

// ---- Event emission (devices → HAL) ----

type EventEmitter interface {
	// Emit tries to enqueue an Event for HAL publication.
	// It must be non-blocking; false indicates a drop under pressure.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL
}

// ---- Unified registry interface ----

type ResourceRegistry interface {
	ClaimUART(devID string, id ResourceID, opt UARTClaim) (UARTPort, error)
	ReleaseUART(devID string, id ResourceID)
}
