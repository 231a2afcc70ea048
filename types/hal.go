package types

// ------------------------
// Common HAL state (retained)
// ------------------------

type HALState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TSms   int64  `json:"ts_ms"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TSms  int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"` // machine-readable short code
}

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindUART   Kind = "uart"
	KindSerial Kind = "serial"
)

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain"`
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
}

// ------------------------
// HAL configuration
// ------------------------

// HALConfig is published retained on config/hal.
type HALConfig struct {
	Devices []HALDevice `json:"devices" yaml:"devices"`
	Pollers []PollSpec  `json:"pollers,omitempty" yaml:"pollers"`
}

type HALDevice struct {
	ID     string `json:"id" yaml:"id"`         // logical device id
	Type   string `json:"type" yaml:"type"`     // e.g. "uart"
	Params any    `json:"params" yaml:"params"` // typed struct or decoded YAML map
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ------------------------
// Info envelope (retained)
// ------------------------

type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"` // one of the *Info types
}

// ------------------------
// Polling (declarative)
// ------------------------

// PollSpec schedules a control verb against a capability. HAL applies these
// whenever a configuration is applied.
type PollSpec struct {
	Domain     string `json:"domain" yaml:"domain"`
	Kind       Kind   `json:"kind" yaml:"kind"`
	Name       string `json:"name" yaml:"name"`
	Verb       string `json:"verb" yaml:"verb"`               // e.g. "status"
	IntervalMs uint32 `json:"interval_ms" yaml:"interval_ms"` // >0
	JitterMs   uint16 `json:"jitter_ms" yaml:"jitter_ms"`     // uniform [0..JitterMs]
}
