// Package hal runs the hardware abstraction service on a bus connection.
// Devices are described by a retained config/hal message; each device
// publishes capabilities under hal/cap/<domain>/<kind>/<name>/.
package hal

import (
	"context"

	"uarthal/bus"
	"uarthal/services/hal/internal/core"
	"uarthal/services/hal/internal/provider"
	"uarthal/types"

	_ "uarthal/services/hal/devices/serial_raw"
	_ "uarthal/services/hal/devices/uart"
)

// Board is the resource registry of the build-selected board. Host builds
// add Sim, Pin and Pump for driving the simulated far end.
type Board = provider.Registry

// NewBoard opens every UART in the selected resource plan.
func NewBoard() *Board {
	_, reg := provider.NewResources()
	return reg
}

// Run starts the HAL on a fresh board and blocks until ctx is done.
func Run(ctx context.Context, conn *bus.Connection) {
	RunBoard(ctx, conn, NewBoard())
}

// RunBoard is Run on a caller-owned board.
func RunBoard(ctx context.Context, conn *bus.Connection, b *Board) {
	core.NewHAL(conn, core.Resources{Reg: b}).Run(ctx)
}

// InitialConfig is the device set the selected setup ships with. Publish it
// retained on ConfigTopic when no config service provides one.
func InitialConfig() types.HALConfig { return provider.InitialHALConfig }

func ConfigTopic() bus.Topic { return bus.T("config", "hal") }

func StateTopic() bus.Topic { return bus.T("hal", "state") }

// Capability topics.

func ControlTopic(domain string, kind types.Kind, name, verb string) bus.Topic {
	return core.CapAddr{Domain: domain, Kind: kind, Name: name}.Topic("control", verb)
}

func EventTopic(domain string, kind types.Kind, name, tag string) bus.Topic {
	return core.CapAddr{Domain: domain, Kind: kind, Name: name}.Topic("event", tag)
}

func ValueTopic(domain string, kind types.Kind, name string) bus.Topic {
	return core.CapAddr{Domain: domain, Kind: kind, Name: name}.Topic("value")
}

func StatusTopic(domain string, kind types.Kind, name string) bus.Topic {
	return core.CapAddr{Domain: domain, Kind: kind, Name: name}.Topic("status")
}
