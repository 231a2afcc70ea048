//go:build pico && pico_rich_dev

package setups

import (
	serialraw "uarthal/services/hal/devices/serial_raw"
	uartdev "uarthal/services/hal/devices/uart"
	"uarthal/types"
)

var SelectedPlan = ResourcePlan{
	GPIOMax: 29,
	UART: []UARTPlan{
		// RP2040 default pins for Pico
		{ID: "uart0", TX: 0, RX: 1, Baud: 115_200, Flow: &FlowPlan{RTS: 3, CTS: 2}},
		{ID: "uart1", TX: 4, RX: 5, Baud: 115_200},
	},
}

var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		// Async transfers on uart0 (public address hal/cap/io/uart/modem/…)
		{ID: "modem", Type: "uart", Params: uartdev.Params{
			Bus: "uart0", Domain: "io", Name: "modem", Baud: 115_200,
			Flow: true, FlowThreshold: 8, MaxRead: 512,
		}},

		// Line-oriented raw serial on uart1 (hal/cap/io/serial/uart1/…)
		{ID: "uart1_raw", Type: "serial_raw", Params: serialraw.Params{
			Bus: "uart1", Domain: "io", Name: "uart1", Baud: 115_200,
			RXSize: 512, TXSize: 2048,
		}},
	},
	Pollers: []types.PollSpec{
		{Domain: "io", Kind: types.KindUART, Name: "modem", Verb: "status", IntervalMs: 5_000, JitterMs: 250},
	},
}
