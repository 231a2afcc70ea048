//go:build !pico

package setups

import (
	serialraw "uarthal/services/hal/devices/serial_raw"
	uartdev "uarthal/services/hal/devices/uart"
	"uarthal/types"
)

// SelectedPlan describes the simulated board used by host builds: two PL011
// sized UARTs on a shared vector table, the first with flow pins.
var SelectedPlan = ResourcePlan{
	GPIOMax: 29,
	UART: []UARTPlan{
		{ID: "uart0", TX: 0, RX: 1, Baud: 115_200, Flow: &FlowPlan{RTS: 2, CTS: 3},
			IRQ: 20, TxFIFO: 32, RxFIFO: 32},
		{ID: "uart1", TX: 4, RX: 5, Baud: 115_200,
			IRQ: 21, TxFIFO: 32, RxFIFO: 32},
		{ID: "uart2", NotConnected: true, IRQ: 22},
	},
}

var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		{ID: "uart0", Type: "uart", Params: uartdev.Params{
			Bus: "uart0", Domain: "io", Name: "uart0", Baud: 115_200, Flow: true,
		}},
		{ID: "uart1_raw", Type: "serial_raw", Params: serialraw.Params{
			Bus: "uart1", Domain: "io", Name: "uart1", Baud: 115_200,
			RXSize: 256, TXSize: 256,
		}},
	},
	Pollers: []types.PollSpec{
		{Domain: "io", Kind: types.KindUART, Name: "uart0", Verb: "status", IntervalMs: 1_000, JitterMs: 100},
	},
}
