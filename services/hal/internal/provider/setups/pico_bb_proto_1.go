//go:build pico && pico_bb_proto_1

package setups

import (
	serialraw "uarthal/services/hal/devices/serial_raw"
	"uarthal/types"
)

// SelectedPlan wires controllers to pins and sets operating parameters for this setup.
var SelectedPlan = ResourcePlan{
	GPIOMax: 29,
	UART: []UARTPlan{
		{ID: "uart0", TX: 0, RX: 1, Baud: 115200},
		{ID: "uart1", TX: 4, RX: 5, Baud: 115200},
	},
}

// SelectedSetup lists logical devices for HAL to instantiate on boot.
var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		{ID: "uart0_raw", Type: "serial_raw", Params: serialraw.Params{
			Bus: "uart0", Domain: "io", Name: "uart0", Baud: 115200,
			RXSize: 64, TXSize: 512,
		}},
		{ID: "uart1_raw", Type: "serial_raw", Params: serialraw.Params{
			Bus: "uart1", Domain: "io", Name: "uart1", Baud: 115200,
			RXSize: 64, TXSize: 512,
		}},
	},
}
