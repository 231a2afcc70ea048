//go:build pico && !(pico_rich_dev || pico_bb_proto_1)

package setups

import "uarthal/types"

// No setup selected: nothing is claimed and HAL starts empty.
var (
	SelectedPlan  = ResourcePlan{GPIOMax: 29}
	SelectedSetup = types.HALConfig{}
)
