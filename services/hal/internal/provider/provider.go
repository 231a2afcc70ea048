package provider

import (
	"uarthal/services/hal/internal/core"
	"uarthal/services/hal/internal/provider/setups"
	"uarthal/types"
)

// SelectedPlan and InitialHALConfig come from the build-selected setup.
var (
	SelectedPlan                     = setups.SelectedPlan
	InitialHALConfig types.HALConfig = setups.SelectedSetup
)

// NewResources constructs the registry for this platform from the selected
// plan.
func NewResources() (core.Resources, *Registry) {
	reg := NewResourceRegistry(SelectedPlan)
	return core.Resources{Reg: reg}, reg
}
