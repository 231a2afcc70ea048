//go:build rp2040 || rp2350

package provider

import (
	"machine"

	"uarthal/drivers/pl011"
	"uarthal/drivers/uartengine"
	"uarthal/errcode"
	"uarthal/services/hal/internal/core"
	"uarthal/services/hal/internal/provider/setups"
)

type rp2Platform struct{}

func NewResourceRegistry(plan setups.ResourcePlan) *Registry {
	return newRegistry(rp2Platform{}, plan)
}

func (rp2Platform) openUART(p setups.UARTPlan) (uartengine.Regs, int, error) {
	hw := pl011.ByName(p.ID)
	if hw == nil {
		return nil, 0, errcode.UnknownBus
	}
	cfg := pl011.Config{Baud: p.Baud, TX: machine.NoPin, RX: machine.NoPin}
	if !p.NotConnected {
		cfg.TX, cfg.RX = machine.Pin(p.TX), machine.Pin(p.RX)
	}
	if err := hw.Configure(cfg); err != nil {
		return nil, 0, err
	}
	return rp2UART{hw}, hw.IRQ, nil
}

func (rp2Platform) gpio(n int) gpioPin { return &rp2GPIO{p: machine.Pin(n), n: n} }

func (rp2Platform) vectors() uartengine.VectorTable { return pl011.Vectors{} }

// rp2UART adds the string parity form the HAL uses.
type rp2UART struct{ *pl011.UART }

func (u rp2UART) SetFormat(databits, stopbits uint8, parity string) error {
	par := pl011.ParityNone
	switch parity {
	case "even":
		par = pl011.ParityEven
	case "odd":
		par = pl011.ParityOdd
	}
	return u.UART.SetFormat(databits, stopbits, par)
}

// -----------------------------------------------------------------------------
// GPIO handle
// -----------------------------------------------------------------------------

type rp2GPIO struct {
	p machine.Pin
	n int
}

func (r *rp2GPIO) Number() int { return r.n }

func (r *rp2GPIO) ConfigureInput(pull core.Pull) error {
	var mode machine.PinMode
	switch pull {
	case core.PullUp:
		mode = machine.PinInputPullup
	case core.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2GPIO) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2GPIO) Set(b bool) { r.p.Set(b) }
func (r *rp2GPIO) Get() bool  { return r.p.Get() }
func (r *rp2GPIO) Toggle() {
	if r.p.Get() {
		r.p.Low()
	} else {
		r.p.High()
	}
}

// watch forwards both edges from the GPIO interrupt.
func (r *rp2GPIO) watch(fn func()) {
	if fn == nil {
		_ = r.p.SetInterrupt(0, nil)
		return
	}
	_ = r.p.SetInterrupt(machine.PinToggle, func(machine.Pin) { fn() })
}
