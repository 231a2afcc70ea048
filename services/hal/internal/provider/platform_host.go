//go:build !(rp2040 || rp2350)

package provider

import (
	"uarthal/drivers/uartengine"
	"uarthal/drivers/uartsim"
	"uarthal/errcode"
	"uarthal/services/hal/internal/core"
	"uarthal/services/hal/internal/provider/setups"
)

// hostPlatform backs every planned UART with a simulator on one NVIC.
type hostPlatform struct {
	nvic *uartsim.NVIC
	sims map[string]*uartsim.Sim
}

func NewResourceRegistry(plan setups.ResourcePlan) *Registry {
	return newRegistry(&hostPlatform{
		nvic: uartsim.NewNVIC(),
		sims: make(map[string]*uartsim.Sim),
	}, plan)
}

func (h *hostPlatform) openUART(p setups.UARTPlan) (uartengine.Regs, int, error) {
	if _, dup := h.sims[p.ID]; dup {
		return nil, 0, errcode.BusInUse
	}
	tx, rx := p.TxFIFO, p.RxFIFO
	if tx == 0 {
		tx = 32
	}
	if rx == 0 {
		rx = 32
	}
	s := uartsim.New(tx, rx)
	s.Attach(h.nvic, p.IRQ)
	s.SetBaudRate(p.Baud)
	h.sims[p.ID] = s
	return s, p.IRQ, nil
}

func (h *hostPlatform) gpio(n int) gpioPin { return &simGPIO{n: n, pin: &uartsim.Pin{}} }

func (h *hostPlatform) vectors() uartengine.VectorTable { return h.nvic }

// Sim returns the simulator behind bus id so a harness can drive the far end.
func (r *Registry) Sim(id string) *uartsim.Sim {
	if hp, ok := r.plat.(*hostPlatform); ok {
		return hp.sims[id]
	}
	return nil
}

// Pin returns the simulated pin n once something has claimed it.
func (r *Registry) Pin(n int) *uartsim.Pin {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.pins[n].(*simGPIO); ok {
		return g.pin
	}
	return nil
}

// Pump services every simulator until the whole board is idle and returns
// the number of vector entries.
func (r *Registry) Pump() int {
	hp, ok := r.plat.(*hostPlatform)
	if !ok {
		return 0
	}
	total := 0
	for {
		n := 0
		for _, s := range hp.sims {
			n += s.Pump()
		}
		if n == 0 {
			return total
		}
		total += n
	}
}

// ---- simulated GPIO ----

type simGPIO struct {
	n   int
	pin *uartsim.Pin
}

func (g *simGPIO) Number() int                        { return g.n }
func (g *simGPIO) ConfigureInput(core.Pull) error     { return nil }
func (g *simGPIO) ConfigureOutput(initial bool) error { g.pin.Set(initial); return nil }
func (g *simGPIO) Set(v bool)                         { g.pin.Set(v) }
func (g *simGPIO) Get() bool                          { return g.pin.Get() }
func (g *simGPIO) Toggle()                            { g.pin.Set(!g.pin.Get()) }
func (g *simGPIO) watch(fn func())                    { g.pin.OnEdge(fn) }
