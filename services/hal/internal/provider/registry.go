package provider

import (
	"sync"

	"uarthal/drivers/uartengine"
	"uarthal/errcode"
	"uarthal/services/hal/internal/core"
	"uarthal/services/hal/internal/provider/setups"
	"uarthal/x/logx"
)

var log = logx.New("provider")

// Ensure the provider satisfies the contracts at compile time.
var _ core.ResourceRegistry = (*Registry)(nil)

// platform is what a board contributes: register shims, pins and vectors.
type platform interface {
	// openUART configures the hardware for p and returns its shim and the
	// interrupt line to bind.
	openUART(p setups.UARTPlan) (uartengine.Regs, int, error)
	gpio(n int) gpioPin
	vectors() uartengine.VectorTable
}

// gpioPin is a platform pin. watch installs (or, with nil, removes) an edge
// callback used to forward CTS changes.
type gpioPin interface {
	core.GPIOHandle
	watch(fn func())
}

type uartSlot struct {
	plan  setups.UARTPlan
	regs  uartengine.Regs
	irq   int
	owner string
	port  *uartPort
}

// Registry arbitrates claims over the engine table and board pins.
type Registry struct {
	mu    sync.Mutex
	plat  platform
	table *uartengine.Table
	plan  setups.ResourcePlan

	uarts     map[core.ResourceID]*uartSlot
	pinOwners map[int]string
	pins      map[int]gpioPin
}

func newRegistry(plat platform, plan setups.ResourcePlan) *Registry {
	r := &Registry{
		plat:      plat,
		table:     uartengine.NewTable(plat.vectors()),
		plan:      plan,
		uarts:     make(map[core.ResourceID]*uartSlot),
		pinOwners: make(map[int]string),
		pins:      make(map[int]gpioPin),
	}
	for _, u := range plan.UART {
		regs, irq, err := plat.openUART(u)
		if err != nil {
			log.Warn("uart unavailable", "id", u.ID, "err", err)
			continue
		}
		r.uarts[core.ResourceID(u.ID)] = &uartSlot{plan: u, regs: regs, irq: irq}
	}
	return r
}

// Table exposes the engine table, mainly for diagnostics.
func (r *Registry) Table() *uartengine.Table { return r.table }

// ---- UART ----

func (r *Registry) ClaimUART(devID string, id core.ResourceID, opt core.UARTClaim) (core.UARTPort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.uarts[id]
	if s == nil {
		return nil, errcode.UnknownBus
	}
	if s.owner != "" {
		if s.owner == devID {
			return s.port, nil
		}
		return nil, errcode.Conflict
	}

	cfg := uartengine.Config{
		Name:          string(id),
		Regs:          s.regs,
		IRQ:           s.irq,
		NotConnected:  s.plan.NotConnected,
		FlowThreshold: opt.FlowThreshold,
	}
	if s.plan.NotConnected {
		cfg.Regs = nil
	}

	var rts, cts gpioPin
	if opt.Flow {
		if s.plan.Flow == nil {
			return nil, errcode.Unsupported
		}
		var err error
		if rts, cts, err = r.claimFlowLocked(devID, *s.plan.Flow); err != nil {
			return nil, err
		}
		cfg.RTS, cfg.CTS = rts, cts
	}

	ch, err := r.table.Open(cfg)
	if err != nil {
		if opt.Flow {
			r.releasePinLocked(devID, s.plan.Flow.RTS)
			r.releasePinLocked(devID, s.plan.Flow.CTS)
		}
		return nil, err
	}
	if cts != nil {
		cts.watch(ch.CTSChanged)
	}

	s.owner = devID
	s.port = &uartPort{bus: string(id), ch: ch, flow: opt.Flow, regs: s.regs, baud: s.plan.Baud}
	log.Debug("uart claimed", "id", id, "dev", devID, "channel", uint8(ch.ID()))
	return s.port, nil
}

func (r *Registry) ReleaseUART(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.uarts[id]
	if s == nil || s.owner != devID {
		return
	}
	if s.port.flow && s.plan.Flow != nil {
		if p := r.pins[s.plan.Flow.CTS]; p != nil {
			p.watch(nil)
		}
	}
	_ = r.table.Close(s.port.ch.ID())
	if s.port.flow && s.plan.Flow != nil {
		r.releasePinLocked(devID, s.plan.Flow.RTS)
		r.releasePinLocked(devID, s.plan.Flow.CTS)
	}
	s.owner, s.port = "", nil
}

// ---- GPIO ----

// claimFlowLocked claims and configures the RTS/CTS shadow pins. On failure
// neither pin stays claimed.
func (r *Registry) claimFlowLocked(devID string, fp setups.FlowPlan) (rts, cts gpioPin, err error) {
	if rts, err = r.claimPinLocked(devID, fp.RTS); err != nil {
		return nil, nil, err
	}
	if cts, err = r.claimPinLocked(devID, fp.CTS); err == nil {
		if err = rts.ConfigureOutput(false); err == nil {
			err = cts.ConfigureInput(core.PullUp)
		}
	}
	if err != nil {
		r.releasePinLocked(devID, fp.RTS)
		r.releasePinLocked(devID, fp.CTS)
		return nil, nil, err
	}
	return rts, cts, nil
}

func (r *Registry) claimPinLocked(devID string, n int) (gpioPin, error) {
	if n < 0 || n > r.plan.GPIOMax {
		return nil, errcode.UnknownPin
	}
	if owner, inUse := r.pinOwners[n]; inUse && owner != devID {
		return nil, errcode.PinInUse
	}
	p := r.pins[n]
	if p == nil {
		p = r.plat.gpio(n)
		r.pins[n] = p
	}
	r.pinOwners[n] = devID
	return p, nil
}

func (r *Registry) releasePinLocked(devID string, n int) {
	if owner, ok := r.pinOwners[n]; ok && owner == devID {
		if p := r.pins[n]; p != nil {
			_ = p.ConfigureInput(core.PullNone)
		}
		delete(r.pinOwners, n)
	}
}

// ---- uartPort ----

type baudSetter interface{ SetBaudRate(br uint32) }

type formatSetter interface {
	SetFormat(databits, stopbits uint8, parity string) error
}

// uartPort is the claimed view of an engine channel.
type uartPort struct {
	bus  string
	ch   *uartengine.Channel
	flow bool
	regs uartengine.Regs
	baud uint32
}

var (
	_ core.SerialConfigurator       = (*uartPort)(nil)
	_ core.SerialFormatConfigurator = (*uartPort)(nil)
)

func (p *uartPort) Bus() string                  { return p.bus }
func (p *uartPort) Channel() *uartengine.Channel { return p.ch }
func (p *uartPort) Flow() bool                   { return p.flow }

func (p *uartPort) SetBaudRate(br uint32) error {
	if br == 0 {
		return errcode.InvalidParams
	}
	s, ok := p.regs.(baudSetter)
	if !ok {
		return errcode.Unsupported
	}
	s.SetBaudRate(br)
	p.baud = br
	return nil
}

func (p *uartPort) SetFormat(databits, stopbits uint8, parity string) error {
	s, ok := p.regs.(formatSetter)
	if !ok {
		return errcode.Unsupported
	}
	return s.SetFormat(databits, stopbits, parity)
}
