package uartengine

import (
	"sync"
	"sync/atomic"

	"uarthal/errcode"
)

// MaxChannels bounds the descriptor table.
const MaxChannels = 8

// Table owns the channel descriptors and the vector registration for each.
// Lookup and Dispatch are safe from interrupt context; Open and Close are
// foreground only.
type Table struct {
	mu    sync.Mutex
	vt    VectorTable
	slots [MaxChannels]atomic.Pointer[Channel]
}

// NewTable returns an empty table. vt may be nil when every channel is
// dispatched by the caller.
func NewTable(vt VectorTable) *Table {
	return &Table{vt: vt}
}

// Open assigns the lowest free id to a new channel and binds its vector.
func (t *Table) Open(cfg Config) (*Channel, error) {
	if cfg.Regs == nil && !cfg.NotConnected {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "open", Msg: "missing register shim"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	free := -1
	for i := range t.slots {
		c := t.slots[i].Load()
		if c == nil {
			if free < 0 {
				free = i
			}
			continue
		}
		if cfg.Name != "" && c.name == cfg.Name {
			return nil, &errcode.E{C: errcode.ChannelInUse, Op: "open", Msg: cfg.Name}
		}
		if !cfg.NotConnected && cfg.IRQ >= 0 && c.irq == cfg.IRQ && !c.nc {
			return nil, &errcode.E{C: errcode.ChannelInUse, Op: "open", Msg: "irq already bound"}
		}
	}
	if free < 0 {
		return nil, errcode.TableFull
	}

	c := newChannel(ChannelID(free), cfg)
	if !c.nc {
		st := disableIRQ()
		c.regs.EnableInterrupt(IRQTx, false)
		c.regs.EnableInterrupt(IRQRx, false)
		c.regs.EnableInterrupt(IRQError, false)
		c.regs.ClearErrorStatus()
		c.openRTS()
		restoreIRQ(st)
	}
	t.slots[free].Store(c)

	if !c.nc && cfg.IRQ >= 0 && t.vt != nil {
		id := c.id
		t.vt.RegisterVector(cfg.IRQ, func() { t.Dispatch(id) })
	}
	return c, nil
}

// Close tears a channel down, aborting any transfer first.
func (t *Table) Close(id ChannelID) error {
	if int(id) >= MaxChannels {
		return errcode.UnknownChannel
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.slots[id].Load()
	if c == nil {
		return errcode.UnknownChannel
	}
	if !c.nc {
		st := disableIRQ()
		c.abortTxLocked()
		c.abortRxLocked()
		c.shutdown()
		restoreIRQ(st)
		if c.irq >= 0 && t.vt != nil {
			t.vt.RegisterVector(c.irq, nil)
		}
	}
	t.slots[id].Store(nil)
	return nil
}

// Lookup returns the open channel with id, or nil.
func (t *Table) Lookup(id ChannelID) *Channel {
	if int(id) >= MaxChannels {
		return nil
	}
	return t.slots[id].Load()
}

// ByName returns the open channel with the given name, or nil.
func (t *Table) ByName(name string) *Channel {
	for i := range t.slots {
		if c := t.slots[i].Load(); c != nil && c.name == name {
			return c
		}
	}
	return nil
}

// Dispatch runs the vector body for channel id. Unknown ids are ignored.
func (t *Table) Dispatch(id ChannelID) {
	if c := t.Lookup(id); c != nil {
		c.service()
	}
}
