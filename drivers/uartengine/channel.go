package uartengine

import (
	"uarthal/errcode"
	"uarthal/x/mathx"
)

// ChannelID is the small integer a Table assigns to an open channel.
type ChannelID uint8

// Config describes one physical UART.
type Config struct {
	Name string
	Regs Regs
	// IRQ is bound through the Table's VectorTable. Negative means the
	// caller routes the vector itself by calling Table.Dispatch.
	IRQ int
	// NotConnected marks a channel with no usable pins. Transfers on it are
	// precondition violations.
	NotConnected bool

	// Optional shadow pins for software flow control.
	RTS Pin
	CTS Pin
	// FlowThreshold asserts RTS once the free space left in the active
	// receive buffer drops to this many bytes.
	FlowThreshold int
}

// Stats are per-channel counters, updated inside the critical section.
type Stats struct {
	TxIRQ         uint32
	RxIRQ         uint32
	ErrIRQ        uint32
	Spurious      uint32
	TxBytes       uint32
	RxBytes       uint32
	ErrorsDropped uint32
}

type txState struct {
	buf     []byte
	pos     int
	active  bool
	stalled bool // waiting for CTS
	cb      Callback
}

type rxState struct {
	buf    []byte
	pos    int
	active bool
	cb     Callback
	match  CharMatch
	found  bool
}

// Channel is the descriptor for one UART.
type Channel struct {
	id   ChannelID
	name string
	irq  int
	regs Regs
	nc   bool

	tx txState
	rx rxState

	requested Event
	occurred  Event

	rxReq requester
	txReq requester
	errOn bool

	rts, cts    Pin
	rtsAsserted bool
	threshold   int

	handler IRQHandler
	stats   Stats
}

func newChannel(id ChannelID, cfg Config) *Channel {
	c := &Channel{
		id:        id,
		name:      cfg.Name,
		irq:       cfg.IRQ,
		regs:      cfg.Regs,
		nc:        cfg.NotConnected,
		rts:       cfg.RTS,
		cts:       cfg.CTS,
		threshold: mathx.Max(cfg.FlowThreshold, 0),
	}
	c.rx.match = NoCharMatch
	return c
}

func (c *Channel) ID() ChannelID { return c.id }
func (c *Channel) Name() string  { return c.name }

// NotConnected reports whether the channel was opened without pins.
func (c *Channel) NotConnected() bool { return c.nc }

func (c *Channel) IsTxActive() bool {
	st := disableIRQ()
	v := c.tx.active
	restoreIRQ(st)
	return v
}

func (c *Channel) IsRxActive() bool {
	st := disableIRQ()
	v := c.rx.active
	restoreIRQ(st)
	return v
}

// TxPos is the number of bytes of the current or last TX buffer handed to
// the hardware.
func (c *Channel) TxPos() int {
	st := disableIRQ()
	v := c.tx.pos
	restoreIRQ(st)
	return v
}

// RxPos is the number of valid bytes in the current or last RX buffer.
func (c *Channel) RxPos() int {
	st := disableIRQ()
	v := c.rx.pos
	restoreIRQ(st)
	return v
}

// CharFound reports whether the match byte was seen during the current or
// last receive.
func (c *Channel) CharFound() bool {
	st := disableIRQ()
	v := c.rx.found
	restoreIRQ(st)
	return v
}

// PollAndClearEvents returns and clears the events accumulated since the
// last poll, minus the bits already handed to a callback.
func (c *Channel) PollAndClearEvents() Event {
	st := disableIRQ()
	ev := c.occurred
	c.occurred = 0
	restoreIRQ(st)
	return ev
}

func (c *Channel) Stats() Stats {
	st := disableIRQ()
	s := c.stats
	restoreIRQ(st)
	return s
}

// SetIRQHandler installs the legacy per-interrupt handler. Pass nil to remove.
func (c *Channel) SetIRQHandler(h IRQHandler) {
	st := disableIRQ()
	c.handler = h
	restoreIRQ(st)
}

// EnableIRQ requests (or drops the request for) TX or RX interrupts on behalf
// of the legacy handler, independently of any async transfer.
func (c *Channel) EnableIRQ(kind IRQKind, on bool) error {
	if c.nc {
		return notConnected("enable_irq")
	}
	st := disableIRQ()
	defer restoreIRQ(st)
	switch kind {
	case IRQTx:
		if on {
			c.acquireTx(reqLegacy)
		} else {
			c.releaseTx(reqLegacy)
		}
	case IRQRx:
		if on {
			c.acquireRx(reqLegacy)
		} else {
			c.releaseRx(reqLegacy)
		}
	default:
		return errcode.InvalidParams
	}
	return nil
}

// raise records ev. Completion bits arrive unfiltered; match and error bits
// are filtered by the caller. The requested part goes to cb and counts as
// consumed, the rest waits for PollAndClearEvents. Caller holds the
// critical section; delivery happens after it is left.
func (c *Channel) raise(n *notice, cb Callback, ev Event) {
	if ev == 0 {
		return
	}
	want := ev & c.requested
	if cb == nil || want == 0 {
		c.occurred |= ev
		return
	}
	c.occurred |= ev &^ want
	n.cb = cb
	n.ev |= want
}

// shutdown masks every source and releases the flow pins. Caller holds the
// critical section and has already aborted any transfer.
func (c *Channel) shutdown() {
	c.rxReq, c.txReq = 0, 0
	c.regs.EnableInterrupt(IRQTx, false)
	c.regs.EnableInterrupt(IRQRx, false)
	c.regs.EnableInterrupt(IRQError, false)
	c.errOn = false
	c.handler = nil
	c.releaseRTS()
}

func notConnected(op string) error {
	return &errcode.E{C: errcode.PreconditionViolation, Op: op, Msg: "channel not connected"}
}

func busy(op, msg string) error {
	return &errcode.E{C: errcode.PreconditionViolation, Op: op, Msg: msg}
}
