package uartengine

// IRQKind is the generic interrupt kind routed by the dispatcher.
type IRQKind uint8

const (
	IRQTx IRQKind = iota
	IRQRx
	IRQError
)

func (k IRQKind) String() string {
	switch k {
	case IRQTx:
		return "tx"
	case IRQRx:
		return "rx"
	case IRQError:
		return "error"
	default:
		return "unknown"
	}
}

// Cause is the decoded set of pending and enabled interrupt sources.
type Cause uint8

const (
	CauseTx Cause = 1 << iota
	CauseRx
	CauseError
)

// Has reports whether kind k is pending in c.
func (c Cause) Has(k IRQKind) bool { return c&(1<<k) != 0 }

// ErrorStatus is the latched receive error group.
type ErrorStatus struct {
	Overrun bool
	Parity  bool
	Framing bool
	Break   bool
}

func (s ErrorStatus) Any() bool { return s.Overrun || s.Parity || s.Framing || s.Break }

// events maps the error group onto RX event bits. Break is reported as a
// framing error.
func (s ErrorStatus) events() Event {
	var ev Event
	if s.Overrun {
		ev |= RxOverrunError
	}
	if s.Parity {
		ev |= RxParityError
	}
	if s.Framing || s.Break {
		ev |= RxFramingError
	}
	return ev
}

// Regs is the per-channel register shim. Implementations keep raw register
// words to themselves and report typed state only.
//
// Every method is called with the channel's critical section held, either
// from the foreground or from the vector.
type Regs interface {
	WriteData(b byte)
	ReadData() byte
	Readable() bool
	Writable() bool

	EnableInterrupt(kind IRQKind, on bool)
	AckInterrupt(kind IRQKind)
	// Pending reports sources that are both raised and enabled.
	Pending() Cause

	ErrorStatus() ErrorStatus
	ClearErrorStatus()
}

// FIFOResetter is implemented by shims whose hardware can flush its FIFOs.
type FIFOResetter interface {
	ResetTxFIFO()
	ResetRxFIFO()
}

// VectorTable binds a physical IRQ to a handler. A nil handler unbinds.
type VectorTable interface {
	RegisterVector(irq int, handler func())
}

// Pin is a shadow GPIO used for software RTS/CTS.
type Pin interface {
	Set(bool)
	Get() bool
}

// IRQHandler is the legacy per-interrupt notification, called after the
// engine has done its own bookkeeping for that interrupt.
type IRQHandler func(id ChannelID, kind IRQKind)

// Callback receives the event bits raised by a transfer.
type Callback func(ev Event)
