//go:build rp2040 || rp2350

// Package pl011 is the register shim for the PL011 UARTs on RP2040/RP2350.
// It owns the UART0/UART1 vectors and forwards them to whatever the
// transfer engine registers.
package pl011

import (
	"device/rp"
	"errors"
	"machine"
	"runtime/interrupt"

	"uarthal/drivers/uartengine"
)

var (
	_ uartengine.Regs         = (*UART)(nil)
	_ uartengine.FIFOResetter = (*UART)(nil)
	_ uartengine.VectorTable  = Vectors{}
)

const (
	imscTx  = rp.UART0_UARTIMSC_TXIM
	imscRx  = rp.UART0_UARTIMSC_RXIM | rp.UART0_UARTIMSC_RTIM
	imscErr = rp.UART0_UARTIMSC_OEIM | rp.UART0_UARTIMSC_BEIM | rp.UART0_UARTIMSC_PEIM | rp.UART0_UARTIMSC_FEIM

	icrTx  = rp.UART0_UARTICR_TXIC
	icrRx  = rp.UART0_UARTICR_RXIC | rp.UART0_UARTICR_RTIC
	icrErr = rp.UART0_UARTICR_OEIC | rp.UART0_UARTICR_BEIC | rp.UART0_UARTICR_PEIC | rp.UART0_UARTICR_FEIC
)

// UART is one PL011 instance.
type UART struct {
	Bus  *rp.UART0_Type
	IRQ  int
	baud uint32
	rx   rxHead
}

func (u *UART) empty() bool { return u.Bus.UARTFR.HasBits(rp.UART0_UARTFR_RXFE) }
func (u *UART) pop() uint32 { return u.Bus.UARTDR.Get() }

var (
	UART0 = &UART{Bus: rp.UART0, IRQ: rp.IRQ_UART0_IRQ}
	UART1 = &UART{Bus: rp.UART1, IRQ: rp.IRQ_UART1_IRQ}
)

// ByName maps "uart0"/"uart1" to an instance.
func ByName(id string) *UART {
	switch id {
	case "uart0":
		return UART0
	case "uart1":
		return UART1
	}
	return nil
}

type Config struct {
	Baud uint32
	TX   machine.Pin
	RX   machine.Pin
}

// Configure resets the block, muxes the pins, sets 8N1 with FIFOs enabled and
// leaves every interrupt source masked for the engine to arm.
func (u *UART) Configure(cfg Config) error {
	u.reset()
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}

	u.Bus.UARTCR.ClearBits(rp.UART0_UARTCR_UARTEN | rp.UART0_UARTCR_RXE | rp.UART0_UARTCR_TXE)
	if cfg.TX != machine.NoPin {
		cfg.TX.Configure(machine.PinConfig{Mode: machine.PinUART})
	}
	if cfg.RX != machine.NoPin {
		cfg.RX.Configure(machine.PinConfig{Mode: machine.PinUART})
	}

	u.SetBaudRate(cfg.Baud)
	if err := u.SetFormat(8, 1, ParityNone); err != nil {
		return err
	}

	u.Bus.UARTIMSC.Set(0)
	u.Bus.UARTICR.Set(0x7FF)
	u.rx.flush(u)
	u.Bus.UARTRSR.Set(0)
	u.Bus.UARTIFLS.Set(0)

	u.Bus.UARTCR.Set(rp.UART0_UARTCR_UARTEN | rp.UART0_UARTCR_RXE | rp.UART0_UARTCR_TXE)
	return nil
}

func (u *UART) reset() {
	var bit uint32
	switch u.Bus {
	case rp.UART0:
		bit = rp.RESETS_RESET_UART0
	case rp.UART1:
		bit = rp.RESETS_RESET_UART1
	}
	rp.RESETS.RESET.SetBits(bit)
	rp.RESETS.RESET.ClearBits(bit)
	for !rp.RESETS.RESET_DONE.HasBits(bit) {
	}
}

// SetBaudRate programs the divisors. The LCR_H write latches them.
func (u *UART) SetBaudRate(br uint32) {
	u.baud = br
	div := 8 * machine.CPUFrequency() / br

	ibrd := div >> 7
	var fbrd uint32
	switch {
	case ibrd == 0:
		ibrd, fbrd = 1, 0
	case ibrd >= 65535:
		ibrd, fbrd = 65535, 0
	default:
		fbrd = ((div & 0x7f) + 1) / 2
	}
	u.Bus.UARTIBRD.Set(ibrd)
	u.Bus.UARTFBRD.Set(fbrd)
	u.Bus.UARTLCR_H.Set(u.Bus.UARTLCR_H.Get())
}

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (u *UART) SetFormat(databits, stopbits uint8, parity Parity) error {
	if databits < 5 || databits > 8 {
		return errors.New("invalid databits")
	}
	if stopbits != 1 && stopbits != 2 {
		return errors.New("invalid stopbits")
	}
	var pen, eps uint32
	if parity != ParityNone {
		pen = rp.UART0_UARTLCR_H_PEN
		if parity == ParityEven {
			eps = rp.UART0_UARTLCR_H_EPS
		}
	}
	val := uint32(databits-5)<<rp.UART0_UARTLCR_H_WLEN_Pos |
		uint32(stopbits-1)<<rp.UART0_UARTLCR_H_STP2_Pos |
		pen | eps | rp.UART0_UARTLCR_H_FEN
	u.Bus.UARTLCR_H.Set(val)
	return nil
}

func (u *UART) Baud() uint32 { return u.baud }

// ---- uartengine.Regs ----

func (u *UART) WriteData(b byte) { u.Bus.UARTDR.Set(uint32(b)) }

func (u *UART) ReadData() byte { return u.rx.take(u) }

func (u *UART) Readable() bool { return u.rx.readable(u) }

func (u *UART) Writable() bool { return !u.Bus.UARTFR.HasBits(rp.UART0_UARTFR_TXFF) }

func (u *UART) EnableInterrupt(kind uartengine.IRQKind, on bool) {
	var m uint32
	switch kind {
	case uartengine.IRQTx:
		m = imscTx
	case uartengine.IRQRx:
		m = imscRx
	case uartengine.IRQError:
		m = imscErr
	default:
		return
	}
	if on {
		u.Bus.UARTIMSC.SetBits(m)
	} else {
		u.Bus.UARTIMSC.ClearBits(m)
	}
}

func (u *UART) AckInterrupt(kind uartengine.IRQKind) {
	switch kind {
	case uartengine.IRQTx:
		u.Bus.UARTICR.Set(icrTx)
	case uartengine.IRQRx:
		u.Bus.UARTICR.Set(icrRx)
	case uartengine.IRQError:
		u.Bus.UARTICR.Set(icrErr)
	}
}

func (u *UART) Pending() uartengine.Cause {
	mis := u.Bus.UARTMIS.Get()
	var c uartengine.Cause
	if mis&rp.UART0_UARTMIS_TXMIS != 0 {
		c |= uartengine.CauseTx
	}
	if mis&(rp.UART0_UARTMIS_RXMIS|rp.UART0_UARTMIS_RTMIS) != 0 || u.rx.held && u.Bus.UARTIMSC.HasBits(imscRx) {
		c |= uartengine.CauseRx
	}
	if mis&(rp.UART0_UARTMIS_OEMIS|rp.UART0_UARTMIS_BEMIS|rp.UART0_UARTMIS_PEMIS|rp.UART0_UARTMIS_FEMIS) != 0 {
		c |= uartengine.CauseError
	}
	return c
}

// ErrorStatus reports the flags of the character at the head of the RX
// FIFO. Good bytes queued ahead of a bad one are delivered first.
func (u *UART) ErrorStatus() uartengine.ErrorStatus { return u.rx.status(u) }

func (u *UART) ClearErrorStatus() {
	u.rx.dropErrored()
	u.Bus.UARTICR.Set(icrErr)
	u.Bus.UARTRSR.Set(0)
}

// ResetTxFIFO is a no-op: the PL011 can only flush both FIFOs together, so
// bytes already queued still go out.
func (u *UART) ResetTxFIFO() {}

func (u *UART) ResetRxFIFO() {
	u.rx.flush(u)
	u.Bus.UARTRSR.Set(0)
}

// ---- vectors ----

var (
	handlers [2]func()
	irqs     [2]interrupt.Interrupt
)

func init() {
	irqs[0] = interrupt.New(rp.IRQ_UART0_IRQ, func(interrupt.Interrupt) {
		if h := handlers[0]; h != nil {
			h()
		}
	})
	irqs[1] = interrupt.New(rp.IRQ_UART1_IRQ, func(interrupt.Interrupt) {
		if h := handlers[1]; h != nil {
			h()
		}
	})
}

// Vectors binds engine handlers to the UART0/UART1 lines.
type Vectors struct{}

func (Vectors) RegisterVector(irq int, handler func()) {
	var i int
	switch irq {
	case rp.IRQ_UART0_IRQ:
		i = 0
	case rp.IRQ_UART1_IRQ:
		i = 1
	default:
		return
	}
	s := interrupt.Disable()
	handlers[i] = handler
	interrupt.Restore(s)
	if handler == nil {
		irqs[i].Disable()
		return
	}
	irqs[i].SetPriority(0x80)
	irqs[i].Enable()
}
