// Package uartsim is an in-memory UART register block for host builds and
// tests. It models a TX FIFO that shifts onto a capturable wire, an RX FIFO
// fed by the test, per-byte and latched receive errors, and a vector table
// that fires while a source is pending and enabled.
package uartsim

import (
	"sync"

	"uarthal/drivers/uartengine"
	"uarthal/x/mathx"
)

var (
	_ uartengine.Regs         = (*Sim)(nil)
	_ uartengine.FIFOResetter = (*Sim)(nil)
)

// maxFires bounds one Service call so a handler that never clears its
// source cannot spin a test forever.
const maxFires = 1024

type entry struct {
	b   byte
	err uartengine.ErrorStatus
}

// Sim is one simulated UART.
type Sim struct {
	mu sync.Mutex

	txDepth int
	rxDepth int

	txFIFO []byte
	wire   []byte
	rxFIFO []entry

	enabled [3]bool
	txReady bool
	latched uartengine.ErrorStatus

	nvic *NVIC
	irq  int

	baud   uint32
	format string

	fires     int
	txDropped int
	txResets  int
	rxResets  int
}

// New returns a simulator with the given FIFO depths (minimum 1).
func New(txDepth, rxDepth int) *Sim {
	return &Sim{
		txDepth: mathx.Max(txDepth, 1),
		rxDepth: mathx.Max(rxDepth, 1),
		irq:     -1,
	}
}

// Attach connects the simulator's interrupt line to irq on n.
func (s *Sim) Attach(n *NVIC, irq int) {
	s.mu.Lock()
	s.nvic, s.irq = n, irq
	s.mu.Unlock()
}

// ---- register shim ----

func (s *Sim) WriteData(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txFIFO) >= s.txDepth {
		s.txDropped++
		return
	}
	s.txFIFO = append(s.txFIFO, b)
}

func (s *Sim) ReadData() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rxFIFO) == 0 {
		return 0
	}
	e := s.rxFIFO[0]
	s.rxFIFO = s.rxFIFO[1:]
	return e.b
}

func (s *Sim) Readable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rxFIFO) > 0
}

func (s *Sim) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txFIFO) < s.txDepth
}

func (s *Sim) EnableInterrupt(kind uartengine.IRQKind, on bool) {
	s.mu.Lock()
	if int(kind) < len(s.enabled) {
		s.enabled[kind] = on
	}
	s.mu.Unlock()
}

// AckInterrupt clears the latched TX-ready edge. RX and error sources are
// level sensitive and clear with their condition.
func (s *Sim) AckInterrupt(kind uartengine.IRQKind) {
	s.mu.Lock()
	if kind == uartengine.IRQTx {
		s.txReady = false
	}
	s.mu.Unlock()
}

func (s *Sim) Pending() uartengine.Cause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Sim) pendingLocked() uartengine.Cause {
	var c uartengine.Cause
	if s.enabled[uartengine.IRQTx] && s.txReady {
		c |= uartengine.CauseTx
	}
	if s.enabled[uartengine.IRQRx] && len(s.rxFIFO) > 0 {
		c |= uartengine.CauseRx
	}
	if s.enabled[uartengine.IRQError] && s.errorStatusLocked().Any() {
		c |= uartengine.CauseError
	}
	return c
}

func (s *Sim) ErrorStatus() uartengine.ErrorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorStatusLocked()
}

func (s *Sim) errorStatusLocked() uartengine.ErrorStatus {
	es := s.latched
	if len(s.rxFIFO) > 0 {
		top := s.rxFIFO[0].err
		es.Overrun = es.Overrun || top.Overrun
		es.Parity = es.Parity || top.Parity
		es.Framing = es.Framing || top.Framing
		es.Break = es.Break || top.Break
	}
	return es
}

// ClearErrorStatus clears the latch and discards an errored byte at the
// head of the RX FIFO.
func (s *Sim) ClearErrorStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latched = uartengine.ErrorStatus{}
	if len(s.rxFIFO) > 0 && s.rxFIFO[0].err.Any() {
		s.rxFIFO = s.rxFIFO[1:]
	}
}

func (s *Sim) ResetTxFIFO() {
	s.mu.Lock()
	s.txFIFO = nil
	s.txResets++
	s.mu.Unlock()
}

func (s *Sim) ResetRxFIFO() {
	s.mu.Lock()
	s.rxFIFO = nil
	s.rxResets++
	s.mu.Unlock()
}

// ---- stimulus ----

// Receive places bytes in the RX FIFO. Bytes that do not fit are lost and
// latch an overrun.
func (s *Sim) Receive(bs ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bs {
		if len(s.rxFIFO) >= s.rxDepth {
			s.latched.Overrun = true
			continue
		}
		s.rxFIFO = append(s.rxFIFO, entry{b: b})
	}
}

// ReceiveWithError places one byte flagged with es in the RX FIFO.
func (s *Sim) ReceiveWithError(b byte, es uartengine.ErrorStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rxFIFO) >= s.rxDepth {
		s.latched.Overrun = true
		return
	}
	s.rxFIFO = append(s.rxFIFO, entry{b: b, err: es})
}

// RaiseError latches es as if the line had reported it.
func (s *Sim) RaiseError(es uartengine.ErrorStatus) {
	s.mu.Lock()
	s.latched.Overrun = s.latched.Overrun || es.Overrun
	s.latched.Parity = s.latched.Parity || es.Parity
	s.latched.Framing = s.latched.Framing || es.Framing
	s.latched.Break = s.latched.Break || es.Break
	s.mu.Unlock()
}

// ShiftOut moves the oldest TX FIFO byte onto the wire. The TX-ready edge
// latches when the FIFO runs empty.
func (s *Sim) ShiftOut() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txFIFO) == 0 {
		return 0, false
	}
	b := s.txFIFO[0]
	s.txFIFO = s.txFIFO[1:]
	s.wire = append(s.wire, b)
	if len(s.txFIFO) == 0 {
		s.txReady = true
	}
	return b, true
}

// Service fires the vector while a source is pending and enabled, and
// returns the number of fires.
func (s *Sim) Service() int {
	n := 0
	for n < maxFires {
		s.mu.Lock()
		p := s.pendingLocked()
		nv, irq := s.nvic, s.irq
		s.mu.Unlock()
		if p == 0 || nv == nil {
			break
		}
		if !nv.Fire(irq) {
			break
		}
		s.mu.Lock()
		s.fires++
		s.mu.Unlock()
		n++
	}
	return n
}

// Fire runs the vector once regardless of pending state.
func (s *Sim) Fire() bool {
	s.mu.Lock()
	nv, irq := s.nvic, s.irq
	s.mu.Unlock()
	if nv == nil || !nv.Fire(irq) {
		return false
	}
	s.mu.Lock()
	s.fires++
	s.mu.Unlock()
	return true
}

// Pump alternates servicing and shifting until nothing moves, and returns
// the number of vector fires.
func (s *Sim) Pump() int {
	total := 0
	for {
		n := s.Service()
		total += n
		if _, ok := s.ShiftOut(); !ok && n == 0 {
			return total
		}
	}
}

// ---- inspection ----

// Wire returns a copy of everything shifted out so far.
func (s *Sim) Wire() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.wire...)
}

// TakeWire returns and clears the captured wire.
func (s *Sim) TakeWire() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.wire
	s.wire = nil
	return w
}

func (s *Sim) Fires() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fires
}

func (s *Sim) Enabled(kind uartengine.IRQKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(kind) < len(s.enabled) && s.enabled[kind]
}

func (s *Sim) RxLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rxFIFO)
}

func (s *Sim) TxLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txFIFO)
}

func (s *Sim) Resets() (tx, rx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txResets, s.rxResets
}
