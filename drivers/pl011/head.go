package pl011

import "uarthal/drivers/uartengine"

// Error flags carried in bits 8-11 of every word read from UARTDR.
const (
	drFE = 1 << 8
	drPE = 1 << 9
	drBE = 1 << 10
	drOE = 1 << 11

	drErrors = drFE | drPE | drBE | drOE
)

// dataFIFO is the receive side of the data register.
type dataFIFO interface {
	empty() bool
	pop() uint32
}

// rxHead latches the word at the head of the RX FIFO so that error status
// and data reads describe the same character. The flags in UARTRSR and RIS
// lag behind (RSR) or run ahead of (RIS) that character.
type rxHead struct {
	word uint32
	held bool
}

func (h *rxHead) readable(f dataFIFO) bool { return h.held || !f.empty() }

func (h *rxHead) peek(f dataFIFO) bool {
	if !h.held && !f.empty() {
		h.word = f.pop()
		h.held = true
	}
	return h.held
}

func (h *rxHead) take(f dataFIFO) byte {
	if h.held {
		h.held = false
		return byte(h.word)
	}
	return byte(f.pop())
}

// status reports the flags of the next character take would return. An
// empty FIFO has nothing to blame.
func (h *rxHead) status(f dataFIFO) uartengine.ErrorStatus {
	if !h.peek(f) {
		return uartengine.ErrorStatus{}
	}
	return uartengine.ErrorStatus{
		Overrun: h.word&drOE != 0,
		Parity:  h.word&drPE != 0,
		Framing: h.word&drFE != 0,
		Break:   h.word&drBE != 0,
	}
}

// dropErrored discards a latched character that carries error flags. A
// good one stays for take.
func (h *rxHead) dropErrored() {
	if h.held && h.word&drErrors != 0 {
		h.held = false
	}
}

func (h *rxHead) flush(f dataFIFO) {
	h.held = false
	for !f.empty() {
		f.pop()
	}
}
