package uartengine

import (
	"context"

	"tinygo.org/x/drivers"
)

var _ drivers.UART = (*Port)(nil)

// Port presents a channel through the byte-stream interface shared by the
// tinygo drivers. Reads never block; writes use Putc.
type Port struct {
	ch *Channel
}

func NewPort(ch *Channel) *Port { return &Port{ch: ch} }

func (p *Port) Channel() *Channel { return p.ch }

func (p *Port) Read(b []byte) (int, error) {
	if p.ch.nc {
		return 0, notConnected("read")
	}
	n := 0
	for n < len(b) {
		v, ok := p.ch.TryGetc()
		if !ok {
			break
		}
		b[n] = v
		n++
	}
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	if p.ch.nc {
		return 0, notConnected("write")
	}
	for _, v := range b {
		p.ch.Putc(v)
	}
	return len(b), nil
}

// WriteContext writes b, stopping early when ctx ends.
func (p *Port) WriteContext(ctx context.Context, b []byte) (int, error) {
	for i, v := range b {
		if err := p.ch.PutcContext(ctx, v); err != nil {
			return i, err
		}
	}
	return len(b), nil
}

// Buffered reports 1 while the hardware holds at least one byte. The shim
// does not expose a FIFO level.
func (p *Port) Buffered() int {
	if p.ch.Readable() {
		return 1
	}
	return 0
}
