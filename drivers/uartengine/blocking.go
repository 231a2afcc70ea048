package uartengine

import (
	"context"
	"runtime"
)

// Readable reports whether a byte is waiting in the hardware.
func (c *Channel) Readable() bool {
	if c.nc {
		return false
	}
	st := disableIRQ()
	v := c.regs.Readable()
	restoreIRQ(st)
	return v
}

// Writable reports whether Putc would not wait, honouring CTS.
func (c *Channel) Writable() bool {
	if c.nc {
		return false
	}
	st := disableIRQ()
	v := c.writable()
	restoreIRQ(st)
	return v
}

// TryGetc reads one byte if one is waiting.
func (c *Channel) TryGetc() (byte, bool) {
	if c.nc {
		return 0, false
	}
	st := disableIRQ()
	defer restoreIRQ(st)
	if !c.regs.Readable() {
		return 0, false
	}
	b := c.regs.ReadData()
	c.stats.RxBytes++
	if c.rtsAsserted && !c.rx.active {
		c.openRTS()
	}
	return b, true
}

// TryPutc writes one byte if the hardware (and CTS) accepts it.
func (c *Channel) TryPutc(b byte) bool {
	if c.nc {
		return false
	}
	st := disableIRQ()
	defer restoreIRQ(st)
	if !c.writable() {
		return false
	}
	c.regs.WriteData(b)
	c.stats.TxBytes++
	return true
}

// Getc waits for and returns one byte. It never times out; use GetcContext
// when a deadline is needed. Calling it on a not-connected channel panics.
func (c *Channel) Getc() byte {
	if c.nc {
		panic(notConnected("getc"))
	}
	for {
		if b, ok := c.TryGetc(); ok {
			return b
		}
		runtime.Gosched()
	}
}

// Putc waits until the byte can be written. It never times out; use
// PutcContext when a deadline is needed. Calling it on a not-connected
// channel panics.
func (c *Channel) Putc(b byte) {
	if c.nc {
		panic(notConnected("putc"))
	}
	for !c.TryPutc(b) {
		runtime.Gosched()
	}
}

// GetcContext is Getc with cancellation. It refuses to compete with an
// armed asynchronous receive.
func (c *Channel) GetcContext(ctx context.Context) (byte, error) {
	if c.nc {
		return 0, notConnected("getc")
	}
	if c.IsRxActive() {
		return 0, busy("getc", "async rx active")
	}
	for {
		if b, ok := c.TryGetc(); ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		runtime.Gosched()
	}
}

// PutcContext is Putc with cancellation. It refuses to interleave with an
// armed asynchronous transmit.
func (c *Channel) PutcContext(ctx context.Context, b byte) error {
	if c.nc {
		return notConnected("putc")
	}
	if c.IsTxActive() {
		return busy("putc", "async tx active")
	}
	for !c.TryPutc(b) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return nil
}
