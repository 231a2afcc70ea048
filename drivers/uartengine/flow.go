package uartengine

// requester is the set of independent reasons for keeping an interrupt
// source enabled. The source is enabled while any bit is held.
type requester uint8

const (
	reqAsync requester = 1 << iota
	reqLegacy
	reqFlow
)

// Caller holds the critical section for everything below.

func (c *Channel) acquireRx(r requester) {
	was := c.rxReq
	c.rxReq |= r
	if was == 0 {
		c.regs.EnableInterrupt(IRQRx, true)
	}
}

func (c *Channel) releaseRx(r requester) {
	if c.rxReq&r == 0 {
		return
	}
	c.rxReq &^= r
	if c.rxReq == 0 {
		c.regs.EnableInterrupt(IRQRx, false)
	}
}

func (c *Channel) acquireTx(r requester) {
	was := c.txReq
	c.txReq |= r
	if was == 0 {
		c.regs.EnableInterrupt(IRQTx, true)
	}
}

func (c *Channel) releaseTx(r requester) {
	if c.txReq&r == 0 {
		return
	}
	c.txReq &^= r
	if c.txReq == 0 {
		c.regs.EnableInterrupt(IRQTx, false)
	}
}

func (c *Channel) setErrIRQ(on bool) {
	if c.errOn == on {
		return
	}
	c.errOn = on
	c.regs.EnableInterrupt(IRQError, on)
}

// ---- RTS (receive side) ----

// assertRTS asks the peer to pause. The RTS line is active low, so the
// shadow pin is driven high.
func (c *Channel) assertRTS() {
	if c.rts == nil || c.rtsAsserted {
		return
	}
	c.rts.Set(true)
	c.rtsAsserted = true
}

// openRTS lets the peer send again and re-arms the flow requester so that a
// byte arriving with no receiver closes RTS.
func (c *Channel) openRTS() {
	if c.rts == nil {
		return
	}
	c.rts.Set(false)
	c.rtsAsserted = false
	c.acquireRx(reqFlow)
}

func (c *Channel) releaseRTS() {
	if c.rts == nil {
		return
	}
	c.rts.Set(false)
	c.rtsAsserted = false
}

// flowAfterByte runs after the vector stored a byte into the async buffer.
func (c *Channel) flowAfterByte() {
	if c.rts == nil {
		return
	}
	if len(c.rx.buf)-c.rx.pos <= c.threshold {
		c.assertRTS()
	}
}

// flowNoReceiver runs when RX data is pending and no async receive is armed.
// The flow requester is dropped so the level interrupt does not storm while
// the byte waits in the FIFO.
func (c *Channel) flowNoReceiver() {
	if c.rts == nil || c.rxReq&reqFlow == 0 {
		return
	}
	c.assertRTS()
	c.releaseRx(reqFlow)
}

// RTSAsserted reports whether the shim is currently holding off the peer.
func (c *Channel) RTSAsserted() bool {
	st := disableIRQ()
	v := c.rtsAsserted
	restoreIRQ(st)
	return v
}

// ---- CTS (transmit side) ----

// ctsClear reports whether the peer allows transmission. CTS is active low.
func (c *Channel) ctsClear() bool {
	return c.cts == nil || !c.cts.Get()
}

// writable folds the CTS shadow into the hardware predicate.
func (c *Channel) writable() bool {
	return c.ctsClear() && c.regs.Writable()
}

// CTSChanged re-evaluates a transmit stalled on CTS. Call it from a CTS pin
// edge handler or periodically.
func (c *Channel) CTSChanged() {
	if c.nc {
		return
	}
	st := disableIRQ()
	if c.tx.active && c.tx.stalled && c.ctsClear() {
		c.tx.stalled = false
		c.regs.AckInterrupt(IRQTx)
		c.fillTx()
		c.acquireTx(reqAsync)
	}
	restoreIRQ(st)
}
