package uartengine

import "uarthal/errcode"

// StartTx arms an asynchronous transmit of buf and returns the number of
// bytes accepted. The buffer is borrowed until TxComplete or AbortTx.
//
// Whatever the hardware accepts immediately is written before StartTx
// returns; the rest is moved by the TX-ready vector. A zero-length buffer is
// a no-op.
func (c *Channel) StartTx(buf []byte, width uint8, cb Callback, events Event) (int, error) {
	if c.nc {
		return 0, notConnected("start_tx")
	}
	if err := checkWidth(width); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	st := disableIRQ()
	defer restoreIRQ(st)

	if c.tx.active {
		return 0, busy("start_tx", "tx already active")
	}

	c.regs.EnableInterrupt(IRQTx, false)
	c.tx = txState{buf: buf, active: true, cb: cb}
	c.requested = c.requested&^TxEvents | events&TxEvents
	c.regs.AckInterrupt(IRQTx)

	c.fillTx()
	if !c.tx.stalled {
		c.txReq |= reqAsync
	}
	if c.txReq != 0 {
		c.regs.EnableInterrupt(IRQTx, true)
	}
	return len(buf), nil
}

// AbortTx cancels the transmit in flight. Bytes already handed to the
// hardware are not retracted; the FIFO is flushed when the shim supports it.
// It is a no-op when no transmit is active.
func (c *Channel) AbortTx() {
	if c.nc {
		return
	}
	st := disableIRQ()
	c.abortTxLocked()
	restoreIRQ(st)
}

func (c *Channel) abortTxLocked() {
	if !c.tx.active {
		return
	}
	c.regs.EnableInterrupt(IRQTx, false)
	if r, ok := c.regs.(FIFOResetter); ok {
		r.ResetTxFIFO()
	}
	c.tx.active, c.tx.stalled = false, false
	c.tx.buf, c.tx.cb = nil, nil
	c.txReq &^= reqAsync
	if c.txReq != 0 {
		c.regs.EnableInterrupt(IRQTx, true)
	}
}

// fillTx moves bytes into the hardware until it refuses or CTS holds the
// line.
func (c *Channel) fillTx() {
	for c.tx.pos < len(c.tx.buf) {
		if !c.ctsClear() {
			c.tx.stalled = true
			return
		}
		if !c.regs.Writable() {
			return
		}
		c.regs.WriteData(c.tx.buf[c.tx.pos])
		c.tx.pos++
		c.stats.TxBytes++
	}
}

// onTx handles a TX-ready interrupt. Completion is declared on the first
// interrupt that finds the whole buffer already handed over.
func (c *Channel) onTx(n *notice) {
	if !c.tx.active {
		return
	}
	if c.tx.pos == len(c.tx.buf) {
		cb := c.tx.cb
		c.tx.active = false
		c.tx.buf, c.tx.cb = nil, nil
		c.releaseTx(reqAsync)
		c.raise(n, cb, TxComplete)
		return
	}
	c.fillTx()
	if c.tx.stalled {
		c.releaseTx(reqAsync)
	}
}

func checkWidth(width uint8) error {
	switch width {
	case 0, 8:
		return nil
	}
	return &errcode.E{C: errcode.InvalidParams, Op: "width", Msg: "only 8-bit words are supported"}
}
