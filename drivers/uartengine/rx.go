package uartengine

// StartRx arms an asynchronous receive into buf. It completes when buf is
// full, reports the first occurrence of match, and is aborted by any
// receive error. The buffer is borrowed until RxComplete, an error event, or
// AbortRx. A zero-length buffer is a no-op.
func (c *Channel) StartRx(buf []byte, width uint8, cb Callback, events Event, match CharMatch) error {
	if c.nc {
		return notConnected("start_rx")
	}
	if err := checkWidth(width); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}

	st := disableIRQ()
	defer restoreIRQ(st)

	if c.rx.active {
		return busy("start_rx", "rx already active")
	}

	c.regs.EnableInterrupt(IRQRx, false)
	c.regs.ClearErrorStatus()

	if !match.enabled() {
		match = NoCharMatch
	}
	c.rx = rxState{buf: buf, active: true, cb: cb, match: match}
	c.requested = c.requested&^RxEvents | events&RxEvents

	c.rxReq |= reqAsync
	if c.rts != nil {
		if c.rtsAsserted {
			c.rts.Set(false)
			c.rtsAsserted = false
		}
		c.rxReq |= reqFlow
	}
	c.setErrIRQ(true)
	c.regs.EnableInterrupt(IRQRx, true)
	return nil
}

// AbortRx cancels the receive in flight. Bytes already stored stay in the
// caller's buffer and RxPos reports how many are valid. It is a no-op when
// no receive is active.
func (c *Channel) AbortRx() {
	if c.nc {
		return
	}
	st := disableIRQ()
	c.abortRxLocked()
	restoreIRQ(st)
}

func (c *Channel) abortRxLocked() Callback {
	if !c.rx.active {
		return nil
	}
	c.regs.EnableInterrupt(IRQRx, false)
	if r, ok := c.regs.(FIFOResetter); ok {
		r.ResetRxFIFO()
	}
	cb := c.rx.cb
	c.rx.active = false
	c.rx.buf, c.rx.cb = nil, nil
	c.rxReq &^= reqAsync
	c.setErrIRQ(false)
	if c.rxReq != 0 {
		c.regs.EnableInterrupt(IRQRx, true)
	}
	return cb
}

func (c *Channel) finishRx() Callback {
	cb := c.rx.cb
	c.rx.active = false
	c.rx.buf, c.rx.cb = nil, nil
	c.releaseRx(reqAsync)
	c.setErrIRQ(false)
	return cb
}

// onRx consumes bytes while the hardware has them. It returns early after a
// reported character match so that the notification carries the position
// of the matching byte; the level interrupt brings the vector back for the
// rest.
func (c *Channel) onRx(n *notice) {
	if !c.rx.active {
		if c.regs.Readable() {
			c.flowNoReceiver()
		}
		return
	}
	for c.regs.Readable() {
		if es := c.regs.ErrorStatus(); es.Any() {
			c.rxError(n, es)
			return
		}
		b := c.regs.ReadData()
		c.rx.buf[c.rx.pos] = b
		c.rx.pos++
		c.stats.RxBytes++

		var ev Event
		if c.rx.match.enabled() && !c.rx.found && b == byte(c.rx.match) {
			c.rx.found = true
			ev = RxCharMatch & c.requested
		}
		c.flowAfterByte()

		if c.rx.pos == len(c.rx.buf) {
			cb := c.finishRx()
			c.raise(n, cb, ev|RxComplete)
			return
		}
		if ev != 0 {
			c.raise(n, c.rx.cb, ev)
			return
		}
	}
}

// onError handles the error interrupt group.
func (c *Channel) onError(n *notice) {
	es := c.regs.ErrorStatus()
	if !es.Any() {
		return
	}
	if !c.rx.active {
		c.regs.ClearErrorStatus()
		c.stats.ErrorsDropped++
		return
	}
	c.rxError(n, es)
}

// rxError aborts the receive as AbortRx would and raises the matching error
// bits together.
func (c *Channel) rxError(n *notice, es ErrorStatus) {
	c.regs.ClearErrorStatus()
	cb := c.abortRxLocked()
	c.raise(n, cb, es.events()&c.requested)
}
