package uartengine

// notice is a callback invocation deferred until the critical section is
// left.
type notice struct {
	cb Callback
	ev Event
}

func (n notice) deliver() {
	if n.cb != nil && n.ev != 0 {
		n.cb(n.ev)
	}
}

// service is the vector body for one channel: decode, acknowledge, route to
// the TX/RX/error handlers, then notify.
func (c *Channel) service() {
	if c.nc {
		return
	}
	var txn, rxn notice

	st := disableIRQ()
	cause := c.regs.Pending()
	if cause == 0 {
		c.stats.Spurious++
		restoreIRQ(st)
		return
	}
	if cause.Has(IRQError) {
		c.regs.AckInterrupt(IRQError)
		c.stats.ErrIRQ++
		c.onError(&rxn)
	}
	if cause.Has(IRQRx) {
		c.regs.AckInterrupt(IRQRx)
		c.stats.RxIRQ++
		c.onRx(&rxn)
	}
	if cause.Has(IRQTx) {
		c.regs.AckInterrupt(IRQTx)
		c.stats.TxIRQ++
		c.onTx(&txn)
	}
	h := c.handler
	legacyTx := c.txReq&reqLegacy != 0
	legacyRx := c.rxReq&reqLegacy != 0
	restoreIRQ(st)

	txn.deliver()
	rxn.deliver()

	if h == nil {
		return
	}
	if legacyRx && cause.Has(IRQRx) {
		h(c.id, IRQRx)
	}
	if legacyTx && cause.Has(IRQTx) {
		h(c.id, IRQTx)
	}
}
