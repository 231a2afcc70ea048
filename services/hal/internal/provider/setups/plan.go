package setups

// ResourcePlan specifies wiring and operating parameters chosen by a setup.
// Providers consume this plan to instantiate resource owners.
type ResourcePlan struct {
	GPIOMax int // highest claimable GPIO number
	UART    []UARTPlan
}

type UARTPlan struct {
	ID   string // e.g. "uart0"
	TX   int    // GPIO number
	RX   int    // GPIO number
	Baud uint32 // initial baud

	// NotConnected opens the channel without pins; transfers are refused.
	NotConnected bool

	// Flow names the shadow pins used when a device asks for flow control.
	Flow *FlowPlan

	// Host simulation only. RP2 takes the line from the PL011 instance and
	// has fixed 32-byte FIFOs.
	IRQ    int
	TxFIFO int
	RxFIFO int
}

// FlowPlan is RTS (output, high = stop sending) and CTS (input, low = clear).
type FlowPlan struct {
	RTS int
	CTS int
}
