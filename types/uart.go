package types

// ------------------------
// UART capability (async transfer engine)
// ------------------------

// UARTInfo is Info.Detail for kind "uart".
type UARTInfo struct {
	Bus     string `json:"bus"`
	Channel uint8  `json:"channel"`
	Baud    uint32 `json:"baud"`
	Flow    bool   `json:"flow"`
}

// UARTWrite is the payload of control/write.
type UARTWrite struct {
	Data   []byte   `json:"data"`
	Events []string `json:"events,omitempty"` // empty => tx_complete
	// Polled leaves events for control/poll instead of publishing them.
	Polled bool `json:"polled,omitempty"`
}

// UARTRead is the payload of control/read. Len is capped by the device.
type UARTRead struct {
	Len      int      `json:"len"`
	Match    byte     `json:"match,omitempty"`
	UseMatch bool     `json:"use_match,omitempty"`
	Events   []string `json:"events,omitempty"` // empty => every rx event
	Polled   bool     `json:"polled,omitempty"`
}

// UARTPoll is the payload of control/poll.
type UARTPoll struct{}

// UARTStatusReq is the payload of control/status.
type UARTStatusReq struct{}

// UARTTxEvent is published on event/tx_complete.
type UARTTxEvent struct {
	Events []string `json:"events"`
	Pos    int      `json:"pos"`
}

// UARTRxEvent is published on event/rx_char_match, event/rx_complete and
// event/rx_error. Data holds the bytes received so far.
type UARTRxEvent struct {
	Events []string `json:"events"`
	Pos    int      `json:"pos"`
	Data   []byte   `json:"data,omitempty"`
}

// UARTStatus is the retained value of a uart capability.
type UARTStatus struct {
	TxActive bool     `json:"tx_active"`
	RxActive bool     `json:"rx_active"`
	TxPos    int      `json:"tx_pos"`
	RxPos    int      `json:"rx_pos"`
	RTS      bool     `json:"rts"`
	Pending  []string `json:"pending,omitempty"` // filled by poll
	TxIRQ    uint32   `json:"tx_irq"`
	RxIRQ    uint32   `json:"rx_irq"`
	ErrIRQ   uint32   `json:"err_irq"`
	Spurious uint32   `json:"spurious"`
	Dropped  uint32   `json:"errors_dropped"`
}
