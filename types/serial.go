package types

// ------------------------
// Serial (shmring sessions over an engine channel)
// ------------------------

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

func (p Parity) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

type SerialSessionOpen struct {
	// Power-of-two sizes (bytes). Device will default if zero.
	RXSize int `json:"rx_size,omitempty"`
	TXSize int `json:"tx_size,omitempty"`
}

type SerialSessionClose struct{}

type SerialSetBaud struct {
	Baud uint32 `json:"baud"`
}

type SerialSetFormat struct {
	DataBits uint8  `json:"data_bits"`
	StopBits uint8  `json:"stop_bits"`
	Parity   Parity `json:"parity"`
}

// Emitted on session_open success as a tagged event payload.
// Handles are plain uint32 so the schema stays decoupled from shmring.
type SerialSessionOpened struct {
	SessionID uint32 `json:"session_id"`
	RXHandle  uint32 `json:"rx_handle"`
	TXHandle  uint32 `json:"tx_handle"`
}

type SerialSessionClosed struct {
	SessionID uint32 `json:"session_id"`
}

// SerialStats is the retained value of a serial capability.
type SerialStats struct {
	RXBytes  uint32 `json:"rx_bytes"`
	TXBytes  uint32 `json:"tx_bytes"`
	RXDrops  uint32 `json:"rx_drops"`
	RXErrors uint32 `json:"rx_errors"`
}

type SerialInfo struct {
	Bus  string `json:"bus"`
	Baud uint32 `json:"baud"` // 0 if unspecified
	Flow bool   `json:"flow"`
}
