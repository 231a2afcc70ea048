package uartengine

import "strings"

// Event is the notification bitset a channel raises towards the foreground.
type Event uint16

const (
	TxComplete Event = 1 << iota
	RxComplete
	RxCharMatch
	RxParityError
	RxFramingError
	RxOverrunError
)

const (
	TxEvents  = TxComplete
	RxErrors  = RxParityError | RxFramingError | RxOverrunError
	RxEvents  = RxComplete | RxCharMatch | RxErrors
	AllEvents = TxEvents | RxEvents
)

var eventNames = [...]string{
	"tx_complete",
	"rx_complete",
	"rx_char_match",
	"rx_parity_error",
	"rx_framing_error",
	"rx_overrun_error",
}

// Has reports whether every bit of x is set in e.
func (e Event) Has(x Event) bool { return x != 0 && e&x == x }

// Any reports whether at least one bit of x is set in e.
func (e Event) Any(x Event) bool { return e&x != 0 }

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	var b strings.Builder
	for i, n := range eventNames {
		if e&(1<<i) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(n)
	}
	if e&^AllEvents != 0 {
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString("unknown")
	}
	return b.String()
}

// Names returns the short names of the set bits, in bit order.
func (e Event) Names() []string {
	var out []string
	for i, n := range eventNames {
		if e&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return out
}

// ParseEvents folds short event names into a bitset. Unknown names yield
// ok=false together with the bits recognised so far.
func ParseEvents(names []string) (ev Event, ok bool) {
	ok = true
	for _, s := range names {
		found := false
		for i, n := range eventNames {
			if s == n {
				ev |= 1 << i
				found = true
				break
			}
		}
		if !found {
			ok = false
		}
	}
	return ev, ok
}

// CharMatch selects the byte that raises RxCharMatch. NoCharMatch disables it.
type CharMatch int16

const NoCharMatch CharMatch = -1

// Match returns the CharMatch for b.
func Match(b byte) CharMatch { return CharMatch(b) }

func (m CharMatch) enabled() bool { return m >= 0 && m <= 0xFF }
