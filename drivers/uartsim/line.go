package uartsim

import (
	"strconv"

	"uarthal/errcode"
)

// Line settings are recorded only; the wire is byte-exact regardless.

func (s *Sim) SetBaudRate(br uint32) {
	s.mu.Lock()
	s.baud = br
	s.mu.Unlock()
}

func (s *Sim) Baud() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baud
}

// SetFormat accepts the word formats a PL011 supports. Parity is "none",
// "even" or "odd".
func (s *Sim) SetFormat(databits, stopbits uint8, parity string) error {
	if databits < 5 || databits > 8 || (stopbits != 1 && stopbits != 2) {
		return errcode.InvalidParams
	}
	var p byte
	switch parity {
	case "none", "":
		p = 'N'
	case "even":
		p = 'E'
	case "odd":
		p = 'O'
	default:
		return errcode.InvalidParams
	}
	f := strconv.Itoa(int(databits)) + string(p) + strconv.Itoa(int(stopbits))
	s.mu.Lock()
	s.format = f
	s.mu.Unlock()
	return nil
}

// Format is the last accepted format, e.g. "8N1", or "" if never set.
func (s *Sim) Format() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}
