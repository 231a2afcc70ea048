package bridge

import (
	"encoding/binary"
	"io"
	"strconv"

	"uarthal/errcode"
)

// Frame types.
const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

const maxFramePayload = 0xFFFF

// Frame is a type byte and a big-endian uint16 length ahead of the payload.
type Frame struct {
	Type    byte
	Payload []byte
}

type frameReader struct{ r io.Reader }

func (fr frameReader) read() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	f := Frame{Type: hdr[0]}
	if n := binary.BigEndian.Uint16(hdr[1:]); n > 0 {
		f.Payload = make([]byte, n)
		if _, err := io.ReadFull(fr.r, f.Payload); err != nil {
			return Frame{}, err
		}
	}
	return f, nil
}

type frameWriter struct{ w io.Writer }

// write emits header and payload in one call so a ring-backed writer sees
// whole frames.
func (fw frameWriter) write(f Frame) error {
	if len(f.Payload) > maxFramePayload {
		return &errcode.E{C: errcode.InvalidPayload, Op: "bridge", Msg: "frame too large: " + strconv.Itoa(len(f.Payload))}
	}
	buf := make([]byte, 3, 3+len(f.Payload))
	buf[0] = f.Type
	binary.BigEndian.PutUint16(buf[1:], uint16(len(f.Payload)))
	_, err := fw.w.Write(append(buf, f.Payload...))
	return err
}
