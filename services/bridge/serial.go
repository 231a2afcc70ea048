package bridge

import (
	"context"
	"io"
	"sync"
	"time"

	"uarthal/bus"
	"uarthal/errcode"
	"uarthal/services/hal"
	"uarthal/types"
	"uarthal/x/shmring"
)

const openTimeout = 2 * time.Second

// serialTransport opens a session on a HAL serial capability and speaks
// over its rings.
type serialTransport struct {
	conn *bus.Connection
	cfg  SerialConfig
}

func newSerialTransport(conn *bus.Connection, cfg TransportConfig) (Transport, error) {
	if cfg.Serial == nil || cfg.Serial.Name == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "bridge", Msg: "serial transport requires serial.name"}
	}
	sc := *cfg.Serial
	if sc.Domain == "" {
		sc.Domain = "io"
	}
	return &serialTransport{conn: conn, cfg: sc}, nil
}

func (t *serialTransport) String() string { return "serial:" + t.cfg.Name }

func (t *serialTransport) control(verb string) bus.Topic {
	return hal.ControlTopic(t.cfg.Domain, types.KindSerial, t.cfg.Name, verb)
}

func (t *serialTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	opened := t.conn.Subscribe(hal.EventTopic(t.cfg.Domain, types.KindSerial, t.cfg.Name, "session_opened"))
	defer t.conn.Unsubscribe(opened)

	ctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	req := types.SerialSessionOpen{RXSize: t.cfg.RXSize, TXSize: t.cfg.TXSize}
	reply, err := t.conn.RequestWait(ctx, t.conn.NewMessage(t.control("session_open"), req, false))
	if err != nil {
		return nil, err
	}
	if er, ok := reply.Payload.(types.ErrorReply); ok {
		return nil, &errcode.E{C: errcode.Code(er.Error), Op: "session_open"}
	}

	select {
	case m := <-opened.Channel():
		op, ok := m.Payload.(types.SerialSessionOpened)
		if !ok {
			return nil, errcode.InvalidPayload
		}
		rx, tx := shmring.Get(shmring.Handle(op.RXHandle)), shmring.Get(shmring.Handle(op.TXHandle))
		if rx == nil || tx == nil {
			return nil, &errcode.E{C: errcode.Closed, Op: "session_open", Msg: "ring handle not registered"}
		}
		return &ringConn{rx: rx, tx: tx, done: make(chan struct{}), onClose: t.closeSession}, nil
	case <-ctx.Done():
		return nil, errcode.Timeout
	}
}

func (t *serialTransport) closeSession() {
	t.conn.Publish(t.conn.NewMessage(t.control("session_close"), types.SerialSessionClose{}, false))
}

// ringConn is an io.ReadWriteCloser over a session's rings. One goroutine
// reads and one writes.
type ringConn struct {
	rx, tx  *shmring.Ring
	done    chan struct{}
	once    sync.Once
	onClose func()
}

func (c *ringConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n := c.rx.TryReadInto(p); n > 0 {
			return n, nil
		}
		select {
		case <-c.rx.Readable():
		case <-c.done:
			return 0, io.EOF
		}
	}
}

func (c *ringConn) Write(p []byte) (int, error) {
	n := 0
	for {
		n += c.tx.TryWriteFrom(p[n:])
		if n == len(p) {
			return n, nil
		}
		select {
		case <-c.tx.Writable():
		case <-c.done:
			return n, io.ErrClosedPipe
		}
	}
}

func (c *ringConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}
