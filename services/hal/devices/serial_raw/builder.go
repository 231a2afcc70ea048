// Package serial_raw bridges an engine channel to a pair of shmring byte
// streams. Clients open a session, resolve the ring handles and then move
// bytes without going through the bus.
package serial_raw

import (
	"context"
	"sync/atomic"
	"time"

	"uarthal/drivers/uartengine"
	"uarthal/errcode"
	"uarthal/services/hal/internal/core"
	"uarthal/types"
	"uarthal/x/logx"
	"uarthal/x/mathx"
	"uarthal/x/shmring"
)

var log = logx.New("serial_raw")

const (
	defaultRingSize = 512
	txChunk         = 64 // largest span handed to one StartTx
)

// ---- Parameters ----

type Params struct {
	Bus    string `yaml:"bus"`
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
	Baud   uint32 `yaml:"baud"`
	Flow   bool   `yaml:"flow"`
	RXSize int    `yaml:"rx_size"` // power of two; default 512 if zero in SessionOpen
	TXSize int    `yaml:"tx_size"` // power of two; default 512 if zero in SessionOpen
}

// ---- Device ----

type Device struct {
	id  string
	a   core.CapAddr
	res core.Resources

	port core.UARTPort
	ch   *uartengine.Channel

	params Params

	sess  *session
	snCtr atomic.Uint32

	rxBytes atomic.Uint32
	txBytes atomic.Uint32
	rxDrops atomic.Uint32
}

type session struct {
	id uint32

	// Rings (SPSC); handles are exported to clients.
	rxHandle shmring.Handle
	rxRing   *shmring.Ring // producer: RX interrupt handler
	txHandle shmring.Handle
	txRing   *shmring.Ring // consumer: reactor

	rxPaused atomic.Bool // RX interrupt released because rxRing filled
	inflight int         // bytes of txRing lent to the engine
	kick     chan struct{}

	// Single worker (reactor) for the port.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// ---- Builder registration ----

func Builder() core.Builder { return builder{} }

func init() { core.RegisterBuilder("serial_raw", Builder()) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := core.DecodeParams[Params](in.Params)
	if err != nil {
		return nil, err
	}
	if p.Bus == "" || p.Name == "" {
		return nil, errcode.InvalidParams
	}
	if p.Domain == "" {
		p.Domain = "io"
	}

	// Claim the bus exclusively.
	port, err := in.Res.Reg.ClaimUART(in.ID, core.ResourceID(p.Bus), core.UARTClaim{Flow: p.Flow})
	if err != nil {
		return nil, err
	}

	return &Device{
		id:     in.ID,
		a:      core.CapAddr{Domain: p.Domain, Kind: types.KindSerial, Name: p.Name},
		res:    in.Res,
		port:   port,
		ch:     port.Channel(),
		params: p,
	}, nil
}

// ---- core.Device ----

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	info := types.SerialInfo{Bus: d.port.Bus(), Baud: d.params.Baud, Flow: d.port.Flow()}
	return []core.CapabilitySpec{{
		Domain: d.a.Domain,
		Kind:   types.KindSerial,
		Name:   d.a.Name,
		Info:   types.Info{SchemaVersion: 1, Driver: "serial_raw", Detail: info},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	// Apply initial baud only if explicitly provided.
	if c, ok := d.port.(core.SerialConfigurator); ok && d.params.Baud > 0 {
		if err := c.SetBaudRate(d.params.Baud); err != nil && errcode.Of(err) != errcode.Unsupported {
			return err
		}
	}

	// Degraded until a session is open.
	reason := "initialising"
	if d.ch.NotConnected() {
		reason = string(errcode.NotConnected)
	}
	d.res.Pub.Emit(core.Event{Addr: d.a, Err: reason})
	return nil
}

func (d *Device) Close() error {
	if d.sess != nil {
		d.stopSession()
	}
	if d.res.Reg != nil {
		d.res.Reg.ReleaseUART(d.id, core.ResourceID(d.port.Bus()))
	}
	return nil
}

// ---- Controls ----

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "session_open":
		req, code := core.As[types.SerialSessionOpen](payload) // zero value => apply defaults
		if code != "" {
			return core.Fail(code), nil
		}
		if d.ch.NotConnected() {
			return core.Fail(errcode.NotConnected), nil
		}
		if d.sess != nil {
			return core.Fail(errcode.Conflict), nil
		}

		rxSize, txSize := req.RXSize, req.TXSize
		if rxSize == 0 {
			rxSize = coalescePow2(d.params.RXSize, defaultRingSize)
		}
		if txSize == 0 {
			txSize = coalescePow2(d.params.TXSize, defaultRingSize)
		}
		if !isPow2(rxSize) || !isPow2(txSize) || rxSize < 2 || txSize < 2 {
			return core.Fail(errcode.InvalidParams), nil
		}

		d.drainStale()
		d.startSession(rxSize, txSize)

		rep := types.SerialSessionOpened{
			SessionID: d.sess.id,
			RXHandle:  uint32(d.sess.rxHandle),
			TXHandle:  uint32(d.sess.txHandle),
		}
		d.res.Pub.Emit(core.Event{Addr: d.a, Payload: rep, EventTag: "session_opened"})
		d.res.Pub.Emit(core.Event{Addr: d.a, Payload: d.stats()})
		return core.OK(), nil

	case "session_close":
		// Accept zero-value payload (no fields)
		_, _ = core.As[types.SerialSessionClose](payload)
		if d.sess == nil {
			return core.OK(), nil
		}
		id := d.sess.id
		d.stopSession()
		d.res.Pub.Emit(core.Event{Addr: d.a, Payload: types.SerialSessionClosed{SessionID: id}, EventTag: "session_closed"})
		d.res.Pub.Emit(core.Event{Addr: d.a, Err: "session_closed"})
		return core.OK(), nil

	case "stats":
		d.res.Pub.Emit(core.Event{Addr: d.a, Payload: d.stats()})
		return core.OK(), nil

	case "set_baud":
		c, ok := d.port.(core.SerialConfigurator)
		if !ok {
			return core.Fail(errcode.Unsupported), nil
		}
		req, code := core.As[types.SerialSetBaud](payload)
		if code != "" {
			return core.Fail(code), nil
		}
		if err := c.SetBaudRate(req.Baud); err != nil {
			return core.Fail(errcode.Of(err)), nil
		}
		d.params.Baud = req.Baud
		return core.OK(), nil

	case "set_format":
		f, ok := d.port.(core.SerialFormatConfigurator)
		if !ok {
			return core.Fail(errcode.Unsupported), nil
		}
		req, code := core.As[types.SerialSetFormat](payload)
		if code != "" {
			return core.Fail(code), nil
		}
		if req.DataBits == 0 || req.StopBits == 0 {
			return core.Fail(errcode.InvalidParams), nil
		}
		if err := f.SetFormat(req.DataBits, req.StopBits, req.Parity.String()); err != nil {
			return core.Fail(errcode.Of(err)), nil
		}
		return core.OK(), nil

	default:
		return core.Fail(errcode.Unsupported), nil
	}
}

func (d *Device) stats() types.SerialStats {
	return types.SerialStats{
		RXBytes:  d.rxBytes.Load(),
		TXBytes:  d.txBytes.Load(),
		RXDrops:  d.rxDrops.Load(),
		RXErrors: d.ch.Stats().ErrorsDropped,
	}
}

// drainStale discards bytes already waiting in the RX FIFO, stopping after
// a short quiet window so session_open stays bounded.
func (d *Device) drainStale() {
	const quiet = 5 * time.Millisecond     // time with no bytes before we stop
	const maxTotal = 15 * time.Millisecond // absolute cap

	start := time.Now()
	lastByte := start
	for {
		if _, ok := d.ch.TryGetc(); ok {
			d.rxDrops.Add(1)
			lastByte = time.Now()
			continue
		}
		now := time.Now()
		if now.Sub(lastByte) >= quiet || now.Sub(start) >= maxTotal {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// ---- Session lifecycle ----

func (d *Device) startSession(rxSize, txSize int) {
	rxh, rxr := shmring.NewRegistered(rxSize)
	txh, txr := shmring.NewRegistered(txSize)

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       d.snCtr.Add(1),
		rxHandle: rxh,
		rxRing:   rxr,
		txHandle: txh,
		txRing:   txr,
		kick:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	d.sess = s

	d.ch.SetIRQHandler(func(_ uartengine.ChannelID, kind uartengine.IRQKind) {
		if kind == uartengine.IRQRx {
			d.onRx(s)
		}
	})
	if err := d.ch.EnableIRQ(uartengine.IRQRx, true); err != nil {
		log.Warn("rx irq", "bus", d.port.Bus(), "err", err)
	}
	go d.reactor(s)
}

func (d *Device) stopSession() {
	s := d.sess
	if s == nil {
		return
	}
	_ = d.ch.EnableIRQ(uartengine.IRQRx, false)
	d.ch.SetIRQHandler(nil)

	s.cancel()
	<-s.done
	// The engine may still hold a txRing span.
	d.ch.AbortTx()

	// Drop registry mappings; handles are the contract with clients.
	shmring.Close(s.rxHandle)
	shmring.Close(s.txHandle)

	d.sess = nil
}

// onRx is the legacy RX handler and runs in interrupt context. It is the
// only producer of rxRing. When the ring fills, the RX request is dropped
// and the reactor takes it back once the client has made room.
func (d *Device) onRx(s *session) {
	var one [1]byte
	for s.rxRing.Space() > 0 {
		b, ok := d.ch.TryGetc()
		if !ok {
			return
		}
		one[0] = b
		s.rxRing.TryWriteFrom(one[:])
		d.rxBytes.Add(1)
	}
	if d.ch.Readable() && !s.rxPaused.Swap(true) {
		_ = d.ch.EnableIRQ(uartengine.IRQRx, false)
		kick(s)
	}
}

// onTx is the engine TX callback (interrupt context).
func (d *Device) onTx(s *session) uartengine.Callback {
	return func(uartengine.Event) { kick(s) }
}

func kick(s *session) {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// ---- Reactor (single goroutine) ----

func (d *Device) reactor(s *session) {
	defer close(s.done)

	cb := d.onTx(s)
	for {
		d.pumpTx(s, cb)
		d.resumeRx(s)

		// Idle: wait for any edge, then re-check.
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
		case <-s.txRing.Readable():
		case <-s.rxRing.Writable():
		}
	}
}

// pumpTx retires a finished transmit and lends the next txRing span to the
// engine. Spans are never copied.
func (d *Device) pumpTx(s *session, cb uartengine.Callback) {
	if s.inflight > 0 {
		if d.ch.IsTxActive() {
			return
		}
		s.txRing.ReadRelease(s.inflight)
		d.txBytes.Add(uint32(s.inflight))
		s.inflight = 0
	}
	p1, _ := s.txRing.ReadAcquire()
	if len(p1) == 0 {
		return
	}
	n := mathx.Min(len(p1), txChunk)
	if _, err := d.ch.StartTx(p1[:n], 8, cb, uartengine.TxComplete); err != nil {
		log.Warn("start tx", "bus", d.port.Bus(), "err", err)
		return
	}
	s.inflight = n
}

func (d *Device) resumeRx(s *session) {
	if !s.rxPaused.Load() || s.rxRing.Space() == 0 {
		return
	}
	s.rxPaused.Store(false)
	if err := d.ch.EnableIRQ(uartengine.IRQRx, true); err != nil {
		log.Warn("rx irq", "bus", d.port.Bus(), "err", err)
	}
}

// ---- Helpers ----

func isPow2(n int) bool { return n > 0 && (n&(n-1)) == 0 }

func coalescePow2(v, d int) int {
	if v <= 0 || !isPow2(v) {
		return d
	}
	if v < 2 {
		return 2
	}
	return v
}
