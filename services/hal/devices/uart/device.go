// Package uart exposes one engine channel as a HAL capability of kind
// "uart". Controls start and abort asynchronous transfers; completions and
// errors come back as capability events.
package uart

import (
	"context"
	"sync/atomic"

	"uarthal/drivers/uartengine"
	"uarthal/errcode"
	"uarthal/services/hal/internal/core"
	"uarthal/types"
	"uarthal/x/logx"
	"uarthal/x/mathx"
)

var log = logx.New("uart")

const (
	defaultMaxRead = 256
	maxMaxRead     = 4096
	noteDepth      = 8
)

// ---- Parameters ----

type Params struct {
	Bus           string `yaml:"bus"`
	Domain        string `yaml:"domain"`
	Name          string `yaml:"name"`
	Baud          uint32 `yaml:"baud"`
	Flow          bool   `yaml:"flow"`
	FlowThreshold int    `yaml:"flow_threshold"`
	MaxRead       int    `yaml:"max_read"` // largest control/read length; 0 => 256
}

// ---- Device ----

type Device struct {
	id     string
	a      core.CapAddr
	res    core.Resources
	params Params

	port core.UARTPort
	ch   *uartengine.Channel

	// One record per engine notification, filled in the callback and
	// published by the worker.
	notes   chan note
	dropped atomic.Uint32

	cancel context.CancelFunc
	done   chan struct{}
}

// ---- Builder registration ----

func Builder() core.Builder { return builder{} }

func init() { core.RegisterBuilder("uart", Builder()) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := core.DecodeParams[Params](in.Params)
	if err != nil {
		return nil, err
	}
	if p.Bus == "" {
		return nil, errcode.InvalidParams
	}
	if p.Domain == "" {
		p.Domain = "io"
	}
	if p.Name == "" {
		p.Name = in.ID
	}
	if p.MaxRead <= 0 {
		p.MaxRead = defaultMaxRead
	}
	p.MaxRead = mathx.Clamp(p.MaxRead, 1, maxMaxRead)

	port, err := in.Res.Reg.ClaimUART(in.ID, core.ResourceID(p.Bus), core.UARTClaim{
		Flow:          p.Flow,
		FlowThreshold: p.FlowThreshold,
	})
	if err != nil {
		return nil, err
	}

	return &Device{
		id:     in.ID,
		a:      core.CapAddr{Domain: p.Domain, Kind: types.KindUART, Name: p.Name},
		res:    in.Res,
		params: p,
		port:   port,
		ch:     port.Channel(),
		notes:  make(chan note, noteDepth),
	}, nil
}

// ---- core.Device ----

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: d.a.Domain,
		Kind:   types.KindUART,
		Name:   d.a.Name,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "uartengine",
			Detail: types.UARTInfo{
				Bus:     d.port.Bus(),
				Channel: uint8(d.ch.ID()),
				Baud:    d.params.Baud,
				Flow:    d.port.Flow(),
			},
		},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	if c, ok := d.port.(core.SerialConfigurator); ok && d.params.Baud > 0 {
		if err := c.SetBaudRate(d.params.Baud); err != nil && errcode.Of(err) != errcode.Unsupported {
			return err
		}
	}
	wctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.worker(wctx)

	if d.ch.NotConnected() {
		d.res.Pub.Emit(core.Event{Addr: d.a, Err: string(errcode.NotConnected)})
		return nil
	}
	d.res.Pub.Emit(core.Event{Addr: d.a, Payload: d.status(nil)})
	return nil
}

func (d *Device) Close() error {
	if d.cancel != nil {
		d.cancel()
		<-d.done
		d.cancel = nil
	}
	d.ch.AbortTx()
	d.ch.AbortRx()
	if d.res.Reg != nil {
		d.res.Reg.ReleaseUART(d.id, core.ResourceID(d.port.Bus()))
	}
	return nil
}

// ---- Controls ----

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "write":
		req, code := core.As[types.UARTWrite](payload)
		if code != "" {
			return core.Fail(code), nil
		}
		return d.write(req), nil

	case "read":
		req, code := core.As[types.UARTRead](payload)
		if code != "" {
			return core.Fail(code), nil
		}
		return d.read(req), nil

	case "abort_tx":
		d.ch.AbortTx()
		d.res.Pub.Emit(core.Event{Addr: d.a, Payload: d.status(nil)})
		return core.OK(), nil

	case "abort_rx":
		d.ch.AbortRx()
		d.res.Pub.Emit(core.Event{Addr: d.a, Payload: d.status(nil)})
		return core.OK(), nil

	case "poll":
		ev := d.ch.PollAndClearEvents()
		d.res.Pub.Emit(core.Event{Addr: d.a, Payload: d.status(ev.Names())})
		return core.OK(), nil

	case "status":
		d.res.Pub.Emit(core.Event{Addr: d.a, Payload: d.status(nil)})
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

	default:
		return core.Fail(errcode.Unsupported), nil
	}
}

func (d *Device) write(req types.UARTWrite) core.EnqueueResult {
	events := uartengine.TxComplete
	if len(req.Events) > 0 {
		ev, ok := uartengine.ParseEvents(req.Events)
		if !ok || ev&^uartengine.TxEvents != 0 {
			return core.Fail(errcode.InvalidPayload)
		}
		events = ev
	}
	var cb uartengine.Callback
	if !req.Polled {
		cb = d.txNotify
	}
	if _, err := d.ch.StartTx(append([]byte(nil), req.Data...), 8, cb, events); err != nil {
		return core.Fail(errcode.Of(err))
	}
	return core.OK()
}

func (d *Device) read(req types.UARTRead) core.EnqueueResult {
	if req.Len <= 0 || req.Len > d.params.MaxRead {
		return core.Fail(errcode.InvalidParams)
	}
	events := uartengine.RxEvents
	if len(req.Events) > 0 {
		ev, ok := uartengine.ParseEvents(req.Events)
		if !ok || ev&^uartengine.RxEvents != 0 {
			return core.Fail(errcode.InvalidPayload)
		}
		events = ev
	}
	match := uartengine.NoCharMatch
	if req.UseMatch {
		match = uartengine.Match(req.Match)
	}
	buf := make([]byte, req.Len)
	var cb uartengine.Callback
	if !req.Polled {
		cb = d.rxNotify(buf)
	}
	if err := d.ch.StartRx(buf, 8, cb, events, match); err != nil {
		return core.Fail(errcode.Of(err))
	}
	return core.OK()
}

func (d *Device) status(pending []string) types.UARTStatus {
	st := d.ch.Stats()
	return types.UARTStatus{
		TxActive: d.ch.IsTxActive(),
		RxActive: d.ch.IsRxActive(),
		TxPos:    d.ch.TxPos(),
		RxPos:    d.ch.RxPos(),
		RTS:      d.ch.RTSAsserted(),
		Pending:  pending,
		TxIRQ:    st.TxIRQ,
		RxIRQ:    st.RxIRQ,
		ErrIRQ:   st.ErrIRQ,
		Spurious: st.Spurious,
		Dropped:  st.ErrorsDropped,
	}
}

// ---- Engine callback and worker ----

// note is one engine notification as seen from the callback. Data aliases
// the read buffer up to Pos; the engine never writes below RxPos again.
type note struct {
	ev   uartengine.Event
	pos  int
	data []byte
}

// txNotify and the closures from rxNotify run in interrupt context: capture
// and queue, nothing else.
func (d *Device) txNotify(ev uartengine.Event) {
	d.queue(note{ev: ev, pos: d.ch.TxPos()})
}

func (d *Device) rxNotify(buf []byte) uartengine.Callback {
	return func(ev uartengine.Event) {
		pos := len(buf)
		if !ev.Has(uartengine.RxComplete) {
			pos = min(d.ch.RxPos(), pos)
		}
		d.queue(note{ev: ev, pos: pos, data: buf[:pos:pos]})
	}
}

func (d *Device) queue(n note) {
	select {
	case d.notes <- n:
	default:
		d.dropped.Add(1)
	}
}

func (d *Device) worker(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.notes:
			if lost := d.dropped.Swap(0); lost > 0 {
				log.Warn("notifications lost", "bus", d.port.Bus(), "n", lost)
			}
			d.publish(n)
		}
	}
}

func (d *Device) publish(n note) {
	if tx := n.ev & uartengine.TxEvents; tx != 0 {
		d.emit("tx_complete", types.UARTTxEvent{Events: tx.Names(), Pos: n.pos})
	}
	rx := n.ev & uartengine.RxEvents
	if rx == 0 {
		return
	}
	tag := "rx_char_match"
	switch {
	case rx.Any(uartengine.RxErrors):
		tag = "rx_error"
		log.Debug("rx error", "bus", d.port.Bus(), "events", rx)
	case rx.Has(uartengine.RxComplete):
		tag = "rx_complete"
	}
	d.emit(tag, types.UARTRxEvent{Events: rx.Names(), Pos: n.pos, Data: n.data})
}

func (d *Device) emit(tag string, payload any) {
	if !d.res.Pub.Emit(core.Event{Addr: d.a, EventTag: tag, Payload: payload}) {
		log.Warn("event dropped", "bus", d.port.Bus(), "tag", tag)
	}
}
