package core

import (
	"context"

	"uarthal/bus"
	"uarthal/errcode"
	"uarthal/types"
	"uarthal/x/logx"
	"uarthal/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 4
)

var log = logx.New("hal")

type HAL struct {
	conn *bus.Connection
	res  Resources

	// Device registry
	dev map[string]Device // devID -> device

	// Capability index: address -> devID
	capIndex map[CapAddr]string

	cfgSub  *bus.Subscription
	ctrlSub *bus.Subscription

	// Single-threaded publication of device events
	evCh chan Event

	poller *Poller
	pollCh chan PollReq
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		evCh:     make(chan Event, eventQueueLen),
		pollCh:   make(chan PollReq, pollQueueLen),
	}
	h.poller = NewPoller(h.pollCh)
	// HAL provides the emitter to devices.
	h.res.Pub = h
	return h
}

func (h *HAL) Run(ctx context.Context) {
	h.cfgSub = h.conn.Subscribe(topicConfigHAL())
	h.ctrlSub = h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(h.cfgSub)
	defer h.conn.Unsubscribe(h.ctrlSub)
	defer h.closeDevices()

	go h.poller.Run(ctx)

	h.pubHALState("idle", "")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-h.cfgSub.Channel():
			if v, ok := msg.Payload.(types.HALConfig); ok {
				// applyConfig is additive/idempotent for existing devices.
				h.applyConfig(ctx, v)
				if !ready {
					ready = true
					h.pubHALState("ready", "")
				}
			}
		case m := <-h.ctrlSub.Channel():
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m) // strictly non-blocking
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		case pr := <-h.pollCh:
			h.handlePoll(pr)
		}
	}
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			log.Warn("no builder", "type", dc.Type, "id", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Params: dc.Params,
			Res:    h.res,
		})
		if err != nil {
			log.Error("build failed", "id", dc.ID, "err", err)
			continue
		}
		if err := dev.Init(ctx); err != nil {
			log.Error("init failed", "id", dc.ID, "err", err)
			_ = dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev

		// Register capabilities, publish retained info + initial status:down
		for _, cs := range dev.Capabilities() {
			addr := CapAddr{Domain: cs.Domain, Kind: cs.Kind, Name: cs.Name}
			if addr.Domain == "" {
				addr.Domain = defaultDomainFor(string(cs.Kind))
			}
			if addr.Name == "" {
				addr.Name = dev.ID()
			}
			h.capIndex[addr] = dev.ID()

			h.conn.Publish(h.conn.NewMessage(addr.Topic("info"), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(addr.Topic("status"),
				types.CapabilityStatus{Link: types.LinkDown, TSms: timex.NowMs()}, true))
		}
		log.Info("device up", "id", dev.ID(), "type", dc.Type)
	}

	for _, ps := range cfg.Pollers {
		addr := CapAddr{Domain: ps.Domain, Kind: ps.Kind, Name: ps.Name}
		h.poller.Set(addr, ps.Verb, timex.Ms(ps.IntervalMs), timex.Ms(ps.JitterMs))
	}
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)

	addr := CapAddr{Domain: domain, Kind: types.Kind(kind), Name: name}
	dev, code := h.lookup(addr)
	if code != "" {
		h.replyErr(msg, code)
		return
	}

	res, err := dev.Control(addr, verb, msg.Payload)
	if err != nil {
		h.replyErr(msg, errcode.Of(err))
		return
	}
	if !msg.CanReply() {
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code = res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.conn.Reply(msg, types.ErrorReply{OK: false, Error: string(code)}, false)
}

// handlePoll runs a scheduled verb as if it were a control without a reply
// topic.
func (h *HAL) handlePoll(pr PollReq) {
	dev, code := h.lookup(pr.Addr)
	if code != "" {
		log.Debug("poll target missing", "name", pr.Addr.Name, "verb", pr.Verb)
		return
	}
	res, err := dev.Control(pr.Addr, pr.Verb, nil)
	if err == nil && !res.OK {
		err = res.Error
	}
	if err != nil {
		log.Debug("poll failed", "name", pr.Addr.Name, "verb", pr.Verb, "err", err)
	}
}

func (h *HAL) lookup(addr CapAddr) (Device, errcode.Code) {
	ownerID, ok := h.capIndex[addr]
	if !ok {
		return nil, errcode.UnknownCapability
	}
	if dev := h.dev[ownerID]; dev != nil {
		return dev, ""
	}
	return nil, errcode.Error
}

func (h *HAL) handleEvent(ev Event) {
	if ev.TSms == 0 {
		ev.TSms = timex.NowMs()
	}
	status := types.CapabilityStatus{Link: types.LinkUp, TSms: ev.TSms}

	switch {
	case ev.Err != "":
		// Errors only degrade the retained status.
		status.Link, status.Error = types.LinkDegraded, ev.Err
	case ev.EventTag != "":
		h.conn.Publish(h.conn.NewMessage(ev.Addr.Topic("event", ev.EventTag), ev.Payload, false))
	case ev.IsEvent:
		h.conn.Publish(h.conn.NewMessage(ev.Addr.Topic("event"), ev.Payload, false))
	default:
		h.conn.Publish(h.conn.NewMessage(ev.Addr.Topic("value"), ev.Payload, true))
	}
	h.conn.Publish(h.conn.NewMessage(ev.Addr.Topic("status"), status, true))
}

func (h *HAL) closeDevices() {
	for id, dev := range h.dev {
		if err := dev.Close(); err != nil {
			log.Warn("close failed", "id", id, "err", err)
		}
		delete(h.dev, id)
	}
	for k := range h.capIndex {
		delete(h.capIndex, k)
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		T("hal", "state"),
		types.HALState{Level: level, Status: status, TSms: timex.NowMs()},
		true,
	))
}

// Every kind this HAL hosts is a byte stream, which lives under "io".
func defaultDomainFor(string) string { return "io" }

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
