package serial_raw_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uarthal/bus"
	"uarthal/drivers/uartengine"
	"uarthal/services/hal/devices/serial_raw"
	"uarthal/services/hal/internal/core"
	"uarthal/services/hal/internal/provider"
	"uarthal/services/hal/internal/provider/setups"
	"uarthal/types"
	"uarthal/x/shmring"
)

var plan = setups.ResourcePlan{
	GPIOMax: 29,
	UART: []setups.UARTPlan{
		{ID: "uart1", TX: 4, RX: 5, Baud: 115200, IRQ: 21, TxFIFO: 4, RxFIFO: 16},
		{ID: "uart2", NotConnected: true, IRQ: 22},
	},
}

type rig struct {
	t    *testing.T
	reg  *provider.Registry
	conn *bus.Connection
	ev   *bus.Subscription
}

func newRig(t *testing.T, devs ...types.HALDevice) *rig {
	t.Helper()
	b := bus.NewBus(32)
	reg := provider.NewResourceRegistry(plan)
	h := core.NewHAL(b.NewConnection("hal"), core.Resources{Reg: reg})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })

	conn := b.NewConnection("test")
	state := conn.Subscribe(bus.T("hal", "state"))
	r := &rig{t: t, reg: reg, conn: conn, ev: conn.Subscribe(bus.T("hal", "cap", "io", "serial", "+", "event", "+"))}

	conn.Publish(conn.NewMessage(bus.T("config", "hal"), types.HALConfig{Devices: devs}, true))
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-state.Channel():
			if s, ok := m.Payload.(types.HALState); ok && s.Level == "ready" {
				conn.Unsubscribe(state)
				return r
			}
		case <-deadline:
			t.Fatal("hal never became ready")
		}
	}
}

func (r *rig) control(verb string, payload any) any {
	r.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg := r.conn.NewMessage(bus.T("hal", "cap", "io", "serial", "port", "control", verb), payload, false)
	reply, err := r.conn.RequestWait(ctx, msg)
	require.NoError(r.t, err)
	return reply.Payload
}

func (r *rig) ok(verb string, payload any) {
	r.t.Helper()
	require.Equal(r.t, types.OKReply{OK: true}, r.control(verb, payload))
}

func (r *rig) open(rxSize, txSize int) (rx, tx *shmring.Ring) {
	_, rx, tx = r.openSession(rxSize, txSize)
	return rx, tx
}

func (r *rig) openSession(rxSize, txSize int) (op types.SerialSessionOpened, rx, tx *shmring.Ring) {
	r.t.Helper()
	r.ok("session_open", types.SerialSessionOpen{RXSize: rxSize, TXSize: txSize})
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-r.ev.Channel():
			if m.Topic.At(6) != "session_opened" {
				continue
			}
			op = m.Payload.(types.SerialSessionOpened)
			rx, tx = shmring.Get(shmring.Handle(op.RXHandle)), shmring.Get(shmring.Handle(op.TXHandle))
			require.NotNil(r.t, rx)
			require.NotNil(r.t, tx)
			return op, rx, tx
		case <-deadline:
			r.t.Fatal("no session_opened event")
			return op, nil, nil
		}
	}
}

func port(bus string) types.HALDevice {
	return types.HALDevice{ID: "port", Type: "serial_raw", Params: serial_raw.Params{Bus: bus, Name: "port"}}
}

func TestSessionMovesBytesBothWays(t *testing.T) {
	r := newRig(t, port("uart1"))
	sim := r.reg.Sim("uart1")
	rx, tx := r.open(16, 16)

	require.Equal(t, 5, tx.TryWriteFrom([]byte("hello")))
	require.Eventually(t, func() bool {
		r.reg.Pump()
		return string(sim.Wire()) == "hello"
	}, time.Second, time.Millisecond)

	sim.Receive([]byte("world")...)
	r.reg.Pump()
	got := make([]byte, 8)
	n := rx.TryReadInto(got)
	require.Equal(t, "world", string(got[:n]))
}

func TestRxBackpressureHoldsBytesInFIFO(t *testing.T) {
	r := newRig(t, port("uart1"))
	sim := r.reg.Sim("uart1")
	rx, _ := r.open(4, 16)

	sim.Receive('a', 'b', 'c', 'd', 'e', 'f')
	r.reg.Pump()
	require.Equal(t, 4, rx.Available())
	require.Equal(t, 2, sim.RxLen())
	require.False(t, sim.Enabled(uartengine.IRQRx))

	got := make([]byte, 4)
	require.Equal(t, 4, rx.TryReadInto(got))
	require.Equal(t, "abcd", string(got))

	require.Eventually(t, func() bool {
		r.reg.Pump()
		return rx.Available() == 2
	}, time.Second, time.Millisecond)
	n := rx.TryReadInto(got)
	require.Equal(t, "ef", string(got[:n]))
}

func TestSecondSessionConflicts(t *testing.T) {
	r := newRig(t, port("uart1"))
	r.open(0, 0)
	require.Equal(t, types.ErrorReply{OK: false, Error: "conflict"},
		r.control("session_open", types.SerialSessionOpen{}))

	r.ok("session_close", nil)
	r.open(0, 0)
}

func TestSessionRejectsOddRingSize(t *testing.T) {
	r := newRig(t, port("uart1"))
	require.Equal(t, types.ErrorReply{OK: false, Error: "invalid_params"},
		r.control("session_open", types.SerialSessionOpen{RXSize: 12}))
}

func TestCloseReleasesHandles(t *testing.T) {
	r := newRig(t, port("uart1"))
	op, _, _ := r.openSession(8, 8)

	r.ok("session_close", nil)
	require.Nil(t, shmring.Get(shmring.Handle(op.RXHandle)))
	require.Nil(t, shmring.Get(shmring.Handle(op.TXHandle)))
}

func TestLineSettings(t *testing.T) {
	r := newRig(t, port("uart1"))
	sim := r.reg.Sim("uart1")

	r.ok("set_baud", types.SerialSetBaud{Baud: 9600})
	require.Equal(t, uint32(9600), sim.Baud())

	r.ok("set_format", types.SerialSetFormat{DataBits: 7, StopBits: 2, Parity: types.ParityEven})
	require.Equal(t, "7E2", sim.Format())

	require.Equal(t, types.ErrorReply{OK: false, Error: "invalid_params"},
		r.control("set_format", types.SerialSetFormat{DataBits: 9, StopBits: 1}))
}

func TestNotConnectedBus(t *testing.T) {
	r := newRig(t, port("uart2"))
	require.Equal(t, types.ErrorReply{OK: false, Error: "not_connected"},
		r.control("session_open", types.SerialSessionOpen{}))
}
