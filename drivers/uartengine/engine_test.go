package uartengine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"uarthal/drivers/uartengine"
	"uarthal/drivers/uartsim"
	"uarthal/errcode"
)

const testIRQ = 20

type rig struct {
	sim  *uartsim.Sim
	nvic *uartsim.NVIC
	tab  *uartengine.Table
	ch   *uartengine.Channel
}

func newRig(t *testing.T, txDepth, rxDepth int, mod func(*uartengine.Config)) *rig {
	t.Helper()
	nvic := uartsim.NewNVIC()
	sim := uartsim.New(txDepth, rxDepth)
	sim.Attach(nvic, testIRQ)
	tab := uartengine.NewTable(nvic)
	cfg := uartengine.Config{Name: "uart0", Regs: sim, IRQ: testIRQ}
	if mod != nil {
		mod(&cfg)
	}
	ch, err := tab.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tab.Close(ch.ID()) })
	return &rig{sim: sim, nvic: nvic, tab: tab, ch: ch}
}

// note is one callback delivery together with the receive position seen
// from the callback.
type note struct {
	ev  uartengine.Event
	pos int
}

type recorder struct {
	mu    sync.Mutex
	notes []note
}

func (r *recorder) rxCallback(ch *uartengine.Channel) uartengine.Callback {
	return func(ev uartengine.Event) {
		r.mu.Lock()
		r.notes = append(r.notes, note{ev: ev, pos: ch.RxPos()})
		r.mu.Unlock()
	}
}

func (r *recorder) txCallback(ch *uartengine.Channel) uartengine.Callback {
	return func(ev uartengine.Event) {
		r.mu.Lock()
		r.notes = append(r.notes, note{ev: ev, pos: ch.TxPos()})
		r.mu.Unlock()
	}
}

func (r *recorder) get() []note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]note(nil), r.notes...)
}

// ---- TX ----

func TestStartTx_ThreeBytesOneByteFIFO(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	var rec recorder

	n, err := r.ch.StartTx([]byte{0x41, 0x42, 0x43}, 8, rec.txCallback(r.ch), uartengine.TxComplete)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, r.ch.IsTxActive())
	require.Equal(t, 1, r.sim.TxLen(), "opportunistic drain fills the FIFO before returning")

	fires := r.sim.Pump()

	require.Equal(t, 3, fires)
	require.EqualValues(t, 3, r.ch.Stats().TxIRQ)
	require.Equal(t, []byte("ABC"), r.sim.Wire())
	require.Equal(t, []note{{ev: uartengine.TxComplete, pos: 3}}, rec.get())
	require.False(t, r.ch.IsTxActive())
	require.False(t, r.sim.Enabled(uartengine.IRQTx))
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents(), "callback consumed the event")
}

func TestStartTx_WireMatchesInputForAnyLength(t *testing.T) {
	for _, depth := range []int{1, 4, 16} {
		for n := 1; n <= 40; n++ {
			r := newRig(t, depth, 16, nil)
			var rec recorder
			in := make([]byte, n)
			for i := range in {
				in[i] = byte(i*37 + n)
			}

			_, err := r.ch.StartTx(in, 8, rec.txCallback(r.ch), uartengine.TxComplete)
			require.NoError(t, err)
			r.sim.Pump()

			require.Equal(t, in, r.sim.Wire(), "depth=%d n=%d", depth, n)
			notes := rec.get()
			require.Len(t, notes, 1, "depth=%d n=%d", depth, n)
			require.Equal(t, uartengine.TxComplete, notes[0].ev)
			require.Equal(t, n, notes[0].pos)
		}
	}
}

func TestStartTx_PolledWithoutCallback(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	_, err := r.ch.StartTx([]byte("hi"), 0, nil, uartengine.TxComplete)
	require.NoError(t, err)
	r.sim.Pump()

	require.Equal(t, uartengine.TxComplete, r.ch.PollAndClearEvents())
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents())
}

func TestStartTx_CompletionIsRecordedWhenNotRequested(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	_, err := r.ch.StartTx([]byte("hi"), 8, nil, 0)
	require.NoError(t, err)
	r.sim.Pump()

	require.Equal(t, []byte("hi"), r.sim.Wire())
	require.False(t, r.ch.IsTxActive())
	require.Equal(t, uartengine.TxComplete, r.ch.PollAndClearEvents())
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents())
}

func TestStartTx_UnrequestedCompletionSkipsCallback(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	var rec recorder

	_, err := r.ch.StartTx([]byte("hi"), 8, rec.txCallback(r.ch), 0)
	require.NoError(t, err)
	r.sim.Pump()

	require.Empty(t, rec.get())
	require.Equal(t, uartengine.TxComplete, r.ch.PollAndClearEvents())
}

func TestStartTx_ZeroLengthIsNoop(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	n, err := r.ch.StartTx(nil, 8, nil, uartengine.TxComplete)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.False(t, r.ch.IsTxActive())
	require.Equal(t, 0, r.sim.Pump())
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents())
}

func TestStartTx_RejectsWidthAndSecondStart(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	_, err := r.ch.StartTx([]byte("x"), 9, nil, 0)
	require.Equal(t, errcode.InvalidParams, errcode.Of(err))

	_, err = r.ch.StartTx([]byte("abc"), 8, nil, uartengine.TxComplete)
	require.NoError(t, err)

	_, err = r.ch.StartTx([]byte("zz"), 8, nil, uartengine.TxComplete)
	require.True(t, errors.Is(err, errcode.PreconditionViolation))

	r.sim.Pump()
	require.Equal(t, []byte("abc"), r.sim.Wire(), "in-flight transfer is untouched")
	require.Equal(t, uartengine.TxComplete, r.ch.PollAndClearEvents())
}

func TestAbortTx(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	_, err := r.ch.StartTx([]byte("abc"), 8, nil, uartengine.TxComplete)
	require.NoError(t, err)
	r.ch.AbortTx()

	require.False(t, r.ch.IsTxActive())
	require.False(t, r.sim.Enabled(uartengine.IRQTx))
	tx, _ := r.sim.Resets()
	require.Equal(t, 1, tx)

	require.Equal(t, 0, r.sim.Pump())
	require.Empty(t, r.sim.Wire(), "flushed FIFO never reaches the wire")
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents())

	// Channel is reusable.
	_, err = r.ch.StartTx([]byte("ok"), 8, nil, uartengine.TxComplete)
	require.NoError(t, err)
	r.sim.Pump()
	require.Equal(t, []byte("ok"), r.sim.Wire())
}

// ---- RX ----

func TestStartRx_CharMatchThenComplete(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	var rec recorder
	buf := make([]byte, 5)

	err := r.ch.StartRx(buf, 8, rec.rxCallback(r.ch), uartengine.RxComplete|uartengine.RxCharMatch, uartengine.Match('\n'))
	require.NoError(t, err)

	r.sim.Receive('a', 'b', '\n')
	r.sim.Service()
	require.Equal(t, []note{{ev: uartengine.RxCharMatch, pos: 3}}, rec.get())
	require.True(t, r.ch.CharFound())
	require.True(t, r.ch.IsRxActive())

	r.sim.Receive('c', 'd')
	r.sim.Service()
	require.Equal(t, []note{
		{ev: uartengine.RxCharMatch, pos: 3},
		{ev: uartengine.RxComplete, pos: 5},
	}, rec.get())
	require.Equal(t, []byte("ab\ncd"), buf)
	require.False(t, r.ch.IsRxActive())
	require.False(t, r.sim.Enabled(uartengine.IRQRx))
}

func TestStartRx_CharMatchWhenWholeStreamIsQueued(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	var rec recorder
	buf := make([]byte, 5)

	require.NoError(t, r.ch.StartRx(buf, 8, rec.rxCallback(r.ch), uartengine.RxEvents, uartengine.Match('\n')))
	r.sim.Receive([]byte("ab\ncd")...)
	fires := r.sim.Service()

	require.Equal(t, 2, fires)
	require.Equal(t, []note{
		{ev: uartengine.RxCharMatch, pos: 3},
		{ev: uartengine.RxComplete, pos: 5},
	}, rec.get())
}

func TestStartRx_MatchOnLastByteIsOneNotification(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	var rec recorder
	buf := make([]byte, 3)

	require.NoError(t, r.ch.StartRx(buf, 8, rec.rxCallback(r.ch), uartengine.RxEvents, uartengine.Match('\n')))
	r.sim.Receive('a', 'b', '\n')
	r.sim.Service()

	require.Equal(t, []note{{ev: uartengine.RxCharMatch | uartengine.RxComplete, pos: 3}}, rec.get())
}

func TestStartRx_MatchFiresOnlyOnce(t *testing.T) {
	for k := 0; k < 6; k++ {
		r := newRig(t, 1, 16, nil)
		var rec recorder
		buf := make([]byte, 6)
		in := []byte("......")
		in[k] = 'X'
		if k+1 < len(in) {
			in[len(in)-1] = 'X' // a second occurrence is ignored
		}

		require.NoError(t, r.ch.StartRx(buf, 8, rec.rxCallback(r.ch), uartengine.RxEvents, uartengine.Match('X')))
		r.sim.Receive(in...)
		r.sim.Service()

		var matches, completes int
		for _, n := range rec.get() {
			if n.ev.Has(uartengine.RxCharMatch) {
				matches++
				require.Equal(t, k+1, n.pos, "k=%d", k)
			}
			if n.ev.Has(uartengine.RxComplete) {
				completes++
				require.Equal(t, 6, n.pos)
			}
		}
		require.Equal(t, 1, matches, "k=%d", k)
		require.Equal(t, 1, completes, "k=%d", k)
	}
}

func TestStartRx_NoCharMatch(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	buf := make([]byte, 2)

	require.NoError(t, r.ch.StartRx(buf, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
	r.sim.Receive(0xFF, 0x00)
	r.sim.Service()

	require.Equal(t, uartengine.RxComplete, r.ch.PollAndClearEvents())
	require.False(t, r.ch.CharFound())
}

func TestStartRx_OverrunAfterFourBytes(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	var rec recorder
	buf := make([]byte, 10)

	require.NoError(t, r.ch.StartRx(buf, 8, rec.rxCallback(r.ch), uartengine.RxEvents, uartengine.NoCharMatch))
	r.sim.Receive('1', '2', '3', '4')
	r.sim.Service()
	require.Equal(t, 4, r.ch.RxPos())

	r.sim.RaiseError(uartengine.ErrorStatus{Overrun: true})
	r.sim.Receive('5')
	r.sim.Service()

	require.Equal(t, []note{{ev: uartengine.RxOverrunError, pos: 4}}, rec.get())
	require.False(t, r.ch.IsRxActive())
	require.Equal(t, []byte("1234"), buf[:4])
	_, rx := r.sim.Resets()
	require.Equal(t, 1, rx)
	require.False(t, r.sim.ErrorStatus().Any())

	// A fresh receive behaves normally.
	var rec2 recorder
	buf2 := make([]byte, 5)
	require.NoError(t, r.ch.StartRx(buf2, 8, rec2.rxCallback(r.ch), uartengine.RxEvents, uartengine.Match('\n')))
	r.sim.Receive([]byte("ab\ncd")...)
	r.sim.Service()
	require.Equal(t, []note{
		{ev: uartengine.RxCharMatch, pos: 3},
		{ev: uartengine.RxComplete, pos: 5},
	}, rec2.get())
}

func TestStartRx_FIFOOverflowLatchesOverrun(t *testing.T) {
	r := newRig(t, 1, 4, nil)
	buf := make([]byte, 10)

	require.NoError(t, r.ch.StartRx(buf, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
	r.sim.Receive([]byte("abcdef")...) // two bytes lost
	r.sim.Service()

	require.Equal(t, uartengine.RxOverrunError, r.ch.PollAndClearEvents())
	require.False(t, r.ch.IsRxActive())
	require.Equal(t, 0, r.ch.RxPos(), "error status is checked before each byte")
}

func TestStartRx_PerByteErrors(t *testing.T) {
	cases := []struct {
		name string
		es   uartengine.ErrorStatus
		want uartengine.Event
	}{
		{"framing", uartengine.ErrorStatus{Framing: true}, uartengine.RxFramingError},
		{"parity", uartengine.ErrorStatus{Parity: true}, uartengine.RxParityError},
		{"break", uartengine.ErrorStatus{Break: true}, uartengine.RxFramingError},
		{"parity+framing", uartengine.ErrorStatus{Parity: true, Framing: true}, uartengine.RxParityError | uartengine.RxFramingError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, 1, 16, nil)
			var rec recorder
			buf := make([]byte, 8)

			require.NoError(t, r.ch.StartRx(buf, 8, rec.rxCallback(r.ch), uartengine.RxEvents, uartengine.NoCharMatch))
			r.sim.Receive('o', 'k')
			r.sim.ReceiveWithError('?', tc.es)
			r.sim.Receive('z')
			r.sim.Service()

			require.Equal(t, []note{{ev: tc.want, pos: 2}}, rec.get())
			require.Equal(t, []byte("ok"), buf[:2])
		})
	}
}

func TestStartRx_CompletionIsRecordedWhenNotRequested(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	buf := make([]byte, 3)

	require.NoError(t, r.ch.StartRx(buf, 8, nil, 0, uartengine.Match('b')))
	r.sim.Receive('a', 'b', 'c')
	r.sim.Pump()

	require.False(t, r.ch.IsRxActive())
	require.Equal(t, []byte("abc"), buf)
	require.Equal(t, uartengine.RxComplete, r.ch.PollAndClearEvents(), "an unrequested match is not recorded")
}

func TestStartRx_CallbackGetsMatchPollGetsCompletion(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	var rec recorder
	buf := make([]byte, 4)

	require.NoError(t, r.ch.StartRx(buf, 8, rec.rxCallback(r.ch), uartengine.RxCharMatch, uartengine.Match('!')))
	r.sim.Receive('h', 'i', '!', '?')
	r.sim.Pump()

	require.Equal(t, []note{{ev: uartengine.RxCharMatch, pos: 3}}, rec.get())
	require.Equal(t, uartengine.RxComplete, r.ch.PollAndClearEvents())
}

func TestStartRx_ErrorNotRequestedStillAborts(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	buf := make([]byte, 4)

	require.NoError(t, r.ch.StartRx(buf, 8, nil, uartengine.RxComplete, uartengine.NoCharMatch))
	r.sim.RaiseError(uartengine.ErrorStatus{Parity: true})
	r.sim.Service()

	require.False(t, r.ch.IsRxActive())
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents())
}

func TestStartRx_StaleErrorIsDiscarded(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	r.sim.RaiseError(uartengine.ErrorStatus{Overrun: true})
	require.Equal(t, 0, r.sim.Service(), "error group is masked without a receiver")

	buf := make([]byte, 2)
	require.NoError(t, r.ch.StartRx(buf, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
	r.sim.Receive('h', 'i')
	r.sim.Service()

	require.Equal(t, uartengine.RxComplete, r.ch.PollAndClearEvents())
	require.Equal(t, []byte("hi"), buf)
}

func TestStartRx_SecondStartIsPreconditionViolation(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	first := make([]byte, 3)
	second := make([]byte, 3)

	require.NoError(t, r.ch.StartRx(first, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
	err := r.ch.StartRx(second, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch)
	require.Error(t, err)
	require.True(t, errors.Is(err, errcode.PreconditionViolation))

	r.sim.Receive('x', 'y', 'z')
	r.sim.Service()
	require.Equal(t, []byte("xyz"), first)
	require.Equal(t, []byte{0, 0, 0}, second)
}

func TestAbortRx_KeepsPartialBytes(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	buf := make([]byte, 6)

	require.NoError(t, r.ch.StartRx(buf, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
	r.sim.Receive('p', 'q')
	r.sim.Service()
	r.ch.AbortRx()

	require.False(t, r.ch.IsRxActive())
	require.Equal(t, 2, r.ch.RxPos())
	require.False(t, r.sim.Enabled(uartengine.IRQRx))

	r.sim.Receive('r', 's')
	r.sim.Service()
	require.Equal(t, []byte{'p', 'q', 0, 0, 0, 0}, buf)
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents())
}

func TestAbort_IdempotentWhenInactive(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	r.ch.AbortTx()
	r.ch.AbortRx()
	r.ch.AbortTx()
	r.ch.AbortRx()

	tx, rx := r.sim.Resets()
	require.Zero(t, tx)
	require.Zero(t, rx)
	require.Zero(t, r.ch.TxPos())
	require.Zero(t, r.ch.RxPos())
	require.False(t, r.sim.Enabled(uartengine.IRQTx))
	require.False(t, r.sim.Enabled(uartengine.IRQRx))
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents())

	// Aborting a finished transfer changes nothing either.
	_, err := r.ch.StartTx([]byte("a"), 8, nil, uartengine.TxComplete)
	require.NoError(t, err)
	r.sim.Pump()
	r.ch.AbortTx()
	require.Equal(t, 1, r.ch.TxPos())
	require.Equal(t, uartengine.TxComplete, r.ch.PollAndClearEvents())
}

func TestAbortRx_NoVectorActivityAfterReturn(t *testing.T) {
	r := newRig(t, 1, 64, nil)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			r.sim.Receive('#')
			r.sim.Service()
		}
	}()

	for i := 0; i < 200; i++ {
		buf := make([]byte, 32)
		require.NoError(t, r.ch.StartRx(buf, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
		r.ch.AbortRx()
		snap := append([]byte(nil), buf...)
		pos := r.ch.RxPos()
		for j := 0; j < 5; j++ {
			r.sim.Service()
		}
		require.Equal(t, snap, buf)
		require.Equal(t, pos, r.ch.RxPos())
	}
	close(stop)
	<-done
}

// ---- dispatcher ----

func TestDispatch_SpuriousFireIsAcknowledgedOnly(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	require.True(t, r.sim.Fire())

	s := r.ch.Stats()
	require.EqualValues(t, 1, s.Spurious)
	require.Zero(t, s.TxIRQ+s.RxIRQ+s.ErrIRQ)
	require.Equal(t, uartengine.Event(0), r.ch.PollAndClearEvents())
}

func TestDispatch_LegacyHandlerAfterBookkeeping(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	var kinds []uartengine.IRQKind
	var got []byte

	r.ch.SetIRQHandler(func(id uartengine.ChannelID, kind uartengine.IRQKind) {
		require.Equal(t, r.ch.ID(), id)
		kinds = append(kinds, kind)
		if kind == uartengine.IRQRx {
			got = append(got, r.ch.Getc())
		}
	})
	require.NoError(t, r.ch.EnableIRQ(uartengine.IRQRx, true))

	r.sim.Receive('x', 'y')
	r.sim.Service()

	require.Equal(t, []uartengine.IRQKind{uartengine.IRQRx, uartengine.IRQRx}, kinds)
	require.Equal(t, []byte("xy"), got)

	require.NoError(t, r.ch.EnableIRQ(uartengine.IRQRx, false))
	require.False(t, r.sim.Enabled(uartengine.IRQRx))
}

func TestDispatch_LegacyAndAsyncShareRxInterrupt(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	require.NoError(t, r.ch.EnableIRQ(uartengine.IRQRx, true))

	buf := make([]byte, 1)
	require.NoError(t, r.ch.StartRx(buf, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
	r.sim.Receive('k')
	r.sim.Service()

	require.Equal(t, uartengine.RxComplete, r.ch.PollAndClearEvents())
	require.True(t, r.sim.Enabled(uartengine.IRQRx), "legacy request keeps RX enabled")
}

// ---- table ----

func TestTable_OpenCloseLookup(t *testing.T) {
	nvic := uartsim.NewNVIC()
	tab := uartengine.NewTable(nvic)

	var chans []*uartengine.Channel
	for i := 0; i < uartengine.MaxChannels; i++ {
		sim := uartsim.New(1, 1)
		ch, err := tab.Open(uartengine.Config{Regs: sim, IRQ: 100 + i})
		require.NoError(t, err)
		require.Equal(t, uartengine.ChannelID(i), ch.ID())
		require.Same(t, ch, tab.Lookup(ch.ID()))
		require.True(t, nvic.Bound(100+i))
		chans = append(chans, ch)
	}

	_, err := tab.Open(uartengine.Config{Regs: uartsim.New(1, 1), IRQ: 200})
	require.Equal(t, errcode.TableFull, errcode.Of(err))

	require.NoError(t, tab.Close(3))
	require.Nil(t, tab.Lookup(3))
	require.False(t, nvic.Bound(103))
	require.Equal(t, errcode.UnknownChannel, errcode.Of(tab.Close(3)))

	ch, err := tab.Open(uartengine.Config{Regs: uartsim.New(1, 1), IRQ: 103})
	require.NoError(t, err)
	require.Equal(t, uartengine.ChannelID(3), ch.ID())

	require.Nil(t, tab.Lookup(uartengine.MaxChannels+1))
	tab.Dispatch(uartengine.MaxChannels + 1)
}

func TestTable_RejectsDuplicates(t *testing.T) {
	tab := uartengine.NewTable(uartsim.NewNVIC())

	_, err := tab.Open(uartengine.Config{Name: "a", Regs: uartsim.New(1, 1), IRQ: 1})
	require.NoError(t, err)

	_, err = tab.Open(uartengine.Config{Name: "b", Regs: uartsim.New(1, 1), IRQ: 1})
	require.Equal(t, errcode.ChannelInUse, errcode.Of(err))

	_, err = tab.Open(uartengine.Config{Name: "a", Regs: uartsim.New(1, 1), IRQ: 2})
	require.Equal(t, errcode.ChannelInUse, errcode.Of(err))

	_, err = tab.Open(uartengine.Config{Name: "c", IRQ: 3})
	require.Equal(t, errcode.InvalidParams, errcode.Of(err))

	require.NotNil(t, tab.ByName("a"))
	require.Nil(t, tab.ByName("zz"))
}

func TestTable_CloseForcesAbort(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	buf := make([]byte, 4)

	require.NoError(t, r.ch.StartRx(buf, 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
	_, err := r.ch.StartTx([]byte("abc"), 8, nil, uartengine.TxComplete)
	require.NoError(t, err)

	require.NoError(t, r.tab.Close(r.ch.ID()))
	require.False(t, r.ch.IsRxActive())
	require.False(t, r.ch.IsTxActive())
	require.False(t, r.sim.Enabled(uartengine.IRQTx))
	require.False(t, r.sim.Enabled(uartengine.IRQRx))

	r.sim.Receive('x')
	require.Equal(t, 0, r.sim.Service())
	require.Equal(t, []byte{0, 0, 0, 0}, buf)
}

// ---- not connected ----

func TestNotConnected(t *testing.T) {
	tab := uartengine.NewTable(nil)
	ch, err := tab.Open(uartengine.Config{Name: "nc", NotConnected: true, IRQ: -1})
	require.NoError(t, err)
	require.True(t, ch.NotConnected())

	_, err = ch.StartTx([]byte("x"), 8, nil, uartengine.TxComplete)
	require.True(t, errors.Is(err, errcode.PreconditionViolation))
	err = ch.StartRx(make([]byte, 1), 8, nil, uartengine.RxEvents, uartengine.NoCharMatch)
	require.True(t, errors.Is(err, errcode.PreconditionViolation))

	ch.AbortTx()
	ch.AbortRx()
	require.Panics(t, func() { ch.Getc() })
	require.Panics(t, func() { ch.Putc('x') })

	_, err = ch.GetcContext(context.Background())
	require.True(t, errors.Is(err, errcode.PreconditionViolation))
	require.NoError(t, tab.Close(ch.ID()))
}

// ---- blocking fallback ----

func TestGetcPutc(t *testing.T) {
	r := newRig(t, 4, 16, nil)

	r.ch.Putc('o')
	r.ch.Putc('k')
	r.sim.Pump()
	require.Equal(t, []byte("ok"), r.sim.Wire())

	r.sim.Receive('!')
	require.Equal(t, byte('!'), r.ch.Getc())
}

func TestGetcWaitsForData(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	got := make(chan byte, 1)

	go func() { got <- r.ch.Getc() }()
	r.sim.Receive('w')

	require.Equal(t, byte('w'), <-got)
}

func TestGetcContext(t *testing.T) {
	r := newRig(t, 1, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ch.GetcContext(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, r.ch.StartRx(make([]byte, 2), 8, nil, uartengine.RxEvents, uartengine.NoCharMatch))
	_, err = r.ch.GetcContext(context.Background())
	require.True(t, errors.Is(err, errcode.PreconditionViolation))
}

func TestPutcContextCancelledWhenFull(t *testing.T) {
	r := newRig(t, 1, 16, nil)
	r.ch.Putc('a') // FIFO now full

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.ch.PutcContext(ctx, 'b'), context.Canceled)
}

func TestPort(t *testing.T) {
	r := newRig(t, 16, 16, nil)
	p := uartengine.NewPort(r.ch)

	n, err := p.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	r.sim.Pump()
	require.Equal(t, []byte("hello"), r.sim.Wire())

	require.Zero(t, p.Buffered())
	r.sim.Receive('1', '2', '3')
	require.Equal(t, 1, p.Buffered())
	buf := make([]byte, 8)
	n, err = p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "123", string(buf[:n]))
}

// ---- events ----

func TestEventNames(t *testing.T) {
	ev := uartengine.RxCharMatch | uartengine.RxComplete
	require.Equal(t, "rx_complete|rx_char_match", ev.String())
	require.Equal(t, []string{"rx_complete", "rx_char_match"}, ev.Names())
	require.Equal(t, "none", uartengine.Event(0).String())

	got, ok := uartengine.ParseEvents([]string{"tx_complete", "rx_overrun_error"})
	require.True(t, ok)
	require.Equal(t, uartengine.TxComplete|uartengine.RxOverrunError, got)

	_, ok = uartengine.ParseEvents([]string{"nope"})
	require.False(t, ok)
}
