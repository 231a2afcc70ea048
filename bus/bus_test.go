package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uarthal/errcode"
)

func recv(t *testing.T, s *Subscription) *Message {
	t.Helper()
	select {
	case m := <-s.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatalf("nothing on %v", s.Topic())
		return nil
	}
}

func quiet(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case m := <-s.Channel():
		t.Fatalf("unexpected %v on %v", m.Topic, s.Topic())
	default:
	}
}

func TestPublishReachesExactSubscriber(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("c")
	sub := c.Subscribe(T("hal", "cap", "io", "uart", "uart0", "event", "tx_complete"))
	other := c.Subscribe(T("hal", "cap", "io", "uart", "uart1", "event", "tx_complete"))

	c.Publish(c.NewMessage(T("hal", "cap", "io", "uart", "uart0", "event", "tx_complete"), 3, false))

	require.Equal(t, 3, recv(t, sub).Payload)
	quiet(t, other)
}

func TestWildcards(t *testing.T) {
	cases := []struct {
		pattern Topic
		topic   Topic
		match   bool
	}{
		{T("hal", "cap", "+", "+", "+", "control", "+"), T("hal", "cap", "io", "uart", "uart0", "control", "write"), true},
		{T("hal", "cap", "+", "+", "+", "control", "+"), T("hal", "cap", "io", "uart", "uart0", "event", "x"), false},
		{T("hal", "cap", "+", "+", "+", "control", "+"), T("hal", "cap", "io", "uart"), false},
		{T("bridge", "out", "#"), T("bridge", "out", "a", "b", "c"), true},
		{T("bridge", "out", "#"), T("bridge", "out"), true},
		{T("bridge", "out", "#"), T("bridge", "in", "a"), false},
		{T("a", "+"), T("a", 7), true},
	}
	for _, tc := range cases {
		b := NewBus(4)
		c := b.NewConnection("c")
		sub := c.Subscribe(tc.pattern)
		c.Publish(c.NewMessage(tc.topic, "x", false))
		if tc.match {
			require.Equal(t, "x", recv(t, sub).Payload, "%v ~ %v", tc.pattern, tc.topic)
		} else {
			quiet(t, sub)
		}
	}
}

func TestRetainedReplayAndClear(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("c")
	c.Publish(c.NewMessage(T("hal", "state"), "ready", true))
	c.Publish(c.NewMessage(T("config", "hal"), "cfg", true))
	c.Publish(c.NewMessage(T("config", "bridge"), "br", true))

	require.Equal(t, "ready", recv(t, c.Subscribe(T("hal", "state"))).Payload)

	all := c.Subscribe(T("config", "+"))
	got := map[any]bool{recv(t, all).Payload: true, recv(t, all).Payload: true}
	require.Equal(t, map[any]bool{"cfg": true, "br": true}, got)

	c.Publish(c.NewMessage(T("hal", "state"), nil, true))
	late := c.Subscribe(T("hal", "#"))
	quiet(t, late)
}

func TestRequestReply(t *testing.T) {
	b := NewBus(4)
	server := b.NewConnection("server")
	client := b.NewConnection("client")
	ctl := server.Subscribe(T("svc", "control", "+"))

	go func() {
		m := <-ctl.Channel()
		server.Reply(m, m.Payload.(int)*2, false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := client.RequestWait(ctx, client.NewMessage(T("svc", "control", "double"), 21, false))
	require.NoError(t, err)
	require.Equal(t, 42, r.Payload)
}

func TestRequestWaitTimesOut(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("c")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.RequestWait(ctx, c.NewMessage(T("nobody"), nil, false))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, errcode.Timeout, errcode.Of(err))
}

func TestFullQueueDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("c")
	sub := c.Subscribe(T("n"))
	for i := 1; i <= 4; i++ {
		c.Publish(c.NewMessage(T("n"), i, false))
	}
	require.Equal(t, 3, recv(t, sub).Payload)
	require.Equal(t, 4, recv(t, sub).Payload)
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("c")
	sub := c.Subscribe(T("x"))
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, open := <-sub.Channel()
	require.False(t, open)
	c.Publish(c.NewMessage(T("x"), 1, false))
}

func TestDisconnectClosesEverything(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("c")
	s1, s2 := c.Subscribe(T("a")), c.Subscribe(T("b", "#"))
	c.Disconnect()
	for _, s := range []*Subscription{s1, s2} {
		_, open := <-s.Channel()
		require.False(t, open)
	}
}

func TestTopicHelpers(t *testing.T) {
	require.Panics(t, func() { T("ok", 1.5) })

	base := make(Topic, 2, 8)
	base[0], base[1] = "a", "b"
	x := base.Append("x")
	y := base.Append("y")
	require.Equal(t, "x", x.At(2))
	require.Equal(t, "y", y.At(2))
	require.Nil(t, x.At(9))
	require.Equal(t, 3, x.Len())
}
