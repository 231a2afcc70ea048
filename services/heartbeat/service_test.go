package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uarthal/bus"
)

func TestInterval(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{map[string]any{"interval": 2}, 2 * time.Second, true},
		{map[string]any{"interval": 0.5}, 500 * time.Millisecond, true},
		{map[string]any{"interval": 0}, 0, false},
		{map[string]any{"interval": "fast"}, 0, false},
		{"interval: 2", 0, false},
	} {
		got, ok := interval(tc.in)
		require.Equal(t, tc.ok, ok, "%v", tc.in)
		require.Equal(t, tc.want, got, "%v", tc.in)
	}
}

func TestBeatsFollowConfiguredInterval(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb")
	beats := conn.Subscribe(topicHeartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn.Publish(conn.NewMessage(topicConfigHeartbeat, map[string]any{"interval": 0.01}, true))
	require.NoError(t, (&Service{}).Start(ctx, conn))

	var last uint32
	deadline := time.After(2 * time.Second)
	for last < 3 {
		select {
		case m := <-beats.Channel():
			beat := m.Payload.(Beat)
			require.Greater(t, beat.Seq, last)
			last = beat.Seq
		case <-deadline:
			t.Fatalf("only %d beats", last)
		}
	}
}
