// Package heartbeat logs and publishes a periodic liveness beat.
package heartbeat

import (
	"context"
	"time"

	"uarthal/bus"
	"uarthal/x/logx"
	"uarthal/x/timex"
)

var log = logx.New("heartbeat")

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("heartbeat")
)

// Beat is published (not retained) on every tick.
type Beat struct {
	Seq      uint32 `json:"seq"`
	UptimeMs int64  `json:"uptime_ms"`
}

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	start := timex.NowMs()
	var seq uint32

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return
		case <-tick.C:
			seq++
			up := timex.NowMs() - start
			if log.V(1) {
				log.Info("beat", "seq", seq, "uptime_ms", up)
			}
			conn.Publish(conn.NewMessage(topicHeartbeat, Beat{Seq: seq, UptimeMs: up}, false))
		case msg := <-cfgSub.Channel():
			// Change tick interval if needed
			if d, ok := interval(msg.Payload); ok {
				tick.Reset(d)
				log.Info("interval set", "ms", d.Milliseconds())
			}
		}
	}
}

// interval reads {interval: <seconds>} as decoded from YAML or JSON.
func interval(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	var sec float64
	switch v := m["interval"].(type) {
	case int:
		sec = float64(v)
	case float64:
		sec = v
	default:
		return 0, false
	}
	if sec <= 0 {
		return 0, false
	}
	return time.Duration(sec * float64(time.Second)), true
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
