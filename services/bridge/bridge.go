// Package bridge carries bus traffic over a framed byte link. The default
// transport is a serial_raw session on the local HAL.
package bridge

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"uarthal/bus"
	"uarthal/errcode"
	"uarthal/x/logx"
	"uarthal/x/timex"
)

var log = logx.New("bridge")

const (
	defaultPing = 5 * time.Second
	minBackoff  = 250 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

// Config is the payload of config/bridge.
type Config struct {
	Transport      TransportConfig `yaml:"transport"`
	PingIntervalMs int             `yaml:"ping_interval_ms"` // 0 => 5000
}

type TransportConfig struct {
	// "serial", or a name added with RegisterTransport.
	Type   string        `yaml:"type"`
	Serial *SerialConfig `yaml:"serial,omitempty"`
}

// SerialConfig names the HAL serial capability the link runs over.
type SerialConfig struct {
	Domain string `yaml:"domain"` // "" => "io"
	Name   string `yaml:"name"`
	RXSize int    `yaml:"rx_size"`
	TXSize int    `yaml:"tx_size"`
}

// State is the retained payload of bridge/state. Level is one of idle, up,
// degraded or error; Status is a short machine string.
type State struct {
	Level  string `yaml:"level"`
	Status string `yaml:"status"`
	Error  string `yaml:"error,omitempty"`
	TSms   int64  `yaml:"ts_ms"`
}

func StateTopic() bus.Topic { return bus.T("bridge", "state") }

// Start runs the bridge until ctx ends. Each config/bridge message replaces
// the running link.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &service{conn: conn}
	s.run(ctx)
}

type service struct {
	conn *bus.Connection

	mu   sync.Mutex
	stop context.CancelFunc
}

func (s *service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "bridge"))
	defer s.conn.Unsubscribe(cfgSub)
	defer s.swap(nil)

	s.state("idle", "awaiting_config", nil)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.state("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.state("error", "config_decode_failed", err)
				continue
			}
			lctx, cancel := context.WithCancel(ctx)
			s.swap(cancel)
			go s.supervise(lctx, cfg)
		}
	}
}

// swap cancels the running link, if any, and records the next one.
func (s *service) swap(next context.CancelFunc) {
	s.mu.Lock()
	if s.stop != nil {
		s.stop()
	}
	s.stop = next
	s.mu.Unlock()
}

// supervise dials and re-dials the transport with capped exponential
// backoff until the link closes cleanly or ctx ends.
func (s *service) supervise(ctx context.Context, cfg Config) {
	tr, err := newTransport(s.conn, cfg.Transport)
	if err != nil {
		s.state("error", "transport_init_failed", err)
		return
	}
	ping := defaultPing
	if cfg.PingIntervalMs > 0 {
		ping = timex.Ms(cfg.PingIntervalMs)
	}

	delay := minBackoff
	retry := func(status string, err error) bool {
		log.Warn(status, "transport", tr.String(), "retry_ms", delay.Milliseconds(), "err", err)
		s.state("degraded", status, err)
		t := time.NewTimer(delay)
		defer t.Stop()
		delay = min(2*delay, maxBackoff)
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	for ctx.Err() == nil {
		rwc, err := tr.Open(ctx)
		if err != nil {
			if !retry("dial_failed_retrying", err) {
				return
			}
			continue
		}
		delay = minBackoff
		err = s.serve(ctx, rwc, ping)
		_ = rwc.Close()
		if err == nil || !retry("link_lost_retrying", err) {
			return
		}
	}
}

// serve owns one established link. Local publishes on bridge/out/<topic>
// go to the peer; the peer's publishes land on bridge/in/<topic>.
func (s *service) serve(ctx context.Context, rwc io.ReadWriter, ping time.Duration) error {
	out := s.conn.Subscribe(bus.T("bridge", "out", "#"))
	defer s.conn.Unsubscribe(out)
	s.state("up", "link_established", nil)

	fw := frameWriter{w: rwc}
	readErr := make(chan error, 1)
	pingIn := make(chan struct{}, 1)
	go func() {
		readErr <- s.readLoop(frameReader{r: rwc}, pingIn)
	}()

	tick := time.NewTicker(ping)
	defer tick.Stop()
	for {
		var f Frame
		select {
		case <-ctx.Done():
			_ = fw.write(Frame{Type: frameClose})
			return nil
		case err := <-readErr:
			return err
		case <-pingIn:
			f = Frame{Type: framePong}
		case <-tick.C:
			f = Frame{Type: framePing}
		case m := <-out.Channel():
			var err error
			if f, err = pubFrame(m); err != nil {
				log.Warn("drop outbound", "err", err)
				continue
			}
		}
		if err := fw.write(f); err != nil {
			return err
		}
	}
}

// readLoop returns nil when the peer sends close.
func (s *service) readLoop(fr frameReader, pingIn chan<- struct{}) error {
	for {
		f, err := fr.read()
		if err != nil {
			return err
		}
		switch f.Type {
		case framePing:
			select {
			case pingIn <- struct{}{}:
			default:
			}
		case framePub:
			s.publishRemote(f.Payload)
		case framePong:
		case frameClose:
			return nil
		default:
			log.Debug("ignored frame", "type", int(f.Type))
		}
	}
}

// pubFrame encodes m as "<a/b/c>\x00<data>", dropping the bridge/out
// prefix. Payloads other than bytes and strings are sent as YAML.
func pubFrame(m *bus.Message) (Frame, error) {
	segs := make([]string, 0, m.Topic.Len())
	for i := 2; i < m.Topic.Len(); i++ {
		switch v := m.Topic.At(i).(type) {
		case string:
			segs = append(segs, v)
		case int:
			segs = append(segs, strconv.Itoa(v))
		}
	}
	var data []byte
	switch p := m.Payload.(type) {
	case nil:
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		b, err := yaml.Marshal(p)
		if err != nil {
			return Frame{}, &errcode.E{C: errcode.InvalidPayload, Op: "bridge", Err: err}
		}
		data = b
	}
	buf := make([]byte, 0, 64+len(data))
	buf = append(buf, strings.Join(segs, "/")...)
	buf = append(buf, 0)
	return Frame{Type: framePub, Payload: append(buf, data...)}, nil
}

func (s *service) publishRemote(p []byte) {
	i := bytes.IndexByte(p, 0)
	if i <= 0 {
		return
	}
	topic := bus.T("bridge", "in")
	for _, seg := range strings.Split(string(p[:i]), "/") {
		topic = topic.Append(seg)
	}
	s.conn.Publish(s.conn.NewMessage(topic, append([]byte(nil), p[i+1:]...), false))
}

// decodeConfig accepts a Config, raw YAML, or the generic map the config
// service publishes.
func decodeConfig(p any) (Config, error) {
	var cfg Config
	var raw []byte
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case map[string]any:
		b, err := yaml.Marshal(v)
		if err != nil {
			return cfg, &errcode.E{C: errcode.InvalidPayload, Op: "bridge", Err: err}
		}
		raw = b
	default:
		return cfg, &errcode.E{C: errcode.InvalidPayload, Op: "bridge", Msg: "unsupported config payload"}
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, &errcode.E{C: errcode.InvalidPayload, Op: "bridge", Err: err}
	}
	return cfg, nil
}

func (s *service) state(level, status string, err error) {
	st := State{Level: level, Status: status, TSms: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(StateTopic(), st, true))
}
