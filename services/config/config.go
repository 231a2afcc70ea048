package config

import (
	"context"

	"gopkg.in/yaml.v3"

	"uarthal/bus"
	"uarthal/errcode"
	"uarthal/types"
	"uarthal/x/logx"
)

var log = logx.New("config")

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	halKey       = "hal"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded YAML and publishes
// each top-level key as a retained config/<key> message. The hal key is
// decoded into types.HALConfig; everything else stays generic.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "missing device ID in context"}
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "no embedded config for device: " + device}
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return &errcode.E{C: errcode.InvalidPayload, Op: "config", Err: err}
	}

	for k, node := range doc {
		var v any
		var err error
		if k == halKey {
			var hc types.HALConfig
			err = node.Decode(&hc)
			v = hc
		} else {
			err = node.Decode(&v)
		}
		if err != nil {
			return &errcode.E{C: errcode.InvalidPayload, Op: "config", Msg: k, Err: err}
		}
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	log.Info("published", "device", device, "keys", len(doc))
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			log.Error("publish failed", "err", err)
		}
	}()
}
