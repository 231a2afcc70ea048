package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `
heartbeat:
  interval: 2
bridge:
  transport:
    type: serial
    serial:
      name: uart1
      rx_size: 512
      tx_size: 512
  ping_interval_ms: 5000
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
}
