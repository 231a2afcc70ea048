package bridge

import (
	"context"
	"io"
	"sync"

	"uarthal/bus"
	"uarthal/errcode"
)

// Transport dials the byte link a bridge runs over.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type TransportFactory func(conn *bus.Connection, cfg TransportConfig) (Transport, error)

var transports = struct {
	sync.RWMutex
	m map[string]TransportFactory
}{m: map[string]TransportFactory{"serial": newSerialTransport}}

// RegisterTransport adds or replaces the factory for a transport type.
func RegisterTransport(name string, f TransportFactory) {
	transports.Lock()
	transports.m[name] = f
	transports.Unlock()
}

func newTransport(conn *bus.Connection, cfg TransportConfig) (Transport, error) {
	transports.RLock()
	f, ok := transports.m[cfg.Type]
	transports.RUnlock()
	if !ok {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "bridge", Msg: "unknown transport type: " + cfg.Type}
	}
	return f(conn, cfg)
}
