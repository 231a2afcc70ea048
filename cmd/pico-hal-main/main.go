package main

import (
	"context"
	"runtime"
	"time"

	"uarthal/bus"
	"uarthal/services/bridge"
	"uarthal/services/config"
	"uarthal/services/hal"
	"uarthal/services/heartbeat"
	"uarthal/types"
	"uarthal/x/logx"
)

var log = logx.New("main")

func printTopicWith(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		switch v := t.At(i).(type) {
		case string:
			print(v)
		case int:
			print(v)
		default:
			print("?")
		}
	}
	println()
}

func main() {
	time.Sleep(3 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")

	log.Info("bootstrapping bus")
	b := bus.NewBus(4)
	halConn := b.NewConnection("hal")
	uiConn := b.NewConnection("ui")

	mon := uiConn.Subscribe(bus.T("hal", "cap", "+", "+", "+", "event", "#"))
	link := uiConn.Subscribe(bridge.StateTopic())
	go func() {
		for {
			select {
			case m := <-mon.Channel():
				printTopicWith("[monitor] <-", m.Topic)
			case m := <-link.Channel():
				if st, ok := m.Payload.(bridge.State); ok {
					log.Info("bridge", "level", st.Level, "status", st.Status, "err", st.Error)
				}
			}
		}
	}()

	log.Info("starting hal")
	go hal.Run(ctx, halConn)

	uiConn.Publish(uiConn.NewMessage(hal.ConfigTopic(), hal.InitialConfig(), true))
	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))
	go bridge.Start(ctx, b.NewConnection("bridge"))

	state := uiConn.Subscribe(hal.StateTopic())
	for m := range state.Channel() {
		if s, ok := m.Payload.(types.HALState); ok && s.Level == "ready" {
			break
		}
	}
	uiConn.Unsubscribe(state)
	log.Info("hal ready")

	// Greet on the modem port every few seconds and keep an eye on memory.
	write := hal.ControlTopic("io", types.KindUART, "modem", "write")
	for {
		rctx, cancel := context.WithTimeout(ctx, time.Second)
		reply, err := uiConn.RequestWait(rctx, uiConn.NewMessage(write, types.UARTWrite{Data: []byte("AT\r")}, false))
		cancel()
		if err != nil {
			log.Warn("write failed", "err", err)
		} else if er, ok := reply.Payload.(types.ErrorReply); ok {
			log.Warn("write refused", "code", er.Error)
		}
		printMem()
		time.Sleep(5 * time.Second)
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
