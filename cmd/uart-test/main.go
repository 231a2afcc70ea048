//go:build pico && pico_bb_proto_1

// uart-test soaks two serial_raw sessions on a board with uart0 TX wired
// to uart1 RX: a short greeting, then a checksummed pseudo-random stream,
// then a timed throughput run.
package main

import (
	"bytes"
	"context"
	"hash/fnv"
	"time"

	"uarthal/bus"
	"uarthal/errcode"
	"uarthal/services/hal"
	"uarthal/types"
	"uarthal/x/shmring"
)

func main() {
	time.Sleep(1500 * time.Millisecond)
	println("[uart-test] start")

	ctx := context.Background()
	b := bus.NewBus(4)
	ui := b.NewConnection("ui")
	go hal.Run(ctx, b.NewConnection("hal"))
	ui.Publish(ui.NewMessage(hal.ConfigTopic(), hal.InitialConfig(), true))

	tx, err := openSession(ctx, ui, "uart0", false)
	if err != nil {
		println("[uart-test] uart0:", err.Error())
		return
	}
	rx, err := openSession(ctx, ui, "uart1", true)
	if err != nil {
		println("[uart-test] uart1:", err.Error())
		return
	}

	report("greeting", greet(tx, rx, []byte("hello-uart"), 3*time.Second))
	report("stream", stream(tx, rx, 4096, 5*time.Second))
	throughput(tx, rx, 5*time.Second)

	for _, name := range []string{"uart0", "uart1"} {
		ui.Publish(ui.NewMessage(hal.ControlTopic("io", types.KindSerial, name, "session_close"), nil, false))
	}
	time.Sleep(100 * time.Millisecond)
}

func report(name string, ok bool) {
	if ok {
		println("[uart-test]", name, "PASS")
	} else {
		println("[uart-test]", name, "FAIL")
	}
}

// openSession opens a session on name and returns its RX or TX ring.
func openSession(ctx context.Context, c *bus.Connection, name string, wantRX bool) (*shmring.Ring, error) {
	opened := c.Subscribe(hal.EventTopic("io", types.KindSerial, name, "session_opened"))
	defer c.Unsubscribe(opened)

	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	reply, err := c.RequestWait(rctx, c.NewMessage(hal.ControlTopic("io", types.KindSerial, name, "session_open"), nil, false))
	if err != nil {
		return nil, err
	}
	if e, ok := reply.Payload.(types.ErrorReply); ok {
		return nil, errcode.Code(e.Error)
	}
	for {
		select {
		case m := <-opened.Channel():
			ev, ok := m.Payload.(types.SerialSessionOpened)
			if !ok {
				continue
			}
			if wantRX {
				return shmring.Get(shmring.Handle(ev.RXHandle)), nil
			}
			return shmring.Get(shmring.Handle(ev.TXHandle)), nil
		case <-rctx.Done():
			return nil, rctx.Err()
		}
	}
}

func greet(tx, rx *shmring.Ring, msg []byte, limit time.Duration) bool {
	tx.TryWriteFrom(msg)
	var seen []byte
	buf := make([]byte, 64)
	deadline := time.After(limit)
	for !bytes.Contains(seen, msg) {
		select {
		case <-rx.Readable():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			return false
		}
		for n := rx.TryReadInto(buf); n > 0; n = rx.TryReadInto(buf) {
			seen = append(seen, buf[:n]...)
		}
	}
	return true
}

// stream pushes total bytes of xorshift output and compares FNV-1a sums of
// what went out and what came back.
func stream(tx, rx *shmring.Ring, total int, limit time.Duration) bool {
	out, in := fnv.New32a(), fnv.New32a()
	var seed byte = 0xA5
	chunk := make([]byte, 64)
	buf := make([]byte, 128)
	sent, got := 0, 0
	stop := time.Now().Add(limit)

	for (sent < total || got < total) && time.Now().Before(stop) {
		if n := min(tx.Space(), len(chunk), total-sent); n > 0 {
			for i := range chunk[:n] {
				seed ^= seed << 3
				seed ^= seed >> 5
				seed ^= seed << 1
				chunk[i] = seed
			}
			w := tx.TryWriteFrom(chunk[:n])
			out.Write(chunk[:w])
			sent += w
		}
		for n := rx.TryReadInto(buf); n > 0; n = rx.TryReadInto(buf) {
			in.Write(buf[:n])
			got += n
		}
		select {
		case <-rx.Readable():
		case <-time.After(time.Millisecond):
		}
	}
	println("[uart-test] stream sent", sent, "got", got)
	return sent == total && got == total && out.Sum32() == in.Sum32()
}

func throughput(tx, rx *shmring.Ring, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	start := time.Now()
	done := make(chan int)

	go func() {
		block := bytes.Repeat([]byte{0x55}, 256)
		sent := 0
		for ctx.Err() == nil {
			w := tx.TryWriteFrom(block)
			sent += w
			if w == len(block) {
				continue
			}
			select {
			case <-tx.Writable():
			case <-ctx.Done():
			}
		}
		done <- sent
	}()

	buf := make([]byte, 256)
	got := 0
	for ctx.Err() == nil {
		got += rx.TryReadInto(buf)
		select {
		case <-rx.Readable():
		case <-ctx.Done():
		}
	}
	// Let the tail arrive.
	quiet := time.After(300 * time.Millisecond)
tail:
	for {
		if n := rx.TryReadInto(buf); n > 0 {
			got += n
			continue
		}
		select {
		case <-rx.Readable():
		case <-quiet:
			break tail
		}
	}
	sent := <-done
	secs := time.Since(start).Seconds()
	println("[uart-test] throughput tx", sent, "B", int(float64(sent)/secs), "B/s")
	println("[uart-test] throughput rx", got, "B", int(float64(got)/secs), "B/s")
}
