package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/spf13/pflag"

	"uarthal/drivers/uartengine"
	"uarthal/drivers/uartsim"
	"uarthal/errcode"
	"uarthal/x/logx"
)

var log = logx.New("uartsim")

// firstIRQ is where the runner starts numbering simulated vectors.
const firstIRQ = 20

// simChan is one simulated UART opened by a script.
type simChan struct {
	name string
	sim  *uartsim.Sim
	ch   *uartengine.Channel
	port *uartengine.Port
	rts  *uartsim.Pin
	cts  *uartsim.Pin

	mu     sync.Mutex
	events uartengine.Event // collected by the callback, cleared by expect-events
	rxBuf  []byte
}

func (c *simChan) notify(ev uartengine.Event) {
	c.mu.Lock()
	c.events |= ev
	c.mu.Unlock()
}

func (c *simChan) takeEvents() uartengine.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev := c.events
	c.events = 0
	return ev
}

// runner executes scenario scripts against a table of simulated UARTs.
// Lines are shell-tokenised; '#' starts a comment.
type runner struct {
	out   io.Writer
	nvic  *uartsim.NVIC
	table *uartengine.Table
	chans map[string]*simChan
	irq   int
}

func newRunner(out io.Writer) *runner {
	n := uartsim.NewNVIC()
	return &runner{
		out:   out,
		nvic:  n,
		table: uartengine.NewTable(n),
		chans: map[string]*simChan{},
		irq:   firstIRQ,
	}
}

// Run executes every line of r and stops at the first failure.
func (r *runner) Run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	line := 0
	for sc.Scan() {
		line++
		args, err := shlex.Split(sc.Text())
		if err != nil {
			return lineErr(line, err)
		}
		if len(args) == 0 {
			continue
		}
		if err := r.exec(args[0], args[1:]); err != nil {
			return lineErr(line, err)
		}
	}
	return sc.Err()
}

func lineErr(line int, err error) error {
	return &errcode.E{C: errcode.Of(err), Op: "script", Msg: "line " + strconv.Itoa(line) + ": " + err.Error(), Err: err}
}

type command struct {
	usage string
	run   func(r *runner, fs *pflag.FlagSet, args []string) error
	flags func(fs *pflag.FlagSet)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"open":          {usage: "open NAME [--tx-fifo N] [--rx-fifo N] [--flow] [--threshold N] [--nc]", run: cmdOpen, flags: openFlags},
		"close":         {usage: "close NAME", run: cmdClose},
		"tx":            {usage: "tx NAME DATA [--poll]", run: cmdTx, flags: pollFlag},
		"rx":            {usage: "rx NAME LEN [--match C] [--poll]", run: cmdRx, flags: rxFlags},
		"abort-tx":      {usage: "abort-tx NAME", run: cmdAbortTx},
		"abort-rx":      {usage: "abort-rx NAME", run: cmdAbortRx},
		"poll":          {usage: "poll NAME", run: cmdPoll},
		"inject":        {usage: "inject NAME DATA", run: cmdInject},
		"error":         {usage: "error NAME overrun|parity|framing|break", run: cmdError},
		"pump":          {usage: "pump", run: cmdPump},
		"cts":           {usage: "cts NAME high|low", run: cmdCTS},
		"write":         {usage: "write NAME DATA", run: cmdWrite},
		"read":          {usage: "read NAME DATA", run: cmdRead},
		"expect-wire":   {usage: "expect-wire NAME DATA", run: cmdExpectWire},
		"expect-rx":     {usage: "expect-rx NAME DATA", run: cmdExpectRx},
		"expect-events": {usage: "expect-events NAME [EVENT...]", run: cmdExpectEvents},
		"expect-rts":    {usage: "expect-rts NAME high|low", run: cmdExpectRTS},
		"expect-error":  {usage: "expect-error CODE COMMAND...", run: cmdExpectError, flags: passThrough},
		"stats":         {usage: "stats NAME", run: cmdStats},
	}
}

func (r *runner) exec(name string, args []string) error {
	c, ok := commands[name]
	if !ok {
		return &errcode.E{C: errcode.InvalidParams, Msg: "unknown command " + strconv.Quote(name)}
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if c.flags != nil {
		c.flags(fs)
	}
	if err := fs.Parse(args); err != nil {
		return &errcode.E{C: errcode.InvalidParams, Msg: c.usage, Err: err}
	}
	return c.run(r, fs, fs.Args())
}

func (r *runner) chanArg(args []string, n int) (*simChan, error) {
	if len(args) != n {
		return nil, &errcode.E{C: errcode.InvalidParams, Msg: "want " + strconv.Itoa(n) + " arguments"}
	}
	c, ok := r.chans[args[0]]
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownChannel, Msg: args[0]}
	}
	return c, nil
}

// data decodes Go escapes such as \n and \x00 in a script argument. The
// shell tokeniser eats backslashes outside single quotes.
func data(s string) []byte {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return []byte(u)
	}
	return []byte(s)
}

func level(s string) (bool, error) {
	switch s {
	case "high":
		return true, nil
	case "low":
		return false, nil
	}
	return false, &errcode.E{C: errcode.InvalidParams, Msg: "want high or low"}
}

func mismatch(what string, got, want any) error {
	return &errcode.E{C: errcode.Error, Msg: fmt.Sprintf("%s: got %q, want %q", what, got, want)}
}

// ---- commands ----

func openFlags(fs *pflag.FlagSet) {
	fs.Int("tx-fifo", 32, "simulated TX FIFO depth")
	fs.Int("rx-fifo", 32, "simulated RX FIFO depth")
	fs.Bool("flow", false, "attach RTS/CTS shadow pins")
	fs.Int("threshold", 0, "RTS threshold in free bytes")
	fs.Bool("nc", false, "open as not connected")
}

func cmdOpen(r *runner, fs *pflag.FlagSet, args []string) error {
	if len(args) != 1 {
		return &errcode.E{C: errcode.InvalidParams, Msg: "open NAME"}
	}
	txDepth, _ := fs.GetInt("tx-fifo")
	rxDepth, _ := fs.GetInt("rx-fifo")
	flow, _ := fs.GetBool("flow")
	threshold, _ := fs.GetInt("threshold")
	nc, _ := fs.GetBool("nc")

	c := &simChan{name: args[0]}
	cfg := uartengine.Config{Name: args[0], IRQ: -1, NotConnected: nc, FlowThreshold: threshold}
	if !nc {
		c.sim = uartsim.New(txDepth, rxDepth)
		c.sim.Attach(r.nvic, r.irq)
		cfg.Regs, cfg.IRQ = c.sim, r.irq
		r.irq++
	}
	if flow {
		c.rts, c.cts = &uartsim.Pin{}, &uartsim.Pin{}
		cfg.RTS, cfg.CTS = c.rts, c.cts
	}
	ch, err := r.table.Open(cfg)
	if err != nil {
		return err
	}
	c.ch, c.port = ch, uartengine.NewPort(ch)
	if c.cts != nil {
		c.cts.OnEdge(ch.CTSChanged)
	}
	r.chans[c.name] = c
	fmt.Fprintf(r.out, "opened %s id=%d\n", c.name, ch.ID())
	return nil
}

func cmdClose(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 1)
	if err != nil {
		return err
	}
	delete(r.chans, c.name)
	return r.table.Close(c.ch.ID())
}

func pollFlag(fs *pflag.FlagSet) {
	fs.Bool("poll", false, "no callback; collect with poll")
}

func rxFlags(fs *pflag.FlagSet) {
	pollFlag(fs)
	fs.String("match", "", "character match byte")
}

func (c *simChan) callback(fs *pflag.FlagSet) uartengine.Callback {
	if polled, _ := fs.GetBool("poll"); polled {
		return nil
	}
	return c.notify
}

func cmdTx(r *runner, fs *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	_, err = c.ch.StartTx(data(args[1]), 8, c.callback(fs), uartengine.TxEvents)
	return err
}

func cmdRx(r *runner, fs *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return &errcode.E{C: errcode.InvalidParams, Msg: "bad length " + args[1]}
	}
	match := uartengine.NoCharMatch
	if m, _ := fs.GetString("match"); m != "" {
		b := data(m)
		if len(b) != 1 {
			return &errcode.E{C: errcode.InvalidParams, Msg: "match must be one byte"}
		}
		match = uartengine.Match(b[0])
	}
	buf := make([]byte, n)
	if err := c.ch.StartRx(buf, 8, c.callback(fs), uartengine.RxEvents, match); err != nil {
		return err
	}
	c.mu.Lock()
	c.rxBuf = buf
	c.mu.Unlock()
	return nil
}

func cmdAbortTx(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 1)
	if err != nil {
		return err
	}
	c.ch.AbortTx()
	return nil
}

func cmdAbortRx(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 1)
	if err != nil {
		return err
	}
	c.ch.AbortRx()
	return nil
}

func cmdPoll(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 1)
	if err != nil {
		return err
	}
	c.notify(c.ch.PollAndClearEvents())
	return nil
}

func (c *simChan) needSim() error {
	if c.sim == nil {
		return &errcode.E{C: errcode.NotConnected, Msg: c.name}
	}
	return nil
}

func cmdInject(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	if err := c.needSim(); err != nil {
		return err
	}
	c.sim.Receive(data(args[1])...)
	return nil
}

func cmdError(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	if err := c.needSim(); err != nil {
		return err
	}
	var es uartengine.ErrorStatus
	switch args[1] {
	case "overrun":
		es.Overrun = true
	case "parity":
		es.Parity = true
	case "framing":
		es.Framing = true
	case "break":
		es.Break = true
	default:
		return &errcode.E{C: errcode.InvalidParams, Msg: "unknown error " + args[1]}
	}
	c.sim.RaiseError(es)
	return nil
}

func (r *runner) pump() int {
	total := 0
	for {
		n := 0
		for _, c := range r.chans {
			if c.sim != nil {
				n += c.sim.Pump()
			}
		}
		if n == 0 {
			return total
		}
		total += n
	}
}

func cmdPump(r *runner, _ *pflag.FlagSet, args []string) error {
	fmt.Fprintf(r.out, "pump fires=%d\n", r.pump())
	return nil
}

func cmdCTS(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	if c.cts == nil {
		return &errcode.E{C: errcode.Unsupported, Msg: c.name + " has no flow pins"}
	}
	v, err := level(args[1])
	if err != nil {
		return err
	}
	c.cts.Drive(v)
	return nil
}

// cmdWrite goes through the drivers.UART view of the channel. The far end
// is drained concurrently so Putc can make progress past the FIFO depth.
func cmdWrite(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	if err := c.needSim(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			c.sim.ShiftOut()
			runtime.Gosched()
		}
	}()
	_, err = c.port.Write(data(args[1]))
	cancel()
	<-done
	return err
}

func cmdRead(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	want := data(args[1])
	got := make([]byte, len(want)+1)
	n, err := c.port.Read(got)
	if err != nil {
		return err
	}
	if !bytes.Equal(got[:n], want) {
		return mismatch("read", got[:n], want)
	}
	return nil
}

func cmdExpectWire(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	if err := c.needSim(); err != nil {
		return err
	}
	got, want := c.sim.TakeWire(), data(args[1])
	if !bytes.Equal(got, want) {
		return mismatch("wire", got, want)
	}
	return nil
}

func cmdExpectRx(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	pos := c.ch.RxPos()
	c.mu.Lock()
	var got []byte
	if pos <= len(c.rxBuf) {
		got = append(got, c.rxBuf[:pos]...)
	}
	c.mu.Unlock()
	if want := data(args[1]); !bytes.Equal(got, want) {
		return mismatch("rx", got, want)
	}
	return nil
}

func cmdExpectEvents(r *runner, _ *pflag.FlagSet, args []string) error {
	if len(args) < 1 {
		return &errcode.E{C: errcode.InvalidParams, Msg: "expect-events NAME [EVENT...]"}
	}
	c, err := r.chanArg(args[:1], 1)
	if err != nil {
		return err
	}
	want, ok := uartengine.ParseEvents(args[1:])
	if !ok {
		return &errcode.E{C: errcode.InvalidParams, Msg: "unknown event in " + strings.Join(args[1:], " ")}
	}
	if got := c.takeEvents(); got != want {
		return mismatch("events", got.String(), want.String())
	}
	return nil
}

func cmdExpectRTS(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 2)
	if err != nil {
		return err
	}
	if c.rts == nil {
		return &errcode.E{C: errcode.Unsupported, Msg: c.name + " has no flow pins"}
	}
	want, err := level(args[1])
	if err != nil {
		return err
	}
	if got := c.rts.Get(); got != want {
		return mismatch("rts", strconv.FormatBool(got), strconv.FormatBool(want))
	}
	return nil
}

func passThrough(fs *pflag.FlagSet) { fs.SetInterspersed(false) }

// cmdExpectError runs the rest of the line and requires it to fail with
// the given error code.
func cmdExpectError(r *runner, _ *pflag.FlagSet, args []string) error {
	if len(args) < 2 {
		return &errcode.E{C: errcode.InvalidParams, Msg: "expect-error CODE COMMAND..."}
	}
	err := r.exec(args[1], args[2:])
	if got := errcode.Of(err); err == nil || got != errcode.Code(args[0]) {
		return mismatch("error", string(got), args[0])
	}
	return nil
}

func cmdStats(r *runner, _ *pflag.FlagSet, args []string) error {
	c, err := r.chanArg(args, 1)
	if err != nil {
		return err
	}
	st := c.ch.Stats()
	fmt.Fprintf(r.out, "%s tx_irq=%d rx_irq=%d err_irq=%d spurious=%d tx_bytes=%d rx_bytes=%d dropped=%d\n",
		c.name, st.TxIRQ, st.RxIRQ, st.ErrIRQ, st.Spurious, st.TxBytes, st.RxBytes, st.ErrorsDropped)
	log.Debug("stats", "chan", c.name, "tx_irq", st.TxIRQ, "rx_irq", st.RxIRQ)
	return nil
}
